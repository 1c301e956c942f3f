package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-proctor/pkg/vision"
)

// YuNetDetector uses OpenCV's FaceDetectorYN for face detection
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   Config
	mu       sync.Mutex // Protects inference
}

// NewYuNet loads the YuNet ONNX model. Failures wrap vision.ErrModelLoad.
func NewYuNet(cfg Config) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", vision.ErrModelLoad, cfg.ModelPath, err)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // No config file needed for ONNX
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
	}, nil
}

// Detect finds faces in img.
func (d *YuNetDetector) Detect(img image.Image) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	imgW := float64(mat.Cols())
	imgH := float64(mat.Rows())

	d.detector.SetInputSize(image.Pt(mat.Cols(), mat.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()

	d.detector.Detect(mat, &faces)

	var detections []Detection
	for r := 0; r < faces.Rows(); r++ {
		// YuNet output format (15 columns):
		// 0-3: x, y, w, h (bounding box in pixels)
		// 4-13: 5 facial landmarks (x,y pairs)
		// 14: face score
		det := Detection{
			X:          float64(faces.GetFloatAt(r, 0)) / imgW,
			Y:          float64(faces.GetFloatAt(r, 1)) / imgH,
			W:          float64(faces.GetFloatAt(r, 2)) / imgW,
			H:          float64(faces.GetFloatAt(r, 3)) / imgH,
			Confidence: float64(faces.GetFloatAt(r, 14)),
		}
		for i := range det.Landmarks {
			det.Landmarks[i] = Point{
				X: float64(faces.GetFloatAt(r, 4+2*i)) / imgW,
				Y: float64(faces.GetFloatAt(r, 5+2*i)) / imgH,
			}
		}
		detections = append(detections, det)
	}

	return detections, nil
}

// Close releases the detector resources
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

var _ Detector = (*YuNetDetector)(nil)
