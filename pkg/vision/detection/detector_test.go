package detection

import (
	"context"
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/teslashibe/go-proctor/pkg/vision"
)

type fakeDetector struct {
	dets []Detection
	err  error
}

func (f *fakeDetector) Detect(image.Image) ([]Detection, error) { return f.dets, f.err }
func (f *fakeDetector) Close() error                           { return nil }

func frontalFace(x, y, size float64) Detection {
	d := Detection{X: x, Y: y, W: size, H: size, Confidence: 0.9}
	d.Landmarks[RightEye] = Point{X: x + size*0.3, Y: y + size*0.4}
	d.Landmarks[LeftEye] = Point{X: x + size*0.7, Y: y + size*0.4}
	d.Landmarks[NoseTip] = Point{X: x + size*0.5, Y: y + size*0.6}
	return d
}

func TestDetection_CenterArea(t *testing.T) {
	d := Detection{X: 0.2, Y: 0.3, W: 0.4, H: 0.2}
	x, y := d.Center()
	if math.Abs(x-0.4) > 1e-9 || math.Abs(y-0.4) > 1e-9 {
		t.Errorf("Center() = (%f, %f), want (0.4, 0.4)", x, y)
	}
	if math.Abs(d.Area()-0.08) > 1e-9 {
		t.Errorf("Area() = %f, want 0.08", d.Area())
	}
}

func TestDetection_EyeOffset(t *testing.T) {
	tests := []struct {
		name   string
		shift  float64
		wantDX float64
	}{
		{"frontal", 0, 0},
		{"turned", 0.05, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := frontalFace(0.3, 0.2, 0.2)
			d.Landmarks[RightEye].X += tt.shift
			d.Landmarks[LeftEye].X += tt.shift
			dx, dy := d.EyeOffset()
			if math.Abs(dx-tt.wantDX) > 1e-9 {
				t.Errorf("dx = %f, want %f", dx, tt.wantDX)
			}
			if math.Abs(dy-(-0.1)) > 1e-9 {
				t.Errorf("dy = %f, want -0.1", dy)
			}
		})
	}

	if dx, dy := (Detection{}).EyeOffset(); dx != 0 || dy != 0 {
		t.Error("zero-size box should have zero offset")
	}
}

func TestSelectBest(t *testing.T) {
	tests := []struct {
		name       string
		detections []Detection
		expectNil  bool
		expectIdx  int
	}{
		{"empty list", nil, true, 0},
		{"single", []Detection{{X: 0.4, Y: 0.4, W: 0.2, H: 0.2, Confidence: 0.9}}, false, 0},
		{
			"confidence beats area",
			[]Detection{
				{X: 0.0, Y: 0.0, W: 0.4, H: 0.4, Confidence: 0.5},
				{X: 0.3, Y: 0.3, W: 0.2, H: 0.2, Confidence: 0.95},
			},
			false, 1,
		},
		{
			"equal confidence picks larger",
			[]Detection{
				{X: 0.0, Y: 0.0, W: 0.5, H: 0.5, Confidence: 0.8},
				{X: 0.3, Y: 0.3, W: 0.1, H: 0.1, Confidence: 0.8},
			},
			false, 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			best := SelectBest(tc.detections)
			if tc.expectNil {
				if best != nil {
					t.Errorf("SelectBest = %+v, want nil", best)
				}
				return
			}
			if best != &tc.detections[tc.expectIdx] {
				t.Errorf("SelectBest = %+v, want index %d", best, tc.expectIdx)
			}
		})
	}
}

func TestEstimator(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 640, 480))

	det := &fakeDetector{dets: []Detection{frontalFace(0.4, 0.3, 0.2), frontalFace(0.05, 0.05, 0.1)}}
	est, err := NewEstimator(det).Estimate(context.Background(), frame)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if est.Faces != 2 || est.Source != "local" {
		t.Errorf("estimate = %+v", est)
	}
	if est.Center == nil || math.Abs(est.Center.X-320) > 1e-6 || math.Abs(est.Center.Y-192) > 1e-6 {
		t.Errorf("center = %+v, want (320, 192)", est.Center)
	}
	if est.Gaze == nil || math.Abs(est.Gaze.X) > 1e-9 {
		t.Errorf("gaze = %+v, want frontal", est.Gaze)
	}

	none, err := NewEstimator(&fakeDetector{}).Estimate(context.Background(), frame)
	if err != nil || none.Faces != 0 || none.Center != nil {
		t.Errorf("empty estimate = %+v, %v", none, err)
	}

	boom := errors.New("inference failed")
	if _, err := NewEstimator(&fakeDetector{err: boom}).Estimate(context.Background(), frame); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
	if _, err := NewEstimator(det).Estimate(context.Background(), nil); !errors.Is(err, vision.ErrEmptyFrame) {
		t.Errorf("nil frame error = %v", err)
	}
}

func TestYuNetNewInvalidPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"

	if _, err := NewYuNet(cfg); !errors.Is(err, vision.ErrModelLoad) {
		t.Errorf("NewYuNet() error = %v, want ErrModelLoad", err)
	}
}

func TestYuNetDetect_Blank(t *testing.T) {
	path := findModelPath()
	if path == "" {
		t.Skip("YuNet model not found, skipping test")
	}
	cfg := DefaultConfig()
	cfg.ModelPath = path

	d, err := NewYuNet(cfg)
	if err != nil {
		t.Fatalf("NewYuNet: %v", err)
	}
	defer d.Close()

	dets, err := d.Detect(image.NewRGBA(image.Rect(0, 0, 320, 240)))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("blank frame produced %d detections", len(dets))
	}
}

func findModelPath() string {
	for _, p := range []string{
		"models/face_detection_yunet_2023mar.onnx",
		"../../../models/face_detection_yunet_2023mar.onnx",
		filepath.Join(os.Getenv("HOME"), ".proctor", "models", "face_detection_yunet_2023mar.onnx"),
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
