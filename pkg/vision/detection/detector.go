// Package detection provides local face detection with facial landmarks.
package detection

import "image"

// Landmark indexes in Detection.Landmarks, in YuNet output order.
const (
	RightEye = iota
	LeftEye
	NoseTip
	RightMouth
	LeftMouth
)

// Detection represents a detected face. All coordinates are normalized 0-1.
type Detection struct {
	X, Y       float64 // Top-left corner
	W, H       float64 // Width and height
	Confidence float64 // Detection confidence (0-1)

	// Landmarks holds right eye, left eye, nose tip and mouth corners.
	Landmarks [5]Point
}

// Point is a normalized 0-1 position.
type Point struct {
	X, Y float64
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.W * d.H
}

// EyeOffset returns the eye midpoint offset from the box center as a fraction
// of the box width and height.
func (d Detection) EyeOffset() (dx, dy float64) {
	if d.W <= 0 || d.H <= 0 {
		return 0, 0
	}
	cx, cy := d.Center()
	ex := (d.Landmarks[RightEye].X + d.Landmarks[LeftEye].X) / 2
	ey := (d.Landmarks[RightEye].Y + d.Landmarks[LeftEye].Y) / 2
	return (ex - cx) / d.W, (ey - cy) / d.H
}

// Detector is the interface for face detection backends
type Detector interface {
	// Detect finds faces in the image
	Detect(img image.Image) ([]Detection, error)

	// Close releases resources
	Close() error
}

// Config holds detector configuration
type Config struct {
	ModelPath        string  `yaml:"model_path" mapstructure:"model_path"`       // Path to ONNX model
	ConfidenceThresh float64 `yaml:"confidence" mapstructure:"confidence"`       // Minimum confidence (default 0.6)
	InputWidth       int     `yaml:"input_width" mapstructure:"input_width"`     // Model input width
	InputHeight      int     `yaml:"input_height" mapstructure:"input_height"`   // Model input height
	NMSThresh        float64 `yaml:"nms_threshold" mapstructure:"nms_threshold"` // Non-max suppression
}

// DefaultConfig returns defaults for the YuNet 2023mar model.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet_2023mar.onnx",
		ConfidenceThresh: 0.6,
		InputWidth:       640,
		InputHeight:      480,
		NMSThresh:        0.3,
	}
}

// SelectBest picks the primary face from multiple detections.
// Priority: confidence * 0.7 + relative area * 0.3
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}
	if len(dets) == 1 {
		return &dets[0]
	}

	maxArea := 0.0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}

	bestScore := -1.0
	var best *Detection
	for i := range dets {
		score := dets[i].Confidence * 0.7
		if maxArea > 0 {
			score += (dets[i].Area() / maxArea) * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}
	return best
}
