// Package vision turns a single video frame into a face/person estimate.
//
// Estimators are tried in priority order by a Chain: the remote inference
// service, a local face model, and a skin-tone pixel heuristic. A tier that
// errors is skipped and the next one is asked.
package vision

import (
	"context"
	"errors"
	"image"
	"math"
)

var (
	// ErrModelLoad is returned when a local model cannot be loaded.
	ErrModelLoad = errors.New("vision: model load failed")

	// ErrNoEstimators is returned by an empty chain.
	ErrNoEstimators = errors.New("vision: no estimators configured")

	// ErrEmptyFrame is returned for nil or zero-sized frames.
	ErrEmptyFrame = errors.New("vision: empty frame")
)

// Point is a pixel position in the analysed frame.
type Point struct {
	X, Y float64
}

// Distance returns the euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Gaze is the eye midpoint offset from the face center, as a fraction of
// the face width (X) and height (Y).
type Gaze struct {
	X, Y float64
}

// Estimate is one estimator's view of a frame.
type Estimate struct {
	// Faces is the number of faces found.
	Faces int

	// Center is the primary face center in frame pixels, nil without a face.
	Center *Point

	// FrameWidth and FrameHeight are the analysed frame dimensions.
	FrameWidth  int
	FrameHeight int

	// Gaze is set by estimators that see facial landmarks.
	Gaze *Gaze

	// LookingAway and LeftSeat are verdicts from estimators that decide them
	// themselves (the remote service).
	LookingAway bool
	LeftSeat    bool

	Confidence float64

	// Source names the estimator that produced this estimate.
	Source string
}

// Estimator produces a face estimate for a frame.
type Estimator interface {
	Name() string
	Estimate(ctx context.Context, frame *image.RGBA) (*Estimate, error)
}

func frameSize(frame *image.RGBA) (int, int, error) {
	if frame == nil {
		return 0, 0, ErrEmptyFrame
	}
	b := frame.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return 0, 0, ErrEmptyFrame
	}
	return b.Dx(), b.Dy(), nil
}
