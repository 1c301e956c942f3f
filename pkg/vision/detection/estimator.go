package detection

import (
	"context"
	"errors"
	"image"

	"github.com/teslashibe/go-proctor/pkg/vision"
)

// Estimator adapts a Detector to the vision chain.
type Estimator struct {
	detector Detector
}

// NewEstimator wraps det.
func NewEstimator(det Detector) *Estimator {
	return &Estimator{detector: det}
}

// Name returns "local".
func (e *Estimator) Name() string { return "local" }

// Estimate runs the detector. The primary face is chosen with SelectBest and
// carries the landmark gaze offset.
func (e *Estimator) Estimate(ctx context.Context, frame *image.RGBA) (*vision.Estimate, error) {
	if frame == nil || frame.Bounds().Empty() {
		return nil, vision.ErrEmptyFrame
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.detector == nil {
		return nil, errors.New("detection: no detector")
	}

	dets, err := e.detector.Detect(frame)
	if err != nil {
		return nil, err
	}

	w, h := frame.Bounds().Dx(), frame.Bounds().Dy()
	est := &vision.Estimate{
		Faces:       len(dets),
		FrameWidth:  w,
		FrameHeight: h,
		Source:      e.Name(),
	}
	if best := SelectBest(dets); best != nil {
		cx, cy := best.Center()
		est.Center = &vision.Point{X: cx * float64(w), Y: cy * float64(h)}
		gx, gy := best.EyeOffset()
		est.Gaze = &vision.Gaze{X: gx, Y: gy}
		est.Confidence = best.Confidence
	}
	return est, nil
}

// Close releases the detector.
func (e *Estimator) Close() error {
	if e.detector == nil {
		return nil
	}
	return e.detector.Close()
}

var _ vision.Estimator = (*Estimator)(nil)
