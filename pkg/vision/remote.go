package vision

import (
	"context"
	"image"
	"time"

	"github.com/teslashibe/go-proctor/pkg/inference"
)

// RemoteEstimator asks the remote inference service.
type RemoteEstimator struct {
	client  inference.Analyzer
	timeout time.Duration
}

// NewRemoteEstimator wraps client. Each call is bounded by timeout.
func NewRemoteEstimator(client inference.Analyzer, timeout time.Duration) *RemoteEstimator {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RemoteEstimator{client: client, timeout: timeout}
}

// Name returns "remote".
func (r *RemoteEstimator) Name() string { return "remote" }

// Estimate uploads the frame and maps the analysis.
func (r *RemoteEstimator) Estimate(ctx context.Context, frame *image.RGBA) (*Estimate, error) {
	w, h, err := frameSize(frame)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	a, err := r.client.AnalyzeFrame(ctx, frame)
	if err != nil {
		return nil, err
	}
	// A missing analysis means the service had nothing to say.
	if a == nil {
		return nil, inference.ErrBadResponse
	}

	est := &Estimate{
		Faces:       a.FacesDetected,
		FrameWidth:  w,
		FrameHeight: h,
		LookingAway: a.LookingAway,
		LeftSeat:    a.PersonLeftSeat,
		Confidence:  a.Confidence,
		Source:      r.Name(),
	}
	if a.MultipleFaces && est.Faces < 2 {
		est.Faces = 2
	}
	if a.FacePosition != nil && est.Faces > 0 {
		est.Center = &Point{X: float64(a.FacePosition.X), Y: float64(a.FacePosition.Y)}
	}
	return est, nil
}

var _ Estimator = (*RemoteEstimator)(nil)
