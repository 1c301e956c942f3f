// Package visual turns a sequence of per-frame face estimates into
// suspicious activity events: no face, multiple faces, displacement and gaze.
package visual

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-proctor/pkg/activity"
	"github.com/teslashibe/go-proctor/pkg/capture"
	"github.com/teslashibe/go-proctor/pkg/vision"
)

// Source is the detector name stamped on emitted activities.
const Source = "visual"

// Point is a face position sample in reference-frame pixels.
type Point = vision.Point

// HandleSource yields the current video capture handle, or nil while none is
// healthy. The stream supervisor implements it.
type HandleSource interface {
	Handle() *capture.Handle
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l.With("component", "visual")
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// Stats is a snapshot of detector counters.
type Stats struct {
	Cycles   int64     // Frames analysed
	Skipped  int64     // Cycles skipped for a non-playing sink or failed estimate
	Events   int64     // Activities emitted
	LastTick time.Time // Last analysed cycle
	Source   string    // Estimator that produced the last estimate
}

// Detector is the visual anomaly state machine.
type Detector struct {
	cfg       Config
	handles   HandleSource
	estimator vision.Estimator
	reporter  activity.Reporter
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	noFace     int
	faceCycles int
	away       int
	last       *Point
	lastTick   time.Time
	lastSource string

	cycles  atomic.Int64
	skipped atomic.Int64
	events  atomic.Int64
}

// New creates a detector. Invalid configs fall back to DefaultConfig.
func New(cfg Config, handles HandleSource, est vision.Estimator, reporter activity.Reporter, opts ...Option) *Detector {
	d := &Detector{
		cfg:       cfg,
		handles:   handles,
		estimator: est,
		reporter:  reporter,
		logger:    slog.Default().With("component", "visual"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := cfg.Validate(); err != nil {
		d.logger.Warn("invalid visual config, using defaults", "error", err)
		d.cfg = DefaultConfig()
	}
	return d
}

// Config returns the active configuration.
func (d *Detector) Config() Config { return d.cfg }

// Run analyses one frame per interval until ctx is done.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.logger.Info("visual detector started", "interval", d.cfg.Interval)
	defer d.logger.Info("visual detector stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one cycle: it skips unless a live frame is available, estimates
// faces and feeds the estimate to Process. A panicking cycle is logged and
// counted as skipped.
func (d *Detector) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.skipped.Add(1)
			d.logger.Error("visual cycle panicked", "panic", r)
		}
	}()

	frame, ok := d.frame()
	if !ok {
		d.skipped.Add(1)
		return
	}

	est, err := d.estimator.Estimate(ctx, frame)
	if err != nil {
		d.skipped.Add(1)
		d.logger.Debug("no estimate this cycle", "error", err)
		return
	}

	for _, a := range d.Process(est) {
		d.events.Add(1)
		if d.reporter != nil {
			d.reporter.Record(a)
		}
	}
}

func (d *Detector) frame() (*image.RGBA, bool) {
	if d.handles == nil || d.estimator == nil {
		return nil, false
	}
	h := d.handles.Handle()
	if h == nil {
		return nil, false
	}
	fs := h.Frames()
	if fs == nil || !fs.Playing() || !h.Stream().Active() {
		return nil, false
	}
	img, err := fs.Snapshot()
	if err != nil {
		d.logger.Debug("snapshot failed", "error", err)
		return nil, false
	}
	return img, true
}

// Process advances the state machine with one estimate and returns the
// activities it produced, in order.
func (d *Detector) Process(est *vision.Estimate) []activity.Activity {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cycles.Add(1)
	now := d.now()
	d.lastTick = now
	d.lastSource = est.Source

	var out []activity.Activity
	emit := func(t activity.Type, sev activity.Severity, format string, args ...any) {
		out = append(out, activity.NewAt(now, t, sev, Source, fmt.Sprintf(format, args...)))
	}

	if est.Faces <= 0 {
		d.away = 0
		d.noFace++
		if d.noFace >= d.cfg.NoFaceStreak {
			emit(activity.FaceNotDetected, activity.Medium,
				"No face detected for %d consecutive checks", d.noFace)
			d.noFace = 0
		}
		return out
	}
	d.noFace = 0

	if est.Faces > 1 {
		emit(activity.MultipleFaces, activity.High, "%d faces detected in frame", est.Faces)
	}

	if est.LeftSeat {
		emit(activity.PersonLeftSeat, activity.High, "Remote analysis reports candidate left the seat")
	} else if est.Center != nil {
		d.faceCycles++
		cur := d.scale(*est.Center, est.FrameWidth, est.FrameHeight)
		if d.last != nil && d.faceCycles > d.cfg.StabilizationCycles {
			dist := cur.Distance(*d.last)
			switch {
			case dist > d.cfg.LeftSeatDistance:
				emit(activity.PersonLeftSeat, activity.High,
					"Face moved %.0fpx between checks, candidate may have left the seat", dist)
			case dist > d.cfg.HeadMoveDistance:
				emit(activity.PersonLeftSeat, activity.Medium,
					"Significant head movement of %.0fpx", dist)
			}
		}
		d.last = &cur
	}

	if d.lookingAway(est) {
		d.away++
		if d.away >= d.cfg.LookingAwayStreak {
			emit(activity.LookingAway, activity.Medium,
				"Candidate looked away from the screen for %d consecutive checks", d.away)
			d.away = 0
		}
	} else {
		d.away = 0
	}

	return out
}

func (d *Detector) lookingAway(est *vision.Estimate) bool {
	if est.Gaze == nil {
		return est.LookingAway
	}
	return math.Abs(est.Gaze.X) > d.cfg.GazeThreshold ||
		math.Abs(est.Gaze.Y-d.cfg.GazeNeutralY) > d.cfg.GazePitchThreshold
}

// scale maps p from a w x h frame into the reference frame.
func (d *Detector) scale(p Point, w, h int) Point {
	if w <= 0 || h <= 0 {
		return p
	}
	return Point{
		X: p.X * float64(d.cfg.ReferenceWidth) / float64(w),
		Y: p.Y * float64(d.cfg.ReferenceHeight) / float64(h),
	}
}

// LastPosition returns the last face sample in reference pixels.
func (d *Detector) LastPosition() (Point, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return Point{}, false
	}
	return *d.last, true
}

// Stats returns detector counters.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	last, src := d.lastTick, d.lastSource
	d.mu.Unlock()
	return Stats{
		Cycles:   d.cycles.Load(),
		Skipped:  d.skipped.Load(),
		Events:   d.events.Load(),
		LastTick: last,
		Source:   src,
	}
}
