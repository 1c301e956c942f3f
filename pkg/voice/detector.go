// Package voice detects external voices and background audio by comparing
// spectrum snapshots against an adaptive profile of the candidate's voice.
//
// The first BaselineSamples snapshots only build the profile. After that every
// snapshot is checked by three rules (external voice, sustained audio and a
// complex loudness pattern) sharing one cooldown, and speech-like snapshots are
// blended into the profile.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/go-proctor/pkg/activity"
	"github.com/teslashibe/go-proctor/pkg/capture"
)

// Source is the detector name stamped on emitted activities.
const Source = "audio"

const stopTimeout = 2 * time.Second

// HandleSource yields the current audio capture handle, or nil while none is
// healthy.
type HandleSource interface {
	Handle() *capture.Handle
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l.With("component", "voice")
		}
	}
}

// WithClock overrides the time source used for cooldowns and liveness.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// Detector is the audio anomaly detector.
type Detector struct {
	cfg      Config
	handles  HandleSource
	reporter activity.Reporter
	logger   *slog.Logger
	now      func() time.Time

	speech atomic.Bool

	mu        sync.Mutex
	base      baseline
	profile   Profile
	recent    []float64 // Loudness history, newest last
	lastAlert time.Time

	running  atomic.Int32
	lastTick atomic.Int64 // unix nanos
	ticks    atomic.Int64
	events   atomic.Int64

	loopMu sync.Mutex
	loop   *loop
}

type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a detector. Invalid configs fall back to DefaultConfig.
func New(cfg Config, handles HandleSource, reporter activity.Reporter, opts ...Option) *Detector {
	d := &Detector{
		cfg:      cfg,
		handles:  handles,
		reporter: reporter,
		logger:   slog.Default().With("component", "voice"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := cfg.Validate(); err != nil {
		d.logger.Warn("invalid voice config, using defaults", "error", err)
		d.cfg = DefaultConfig()
	}
	return d
}

// Config returns the active configuration.
func (d *Detector) Config() Config { return d.cfg }

// SetSpeechActive widens the speech band and learning rate while the host
// runs its own speech-to-text capture.
func (d *Detector) SetSpeechActive(active bool) {
	if d.speech.Swap(active) != active {
		d.logger.Debug("speech recognition state changed", "active", active)
	}
}

// SpeechActive reports the host speech-to-text state.
func (d *Detector) SpeechActive() bool { return d.speech.Load() }

// Profile returns a snapshot of the voice profile.
func (d *Detector) Profile() Profile {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.profile
	if !p.Ready {
		p.Samples = len(d.base.all)
		p.QuietSamples = len(d.base.centroids)
	}
	return p
}

// Run samples one spectrum per interval until ctx is done. A panic inside a
// cycle is logged and the loop exits, leaving restart to the caller.
func (d *Detector) Run(ctx context.Context) {
	d.running.Add(1)
	defer d.running.Add(-1)
	d.touch()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("audio loop panicked", "panic", r)
		}
	}()

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick()
		}
	}
}

// Start runs the loop in a goroutine, replacing any previous loop.
func (d *Detector) Start(ctx context.Context) {
	d.loopMu.Lock()
	defer d.loopMu.Unlock()

	if d.loop != nil {
		d.loop.cancel()
	}
	lctx, cancel := context.WithCancel(ctx)
	l := &loop{cancel: cancel, done: make(chan struct{})}
	d.loop = l
	go func() {
		defer close(l.done)
		d.Run(lctx)
	}()
}

// Restart replaces the loop when it is stalled. It reports whether a restart
// happened.
func (d *Detector) Restart(ctx context.Context) bool {
	if !d.Stalled() {
		return false
	}
	d.logger.Warn("audio loop stalled, restarting", "last_tick", d.LastTick())
	d.Start(ctx)
	return true
}

// Stop cancels the loop and waits for it to exit.
func (d *Detector) Stop() {
	d.loopMu.Lock()
	l := d.loop
	d.loop = nil
	d.loopMu.Unlock()

	if l == nil {
		return
	}
	l.cancel()
	select {
	case <-l.done:
	case <-time.After(stopTimeout):
		d.logger.Warn("audio loop did not exit in time")
	}
}

// Alive reports whether a sampling loop is running.
func (d *Detector) Alive() bool { return d.running.Load() > 0 }

// LastTick returns when the loop last sampled.
func (d *Detector) LastTick() time.Time {
	ns := d.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Stalled reports whether the loop is gone or has missed StallFactor
// intervals.
func (d *Detector) Stalled() bool {
	if !d.Alive() {
		return true
	}
	limit := time.Duration(d.cfg.StallFactor) * d.cfg.Interval
	return d.now().Sub(d.LastTick()) > limit
}

// Ticks returns the number of loop iterations.
func (d *Detector) Ticks() int64 { return d.ticks.Load() }

func (d *Detector) touch() { d.lastTick.Store(d.now().UnixNano()) }

// Tick samples the current spectrum and processes it.
func (d *Detector) Tick() {
	d.touch()
	d.ticks.Add(1)

	if d.handles == nil {
		return
	}
	h := d.handles.Handle()
	if h == nil {
		return
	}
	src := h.Spectrum()
	if src == nil || !src.Playing() {
		return
	}
	spec, err := src.Spectrum()
	if err != nil {
		d.logger.Debug("no spectrum this cycle", "error", err)
		return
	}

	for _, a := range d.Process(Analyze(spec)) {
		d.events.Add(1)
		if d.reporter != nil {
			d.reporter.Record(a)
		}
	}
}

// Process feeds one sample through baseline, detection and adaptation.
func (d *Detector) Process(s Sample) []activity.Activity {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.profile.Ready {
		d.base.add(s, d.cfg.QuietThreshold)
		d.push(s.Loudness)
		if len(d.base.all) >= d.cfg.BaselineSamples {
			d.profile = d.base.profile(d.cfg.RangeMargin)
			d.logger.Info("voice baseline complete",
				"quiet_samples", d.profile.QuietSamples,
				"baseline_loudness", fmt.Sprintf("%.1f", d.profile.BaselineLoudness),
				"range", fmt.Sprintf("%.0f-%.0fHz", d.profile.Min, d.profile.Max))
			d.base = baseline{}
		}
		return nil
	}

	d.profile.Samples++
	out := d.detect(s)
	d.push(s.Loudness)

	band, rate := d.cfg.SpeechBand, d.cfg.LearningRate
	if d.speech.Load() {
		band, rate = d.cfg.SpeechBandActive, d.cfg.LearningRateActive
	}
	if band.Contains(s.Loudness) {
		d.profile.adapt(s, rate, d.cfg.RangeMargin)
	}
	return out
}

func (d *Detector) detect(s Sample) []activity.Activity {
	p := d.profile
	outside := p.Outside(s.Centroid)

	var prevAvg float64
	if len(d.recent) > 0 {
		prevAvg = stat.Mean(d.recent, nil)
	}
	external := s.Loudness > p.BaselineLoudness+d.cfg.ExternalMargin &&
		s.Loudness-prevAvg > d.cfg.JumpThreshold &&
		outside > d.cfg.CentroidDeviation

	window := d.window(s.Loudness)
	avg, std := stat.PopMeanStdDev(window, nil)
	sustainedHigh := len(window) >= d.cfg.Window && floats.Min(window) > d.cfg.SustainedFloor
	aboveBase := avg > p.BaselineLoudness+d.cfg.SustainedMargin

	sustained := sustainedHigh && aboveBase && (outside > 0 || s.Loudness > d.cfg.VeryLoud)
	// An irregular window is reported at medium before the steady rule.
	irregular := std > d.cfg.ComplexStdDev && avg > d.cfg.ComplexAverage &&
		sustainedHigh && aboveBase && outside > 0

	var sev activity.Severity
	var desc string
	switch {
	case external:
		sev = activity.High
		desc = fmt.Sprintf("External voice detected (loudness %.0f, %.0fHz outside learned range)", s.Loudness, outside)
	case irregular:
		sev = activity.Medium
		desc = fmt.Sprintf("Irregular background audio (loudness deviation %.1f)", std)
	case sustained:
		sev = activity.High
		desc = fmt.Sprintf("Sustained external audio (average loudness %.0f over %d samples)", avg, len(window))
	default:
		return nil
	}

	now := d.now()
	if !d.lastAlert.IsZero() && now.Sub(d.lastAlert) < d.cfg.Cooldown {
		return nil
	}
	d.lastAlert = now
	return []activity.Activity{activity.NewAt(now, activity.AudioDetected, sev, Source, desc)}
}

// window returns the last Window loudness values including cur.
func (d *Detector) window(cur float64) []float64 {
	n := d.cfg.Window - 1
	start := max(0, len(d.recent)-n)
	w := make([]float64, 0, d.cfg.Window)
	w = append(w, d.recent[start:]...)
	return append(w, cur)
}

func (d *Detector) push(loudness float64) {
	d.recent = append(d.recent, loudness)
	if extra := len(d.recent) - d.cfg.Window; extra > 0 {
		d.recent = append(d.recent[:0], d.recent[extra:]...)
	}
}

// Events returns how many activities were emitted.
func (d *Detector) Events() int64 { return d.events.Load() }
