// Package recorder is the single sink every detector reports to. It keeps the
// ordered violation log, notifies the host and fans activities out to
// secondary sinks such as the websocket hub and the session store.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-proctor/pkg/activity"
	"github.com/teslashibe/go-proctor/pkg/capture"
)

// resumeTimeout bounds the analyser resume issued after a record.
const resumeTimeout = 2 * time.Second

// Callbacks are the host notifications. Either may be nil.
type Callbacks struct {
	OnActivity              func(a activity.Activity)
	OnViolationCountChanged func(count int)
}

// Sink receives every recorded activity after the host callbacks.
type Sink interface {
	Write(a activity.Activity) error
}

// AudioKeeper lets the recorder revive passive audio processing, which some
// platforms suspend when an alert is raised.
type AudioKeeper interface {
	// AudioExpected reports whether audio monitoring should be running.
	AudioExpected() bool

	// RestartStalled restarts the audio loop if it stopped ticking and reports
	// whether it did.
	RestartStalled() bool

	// Analyser returns the current spectrum source, or nil.
	Analyser() capture.SpectrumSource
}

// Recorder holds the violation log.
type Recorder struct {
	logger *slog.Logger

	emitMu sync.Mutex // Serializes delivery so counts arrive in order

	mu     sync.Mutex
	log    []activity.Activity
	cb     Callbacks
	keeper AudioKeeper
	sinks  []namedSink
	heals  int
}

type namedSink struct {
	name string
	sink Sink
}

// New creates an empty recorder.
func New(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logger: logger.With("component", "recorder")}
}

// SetCallbacks replaces the host callbacks.
func (r *Recorder) SetCallbacks(cb Callbacks) {
	r.mu.Lock()
	r.cb = cb
	r.mu.Unlock()
}

// SetKeeper installs the audio self-heal hook. Nil disables it.
func (r *Recorder) SetKeeper(k AudioKeeper) {
	r.mu.Lock()
	r.keeper = k
	r.mu.Unlock()
}

// AddSink registers a secondary sink under name.
func (r *Recorder) AddSink(name string, s Sink) {
	if s == nil {
		return
	}
	r.mu.Lock()
	r.sinks = append(r.sinks, namedSink{name: name, sink: s})
	r.mu.Unlock()
}

// Record appends a, notifies the host, fans out to sinks and then nudges
// audio processing back to life.
func (r *Recorder) Record(a activity.Activity) {
	if !a.Type.Valid() || !a.Severity.Valid() {
		r.logger.Warn("recording activity with unknown type or severity",
			"type", a.Type, "severity", a.Severity)
	}

	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	r.log = append(r.log, a)
	count := len(r.log)
	cb := r.cb
	keeper := r.keeper
	sinks := append([]namedSink(nil), r.sinks...)
	r.mu.Unlock()

	r.logger.Info("suspicious activity",
		"type", a.Type, "severity", a.Severity, "source", a.Source, "count", count)

	if cb.OnActivity != nil {
		r.safely("onActivity", func() { cb.OnActivity(a) })
	}
	if cb.OnViolationCountChanged != nil {
		r.safely("onViolationCountChanged", func() { cb.OnViolationCountChanged(count) })
	}

	for _, s := range sinks {
		if err := s.sink.Write(a); err != nil {
			r.logger.Warn("sink write failed", "sink", s.name, "error", err)
		}
	}

	if keeper != nil {
		r.heal(keeper)
	}
}

func (r *Recorder) safely(name string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("host callback panicked", "callback", name, "panic", p)
		}
	}()
	fn()
}

func (r *Recorder) heal(k AudioKeeper) {
	if !k.AudioExpected() {
		return
	}
	healed := false
	if k.RestartStalled() {
		r.logger.Warn("audio loop was stalled, restarted")
		healed = true
	}
	if a := k.Analyser(); a != nil && a.State() == capture.AnalyserSuspended {
		ctx, cancel := context.WithTimeout(context.Background(), resumeTimeout)
		err := a.Resume(ctx)
		cancel()
		if err != nil {
			r.logger.Warn("resume analyser failed", "error", err)
		} else {
			r.logger.Info("resumed suspended analyser")
			healed = true
		}
	}
	if healed {
		r.mu.Lock()
		r.heals++
		r.mu.Unlock()
	}
}

// Activities returns a copy of the log in recording order.
func (r *Recorder) Activities() []activity.Activity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]activity.Activity, len(r.log))
	copy(out, r.log)
	return out
}

// Count returns the number of recorded activities.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.log)
}

// Heals returns how many records revived audio processing.
func (r *Recorder) Heals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.heals
}

// Reset clears the log for a new session.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.log = nil
	r.heals = 0
	r.mu.Unlock()
}

var _ activity.Reporter = (*Recorder)(nil)
