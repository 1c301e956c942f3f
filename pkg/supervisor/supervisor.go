// Package supervisor keeps one capture handle per media kind alive for the
// length of a session.
//
// Each health check verifies, in order, that the sink is attached, playing,
// that the stream is active and that its track is live and enabled. Anything
// that cannot be repaired in place (a resume or a re-enable) causes the whole
// handle to be released and acquired again. While the supervisor holds the
// lease, outside Stop and Pause calls are turned into a forced resume.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-proctor/pkg/capture"
)

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("supervisor: stopped")

// Config holds supervisor timings.
type Config struct {
	Interval       time.Duration `yaml:"interval" mapstructure:"interval"`               // Health check period
	AcquireTimeout time.Duration `yaml:"acquire_timeout" mapstructure:"acquire_timeout"` // Bound on one acquisition
	ResumeTimeout  time.Duration `yaml:"resume_timeout" mapstructure:"resume_timeout"`   // Bound on a forced resume
}

// DefaultConfig returns a one second health check.
func DefaultConfig() Config {
	return Config{
		Interval:       time.Second,
		AcquireTimeout: 10 * time.Second,
		ResumeTimeout:  2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = d.AcquireTimeout
	}
	if c.ResumeTimeout <= 0 {
		c.ResumeTimeout = d.ResumeTimeout
	}
	return c
}

// Supervisor is the watchdog for one media kind.
type Supervisor struct {
	kind     capture.Kind
	acquirer capture.Acquirer
	cfg      Config
	logger   *slog.Logger

	mu     sync.Mutex
	handle *capture.Handle
	lease  *capture.Lease

	checking  atomic.Bool
	acquiring atomic.Bool
	force     atomic.Bool
	stopped   atomic.Bool
	started   atomic.Bool

	acquisitions atomic.Int64
	blocked      atomic.Int64
	lastErr      atomic.Pointer[errBox]

	poke     chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

type errBox struct{ err error }

// New creates a supervisor for acq's media kind.
func New(acq capture.Acquirer, cfg Config, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		kind:     acq.Kind(),
		acquirer: acq,
		cfg:      cfg.withDefaults(),
		logger:   logger.With("component", "supervisor", "kind", string(acq.Kind())),
		poke:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Kind returns the supervised media kind.
func (s *Supervisor) Kind() capture.Kind { return s.kind }

// Start makes the first acquisition and launches the health check loop. The
// loop runs even when the first acquisition fails; the error is returned so
// the caller can report the subsystem as degraded.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.stopped.Load() {
		return ErrStopped
	}
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	err := s.reacquire(ctx)

	lctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	if s.stopped.Load() {
		cancel()
	}

	go s.run(lctx)
	return err
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("supervisor started", "interval", s.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.poke:
		}
		if s.stopped.Load() {
			return
		}
		s.Check(ctx)
	}
}

// Poke schedules an immediate health check.
func (s *Supervisor) Poke() {
	select {
	case s.poke <- struct{}{}:
	default:
	}
}

// Reacquire replaces the handle on the next check even if it is healthy, for
// example after the device configuration changed.
func (s *Supervisor) Reacquire() {
	s.force.Store(true)
	s.Poke()
}

// Check runs one health check. Overlapping calls are dropped.
func (s *Supervisor) Check(ctx context.Context) {
	if s.stopped.Load() {
		return
	}
	if !s.checking.CompareAndSwap(false, true) {
		return
	}
	defer s.checking.Store(false)

	h, lease := s.current()
	if s.force.Swap(false) || h == nil {
		s.reacquire(ctx)
		return
	}

	if reason := s.repair(ctx, h); reason != "" {
		s.logger.Warn("capture unhealthy, reacquiring", "reason", reason)
		s.reacquire(ctx)
		return
	}

	if !lease.Guarded() {
		lease.Guard(s.onBlocked)
	}
}

// repair fixes what can be fixed in place and returns a non-empty reason when
// the handle must be replaced.
func (s *Supervisor) repair(ctx context.Context, h *capture.Handle) string {
	sink := h.Sink()
	if sink == nil || !sink.Attached() {
		return "sink detached"
	}
	if sink.Paused() || sink.Ended() {
		rctx, cancel := context.WithTimeout(ctx, s.cfg.ResumeTimeout)
		err := sink.Resume(rctx)
		cancel()
		if err != nil {
			return "resume failed: " + err.Error()
		}
		s.logger.Info("sink resumed")
	}
	if !h.Stream().Active() {
		return "stream inactive"
	}
	t := h.Track()
	if t == nil {
		return "no track"
	}
	if t.State() == capture.TrackEnded {
		return "track ended"
	}
	if !t.Enabled() {
		t.SetEnabled(true)
		s.logger.Info("track re-enabled")
	}
	return ""
}

func (s *Supervisor) current() (*capture.Handle, *capture.Lease) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle, s.lease
}

// reacquire releases the current handle and acquires a new one. Only one
// reacquisition runs at a time.
func (s *Supervisor) reacquire(ctx context.Context) error {
	if !s.acquiring.CompareAndSwap(false, true) {
		return nil
	}
	defer s.acquiring.Store(false)

	s.mu.Lock()
	old := s.lease
	s.handle, s.lease = nil, nil
	s.mu.Unlock()
	if old != nil {
		if err := old.Release(); err != nil {
			s.logger.Debug("release old handle", "error", err)
		}
	}

	actx, cancel := context.WithTimeout(ctx, s.cfg.AcquireTimeout)
	h, lease, err := s.acquirer.Acquire(actx)
	cancel()
	if err != nil {
		s.lastErr.Store(&errBox{err: err})
		s.logger.Warn("acquire failed, retrying next check", "error", err)
		return err
	}

	s.mu.Lock()
	if s.stopped.Load() {
		s.mu.Unlock()
		lease.Release()
		return ErrStopped
	}
	s.handle, s.lease = h, lease
	s.mu.Unlock()

	lease.Guard(s.onBlocked)
	if t := h.Track(); t != nil {
		t.OnEnded(s.Poke)
	}
	s.lastErr.Store(nil)

	n := s.acquisitions.Add(1)
	s.logger.Info("capture acquired", "device", h.Device(), "acquisitions", n)
	return nil
}

func (s *Supervisor) onBlocked(op string) {
	s.blocked.Add(1)
	s.logger.Info("blocked outside call, forced resume", "op", op)
	s.Poke()
}

// Stop ends the loop and releases the handle. It is safe to call more than
// once and before Start.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)

		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
			<-s.done
		}

		s.mu.Lock()
		lease := s.lease
		s.handle, s.lease = nil, nil
		s.mu.Unlock()
		if lease != nil {
			if err := lease.Release(); err != nil {
				s.logger.Debug("release on stop", "error", err)
			}
		}
		s.logger.Info("supervisor stopped")
	})
}

// Handle returns the current handle, or nil while none is held.
func (s *Supervisor) Handle() *capture.Handle {
	h, _ := s.current()
	return h
}

// Active reports whether a live, playing handle is held.
func (s *Supervisor) Active() bool {
	if s.stopped.Load() {
		return false
	}
	h, _ := s.current()
	if h == nil {
		return false
	}
	t := h.Track()
	sink := h.Sink()
	return h.Stream().Active() && t != nil && t.State() == capture.TrackLive &&
		sink != nil && sink.Playing()
}

// Reacquisitions returns how many times the handle was replaced after the
// first acquisition.
func (s *Supervisor) Reacquisitions() int64 {
	return max(0, s.acquisitions.Load()-1)
}

// Blocked returns how many outside stop or pause calls were intercepted.
func (s *Supervisor) Blocked() int64 { return s.blocked.Load() }

// LastError returns the most recent acquisition error, or nil after a
// successful acquisition.
func (s *Supervisor) LastError() error {
	if b := s.lastErr.Load(); b != nil {
		return b.err
	}
	return nil
}
