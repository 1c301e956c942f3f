// Package session persists the activity log of a proctoring session when
// session recording is enabled. A Writer is registered as a recorder sink and
// forwards activities, in order, to a Store on its own goroutine so slow
// storage never delays the detectors.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/activity"
)

var (
	// ErrClosed is returned by Write after Close.
	ErrClosed = errors.New("session: writer closed")

	// ErrBufferFull is returned by Write when the store has fallen behind.
	ErrBufferFull = errors.New("session: buffer full")
)

// Session identifies one recorded exam attempt.
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt,omitzero"`
	Count     int       `json:"violationCount"`
}

// New returns a session with a fresh ID starting now.
func New() Session {
	return Session{ID: uuid.NewString(), StartedAt: time.Now()}
}

// Store is the durable backend of a Writer. Calls are serialized by the
// Writer, so implementations need not be safe for concurrent use.
type Store interface {
	Begin(ctx context.Context, s Session) error
	Append(ctx context.Context, sessionID string, seq int, a activity.Activity) error
	End(ctx context.Context, s Session) error
	Close(ctx context.Context) error
}

// Config tunes a Writer.
type Config struct {
	Buffer       int           `yaml:"buffer" mapstructure:"buffer"`               // Pending activities before Write fails
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"` // Bound on one store call
}

// DefaultConfig returns a 256 entry buffer and a 5s store timeout.
func DefaultConfig() Config {
	return Config{Buffer: 256, WriteTimeout: 5 * time.Second}
}

// Writer is an ordered, asynchronous activity sink.
type Writer struct {
	store  Store
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	session Session
	closed  bool

	queue chan activity.Activity
	done  chan struct{}

	written int
	failed  int
}

// NewWriter starts a session on store and launches the drain goroutine.
func NewWriter(ctx context.Context, store Store, s Session, cfg Config, logger *slog.Logger) (*Writer, error) {
	def := DefaultConfig()
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}

	bctx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
	err := store.Begin(bctx, s)
	cancel()
	if err != nil {
		return nil, err
	}

	w := &Writer{
		store:   store,
		cfg:     cfg,
		logger:  log.Component(logger, "session").With("session", s.ID),
		session: s,
		queue:   make(chan activity.Activity, cfg.Buffer),
		done:    make(chan struct{}),
	}
	go w.drain()
	w.logger.Info("session recording started")
	return w, nil
}

// Session returns the session being recorded.
func (w *Writer) Session() Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

// Write queues a for storage.
func (w *Writer) Write(a activity.Activity) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.queue <- a:
		w.session.Count++
		return nil
	default:
		return ErrBufferFull
	}
}

func (w *Writer) drain() {
	defer close(w.done)

	seq := 0
	for a := range w.queue {
		seq++
		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WriteTimeout)
		err := w.store.Append(ctx, w.session.ID, seq, a)
		cancel()

		w.mu.Lock()
		if err != nil {
			w.failed++
		} else {
			w.written++
		}
		w.mu.Unlock()

		if err != nil {
			w.logger.Warn("append activity failed", "seq", seq, "type", a.Type, "error", err)
		}
	}
}

// Stats returns how many activities were stored and how many failed.
func (w *Writer) Stats() (written, failed int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written, w.failed
}

// Close flushes pending activities, ends the session and closes the store.
// It is safe to call more than once.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	select {
	case <-w.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	w.session.EndedAt = time.Now()
	s := w.session
	w.mu.Unlock()

	err := errors.Join(w.store.End(ctx, s), w.store.Close(ctx))
	written, failed := w.Stats()
	w.logger.Info("session recording closed", "written", written, "failed", failed)
	return err
}
