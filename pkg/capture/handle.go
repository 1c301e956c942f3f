package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// resumeTimeout bounds the forced resume issued when a guarded pause or stop is
// intercepted.
const resumeTimeout = 2 * time.Second

// Handle is one acquired stream plus its sink. Handles are never repaired in
// place; an unhealthy handle is released and replaced.
type Handle struct {
	kind       Kind
	device     string
	stream     Stream
	sink       Sink
	lease      *Lease
	acquiredAt time.Time
}

// NewHandle wraps stream and sink and returns the handle together with the lease
// that owns it. Only the lease holder can really stop the track or pause the sink.
func NewHandle(kind Kind, device string, stream Stream, sink Sink) (*Handle, *Lease) {
	h := &Handle{
		kind:       kind,
		device:     device,
		stream:     stream,
		sink:       sink,
		acquiredAt: time.Now(),
	}
	h.lease = &Lease{handle: h}
	return h, h.lease
}

// Kind returns the media kind.
func (h *Handle) Kind() Kind { return h.kind }

// Device returns the name of the device the stream came from.
func (h *Handle) Device() string { return h.device }

// AcquiredAt returns when the handle was created.
func (h *Handle) AcquiredAt() time.Time { return h.acquiredAt }

// Stream returns a guarded view of the stream.
func (h *Handle) Stream() Stream {
	return &guardedStream{Stream: h.stream, lease: h.lease}
}

// Track returns a guarded view of the primary track, or nil.
func (h *Handle) Track() Track {
	t := h.stream.Track()
	if t == nil {
		return nil
	}
	return &guardedTrack{Track: t, lease: h.lease}
}

// Sink returns a guarded view of the sink, or nil.
func (h *Handle) Sink() Sink {
	if h.sink == nil {
		return nil
	}
	return &guardedSink{Sink: h.sink, lease: h.lease}
}

// Frames returns the video frame source, or nil for non-video handles.
func (h *Handle) Frames() FrameSource {
	fs, _ := h.sink.(FrameSource)
	return fs
}

// Spectrum returns the audio spectrum source, or nil for non-audio handles.
func (h *Handle) Spectrum() SpectrumSource {
	ss, _ := h.sink.(SpectrumSource)
	return ss
}

// Lease is exclusive ownership of a Handle. While the lease is guarding, Stop on
// the track and Pause or Close on the sink and stream are intercepted and turned
// into a forced resume.
type Lease struct {
	handle   *Handle
	guarding atomic.Bool
	released atomic.Bool
	blocked  atomic.Int64

	mu        sync.Mutex
	onBlocked func(op string)
}

// Handle returns the leased handle.
func (l *Lease) Handle() *Handle { return l.handle }

// Guard installs the interception guards. onBlocked, if non-nil, is called
// (from the intercepting goroutine) for every intercepted operation.
func (l *Lease) Guard(onBlocked func(op string)) {
	l.mu.Lock()
	l.onBlocked = onBlocked
	l.mu.Unlock()
	l.guarding.Store(true)
}

// Guarded reports whether interception is active.
func (l *Lease) Guarded() bool {
	return l.guarding.Load() && !l.released.Load()
}

// Blocked returns how many outside stop/pause attempts were intercepted.
func (l *Lease) Blocked() int64 { return l.blocked.Load() }

// Released reports whether Release has been called.
func (l *Lease) Released() bool { return l.released.Load() }

// Release really stops the track, closes the sink and frees the stream.
// It is safe to call more than once.
func (l *Lease) Release() error {
	if !l.released.CompareAndSwap(false, true) {
		return nil
	}
	l.guarding.Store(false)

	h := l.handle
	var firstErr error
	if t := h.stream.Track(); t != nil {
		t.Stop()
	}
	if h.sink != nil {
		if err := h.sink.Close(); err != nil {
			firstErr = err
		}
	}
	if err := h.stream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// intercept converts a blocked operation into a forced resume.
func (l *Lease) intercept(op string) {
	l.blocked.Add(1)
	h := l.handle
	if t := h.stream.Track(); t != nil && t.State() == TrackLive && !t.Enabled() {
		t.SetEnabled(true)
	}
	if h.sink != nil && h.sink.Paused() {
		ctx, cancel := context.WithTimeout(context.Background(), resumeTimeout)
		_ = h.sink.Resume(ctx)
		cancel()
	}

	l.mu.Lock()
	fn := l.onBlocked
	l.mu.Unlock()
	if fn != nil {
		fn(op)
	}
}

type guardedTrack struct {
	Track
	lease *Lease
}

// Stop is intercepted while the lease guards the handle.
func (g *guardedTrack) Stop() {
	if g.lease.Guarded() {
		g.lease.intercept("track.stop")
		return
	}
	g.Track.Stop()
}

// SetEnabled refuses to disable a guarded track.
func (g *guardedTrack) SetEnabled(enabled bool) {
	if !enabled && g.lease.Guarded() {
		g.lease.intercept("track.disable")
		return
	}
	g.Track.SetEnabled(enabled)
}

type guardedSink struct {
	Sink
	lease *Lease
}

// Pause is intercepted while the lease guards the handle.
func (g *guardedSink) Pause() {
	if g.lease.Guarded() {
		g.lease.intercept("sink.pause")
		return
	}
	g.Sink.Pause()
}

// Close is intercepted while the lease guards the handle.
func (g *guardedSink) Close() error {
	if g.lease.Guarded() {
		g.lease.intercept("sink.close")
		return nil
	}
	return g.Sink.Close()
}

type guardedStream struct {
	Stream
	lease *Lease
}

func (g *guardedStream) Track() Track {
	t := g.Stream.Track()
	if t == nil {
		return nil
	}
	return &guardedTrack{Track: t, lease: g.lease}
}

// Close is intercepted while the lease guards the handle.
func (g *guardedStream) Close() error {
	if g.lease.Guarded() {
		g.lease.intercept("stream.close")
		return nil
	}
	return g.Stream.Close()
}
