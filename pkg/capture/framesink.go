package capture

import (
	"context"
	"image"
	"image/draw"
	"sync"
	"sync/atomic"
	"time"
)

// FrameSink pulls frames from a video stream and keeps the latest one, like a
// video element feeding an off-screen canvas.
type FrameSink struct {
	stream VideoStream

	mu       sync.Mutex
	latest   *image.RGBA
	width    int
	height   int
	lastAt   time.Time
	paused   bool
	ended    bool
	attached bool
	closed   bool
	wake     chan struct{}
	notify   chan struct{} // closed and replaced on every new frame

	frames atomic.Int64
	done   chan struct{}
}

// NewFrameSink attaches a sink to stream and starts pulling frames.
func NewFrameSink(stream VideoStream) *FrameSink {
	s := &FrameSink{
		stream:   stream,
		attached: true,
		wake:     make(chan struct{}, 1),
		notify:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *FrameSink) pump() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for s.paused && !s.closed {
			s.mu.Unlock()
			<-s.wake
			s.mu.Lock()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		img, err := s.stream.ReadFrame()
		if err != nil {
			s.mu.Lock()
			s.ended = true
			s.signalLocked()
			s.mu.Unlock()
			return
		}

		frame := toRGBA(img)
		if t := s.stream.Track(); t != nil && !t.Enabled() {
			// A disabled track renders black frames.
			frame = image.NewRGBA(frame.Bounds())
		}

		s.mu.Lock()
		if !s.paused && !s.closed {
			s.latest = frame
			b := frame.Bounds()
			s.width, s.height = b.Dx(), b.Dy()
			s.lastAt = time.Now()
			s.frames.Add(1)
			s.signalLocked()
		}
		s.mu.Unlock()
	}
}

// signalLocked wakes every waiter. Caller holds s.mu.
func (s *FrameSink) signalLocked() {
	close(s.notify)
	s.notify = make(chan struct{})
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// WaitPlaying blocks until the sink has delivered count frames since the call,
// or ctx is done.
func (s *FrameSink) WaitPlaying(ctx context.Context) error {
	return s.waitFrames(ctx, 1)
}

func (s *FrameSink) waitFrames(ctx context.Context, count int64) error {
	target := s.frames.Load() + count
	for {
		s.mu.Lock()
		if s.frames.Load() >= target {
			s.mu.Unlock()
			return nil
		}
		if s.ended {
			s.mu.Unlock()
			return ErrSinkEnded
		}
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		ch := s.notify
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ErrNotPlaying
		case <-ch:
		}
	}
}

// Attached reports whether the sink is bound to its stream.
func (s *FrameSink) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached && !s.closed
}

// Paused reports whether frame delivery is paused.
func (s *FrameSink) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Ended reports whether the underlying stream stopped delivering frames.
func (s *FrameSink) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Playing reports whether the sink is attached, unpaused, not ended, and has
// delivered at least one frame.
func (s *FrameSink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached && !s.closed && !s.paused && !s.ended && s.frames.Load() > 0
}

// Frames returns how many frames were delivered.
func (s *FrameSink) Frames() int64 { return s.frames.Load() }

// LastFrameAt returns when the latest frame arrived.
func (s *FrameSink) LastFrameAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAt
}

// Dimensions returns the native frame size.
func (s *FrameSink) Dimensions() (width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Snapshot copies the latest frame into a new raster of native size.
func (s *FrameSink) Snapshot() (*image.RGBA, error) {
	s.mu.Lock()
	src := s.latest
	s.mu.Unlock()

	if src == nil {
		return nil, ErrNoData
	}
	dst := image.NewRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst, nil
}

// Pause stops frame delivery.
func (s *FrameSink) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume restarts frame delivery and waits for the next frame.
func (s *FrameSink) Resume(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.ended:
		s.mu.Unlock()
		return ErrSinkEnded
	}
	wasPaused := s.paused
	s.paused = false
	s.mu.Unlock()

	if wasPaused {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return s.waitFrames(ctx, 1)
}

// Close detaches the sink. The stream itself is closed by its owner.
func (s *FrameSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.attached = false
	s.signalLocked()
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Done is closed once the frame pump has exited.
func (s *FrameSink) Done() <-chan struct{} { return s.done }

var (
	_ Sink        = (*FrameSink)(nil)
	_ FrameSource = (*FrameSink)(nil)
)
