package capture

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
	"time"
)

// FrameFunc produces frame n of a synthetic video stream.
type FrameFunc func(n int) image.Image

// SolidFrames returns a generator of uniformly colored frames.
func SolidFrames(w, h int, c color.Color) FrameFunc {
	return func(int) image.Image {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
		return img
	}
}

// MockCamera is a video Device producing synthetic frames.
type MockCamera struct {
	name     string
	interval time.Duration

	mu     sync.Mutex
	frames FrameFunc
	err    error
	last   *MockVideoStream

	opens atomic.Int64
}

// NewMockCamera returns a camera producing frames from fn every interval.
func NewMockCamera(fn FrameFunc, interval time.Duration) *MockCamera {
	if fn == nil {
		fn = SolidFrames(640, 480, color.Black)
	}
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &MockCamera{name: "mock-camera", interval: interval, frames: fn}
}

// Name returns "mock-camera".
func (m *MockCamera) Name() string { return m.name }

// SetError makes subsequent Open calls fail with err. nil clears it.
func (m *MockCamera) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// SetFrames swaps the generator for streams opened afterwards and for the
// current stream.
func (m *MockCamera) SetFrames(fn FrameFunc) {
	m.mu.Lock()
	m.frames = fn
	last := m.last
	m.mu.Unlock()
	if last != nil {
		last.setFrames(fn)
	}
}

// Opens returns how many times Open succeeded.
func (m *MockCamera) Opens() int64 { return m.opens.Load() }

// LastStream returns the most recently opened stream.
func (m *MockCamera) LastStream() *MockVideoStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Open returns a new synthetic stream.
func (m *MockCamera) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s := &MockVideoStream{
		interval: m.interval,
		frames:   m.frames,
		closed:   make(chan struct{}),
	}
	s.track = NewTrack(Video, nil)
	s.track.OnEnded(s.signal)
	m.last = s
	m.opens.Add(1)
	return s, nil
}

// MockVideoStream is the stream produced by MockCamera.
type MockVideoStream struct {
	interval time.Duration
	track    *LocalTrack

	mu     sync.Mutex
	frames FrameFunc
	n      int

	closed    chan struct{}
	closeOnce sync.Once
}

func (s *MockVideoStream) setFrames(fn FrameFunc) {
	s.mu.Lock()
	s.frames = fn
	s.mu.Unlock()
}

func (s *MockVideoStream) signal() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Active reports whether the track is live.
func (s *MockVideoStream) Active() bool { return s.track.State() == TrackLive }

// Track returns the raw track.
func (s *MockVideoStream) Track() Track { return s.track }

// MockTrack returns the concrete track for hot-unplug simulation.
func (s *MockVideoStream) MockTrack() *LocalTrack { return s.track }

// ReadFrame waits one interval and returns the next generated frame.
func (s *MockVideoStream) ReadFrame() (image.Image, error) {
	select {
	case <-s.closed:
		return nil, ErrTrackEnded
	case <-time.After(s.interval):
	}
	if s.track.State() == TrackEnded {
		return nil, ErrTrackEnded
	}
	s.mu.Lock()
	fn := s.frames
	n := s.n
	s.n++
	s.mu.Unlock()
	return fn(n), nil
}

// Close stops the track.
func (s *MockVideoStream) Close() error {
	s.track.Stop()
	s.signal()
	return nil
}

var _ VideoStream = (*MockVideoStream)(nil)
