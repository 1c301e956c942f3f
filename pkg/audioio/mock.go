package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// Tone is the synthetic signal a MockSource produces. The zero Tone is
// silence.
type Tone struct {
	Frequency float64 // Hz; 0 disables the sine component
	Amplitude float64 // 0..1
	Noise     float64 // White noise amplitude, 0..1
}

// MockSource generates synthetic microphone audio on a ticker. The tone can be
// changed while running, which lets tests play a quiet room and then a second
// voice through the same stream.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	tone    Tone
	phase   float64
	running bool
	closed  bool
	out     chan AudioChunk
	stop    chan struct{}

	chunks   atomic.Int64
	samples  atomic.Int64
	overruns atomic.Int64
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithTone sets a sine of the given frequency and amplitude.
func WithTone(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.tone.Frequency = frequency
		m.tone.Amplitude = amplitude
	}
}

// WithNoise mixes uniform white noise into every chunk.
func WithNoise(amplitude float64) MockSourceOption {
	return func(m *MockSource) { m.tone.Noise = amplitude }
}

// NewMockSource returns a silent source unless options set a tone.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSource{
		cfg:    cfg,
		logger: logger.With("component", "audioio.mock"),
		out:    make(chan AudioChunk, 10),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetTone replaces the generated signal from the next chunk on.
func (m *MockSource) SetTone(t Tone) {
	m.mu.Lock()
	m.tone = t
	m.mu.Unlock()
}

// Start begins generating chunks every BufferDuration.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}
	m.running = true
	m.stop = make(chan struct{})
	m.out = make(chan AudioChunk, 10)
	go m.generate(ctx, m.stop, m.out)

	m.logger.Info("mock microphone started",
		"sample_rate", m.cfg.SampleRate,
		"frequency", m.tone.Frequency,
		"noise", m.tone.Noise)
	return nil
}

// generate owns out and closes it on exit, so Read reports io.EOF.
func (m *MockSource) generate(ctx context.Context, stop <-chan struct{}, out chan<- AudioChunk) {
	defer close(out)

	ticker := time.NewTicker(m.cfg.BufferDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-stop:
			return
		case <-ticker.C:
		}
		chunk := m.next()
		select {
		case out <- chunk:
			m.chunks.Add(1)
			m.samples.Add(int64(len(chunk.Samples)))
		default:
			m.overruns.Add(1)
		}
	}
}

func (m *MockSource) next() AudioChunk {
	frames := m.cfg.BufferSize()
	ch := max(m.cfg.Channels, 1)
	samples := make([]int16, frames*ch)

	m.mu.Lock()
	t := m.tone
	step := 2 * math.Pi * t.Frequency / float64(m.cfg.SampleRate)
	for i := 0; i < frames; i++ {
		var v float64
		if t.Frequency > 0 {
			v = t.Amplitude * math.Sin(m.phase)
			m.phase = math.Mod(m.phase+step, 2*math.Pi)
		}
		if t.Noise > 0 {
			v += t.Noise * (2*rand.Float64() - 1)
		}
		s := int16(math.Max(-1, math.Min(1, v)) * 32767)
		for c := 0; c < ch; c++ {
			samples[i*ch+c] = s
		}
	}
	m.mu.Unlock()

	return AudioChunk{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: ch}
}

// Stop halts generation. Read drains what is buffered, then returns io.EOF.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	close(m.stop)
	m.logger.Info("mock microphone stopped")
	return nil
}

// Read returns the next generated chunk.
func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	m.mu.Lock()
	out := m.out
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-out:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

func (m *MockSource) Config() Config { return m.cfg }

func (m *MockSource) Name() string { return string(BackendMock) }

// Close stops the source for good.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	return m.Stop()
}

func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	return SourceStats{
		ChunksRead:  m.chunks.Load(),
		SamplesRead: m.samples.Load(),
		Overruns:    m.overruns.Load(),
		Running:     running,
		Backend:     string(BackendMock),
	}
}

var _ Source = (*MockSource)(nil)
