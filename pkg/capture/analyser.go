package capture

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
)

// AnalyserState is the processing state of the audio graph.
type AnalyserState string

const (
	AnalyserRunning   AnalyserState = "running"
	AnalyserSuspended AnalyserState = "suspended"
	AnalyserClosed    AnalyserState = "closed"
)

// AnalyserConfig holds the spectrum analyser parameters.
// The defaults match a browser AnalyserNode.
type AnalyserConfig struct {
	FFTSize     int     // Power of two
	Smoothing   float64 // Time smoothing constant (0-1)
	MinDecibels float64
	MaxDecibels float64
}

// DefaultAnalyserConfig returns browser-equivalent analyser settings.
func DefaultAnalyserConfig() AnalyserConfig {
	return AnalyserConfig{
		FFTSize:     2048,
		Smoothing:   0.8,
		MinDecibels: -100,
		MaxDecibels: -30,
	}
}

// Spectrum is one frequency-domain snapshot. Magnitudes are byte-scaled (0-255)
// decibel values, one per bin, FFTSize/2 bins.
type Spectrum struct {
	Magnitudes []float64
	SampleRate int
	FFTSize    int
	At         time.Time
}

// BinHz returns the center frequency of bin i.
func (s Spectrum) BinHz(i int) float64 {
	if s.FFTSize == 0 {
		return 0
	}
	return float64(i) * float64(s.SampleRate) / float64(s.FFTSize)
}

// Analyser consumes an audio stream and produces frequency snapshots on demand.
type Analyser struct {
	stream AudioStream
	cfg    AnalyserConfig
	fft    *fourier.FFT
	window []float64

	mu       sync.Mutex
	ring     []float64
	pos      int
	scratch  []float64
	smoothed []float64
	state    AnalyserState
	ended    bool
	notify   chan struct{}

	chunks atomic.Int64
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAnalyser attaches an analyser to stream and starts consuming chunks.
func NewAnalyser(stream AudioStream, cfg AnalyserConfig) *Analyser {
	if cfg.FFTSize <= 0 {
		cfg.FFTSize = DefaultAnalyserConfig().FFTSize
	}
	ctx, cancel := context.WithCancel(context.Background())

	a := &Analyser{
		stream:   stream,
		cfg:      cfg,
		fft:      fourier.NewFFT(cfg.FFTSize),
		window:   blackman(cfg.FFTSize),
		ring:     make([]float64, cfg.FFTSize),
		smoothed: make([]float64, cfg.FFTSize/2),
		state:    AnalyserRunning,
		notify:   make(chan struct{}),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go a.pump(ctx)
	return a
}

func blackman(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n)
		w[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
	}
	return w
}

func (a *Analyser) pump(ctx context.Context) {
	defer close(a.done)

	for {
		chunk, err := a.stream.ReadChunk(ctx)
		if err != nil {
			a.mu.Lock()
			if a.state != AnalyserClosed {
				a.ended = true
			}
			a.signalLocked()
			a.mu.Unlock()
			return
		}

		a.mu.Lock()
		if a.state != AnalyserRunning {
			a.mu.Unlock()
			continue
		}
		muted := false
		if t := a.stream.Track(); t != nil && !t.Enabled() {
			muted = true
		}
		a.scratch = chunk.Mono(a.scratch[:0])
		for _, v := range a.scratch {
			if muted {
				v = 0
			}
			a.ring[a.pos] = v
			a.pos = (a.pos + 1) % len(a.ring)
		}
		a.chunks.Add(1)
		a.signalLocked()
		a.mu.Unlock()
	}
}

func (a *Analyser) signalLocked() {
	close(a.notify)
	a.notify = make(chan struct{})
}

// Spectrum computes a byte-scaled frequency snapshot of the most recent FFTSize
// samples. Repeated calls are smoothed over time.
func (a *Analyser) Spectrum() (Spectrum, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == AnalyserClosed {
		return Spectrum{}, ErrClosed
	}
	if a.chunks.Load() == 0 {
		return Spectrum{}, ErrNoData
	}

	n := a.cfg.FFTSize
	frame := make([]float64, n)
	for i := 0; i < n; i++ {
		frame[i] = a.ring[(a.pos+i)%n] * a.window[i]
	}
	coeffs := a.fft.Coefficients(nil, frame)

	span := a.cfg.MaxDecibels - a.cfg.MinDecibels
	out := make([]float64, n/2)
	for k := range out {
		re, im := real(coeffs[k]), imag(coeffs[k])
		mag := math.Sqrt(re*re+im*im) / float64(n)
		a.smoothed[k] = a.cfg.Smoothing*a.smoothed[k] + (1-a.cfg.Smoothing)*mag

		db := math.Inf(-1)
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		v := math.Floor(255 * (db - a.cfg.MinDecibels) / span)
		out[k] = math.Max(0, math.Min(255, v))
	}

	return Spectrum{
		Magnitudes: out,
		SampleRate: a.stream.SampleRate(),
		FFTSize:    n,
		At:         time.Now(),
	}, nil
}

// State returns the processing state.
func (a *Analyser) State() AnalyserState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Suspend stops processing incoming samples.
func (a *Analyser) Suspend() {
	a.mu.Lock()
	if a.state == AnalyserRunning {
		a.state = AnalyserSuspended
	}
	a.mu.Unlock()
}

// Attached reports whether the analyser is wired to its stream.
func (a *Analyser) Attached() bool { return a.State() != AnalyserClosed }

// Paused reports whether the graph is suspended.
func (a *Analyser) Paused() bool { return a.State() == AnalyserSuspended }

// Ended reports whether the stream stopped delivering chunks.
func (a *Analyser) Ended() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ended
}

// Playing reports whether samples are flowing through a running graph.
func (a *Analyser) Playing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == AnalyserRunning && !a.ended && a.chunks.Load() > 0
}

// Chunks returns how many chunks were processed.
func (a *Analyser) Chunks() int64 { return a.chunks.Load() }

// Pause suspends the graph.
func (a *Analyser) Pause() { a.Suspend() }

// Resume restarts a suspended graph and waits for the next processed chunk.
func (a *Analyser) Resume(ctx context.Context) error {
	a.mu.Lock()
	switch {
	case a.state == AnalyserClosed:
		a.mu.Unlock()
		return ErrClosed
	case a.ended:
		a.mu.Unlock()
		return ErrSinkEnded
	}
	a.state = AnalyserRunning
	a.mu.Unlock()

	return a.waitChunks(ctx, 1)
}

// WaitPlaying blocks until one chunk has been processed, or ctx is done.
func (a *Analyser) WaitPlaying(ctx context.Context) error {
	return a.waitChunks(ctx, 1)
}

func (a *Analyser) waitChunks(ctx context.Context, count int64) error {
	target := a.chunks.Load() + count
	for {
		a.mu.Lock()
		if a.chunks.Load() >= target {
			a.mu.Unlock()
			return nil
		}
		if a.ended {
			a.mu.Unlock()
			return ErrSinkEnded
		}
		if a.state == AnalyserClosed {
			a.mu.Unlock()
			return ErrClosed
		}
		ch := a.notify
		a.mu.Unlock()

		select {
		case <-ctx.Done():
			return ErrNotPlaying
		case <-ch:
		}
	}
}

// Close shuts the graph down. It is safe to call more than once.
func (a *Analyser) Close() error {
	a.mu.Lock()
	if a.state == AnalyserClosed {
		a.mu.Unlock()
		return nil
	}
	a.state = AnalyserClosed
	a.signalLocked()
	a.mu.Unlock()

	a.cancel()
	return nil
}

var (
	_ Sink           = (*Analyser)(nil)
	_ SpectrumSource = (*Analyser)(nil)
)
