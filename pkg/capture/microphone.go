package capture

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-proctor/pkg/audioio"
)

// Microphone is an audio Device backed by an audioio.Source.
type Microphone struct {
	cfg    audioio.Config
	logger *slog.Logger
	opts   []audioio.MockSourceOption
}

// NewMicrophone returns a microphone device. Constraints passed to Open
// override the sample rate, channel count and processing flags of cfg.
func NewMicrophone(cfg audioio.Config, logger *slog.Logger, opts ...audioio.MockSourceOption) *Microphone {
	if logger == nil {
		logger = slog.Default()
	}
	return &Microphone{cfg: cfg, logger: logger, opts: opts}
}

// Name returns the backend and device identifier.
func (m *Microphone) Name() string {
	return "mic:" + string(m.cfg.Backend) + ":" + m.cfg.Device
}

// Open starts capture. The returned stream owns the source.
func (m *Microphone) Open(ctx context.Context, c Constraints) (Stream, error) {
	cfg := m.cfg
	if c.SampleRate > 0 {
		cfg.SampleRate = c.SampleRate
	}
	if c.Channels > 0 {
		cfg.Channels = c.Channels
	}
	cfg.EchoCancellation = c.EchoCancellation
	cfg.NoiseSuppression = c.NoiseSuppression

	src, err := audioio.NewSource(cfg, m.logger, m.opts...)
	if err != nil {
		return nil, classifyOpenError(err)
	}

	// The source outlives the acquisition context.
	runCtx, cancel := context.WithCancel(context.Background())
	if err := src.Start(runCtx); err != nil {
		cancel()
		src.Close()
		return nil, classifyOpenError(err)
	}

	s := &micStream{src: src, cancel: cancel, rate: cfg.SampleRate}
	s.track = NewTrack(Audio, s.stopSource)
	return s, nil
}

func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return errors.Join(ErrPermission, err)
	case errors.Is(err, audioio.ErrNoCaptureTool), errors.Is(err, fs.ErrNotExist):
		return errors.Join(ErrDeviceUnavailable, err)
	}
	return err
}

type micStream struct {
	src    audioio.Source
	cancel context.CancelFunc
	rate   int
	track  *LocalTrack

	closeOnce sync.Once
}

func (s *micStream) stopSource() {
	s.src.Stop()
	s.cancel()
}

func (s *micStream) Active() bool { return s.track.State() == TrackLive }

func (s *micStream) Track() Track { return s.track }

func (s *micStream) SampleRate() int { return s.rate }

// ReadChunk returns ErrTrackEnded once the source stops delivering audio.
func (s *micStream) ReadChunk(ctx context.Context) (audioio.AudioChunk, error) {
	if s.track.State() == TrackEnded {
		return audioio.AudioChunk{}, ErrTrackEnded
	}
	chunk, err := s.src.Read(ctx)
	if errors.Is(err, io.EOF) {
		s.track.End()
		return audioio.AudioChunk{}, ErrTrackEnded
	}
	return chunk, err
}

func (s *micStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.track.Stop()
		err = s.src.Close()
		s.cancel()
	})
	return err
}

var _ AudioStream = (*micStream)(nil)
