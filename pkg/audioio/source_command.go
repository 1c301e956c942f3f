package audioio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
)

// ErrNoCaptureTool is returned when neither ffmpeg nor arecord is installed.
var ErrNoCaptureTool = errors.New("audioio: no capture tool on PATH (need ffmpeg or arecord)")

// captureTools are probed in order when Config.Command is empty.
var captureTools = []string{"ffmpeg", "arecord"}

// CommandSource captures raw s16le PCM from a subprocess writing to stdout.
type CommandSource struct {
	cfg    Config
	logger *slog.Logger
	tool   string
	args   []string

	mu       sync.Mutex
	cmd      *exec.Cmd
	running  bool
	closed   bool
	streamCh chan AudioChunk
	exitErr  error

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newCommandSource(cfg Config, logger *slog.Logger) (*CommandSource, error) {
	tool := cfg.Command
	if tool == "" {
		tool = lookupCaptureTool()
		if tool == "" {
			return nil, ErrNoCaptureTool
		}
	}
	if _, err := exec.LookPath(tool); err != nil {
		return nil, fmt.Errorf("capture tool %q: %w", tool, err)
	}

	args := cfg.Args
	if len(args) == 0 {
		args = CaptureArgs(tool, cfg)
	}

	return &CommandSource{
		cfg:      cfg,
		logger:   logger,
		tool:     tool,
		args:     args,
		streamCh: make(chan AudioChunk, 10),
	}, nil
}

func lookupCaptureTool() string {
	for _, t := range captureTools {
		if _, err := exec.LookPath(t); err == nil {
			return t
		}
	}
	return ""
}

// CaptureArgs builds the argument list for a known capture tool.
func CaptureArgs(tool string, cfg Config) []string {
	device := cfg.Device
	if device == "" {
		device = "default"
	}
	rate := strconv.Itoa(cfg.SampleRate)
	channels := strconv.Itoa(cfg.Channels)

	switch tool {
	case "arecord":
		return []string{
			"-q",
			"-D", device,
			"-f", "S16_LE",
			"-c", channels,
			"-r", rate,
			"-t", "raw",
		}
	default:
		args := []string{
			"-hide_banner",
			"-loglevel", "error",
			"-f", "alsa",
			"-i", device,
		}
		var filters []string
		if cfg.NoiseSuppression {
			filters = append(filters, "highpass=f=80", "afftdn")
		}
		if cfg.EchoCancellation {
			filters = append(filters, "agate=threshold=0.01")
		}
		if len(filters) > 0 {
			f := filters[0]
			for _, x := range filters[1:] {
				f += "," + x
			}
			args = append(args, "-af", f)
		}
		return append(args,
			"-ac", channels,
			"-ar", rate,
			"-f", "s16le",
			"pipe:1",
		)
	}
}

// Start launches the capture process.
func (s *CommandSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	cmd := exec.Command(s.tool, s.args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", s.tool, err)
	}

	s.cmd = cmd
	s.running = true
	s.exitErr = nil
	s.streamCh = make(chan AudioChunk, 10)

	go s.readLoop(ctx, cmd, stdout, stderr, s.streamCh)

	s.logger.Info("audio capture started",
		"tool", s.tool,
		"device", s.cfg.Device,
		"sample_rate", s.cfg.SampleRate,
		"pid", cmd.Process.Pid,
	)
	return nil
}

func (s *CommandSource) readLoop(ctx context.Context, cmd *exec.Cmd, stdout io.Reader, stderr *bytes.Buffer, out chan<- AudioChunk) {
	defer close(out)

	stop := context.AfterFunc(ctx, func() { _ = s.Stop() })
	defer stop()

	buf := make([]byte, max(s.cfg.BufferBytes(), 2))
	for {
		n, err := io.ReadFull(stdout, buf)
		if n >= 2 {
			chunk := ParsePCM(buf[:n], s.cfg.SampleRate, s.cfg.Channels)
			select {
			case out <- chunk:
				s.chunksRead.Add(1)
				s.samplesRead.Add(int64(len(chunk.Samples)))
			default:
				s.overruns.Add(1)
			}
		}
		if err != nil {
			break
		}
	}

	waitErr := cmd.Wait()

	s.mu.Lock()
	if s.cmd == cmd {
		// Exited on its own rather than through Stop.
		s.running = false
		s.cmd = nil
		if waitErr != nil {
			s.exitErr = fmt.Errorf("%s exited: %w: %s", s.tool, waitErr, bytes.TrimSpace(stderr.Bytes()))
		}
	}
	s.mu.Unlock()

	if waitErr != nil {
		s.logger.Debug("audio capture exited", "tool", s.tool, "error", waitErr)
	}
}

// Stop terminates the capture process. The stream channel closes once the
// process has exited.
func (s *CommandSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	s.running = false
	cmd := s.cmd
	s.cmd = nil
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, exec.ErrProcessDone) {
		return fmt.Errorf("failed to stop %s: %w", s.tool, err)
	}
	s.logger.Info("audio capture stopped", "tool", s.tool)
	return nil
}

// Read reads the next audio chunk. It returns io.EOF once the process exits.
func (s *CommandSource) Read(ctx context.Context) (AudioChunk, error) {
	ch := s.Stream()
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel.
func (s *CommandSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Err returns why the capture process exited abnormally, if it did.
func (s *CommandSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

// Config returns the audio configuration.
func (s *CommandSource) Config() Config {
	return s.cfg
}

// Name returns "command".
func (s *CommandSource) Name() string {
	return "command"
}

// Close stops capture. The source cannot be restarted afterwards.
func (s *CommandSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

// Stats returns source statistics.
func (s *CommandSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "command",
	}
}

var _ Source = (*CommandSource)(nil)
