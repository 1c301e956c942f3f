package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-proctor/pkg/capture"
)

// Device is a capture.Device backed by gocv.VideoCapture.
type Device struct {
	manager *Manager
	logger  *slog.Logger
}

// NewDevice returns a webcam device that reads its settings from manager on
// every Open.
func NewDevice(manager *Manager, logger *slog.Logger) *Device {
	if manager == nil {
		manager = NewManager(DefaultConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{manager: manager, logger: logger.With("component", "camera")}
}

// Name returns the configured device name.
func (d *Device) Name() string {
	cfg := d.manager.Config()
	return cfg.Name()
}

// Manager returns the config manager.
func (d *Device) Manager() *Manager { return d.manager }

// Open opens the camera with the size from cfg, overridden by non-zero
// constraints.
func (d *Device) Open(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := d.manager.Config()
	if c.Width > 0 {
		cfg.Width = c.Width
	}
	if c.Height > 0 {
		cfg.Height = c.Height
	}
	if c.FrameRate > 0 {
		cfg.Framerate = c.FrameRate
	}

	if err := checkNode(cfg); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(cfg.Source())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", capture.ErrDeviceUnavailable, cfg.Name(), err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s did not open", capture.ErrDeviceUnavailable, cfg.Name())
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	d.logger.Info("camera opened",
		"device", cfg.Name(),
		"width", int(vc.Get(gocv.VideoCaptureFrameWidth)),
		"height", int(vc.Get(gocv.VideoCaptureFrameHeight)),
	)

	s := &stream{vc: vc, cfg: cfg, mat: gocv.NewMat(), logger: d.logger}
	s.track = capture.NewTrack(capture.Video, func() { s.release() })
	return s, nil
}

// checkNode maps V4L2 node access problems to capture errors before OpenCV
// swallows them.
func checkNode(cfg Config) error {
	path := cfg.DevicePath
	if path == "" {
		path = fmt.Sprintf("/dev/video%d", cfg.DeviceID)
		if _, err := os.Stat("/dev"); err != nil {
			return nil
		}
	} else if !strings.HasPrefix(path, "/dev/") {
		return nil
	}

	f, err := os.Open(path)
	switch {
	case err == nil:
		f.Close()
		return nil
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", capture.ErrPermission, path)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", capture.ErrDeviceUnavailable, path)
	default:
		return fmt.Errorf("%w: %s: %v", capture.ErrDeviceUnavailable, path, err)
	}
}

type stream struct {
	cfg    Config
	logger *slog.Logger
	track  *capture.LocalTrack

	mu       sync.Mutex
	vc       *gocv.VideoCapture
	mat      gocv.Mat
	failures int
	released bool
}

func (s *stream) Active() bool { return s.track.State() == capture.TrackLive }

func (s *stream) Track() capture.Track { return s.track }

// ReadFrame grabs the next frame. Repeated empty reads mean the camera went
// away, which ends the track.
func (s *stream) ReadFrame() (image.Image, error) {
	for {
		s.mu.Lock()
		if s.released {
			s.mu.Unlock()
			return nil, capture.ErrClosed
		}
		ok := s.vc.Read(&s.mat)
		if !ok || s.mat.Empty() {
			s.failures++
			exhausted := s.failures >= s.cfg.MaxReadFailures
			s.mu.Unlock()
			if exhausted {
				s.logger.Warn("camera stopped delivering frames", "device", s.cfg.Name())
				s.track.End()
				s.release()
				return nil, capture.ErrTrackEnded
			}
			continue
		}
		s.failures = 0

		src := s.mat
		if s.cfg.Mirror {
			flipped := gocv.NewMat()
			gocv.Flip(s.mat, &flipped, 1)
			defer flipped.Close()
			src = flipped
		}
		img, err := src.ToImage()
		s.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("convert frame: %w", err)
		}
		return img, nil
	}
}

func (s *stream) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	s.vc.Close()
	s.mat.Close()
	s.logger.Info("camera released", "device", s.cfg.Name())
}

func (s *stream) Close() error {
	s.track.Stop()
	s.release()
	return nil
}

var (
	_ capture.Device      = (*Device)(nil)
	_ capture.VideoStream = (*stream)(nil)
)
