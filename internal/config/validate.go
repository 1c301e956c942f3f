package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/go-proctor/pkg/supervisor"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

const (
	minInterval = 100 * time.Millisecond
	maxInterval = 10 * time.Second
)

// Validate checks the config and returns every problem found. Intervals
// outside a safe range are clamped; other problems are reported and left for
// the component to reject or replace with its defaults.
func (c *Config) Validate() []error {
	var errs []error

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	clamp := func(name string, d *time.Duration) {
		switch {
		case *d < minInterval:
			errs = append(errs, fmt.Errorf("%s %v is below minimum %v, clamping", name, *d, minInterval))
			*d = minInterval
		case *d > maxInterval:
			errs = append(errs, fmt.Errorf("%s %v exceeds maximum %v, clamping", name, *d, maxInterval))
			*d = maxInterval
		}
	}
	clamp("engine.visual.interval", &c.Engine.Visual.Interval)
	clamp("engine.voice.interval", &c.Engine.Voice.Interval)
	clampSupervisor := func(name string, s *supervisor.Config) {
		clamp(name+".interval", &s.Interval)
		if s.AcquireTimeout <= 0 {
			errs = append(errs, fmt.Errorf("%s.acquire_timeout must be positive, using default", name))
			s.AcquireTimeout = supervisor.DefaultConfig().AcquireTimeout
		}
	}
	clampSupervisor("engine.video_supervisor", &c.Engine.VideoSupervisor)
	clampSupervisor("engine.audio_supervisor", &c.Engine.AudioSupervisor)

	if err := c.Engine.Validate(); err != nil {
		errs = append(errs, err)
	}

	if u := c.Engine.Remote.URL; u != "" {
		parsed, err := url.Parse(u)
		if err != nil {
			errs = append(errs, fmt.Errorf("engine.remote.url %q is not a valid URL: %w", u, err))
		} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
			errs = append(errs, fmt.Errorf("engine.remote.url scheme must be http or https, got %q", parsed.Scheme))
		}
	}

	if c.Engine.EnableVisualMonitoring {
		for _, msg := range c.Camera.Validate() {
			errs = append(errs, errors.New("camera: "+msg))
		}
	}
	if c.Engine.EnableAudioMonitoring {
		if err := c.Audio.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("audio: %w", err))
		}
	}

	if c.Web.Addr == "" {
		errs = append(errs, errors.New("web.addr is empty, using :8080"))
		c.Web.Addr = ":8080"
	}

	if c.Engine.RecordSessions {
		switch c.Store.Backend {
		case StoreFile:
			if c.Store.Dir == "" {
				errs = append(errs, errors.New("store.dir is required for the file backend"))
			}
		case StorePostgres:
			if c.Store.DatabaseURL == "" {
				errs = append(errs, errors.New("store.database_url is required for the postgres backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("store.backend %q is not valid (use file or postgres)", c.Store.Backend))
		}
	}

	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}
	return errs
}
