// Package audioio provides PCM microphone capture for the proctoring engine.
//
// This package supports multiple backends:
//   - Command - a capture process (ffmpeg, arecord) writing s16le PCM to stdout
//   - Mock - CI/Testing without hardware
//
// The backend is selected from configuration; "auto" picks the command backend
// when a capture tool is on PATH and falls back to mock otherwise.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendCommand reads PCM from a capture subprocess.
	BackendCommand Backend = "command"
	// BackendMock uses a synthetic generator for testing.
	BackendMock Backend = "mock"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend" mapstructure:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 16000
	SampleRate int `yaml:"sample_rate" json:"sample_rate" mapstructure:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels" mapstructure:"channels"`

	// BufferDuration is the size of audio buffers.
	// Default: 64ms (1024 samples at 16kHz)
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration" mapstructure:"buffer_duration"`

	// Device is the platform-specific device identifier.
	// Examples:
	//   - ffmpeg/alsa: "default", "hw:1,0"
	//   - ffmpeg/pulse: "default"
	//   - Mock: ignored
	Device string `yaml:"device" json:"device" mapstructure:"device"`

	// Command overrides the capture program ("ffmpeg" or "arecord").
	// Empty selects the first one found on PATH.
	Command string `yaml:"command" json:"command" mapstructure:"command"`

	// Args replaces the generated capture arguments when set.
	Args []string `yaml:"args" json:"args" mapstructure:"args"`

	// EchoCancellation and NoiseSuppression add the matching capture filters
	// where the backend supports them.
	EchoCancellation bool `yaml:"echo_cancellation" json:"echo_cancellation" mapstructure:"echo_cancellation"`
	NoiseSuppression bool `yaml:"noise_suppression" json:"noise_suppression" mapstructure:"noise_suppression"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:          BackendAuto,
		SampleRate:       16000,
		Channels:         1,
		BufferDuration:   64 * time.Millisecond,
		Device:           "default",
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	switch c.Backend {
	case "", BackendAuto, BackendCommand, BackendMock:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// BufferSize returns the number of samples per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (assuming int16 samples).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2 // 2 bytes per int16 sample
}
