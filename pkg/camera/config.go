// Package camera provides the OpenCV-backed webcam device and its runtime
// configuration. Config changes take effect on the next Open, which is how the
// stream supervisor picks them up when it reacquires.
package camera

import "fmt"

// Config holds the camera capture parameters.
type Config struct {
	// DeviceID is the OpenCV capture index (0 = first camera) or, when
	// DevicePath is set, ignored.
	DeviceID int `json:"device_id" yaml:"device_id" mapstructure:"device_id"`

	// DevicePath is a V4L2 node or stream URL, e.g. "/dev/video2".
	DevicePath string `json:"device_path" yaml:"device_path" mapstructure:"device_path"`

	// === Format ===
	Width     int `json:"width" yaml:"width" mapstructure:"width"`             // Frame width in pixels
	Height    int `json:"height" yaml:"height" mapstructure:"height"`          // Frame height in pixels
	Framerate int `json:"framerate" yaml:"framerate" mapstructure:"framerate"` // Target FPS

	// Mirror flips frames horizontally, like a front-facing preview.
	Mirror bool `json:"mirror" yaml:"mirror" mapstructure:"mirror"`

	// MaxReadFailures is how many consecutive empty reads end the track.
	MaxReadFailures int `json:"max_read_failures" yaml:"max_read_failures" mapstructure:"max_read_failures"`
}

// Limits accepted by Validate.
const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 60
)

// DefaultConfig returns the proctoring request: 640x480 at 15fps.
func DefaultConfig() Config {
	return Config{
		DeviceID:        0,
		Width:           640,
		Height:          480,
		Framerate:       15,
		MaxReadFailures: 30,
	}
}

// Source returns the value handed to gocv.OpenVideoCapture.
func (c *Config) Source() interface{} {
	if c.DevicePath != "" {
		return c.DevicePath
	}
	return c.DeviceID
}

// Name identifies the device in logs and errors.
func (c *Config) Name() string {
	if c.DevicePath != "" {
		return c.DevicePath
	}
	return fmt.Sprintf("camera:%d", c.DeviceID)
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string

	if c.DeviceID < 0 {
		errs = append(errs, "device_id must not be negative")
	}
	if c.Width < 160 || c.Width > MaxWidth {
		errs = append(errs, fmt.Sprintf("width must be between 160 and %d", MaxWidth))
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errs = append(errs, fmt.Sprintf("height must be between 120 and %d", MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errs = append(errs, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if c.MaxReadFailures < 1 {
		errs = append(errs, "max_read_failures must be at least 1")
	}

	return errs
}
