package inference

import (
	"log/slog"
	"time"
)

// Config holds client configuration.
type Config struct {
	// Connection
	BaseURL string // Service base URL, e.g. "http://localhost:8001"
	APIKey  string // Bearer token (optional)

	// Timeouts
	Timeout time.Duration // Per request, including upload

	// Retry configuration. Frame analysis is periodic, so retries are off
	// by default; a missed frame is simply skipped.
	MaxRetries int
	RetryDelay time.Duration

	// JPEGQuality for uploaded frames (1-100).
	JPEGQuality int

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithBaseURL sets the service base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry configures retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithJPEGQuality sets the upload quality.
func WithJPEGQuality(q int) Option {
	return func(c *Config) { c.JPEGQuality = q }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the defaults: 3s timeout, no retries.
func DefaultConfig() *Config {
	return &Config{
		Timeout:     3 * time.Second,
		MaxRetries:  0,
		RetryDelay:  100 * time.Millisecond,
		JPEGQuality: 80,
		Logger:      slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	return nil
}
