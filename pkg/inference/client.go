package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-proctor/internal/httpc"
)

const (
	opHealth  = "health"
	opAnalyze = "analyze"

	pathHealth  = "/health"
	pathAnalyze = "/analyze-face"
)

// Client talks to the remote face-analysis service over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
	closed  atomic.Bool
}

// NewClient creates a new inference client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		config:  cfg,
		http:    httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "inference.client"),
	}, nil
}

// BaseURL returns the configured endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

// Health checks the service health endpoint.
func (c *Client) Health(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathHealth, nil)
	if err != nil {
		return WrapError(opHealth, fmt.Errorf("create request: %w", err))
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return WrapError(opHealth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp, pathHealth)
	}

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return WrapError(opHealth, fmt.Errorf("%w: %v", ErrBadResponse, err))
	}
	if status.Status != "healthy" {
		return WrapError(opHealth, fmt.Errorf("%w: status %q", ErrUnhealthy, status.Status))
	}
	return nil
}

// AnalyzeFrame JPEG-encodes img, posts it as a data URL and decodes the
// analysis. Any failure means the remote tier is unavailable for this frame.
func (c *Client) AnalyzeFrame(ctx context.Context, img image.Image) (*FrameAnalysis, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()

	dataURL, err := EncodeDataURL(img, c.config.JPEGQuality)
	if err != nil {
		return nil, WrapError(opAnalyze, fmt.Errorf("encode frame: %w", err))
	}

	form := url.Values{}
	form.Set("image", dataURL)
	form.Set("timestamp", strconv.FormatInt(start.UnixMilli(), 10))
	body := []byte(form.Encode())

	resp, err := c.postForm(ctx, pathAnalyze, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp, pathAnalyze)
	}

	var result analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(opAnalyze, fmt.Errorf("%w: %v", ErrBadResponse, err))
	}
	if !result.Success || result.Analysis == nil {
		msg := result.Error
		if msg == "" {
			msg = "no analysis in response"
		}
		return nil, WrapError(opAnalyze, fmt.Errorf("%w: %s", ErrBadResponse, msg))
	}

	result.Analysis.Latency = time.Since(start)
	c.logger.Debug("frame analyzed",
		"faces", result.Analysis.FacesDetected,
		"looking_away", result.Analysis.LookingAway,
		"latency_ms", result.Analysis.Latency.Milliseconds(),
	)
	return result.Analysis, nil
}

// Close marks the client closed and drops idle connections.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// postForm posts a url-encoded body with retry logic.
func (c *Client) postForm(ctx context.Context, path string, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, WrapError(opAnalyze, ctx.Err())
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(opAnalyze, fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		c.authorize(req)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = WrapError(opAnalyze, err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			c.logger.Debug("request failed", "attempt", attempt+1, "error", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = c.parseError(resp, path)
			resp.Body.Close()
			c.logger.Debug("retryable status", "attempt", attempt+1, "status", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// parseError reads an error body of the form {"success":false,"error":"..."}.
func (c *Client) parseError(resp *http.Response, path string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp struct {
		Error string `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		message = errResp.Error
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Endpoint:   path,
	}
}

var _ Analyzer = (*Client)(nil)
