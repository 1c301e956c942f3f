package inference

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoBaseURL is returned when the client has no endpoint configured.
	ErrNoBaseURL = errors.New("inference: base URL required")

	// ErrUnhealthy is returned when the health endpoint answers but not "healthy".
	ErrUnhealthy = errors.New("inference: service unhealthy")

	// ErrBadResponse is returned when a response cannot be interpreted.
	ErrBadResponse = errors.New("inference: malformed response")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("inference: client closed")
)

// APIError represents an error response from the service.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the "error" field of the body, or the raw body.
	Message string

	// Endpoint is the request path.
	Endpoint string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("inference %s: API error %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsBadRequest returns true if the service rejected the frame (HTTP 400).
func (e *APIError) IsBadRequest() bool {
	return e.StatusCode == 400
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || e.IsServerError()
}

// RemoteError wraps a transport or decoding failure with the operation.
type RemoteError struct {
	Op  string // "health" or "analyze"
	Err error
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with operation context.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Op: op, Err: err}
}
