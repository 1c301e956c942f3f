// Package httpc provides HTTP clients with sensible defaults.
// Use this instead of http.DefaultClient to ensure timeouts are set.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultConnectTimeout  = 5 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// NewClient creates a new HTTP client with the specified overall timeout.
// The dial timeout never exceeds the overall timeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	connect := DefaultConnectTimeout
	if timeout < connect {
		connect = timeout
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   connect,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       DefaultIdleConnTimeout,
			TLSHandshakeTimeout:   connect,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
