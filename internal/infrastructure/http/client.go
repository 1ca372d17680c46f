package http

import (
	"crypto/tls"
	"net/http"
	"time"
)

// ClientConfig holds configuration for HTTP clients.
type ClientConfig struct {
	Timeout       time.Duration
	Transport     http.RoundTripper
	CheckRedirect func(req *http.Request, via []*http.Request) error
	// TLSMinVersion is applied to a clone of the default transport when
	// Transport is nil. Zero keeps the Go default.
	TLSMinVersion uint16
}

// NewClient creates a new HTTP client with standard configuration.
// If config is nil, uses sensible defaults (30s timeout).
func NewClient(config *ClientConfig) *http.Client {
	if config == nil {
		config = &ClientConfig{
			Timeout: 30 * time.Second,
		}
	}

	client := &http.Client{
		Timeout: config.Timeout,
	}

	switch {
	case config.Transport != nil:
		client.Transport = config.Transport
	case config.TLSMinVersion != 0:
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{MinVersion: config.TLSMinVersion}
		client.Transport = transport
	}

	if config.CheckRedirect != nil {
		client.CheckRedirect = config.CheckRedirect
	}

	return client
}
