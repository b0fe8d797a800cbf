package httpclient

import (
	"net"
	"net/http"
	"time"

	"revstats/internal/config"
	"revstats/internal/logging"
)

// DefaultTimeout is the default HTTP client timeout.
const DefaultTimeout = 30 * time.Second

// NewClient creates an *http.Client for the Revcontent API using the
// configured timeout. The same client is used for the token exchange.
func NewClient(apiCfg *config.APIConfig) *http.Client {
	timeout := DefaultTimeout
	if apiCfg != nil && apiCfg.TimeoutSeconds > 0 {
		timeout = time.Duration(apiCfg.TimeoutSeconds) * time.Second
	}
	logging.Logf(logging.Debug, "Creating HTTP client with timeout %v", timeout)
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(),
	}
}

// NewTransport returns the base transport shared by all outbound clients.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// HeaderTransport adds fixed headers to every request that does not already
// carry them.
type HeaderTransport struct {
	Headers http.Header
	Next    http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *HeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.Next
	if next == nil {
		next = http.DefaultTransport
	}
	if len(t.Headers) == 0 {
		return next.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request.
	clone := req.Clone(req.Context())
	for name, values := range t.Headers {
		if clone.Header.Get(name) != "" {
			continue
		}
		for _, v := range values {
			clone.Header.Add(name, v)
		}
	}
	return next.RoundTrip(clone)
}

// WithHeaders returns a copy of client whose transport adds headers.
func WithHeaders(client *http.Client, headers http.Header) *http.Client {
	wrapped := *client
	wrapped.Transport = &HeaderTransport{Headers: headers.Clone(), Next: client.Transport}
	return &wrapped
}
