package openrouter

import (
	"context"
	"net"
	"net/http"
	"time"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// Adapter is the network capability the client depends on. Implementations must be
// safe for concurrent use when the client is shared.
type Adapter interface {
	// Do executes a single HTTP request.
	Do(req *http.Request) (*http.Response, error)
	// AttemptContext returns the cancellation handle for one attempt; it is cancelled
	// when timeout elapses.
	AttemptContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc)
	// Sleep waits for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// HTTPAdapter is the production Adapter backed by an *http.Client.
type HTTPAdapter struct {
	client *http.Client
}

// NewHTTPAdapter wraps client. A nil client gets a pooled transport with no overall
// timeout; attempts are bounded by AttemptContext instead.
func NewHTTPAdapter(client *http.Client) *HTTPAdapter {
	if client == nil {
		client = newHTTPClient()
	}
	return &HTTPAdapter{client: client}
}

func (a *HTTPAdapter) Do(req *http.Request) (*http.Response, error) {
	return a.client.Do(req)
}

func (a *HTTPAdapter) AttemptContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, timeout)
}

func (a *HTTPAdapter) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{Transport: transport}
}
