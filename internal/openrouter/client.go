// Package openrouter is a resilient client for an OpenAI-compatible chat completion
// provider. It adds per-attempt timeouts, exponential backoff for transient failures,
// response-shape validation and strict JSON-schema structured output.
//
// A Client holds only read-only configuration and its Adapter, so it is safe for
// concurrent use.
package openrouter

import (
	"time"
)

const (
	chatCompletionsPath = "/chat/completions"
	contentTypeJSON     = "application/json"
	userAgent           = "fiszki/0.1"
)

// Client sends chat completion requests to the provider.
type Client struct {
	settings settings
	adapter  Adapter
	chatURL  string
}

// New resolves configuration from opts, the environment and the package defaults.
// It fails with a KindConfig *Error when no api key can be resolved.
func New(opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	s, err := resolveSettings(o, o.lookup)
	if err != nil {
		return nil, err
	}

	adapter := o.adapter
	if adapter == nil {
		adapter = NewHTTPAdapter(nil)
	}

	return &Client{
		settings: s,
		adapter:  adapter,
		chatURL:  s.baseURL + chatCompletionsPath,
	}, nil
}

// DefaultModel returns the model used when a request does not name one.
func (c *Client) DefaultModel() string {
	return c.settings.defaultModel
}

// DefaultSystemPrompt returns the configured default system prompt, possibly empty.
func (c *Client) DefaultSystemPrompt() string {
	return c.settings.defaultSystemPrompt
}

// BaseURL returns the normalised provider base URL.
func (c *Client) BaseURL() string {
	return c.settings.baseURL
}

// RequestTimeout returns the per-attempt timeout.
func (c *Client) RequestTimeout() time.Duration {
	return c.settings.requestTimeout
}

// RetryPolicy returns the effective, clamped retry policy.
func (c *Client) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  c.settings.retryAttempts,
		BaseDelay: c.settings.retryBaseDelay,
		MaxDelay:  c.settings.retryMaxDelay,
	}
}
