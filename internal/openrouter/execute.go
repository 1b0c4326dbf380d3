package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v4"
)

const maxResponseBytes = 16 << 20 // 16 MiB

// performRequest walks attempts 1..max(1, retryAttempts). Timeouts, network failures,
// 429 and 5xx are retried while budget remains; everything else, including a malformed
// success body, is returned at once.
func (c *Client) performRequest(ctx context.Context, payload chatPayload) (*ChatResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: "request could not be encoded", Err: err}
	}

	attempts := max(1, c.settings.retryAttempts)
	schedule := c.newBackoff()

	var lastErr *Error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, attemptErr := c.attempt(ctx, body)
		if attemptErr == nil {
			return resp, nil
		}
		if !attemptErr.Retryable() || attempt == attempts {
			return nil, attemptErr
		}
		if ctx.Err() != nil {
			return nil, newNetworkError(ctx.Err())
		}
		lastErr = attemptErr

		// The attempt's timer is already released by attempt's deferred cancel.
		if err := c.adapter.Sleep(ctx, schedule.NextBackOff()); err != nil {
			return nil, newNetworkError(err)
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &Error{Kind: KindUnknown, Message: "unknown error when calling the provider"}
}

func (c *Client) attempt(ctx context.Context, body []byte) (*ChatResponse, *Error) {
	attemptCtx, cancel := c.adapter.AttemptContext(ctx, c.settings.requestTimeout)
	defer cancel()

	req, err := c.newRequest(attemptCtx, body)
	if err != nil {
		return nil, newNetworkError(err)
	}

	resp, err := c.adapter.Do(req)
	if err != nil {
		return nil, normalizeRequestError(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newHTTPError(resp.StatusCode, statusText(resp), readErrorBody(resp))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, normalizeRequestError(ctx, attemptCtx, err)
	}

	out, parseErr := parseChatResponse(raw)
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+c.settings.apiKey)
	if c.settings.appURL != "" {
		req.Header.Set("HTTP-Referer", c.settings.appURL)
	}
	if c.settings.appTitle != "" {
		req.Header.Set("X-Title", c.settings.appTitle)
	}

	return req, nil
}

// newBackoff yields min(base*2^(k-1), max) for the k-th wait. ExponentialBackOff is
// stateful, so every call gets its own.
func (c *Client) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.settings.retryBaseDelay
	b.MaxInterval = c.settings.retryMaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// normalizeRequestError keeps client errors as they are, reports a caller cancellation
// as a network error, and maps an expired attempt context to a timeout.
func normalizeRequestError(parent, attemptCtx context.Context, err error) *Error {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr
	}

	if parent.Err() != nil {
		return &Error{Kind: KindNetwork, Message: "request cancelled: " + parent.Err().Error(), Err: parent.Err()}
	}

	if attemptCtx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newTimeoutError(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newTimeoutError(err)
	}

	return newNetworkError(err)
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
