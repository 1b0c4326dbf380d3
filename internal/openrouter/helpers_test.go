package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testAPIKey = "sk-test"

// step is one scripted adapter outcome: either a response or an error.
type step struct {
	resp *http.Response
	err  error
}

type recordedCall struct {
	method  string
	url     string
	header  http.Header
	payload map[string]any
}

// fakeAdapter replays steps in order and records every call, attempt timeout and sleep.
type fakeAdapter struct {
	mu       sync.Mutex
	steps    []step
	calls    []recordedCall
	timeouts []time.Duration
	sleeps   []time.Duration
}

func newFakeAdapter(steps ...step) *fakeAdapter {
	return &fakeAdapter{steps: steps}
}

func (f *fakeAdapter) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := recordedCall{method: req.Method, url: req.URL.String(), header: req.Header.Clone()}
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(data, &call.payload)
	}
	f.calls = append(f.calls, call)

	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	if len(f.steps) == 0 {
		return nil, errors.New("fake adapter: no scripted step left")
	}
	next := f.steps[0]
	f.steps = f.steps[1:]
	return next.resp, next.err
}

func (f *fakeAdapter) AttemptContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	f.mu.Lock()
	f.timeouts = append(f.timeouts, timeout)
	f.mu.Unlock()
	return context.WithCancel(parent)
}

func (f *fakeAdapter) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.sleeps = append(f.sleeps, d)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func respond(status int, contentType, body string) step {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return step{resp: &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}}
}

func respondJSON(status int, body string) step {
	return respond(status, "application/json", body)
}

func respondContent(content string) step {
	encoded, _ := json.Marshal(content)
	return respondJSON(http.StatusOK, `{"id":"gen-1","model":"openai/gpt-4.1-mini","created":1700000000,`+
		`"choices":[{"index":0,"message":{"role":"assistant","content":`+string(encoded)+`},"finish_reason":"stop"}]}`)
}

func fail(err error) step {
	return step{err: err}
}

func noEnv(string) (string, bool) { return "", false }

func envMap(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func newTestClient(t *testing.T, adapter Adapter, opts ...Option) *Client {
	t.Helper()
	base := []Option{WithAPIKey(testAPIKey), WithLookupEnv(noEnv), WithAdapter(adapter)}
	client, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return client
}

func userMessages(text string) []Message {
	return []Message{{Role: RoleUser, Content: text}}
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	var clientErr *Error
	require.True(t, errors.As(err, &clientErr), "expected *openrouter.Error, got %T: %v", err, err)
	require.Equal(t, kind, clientErr.Kind, "unexpected kind for %v", err)
	return clientErr
}

func ptr[T any](v T) *T { return &v }
