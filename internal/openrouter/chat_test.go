package openrouter

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendChatRejectsEmptyMessages(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter()
	client := newTestClient(t, adapter)

	_, err := client.SendChat(t.Context(), ChatRequest{})
	requireKind(t, err, KindValidation)
	assert.Zero(t, adapter.callCount())
}

func TestSendChatValidatesModelParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params ModelParams
	}{
		{name: "temperature above range", params: ModelParams{Temperature: ptr(2.5)}},
		{name: "temperature negative", params: ModelParams{Temperature: ptr(-0.1)}},
		{name: "temperature NaN", params: ModelParams{Temperature: ptr(math.NaN())}},
		{name: "max tokens zero", params: ModelParams{MaxTokens: ptr(0)}},
		{name: "top p zero", params: ModelParams{TopP: ptr(0.0)}},
		{name: "top p above one", params: ModelParams{TopP: ptr(1.5)}},
		{name: "presence penalty", params: ModelParams{PresencePenalty: ptr(-3.0)}},
		{name: "frequency penalty", params: ModelParams{FrequencyPenalty: ptr(2.1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			adapter := newFakeAdapter()
			client := newTestClient(t, adapter)

			_, err := client.SendChat(t.Context(), ChatRequest{Messages: userMessages("hi"), Params: &tt.params})
			requireKind(t, err, KindValidation)
			assert.Zero(t, adapter.callCount())
		})
	}
}

func TestSendChatDefaultParamsAreValidatedToo(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter()
	client := newTestClient(t, adapter, WithDefaultModelParams(ModelParams{Temperature: ptr(9.0)}))

	_, err := client.SendChat(t.Context(), ChatRequest{Messages: userMessages("hi")})
	requireKind(t, err, KindValidation)
	assert.Zero(t, adapter.callCount())
}

func TestSendChatBuildsRequest(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(respondContent("hello"))
	client := newTestClient(t, adapter,
		WithAppURL("https://fiszki.example.com"),
		WithAppTitle("Fiszki AI"),
		WithDefaultModelParams(ModelParams{Temperature: ptr(0.2), MaxTokens: ptr(256)}),
	)

	resp, err := client.SendChat(t.Context(), ChatRequest{
		Messages: userMessages("hi"),
		Params:   &ModelParams{Temperature: ptr(0.7)},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content())
	assert.Equal(t, "gen-1", resp.ID)

	require.Len(t, adapter.calls, 1)
	call := adapter.calls[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, DefaultBaseURL+"/chat/completions", call.url)
	assert.Equal(t, "Bearer "+testAPIKey, call.header.Get("Authorization"))
	assert.Equal(t, "application/json", call.header.Get("Content-Type"))
	assert.Equal(t, "https://fiszki.example.com", call.header.Get("HTTP-Referer"))
	assert.Equal(t, "Fiszki AI", call.header.Get("X-Title"))

	assert.Equal(t, DefaultModel, call.payload["model"])
	assert.InDelta(t, 0.7, call.payload["temperature"], 1e-9)
	assert.InDelta(t, 256, call.payload["max_tokens"], 1e-9)
	assert.NotContains(t, call.payload, "top_p")
	assert.NotContains(t, call.payload, "response_format")
	assert.Equal(t, []time.Duration{DefaultRequestTimeout}, adapter.timeouts)
}

func TestSendChatOmitsOptionalHeaders(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(respondContent("hello"))
	client := newTestClient(t, adapter)

	_, err := client.SendChat(t.Context(), ChatRequest{Model: "x/y", Messages: userMessages("hi")})
	require.NoError(t, err)

	call := adapter.calls[0]
	assert.Empty(t, call.header.Get("HTTP-Referer"))
	assert.Empty(t, call.header.Get("X-Title"))
	assert.Equal(t, "x/y", call.payload["model"])
}

func TestSendChatInjectsDefaultSystemPrompt(t *testing.T) {
	t.Parallel()

	t.Run("prepended when absent", func(t *testing.T) {
		t.Parallel()
		adapter := newFakeAdapter(respondContent("ok"))
		client := newTestClient(t, adapter, WithDefaultSystemPrompt("you are helpful"))

		_, err := client.SendChat(t.Context(), ChatRequest{Messages: userMessages("hi")})
		require.NoError(t, err)

		messages := adapter.calls[0].payload["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, map[string]any{"role": "system", "content": "you are helpful"}, messages[0])
		assert.Equal(t, map[string]any{"role": "user", "content": "hi"}, messages[1])
	})

	t.Run("caller system message kept", func(t *testing.T) {
		t.Parallel()
		adapter := newFakeAdapter(respondContent("ok"))
		client := newTestClient(t, adapter, WithDefaultSystemPrompt("you are helpful"))

		_, err := client.SendChat(t.Context(), ChatRequest{Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleSystem, Content: "custom"},
		}})
		require.NoError(t, err)

		messages := adapter.calls[0].payload["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, "hi", messages[0].(map[string]any)["content"])
		assert.Equal(t, "custom", messages[1].(map[string]any)["content"])
	})
}

func TestSendChatRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(
		fail(context.DeadlineExceeded),
		respondJSON(http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`),
		respondContent("done"),
	)
	client := newTestClient(t, adapter, WithRetry(RetryPolicy{
		Attempts:  3,
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  time.Second,
	}))

	resp, err := client.SendChat(t.Context(), ChatRequest{Messages: userMessages("hi")})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content())
	assert.Equal(t, 3, adapter.callCount())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, adapter.sleeps)
}

func TestSendChatBackoffIsCapped(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(
		respondJSON(http.StatusBadGateway, `{}`),
		respondJSON(http.StatusBadGateway, `{}`),
		respondJSON(http.StatusBadGateway, `{}`),
		respondJSON(http.StatusBadGateway, `{}`),
		respondJSON(http.StatusBadGateway, `{}`),
	)
	client := newTestClient(t, adapter, WithRetry(RetryPolicy{
		Attempts:  5,
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  250 * time.Millisecond,
	}))

	_, err := client.SendChat(t.Context(), ChatRequest{Messages: userMessages("hi")})
	clientErr := requireKind(t, err, KindHTTP)
	assert.Equal(t, http.StatusBadGateway, clientErr.Status)
	assert.Equal(t, 5, adapter.callCount())
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		250 * time.Millisecond,
		250 * time.Millisecond,
	}, adapter.sleeps)
}

func TestSendChatDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(
		respondJSON(http.StatusBadRequest, `{"error":{"message":"bad model"}}`),
		respondContent("never"),
	)
	client := newTestClient(t, adapter, WithRetry(RetryPolicy{Attempts: 3}))

	_, err := client.SendChat(t.Context(), ChatRequest{Messages: userMessages("hi")})
	clientErr := requireKind(t, err, KindHTTP)
	assert.Equal(t, http.StatusBadRequest, clientErr.Status)
	assert.Equal(t, "Bad Request", clientErr.StatusText)
	assert.Equal(t, map[string]any{"error": map[string]any{"message": "bad model"}}, clientErr.Body)
	assert.False(t, clientErr.Retryable())
	assert.Equal(t, 1, adapter.callCount())
	assert.Empty(t, adapter.sleeps)
}

func TestSendChatSingleAttemptByDefault(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(respondJSON(http.StatusServiceUnavailable, `{}`), respondContent("never"))
	client := newTestClient(t, adapter)

	_, err := client.SendChat(t.Context(), ChatRequest{Messages: userMessages("hi")})
	requireKind(t, err, KindHTTP)
	assert.Equal(t, 1, adapter.callCount())
	assert.Empty(t, adapter.sleeps)
}

func TestSendChatTextErrorBodyIsTruncated(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(respond(http.StatusNotFound, "text/plain", strings.Repeat("ż", 1500)))
	client := newTestClient(t, adapter)

	_, err := client.SendChat(t.Context(), ChatRequest{Messages: userMessages("hi")})
	clientErr := requireKind(t, err, KindHTTP)
	body, ok := clientErr.Body.(string)
	require.True(t, ok)
	assert.Equal(t, 1000, len([]rune(body)))
}

func TestSendChatUndecodableJSONErrorBodyIsNil(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(respondJSON(http.StatusUnauthorized, `{not json`))
	client := newTestClient(t, adapter)

	_, err := client.SendChat(t.Context(), ChatRequest{Messages: userMessages("hi")})
	clientErr := requireKind(t, err, KindHTTP)
	assert.Nil(t, clientErr.Body)
}

func TestSendChatNetworkErrors(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(fail(syscall.ECONNREFUSED), fail(syscall.ECONNRESET))
	client := newTestClient(t, adapter, WithRetry(RetryPolicy{Attempts: 2}))

	_, err := client.SendChat(t.Context(), ChatRequest{Messages: userMessages("hi")})
	requireKind(t, err, KindNetwork)
	assert.ErrorIs(t, err, syscall.ECONNRESET)
	assert.Equal(t, 2, adapter.callCount())
	assert.Equal(t, []time.Duration{DefaultRetryBaseDelay}, adapter.sleeps)
}

func TestSendChatTimeoutOnFinalAttempt(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(fail(context.DeadlineExceeded))
	client := newTestClient(t, adapter)

	_, err := client.SendChat(t.Context(), ChatRequest{Messages: userMessages("hi")})
	clientErr := requireKind(t, err, KindTimeout)
	assert.True(t, clientErr.Retryable())
}

func TestSendChatPassesThroughClientErrors(t *testing.T) {
	t.Parallel()

	original := &Error{Kind: KindParse, Message: "from adapter"}
	adapter := newFakeAdapter(fail(original))
	client := newTestClient(t, adapter, WithRetry(RetryPolicy{Attempts: 3}))

	_, err := client.SendChat(t.Context(), ChatRequest{Messages: userMessages("hi")})
	assert.Same(t, original, err)
	assert.Equal(t, 1, adapter.callCount())
}

func TestSendChatParseErrorsAreFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "empty body", body: "  ", message: "response body is empty"},
		{name: "invalid json", body: "<html>oops</html>", message: "failed to parse JSON response"},
		{name: "not an object", body: `[1,2,3]`, message: "response is not an object"},
		{name: "no choices", body: `{"id":"x","choices":[]}`, message: "response does not contain choices"},
		{name: "missing content", body: `{"choices":[{"message":{"role":"assistant","content":null}}]}`, message: "response does not contain message content"},
		{name: "choices not an array", body: `{"choices":"nope"}`, message: "response does not contain choices"},
		{name: "null choices", body: `{"choices":null}`, message: "response does not contain choices"},
		{name: "content not a string", body: `{"choices":[{"message":{"content":42}}]}`, message: "response does not contain message content"},
		{name: "first choice not an object", body: `{"choices":["hi"]}`, message: "response does not contain message content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			adapter := newFakeAdapter(respondJSON(http.StatusOK, tt.body), respondContent("never"))
			client := newTestClient(t, adapter, WithRetry(RetryPolicy{Attempts: 3}))

			_, err := client.SendChat(t.Context(), ChatRequest{Messages: userMessages("hi")})
			clientErr := requireKind(t, err, KindParse)
			assert.Equal(t, tt.message, clientErr.Message)
			assert.Equal(t, 1, adapter.callCount())
		})
	}
}

func TestSendChatToleratesOddOptionalFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, resp *ChatResponse)
	}{
		{
			name: "created as a date string",
			body: `{"id":"x","created":"2024-01-01","choices":[{"message":{"role":"assistant","content":"hi"}}]}`,
			check: func(t *testing.T, resp *ChatResponse) {
				assert.Equal(t, "x", resp.ID)
				assert.Zero(t, resp.Created)
				assert.Nil(t, resp.Usage)
			},
		},
		{
			name: "usage not an object",
			body: `{"id":"y","usage":"n/a","choices":[{"message":{"content":"hi"}}]}`,
			check: func(t *testing.T, resp *ChatResponse) {
				assert.Equal(t, "y", resp.ID)
				assert.Nil(t, resp.Usage)
			},
		},
		{
			name: "fractional numbers",
			body: `{"created":1700000000.5,"usage":{"prompt_tokens":12.0,"completion_tokens":"3","total_tokens":true},` +
				`"choices":[{"index":0.0,"message":{"content":"hi"}}]}`,
			check: func(t *testing.T, resp *ChatResponse) {
				assert.Equal(t, int64(1700000000), resp.Created)
				require.NotNil(t, resp.Usage)
				assert.Equal(t, Usage{PromptTokens: 12, CompletionTokens: 3}, *resp.Usage)
			},
		},
		{
			name: "index and role of the wrong type",
			body: `{"model":7,"choices":[{"index":"first","finish_reason":1,"message":{"role":false,"content":"hi"}},{"message":null}]}`,
			check: func(t *testing.T, resp *ChatResponse) {
				assert.Empty(t, resp.Model)
				require.Len(t, resp.Choices, 2)
				assert.Equal(t, ChatChoice{Message: Message{Content: "hi"}}, resp.Choices[0])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			adapter := newFakeAdapter(respondJSON(http.StatusOK, tt.body))
			client := newTestClient(t, adapter)

			resp, err := client.SendChat(t.Context(), ChatRequest{Messages: userMessages("hi")})
			require.NoError(t, err)
			assert.Equal(t, "hi", resp.Content())
			assert.Equal(t, 1, adapter.callCount())
			tt.check(t, resp)
		})
	}
}

func TestSendChatInvalidJSONKeepsSample(t *testing.T) {
	t.Parallel()

	body := "{" + strings.Repeat("x", 3000)
	adapter := newFakeAdapter(respondJSON(http.StatusOK, body))
	client := newTestClient(t, adapter)

	_, err := client.SendChat(t.Context(), ChatRequest{Messages: userMessages("hi")})
	clientErr := requireKind(t, err, KindParse)
	assert.Len(t, clientErr.Raw, 1000)
	assert.True(t, strings.HasPrefix(body, clientErr.Raw))
}

func TestSendChatStopsWhenCallerCancels(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	adapter := newFakeAdapter(respondContent("never"))
	client := newTestClient(t, adapter, WithRetry(RetryPolicy{Attempts: 3}))

	_, err := client.SendChat(ctx, ChatRequest{Messages: userMessages("hi")})
	requireKind(t, err, KindNetwork)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, adapter.callCount())
	assert.Empty(t, adapter.sleeps)
}

func TestSendChatCancelDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	adapter := &cancellingAdapter{fakeAdapter: newFakeAdapter(respondJSON(http.StatusInternalServerError, `{}`)), cancel: cancel}
	client := newTestClient(t, adapter, WithRetry(RetryPolicy{Attempts: 3}))

	_, err := client.SendChat(ctx, ChatRequest{Messages: userMessages("hi")})
	requireKind(t, err, KindNetwork)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, adapter.callCount())
}

// cancellingAdapter cancels the caller's context while the client waits between attempts.
type cancellingAdapter struct {
	*fakeAdapter
	cancel context.CancelFunc
}

func (a *cancellingAdapter) Sleep(ctx context.Context, d time.Duration) error {
	a.cancel()
	return a.fakeAdapter.Sleep(ctx, d)
}
