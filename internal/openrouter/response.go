package openrouter

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strings"
)

const (
	maxErrorBodyBytes = 64 * 1024
	maxSampleChars    = 1000
)

// parseChatResponse accepts a success body only if it is a JSON object with a
// non-empty choices array whose first message has content.
func parseChatResponse(raw []byte) (*ChatResponse, *Error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, newParseError("response body is empty", "", "")
	}
	if !json.Valid(trimmed) {
		return nil, newParseError("failed to parse JSON response", "", sample(string(raw)))
	}
	if trimmed[0] != '{' {
		return nil, newParseError("response is not an object", "", sample(string(trimmed)))
	}

	var view struct {
		Choices json.RawMessage `json:"choices"`
	}
	if err := json.Unmarshal(trimmed, &view); err != nil {
		return nil, &Error{Kind: KindParse, Message: "response has an unexpected shape", Raw: sample(string(trimmed)), Err: err}
	}

	var choices []json.RawMessage
	if json.Unmarshal(view.Choices, &choices) != nil || len(choices) == 0 {
		return nil, newParseError("response does not contain choices", "", "")
	}

	out := ChatResponse{Choices: make([]ChatChoice, 0, len(choices))}
	for _, choice := range choices {
		out.Choices = append(out.Choices, decodeChoice(choice))
	}
	if out.Choices[0].Message.Content == "" {
		return nil, newParseError("response does not contain message content", "", "")
	}
	decodeMetadata(trimmed, &out)
	return &out, nil
}

// decodeChoice reads one choice field by field. Fields of an unexpected type are
// left zero instead of failing the whole response.
func decodeChoice(raw json.RawMessage) ChatChoice {
	var fields struct {
		Index        json.RawMessage `json:"index"`
		FinishReason json.RawMessage `json:"finish_reason"`
		Message      *struct {
			Role    json.RawMessage `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	}
	var choice ChatChoice
	if json.Unmarshal(raw, &fields) != nil {
		return choice
	}

	choice.Index = int(lenientInt(fields.Index))
	choice.FinishReason = lenientString(fields.FinishReason)
	if fields.Message != nil {
		choice.Message.Role = Role(lenientString(fields.Message.Role))
		choice.Message.Content = lenientString(fields.Message.Content)
	}
	return choice
}

// decodeMetadata fills the optional top-level fields. None of them is required, so a
// mismatched type only drops that field.
func decodeMetadata(body []byte, out *ChatResponse) {
	var fields struct {
		ID                json.RawMessage `json:"id"`
		Model             json.RawMessage `json:"model"`
		Created           json.RawMessage `json:"created"`
		SystemFingerprint json.RawMessage `json:"system_fingerprint"`
		Usage             json.RawMessage `json:"usage"`
	}
	if json.Unmarshal(body, &fields) != nil {
		return
	}

	out.ID = lenientString(fields.ID)
	out.Model = lenientString(fields.Model)
	out.Created = lenientInt(fields.Created)
	out.SystemFingerprint = lenientString(fields.SystemFingerprint)

	var usage struct {
		PromptTokens     json.RawMessage `json:"prompt_tokens"`
		CompletionTokens json.RawMessage `json:"completion_tokens"`
		TotalTokens      json.RawMessage `json:"total_tokens"`
	}
	if len(fields.Usage) > 0 && fields.Usage[0] == '{' && json.Unmarshal(fields.Usage, &usage) == nil {
		out.Usage = &Usage{
			PromptTokens:     int(lenientInt(usage.PromptTokens)),
			CompletionTokens: int(lenientInt(usage.CompletionTokens)),
			TotalTokens:      int(lenientInt(usage.TotalTokens)),
		}
	}
}

// lenientString returns raw as a string, or "" when it is absent or not a JSON string.
func lenientString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// lenientInt accepts integral and fractional JSON numbers, truncating the latter.
// Anything else yields 0.
func lenientInt(raw json.RawMessage) int64 {
	var n json.Number
	if len(raw) == 0 || json.Unmarshal(raw, &n) != nil {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return 0
	}
	return int64(f)
}

// readErrorBody returns decoded JSON when the content type says so, otherwise a text
// sample, and nil when the body cannot be read or decoded.
func readErrorBody(resp *http.Response) any {
	limited := io.LimitReader(resp.Body, maxErrorBodyBytes)

	if strings.Contains(resp.Header.Get("Content-Type"), contentTypeJSON) {
		var body any
		if err := json.NewDecoder(limited).Decode(&body); err != nil {
			return nil
		}
		return body
	}

	data, err := io.ReadAll(limited)
	if err != nil {
		return nil
	}
	return sample(string(data))
}

// sample truncates s to at most maxSampleChars characters.
func sample(s string) string {
	count := 0
	for i := range s {
		if count == maxSampleChars {
			return s[:i]
		}
		count++
	}
	return s
}
