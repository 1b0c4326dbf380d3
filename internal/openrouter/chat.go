package openrouter

import (
	"context"
	"math"
)

// SendChat sends a chat completion request. It injects the default system prompt when
// the request has no system message, merges model params over the client defaults and
// validates them before any network I/O.
func (c *Client) SendChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}
	return c.performRequest(ctx, payload)
}

func (c *Client) buildPayload(req ChatRequest) (chatPayload, error) {
	if len(req.Messages) == 0 {
		return chatPayload{}, newValidationError("messages must not be empty")
	}

	params, err := c.buildModelParams(req.Params)
	if err != nil {
		return chatPayload{}, err
	}

	model := req.Model
	if model == "" {
		model = c.settings.defaultModel
	}

	return chatPayload{
		Model:            model,
		Messages:         c.withDefaultSystemMessage(req.Messages),
		ResponseFormat:   req.ResponseFormat,
		Temperature:      params.Temperature,
		MaxTokens:        params.MaxTokens,
		TopP:             params.TopP,
		PresencePenalty:  params.PresencePenalty,
		FrequencyPenalty: params.FrequencyPenalty,
	}, nil
}

// withDefaultSystemMessage never reorders or duplicates a caller-supplied system message.
func (c *Client) withDefaultSystemMessage(messages []Message) []Message {
	if c.settings.defaultSystemPrompt == "" {
		return messages
	}
	for _, m := range messages {
		if m.Role == RoleSystem {
			return messages
		}
	}

	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: RoleSystem, Content: c.settings.defaultSystemPrompt})
	return append(out, messages...)
}

func (c *Client) buildModelParams(override *ModelParams) (ModelParams, error) {
	merged := c.settings.defaultParams
	if override != nil {
		if override.Temperature != nil {
			merged.Temperature = override.Temperature
		}
		if override.MaxTokens != nil {
			merged.MaxTokens = override.MaxTokens
		}
		if override.TopP != nil {
			merged.TopP = override.TopP
		}
		if override.PresencePenalty != nil {
			merged.PresencePenalty = override.PresencePenalty
		}
		if override.FrequencyPenalty != nil {
			merged.FrequencyPenalty = override.FrequencyPenalty
		}
	}

	if err := validateModelParams(merged); err != nil {
		return ModelParams{}, err
	}
	return merged, nil
}

// validateModelParams rejects NaN as well as out-of-range values.
func validateModelParams(p ModelParams) error {
	if v := p.Temperature; v != nil && !inRange(*v, 0, 2) {
		return newValidationError("temperature must be between 0 and 2")
	}
	if v := p.MaxTokens; v != nil && *v <= 0 {
		return newValidationError("max_tokens must be a positive number")
	}
	if v := p.TopP; v != nil && !(*v > 0 && *v <= 1) {
		return newValidationError("top_p must be between 0 and 1")
	}
	if v := p.PresencePenalty; v != nil && !inRange(*v, -2, 2) {
		return newValidationError("presence_penalty must be between -2 and 2")
	}
	if v := p.FrequencyPenalty; v != nil && !inRange(*v, -2, 2) {
		return newValidationError("frequency_penalty must be between -2 and 2")
	}
	return nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
