package openrouter

import (
	"context"
	"encoding/json"
	"strings"
)

// SendStructuredChat asks the provider for a single JSON document conforming to
// req.Schema and returns it undecoded. The provider's strict mode is trusted for shape;
// the only local check is that the content parses as JSON.
func (c *Client) SendStructuredChat(ctx context.Context, req StructuredChatRequest) (json.RawMessage, error) {
	format, err := buildJSONSchemaFormat(req.SchemaName, req.Schema)
	if err != nil {
		return nil, err
	}

	resp, err := c.SendChat(ctx, ChatRequest{
		Model:          req.Model,
		Messages:       req.Messages,
		ResponseFormat: format,
		Params:         req.Params,
	})
	if err != nil {
		return nil, err
	}

	return parseJSONContent(resp.Content(), req.SchemaName)
}

// SendStructured is SendStructuredChat decoded into T. A value that is valid JSON but
// does not fit T is reported as a KindParse error.
func SendStructured[T any](ctx context.Context, c *Client, req StructuredChatRequest) (T, error) {
	var out T

	raw, err := c.SendStructuredChat(ctx, req)
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &Error{
			Kind:    KindParse,
			Message: "structured output does not match the expected type",
			Context: req.SchemaName,
			Raw:     sample(string(raw)),
			Err:     err,
		}
	}
	return out, nil
}

func buildJSONSchemaFormat(name string, schema any) (*ResponseFormat, error) {
	if strings.TrimSpace(name) == "" {
		return nil, newValidationError("schema name must not be empty")
	}
	return &ResponseFormat{
		Type: FormatJSONSchema,
		JSONSchema: &JSONSchema{
			Name:   name,
			Strict: true,
			Schema: schema,
		},
	}, nil
}

func parseJSONContent(content, schemaName string) (json.RawMessage, error) {
	if content == "" {
		return nil, newParseError("structured response does not contain content", schemaName, "")
	}

	raw := json.RawMessage(strings.TrimSpace(content))
	if !json.Valid(raw) {
		return nil, newParseError("structured response is not valid JSON", schemaName, sample(content))
	}
	return raw, nil
}
