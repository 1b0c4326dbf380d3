package openrouter

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry of the conversation sent to the provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ModelParams carries optional sampling knobs. Nil fields are omitted from the payload.
type ModelParams struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
}

// Response format types understood by the provider.
const (
	FormatText       = "text"
	FormatJSONObject = "json_object"
	FormatJSONSchema = "json_schema"
)

// ResponseFormat instructs the provider how to shape the assistant reply.
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema is the payload of a json_schema response format.
type JSONSchema struct {
	Name   string `json:"name"`
	Strict bool   `json:"strict"`
	Schema any    `json:"schema"`
}

// ChatRequest is a chat completion request. Model falls back to the client default.
type ChatRequest struct {
	Model          string
	Messages       []Message
	ResponseFormat *ResponseFormat
	Params         *ModelParams
}

// StructuredChatRequest is a ChatRequest whose response format is always a strict
// JSON schema assembled by the client from SchemaName and Schema.
type StructuredChatRequest struct {
	Model      string
	Messages   []Message
	Params     *ModelParams
	SchemaName string
	// Schema is any value that marshals to a JSON Schema document.
	Schema any
}

// ChatChoice is one completion alternative.
type ChatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Usage records token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is a validated chat completion response. Choices is never empty and
// the first choice always carries content.
type ChatResponse struct {
	ID                string       `json:"id"`
	Model             string       `json:"model"`
	Created           int64        `json:"created"`
	Choices           []ChatChoice `json:"choices"`
	Usage             *Usage       `json:"usage,omitempty"`
	SystemFingerprint string       `json:"system_fingerprint,omitempty"`
}

// Content returns the message content of the first choice.
func (r *ChatResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// chatPayload is the wire body of POST /chat/completions.
type chatPayload struct {
	Model            string          `json:"model"`
	Messages         []Message       `json:"messages"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
}
