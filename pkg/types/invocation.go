package types

import "encoding/json"

// AnthropicVersion is the protocol version the upstream requires in every request body.
// Bedrock rejects other values with an error that looks like an auth failure.
const AnthropicVersion = "bedrock-2023-05-31"

// Mode selects the upstream invocation endpoint
type Mode string

const (
	ModeSync   Mode = "sync"
	ModeStream Mode = "stream"
)

// Message roles accepted on the structured request shape
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a structured conversation.
// Content is kept raw so string and content-block forms pass through untouched.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// UpstreamRequest is the body sent to the model-invocation API when the proxy
// builds it from scratch. Bodies normalized from /invoke keep any extra fields
// the client sent.
type UpstreamRequest struct {
	AnthropicVersion string            `json:"anthropic_version"`
	Messages         []json.RawMessage `json:"messages"`
	MaxTokens        int64             `json:"max_tokens"`
	System           string            `json:"system,omitempty"`
	Temperature      *float64          `json:"temperature,omitempty"`
	Tools            []UpstreamTool    `json:"tools,omitempty"`
	ToolChoice       json.RawMessage   `json:"tool_choice,omitempty"`
}

// UpstreamTool is a tool definition in the upstream schema
type UpstreamTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// InferenceTarget identifies which upstream endpoint an invocation goes to
type InferenceTarget struct {
	ModelID string // model id or inference profile id/ARN
	Mode    Mode
}

// Path returns the URI path of the target, with the model id left unescaped
func (t InferenceTarget) Path() string {
	if t.Mode == ModeStream {
		return "/model/" + t.ModelID + "/invoke-with-response-stream"
	}
	return "/model/" + t.ModelID + "/invoke"
}
