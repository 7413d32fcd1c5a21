package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mattmillen888/bedrock-proxy/pkg/types"
)

// Defaults applied to chat completion requests that omit them
const (
	DefaultMaxTokens   int64   = 512
	DefaultTemperature float64 = 0.7
)

// OpenAI-side roles
const (
	roleSystem    = "system"
	roleDeveloper = "developer"
	roleUser      = "user"
	roleAssistant = "assistant"
	roleTool      = "tool"
)

// Upstream content block types
const (
	blockText       = "text"
	blockToolUse    = "tool_use"
	blockToolResult = "tool_result"
)

type textBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolUseBlock struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type toolResultBlock struct {
	Type      string          `json:"type"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
}

type upstreamMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// ChatRequestToUpstream converts an OpenAI chat completion request into an
// upstream invocation body. System and developer messages are merged into the
// upstream system prompt; assistant tool calls become tool_use blocks and tool
// messages become tool_result blocks on a user turn.
func ChatRequestToUpstream(req *types.ChatCompletionRequest) ([]byte, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, types.NewInvalidRequestError("%q must not be empty", fieldMessages)
	}

	var (
		systemPrompts []string
		messages      []upstreamMessage
		pendingTools  []toolResultBlock
	)

	flushToolResults := func() {
		if len(pendingTools) == 0 {
			return
		}
		messages = append(messages, upstreamMessage{Role: roleUser, Content: pendingTools})
		pendingTools = nil
	}

	for i, m := range req.Messages {
		if m.Role != roleTool {
			flushToolResults()
		}

		switch m.Role {
		case roleSystem, roleDeveloper:
			if text := contentText(m.Content); text != "" {
				systemPrompts = append(systemPrompts, text)
			}

		case roleUser:
			messages = append(messages, upstreamMessage{Role: roleUser, Content: contentOrEmpty(m.Content)})

		case roleAssistant:
			if len(m.ToolCalls) == 0 {
				messages = append(messages, upstreamMessage{Role: roleAssistant, Content: contentOrEmpty(m.Content)})
				continue
			}
			blocks, err := toolUseBlocks(m)
			if err != nil {
				return nil, types.NewInvalidRequestError("messages[%d]: %v", i, err)
			}
			messages = append(messages, upstreamMessage{Role: roleAssistant, Content: blocks})

		case roleTool:
			pendingTools = append(pendingTools, toolResultBlock{
				Type:      blockToolResult,
				ToolUseID: m.ToolCallID,
				Content:   contentOrEmpty(m.Content),
			})

		default:
			return nil, types.NewInvalidRequestError("messages[%d]: unsupported role %q", i, m.Role)
		}
	}
	flushToolResults()

	if len(messages) == 0 {
		return nil, types.NewInvalidRequestError("%q must contain at least one non-system message", fieldMessages)
	}

	out := types.UpstreamRequest{
		AnthropicVersion: types.AnthropicVersion,
		MaxTokens:        DefaultMaxTokens,
		System:           strings.Join(systemPrompts, "\n\n"),
	}

	if req.MaxTokens != nil {
		if *req.MaxTokens <= 0 {
			return nil, types.NewInvalidRequestError("%q must be positive, got %d", fieldMaxTokens, *req.MaxTokens)
		}
		out.MaxTokens = *req.MaxTokens
	}

	temperature := DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	out.Temperature = &temperature

	for _, m := range messages {
		raw, err := encodeJSON(m)
		if err != nil {
			return nil, types.NewInvalidRequestError("message cannot be encoded: %v", err)
		}
		out.Messages = append(out.Messages, raw)
	}

	for _, tool := range req.Tools {
		if tool.Function.Name == "" {
			return nil, types.NewInvalidRequestError("tool definitions require a function name")
		}
		schema := tool.Function.Parameters
		if len(schema) == 0 || isNull(schema) {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		out.Tools = append(out.Tools, types.UpstreamTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: schema,
		})
	}

	if len(out.Tools) > 0 {
		choice, err := convertToolChoice(req.ToolChoice)
		if err != nil {
			return nil, err
		}
		out.ToolChoice = choice
	}

	return encodeJSON(out)
}

func toolUseBlocks(m types.ChatMessage) ([]interface{}, error) {
	blocks := make([]interface{}, 0, len(m.ToolCalls)+1)
	if text := contentText(m.Content); text != "" {
		blocks = append(blocks, textBlock{Type: blockText, Text: text})
	}

	for _, call := range m.ToolCalls {
		input := json.RawMessage(`{}`)
		if args := strings.TrimSpace(call.Function.Arguments); args != "" {
			if !json.Valid([]byte(args)) || args[0] != '{' {
				return nil, fmt.Errorf("tool call %q arguments must be a JSON object", call.ID)
			}
			input = json.RawMessage(args)
		}
		blocks = append(blocks, toolUseBlock{
			Type:  blockToolUse,
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: input,
		})
	}
	return blocks, nil
}

// convertToolChoice maps the OpenAI tool_choice forms onto the upstream ones
func convertToolChoice(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 || isNull(raw) {
		return nil, nil
	}

	var mode string
	if err := json.Unmarshal(raw, &mode); err == nil {
		switch mode {
		case "auto":
			return json.RawMessage(`{"type":"auto"}`), nil
		case "required":
			return json.RawMessage(`{"type":"any"}`), nil
		case "none":
			return json.RawMessage(`{"type":"none"}`), nil
		}
		return nil, types.NewInvalidRequestError("unsupported tool_choice %q", mode)
	}

	var named struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &named); err != nil || named.Function.Name == "" {
		return nil, types.NewInvalidRequestError("tool_choice must be a mode or name a function")
	}
	return encodeJSON(map[string]string{"type": "tool", "name": named.Function.Name})
}

// contentText flattens message content to plain text. Arrays of text parts
// are joined by newlines; any other JSON is kept as its raw text.
func contentText(content json.RawMessage) string {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 || isNull(trimmed) {
		return ""
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(trimmed, &parts); err == nil {
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			if p.Type == blockText {
				texts = append(texts, p.Text)
			}
		}
		return strings.Join(texts, "\n")
	}
	return string(trimmed)
}

func contentOrEmpty(content json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(content)) == 0 || isNull(content) {
		return json.RawMessage(`""`)
	}
	return content
}

// upstreamResponse is the subset of the upstream response the conversions read
type upstreamResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ChatCompletionFromUpstream converts a successful upstream response body into
// an OpenAI chat completion reported under model.
func ChatCompletionFromUpstream(body []byte, model string) (*types.ChatCompletion, error) {
	var resp upstreamResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &types.ProxyError{Kind: types.KindUpstream, Message: "upstream response is not valid JSON", Err: err}
	}

	message := types.ResponseMessage{Role: roleAssistant}
	var texts []string
	for _, block := range resp.Content {
		switch block.Type {
		case blockText:
			texts = append(texts, block.Text)
		case blockToolUse:
			args := "{}"
			if len(block.Input) > 0 && !isNull(block.Input) {
				args = string(block.Input)
			}
			message.ToolCalls = append(message.ToolCalls, types.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: types.ToolCallFunction{
					Name:      block.Name,
					Arguments: args,
				},
			})
		}
	}
	if len(texts) > 0 {
		text := strings.Join(texts, "")
		message.Content = &text
	}

	finish := finishReason(resp.StopReason)
	if len(message.ToolCalls) > 0 {
		finish = types.FinishReasonToolCalls
	}

	return &types.ChatCompletion{
		ID:      newCompletionID(),
		Object:  types.ObjectChatCompletion,
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []types.ChatChoice{{
			Index:        0,
			Message:      message,
			FinishReason: finish,
		}},
		Usage: types.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

func finishReason(stopReason string) string {
	switch stopReason {
	case "max_tokens":
		return types.FinishReasonLength
	case "tool_use":
		return types.FinishReasonToolCalls
	}
	return types.FinishReasonStop
}

func newCompletionID() string {
	return "chatcmpl-" + uuid.New().String()
}

// ChunkConverter turns upstream stream events into OpenAI chat completion
// chunks. All chunks of one stream share an id and creation time.
type ChunkConverter struct {
	id         string
	model      string
	created    int64
	stopReason string
	emitted    int
}

// NewChunkConverter creates a converter for one stream reported under model
func NewChunkConverter(model string) *ChunkConverter {
	return &ChunkConverter{
		id:      newCompletionID(),
		model:   model,
		created: time.Now().Unix(),
	}
}

// Convert maps one upstream event payload to a chunk. It returns false for
// events that carry nothing a chat client needs.
func (c *ChunkConverter) Convert(event []byte) (*types.ChatCompletionChunk, bool) {
	var ev struct {
		Type  string `json:"type"`
		Delta struct {
			Type       string `json:"type"`
			Text       string `json:"text"`
			StopReason string `json:"stop_reason"`
		} `json:"delta"`
	}
	if err := json.Unmarshal(event, &ev); err != nil {
		return nil, false
	}

	var delta types.ChunkDelta
	var finish *string

	switch ev.Type {
	case "message_start":
		delta.Role = roleAssistant
	case "content_block_delta":
		if ev.Delta.Type != "" && ev.Delta.Type != "text_delta" {
			return nil, false
		}
		text := ev.Delta.Text
		delta.Content = &text
	case "message_delta":
		c.stopReason = ev.Delta.StopReason
		return nil, false
	case "message_stop":
		reason := finishReason(c.stopReason)
		finish = &reason
	default:
		return nil, false
	}

	c.emitted++
	return c.chunk(delta, finish), true
}

// Empty returns a chunk with empty content, sent when a stream produced no chunks
func (c *ChunkConverter) Empty() *types.ChatCompletionChunk {
	empty := ""
	c.emitted++
	return c.chunk(types.ChunkDelta{Content: &empty}, nil)
}

// Emitted reports how many chunks the converter has produced
func (c *ChunkConverter) Emitted() int {
	return c.emitted
}

func (c *ChunkConverter) chunk(delta types.ChunkDelta, finish *string) *types.ChatCompletionChunk {
	return &types.ChatCompletionChunk{
		ID:      c.id,
		Object:  types.ObjectChatCompletionChunk,
		Created: c.created,
		Model:   c.model,
		Choices: []types.ChunkChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finish,
		}},
	}
}
