package transform

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattmillen888/bedrock-proxy/pkg/types"
)

func chatRequest(t *testing.T, body string) *types.ChatCompletionRequest {
	t.Helper()
	var req types.ChatCompletionRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return &req
}

func TestChatRequestToUpstream_Defaults(t *testing.T) {
	out, err := ChatRequestToUpstream(chatRequest(t, `{"model":"gpt-4","messages":[{"role":"user","content":"Hi"}]}`))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"anthropic_version": "bedrock-2023-05-31",
		"messages": [{"role":"user","content":"Hi"}],
		"max_tokens": 512,
		"temperature": 0.7
	}`, string(out))
}

func TestChatRequestToUpstream_SystemMerged(t *testing.T) {
	req := chatRequest(t, `{
		"messages": [
			{"role":"system","content":"first"},
			{"role":"user","content":"Hi"},
			{"role":"developer","content":[{"type":"text","text":"second"}]}
		],
		"max_tokens": 20,
		"temperature": 0
	}`)

	out, err := ChatRequestToUpstream(req)
	require.NoError(t, err)

	body := decode(t, out)
	assert.Equal(t, "first\n\nsecond", body["system"])
	assert.Equal(t, float64(20), body["max_tokens"])
	assert.Equal(t, float64(0), body["temperature"])
	assert.Len(t, body["messages"], 1)
}

func TestChatRequestToUpstream_ToolRoundTrip(t *testing.T) {
	req := chatRequest(t, `{
		"messages": [
			{"role":"user","content":"weather?"},
			{"role":"assistant","content":null,"tool_calls":[
				{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"Sydney\"}"}},
				{"id":"call_2","type":"function","function":{"name":"get_time","arguments":""}}
			]},
			{"role":"tool","tool_call_id":"call_1","content":"sunny"},
			{"role":"tool","tool_call_id":"call_2","content":"noon"},
			{"role":"user","content":"thanks"}
		],
		"tools": [
			{"type":"function","function":{"name":"get_weather","description":"Weather","parameters":{"type":"object","properties":{"city":{"type":"string"}}}}},
			{"type":"function","function":{"name":"get_time"}}
		],
		"tool_choice": "required"
	}`)

	out, err := ChatRequestToUpstream(req)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens": 512,
		"temperature": 0.7,
		"messages": [
			{"role":"user","content":"weather?"},
			{"role":"assistant","content":[
				{"type":"tool_use","id":"call_1","name":"get_weather","input":{"city":"Sydney"}},
				{"type":"tool_use","id":"call_2","name":"get_time","input":{}}
			]},
			{"role":"user","content":[
				{"type":"tool_result","tool_use_id":"call_1","content":"sunny"},
				{"type":"tool_result","tool_use_id":"call_2","content":"noon"}
			]},
			{"role":"user","content":"thanks"}
		],
		"tools": [
			{"name":"get_weather","description":"Weather","input_schema":{"type":"object","properties":{"city":{"type":"string"}}}},
			{"name":"get_time","input_schema":{"type":"object","properties":{}}}
		],
		"tool_choice": {"type":"any"}
	}`, string(out))
}

func TestChatRequestToUpstream_NamedToolChoice(t *testing.T) {
	out, err := ChatRequestToUpstream(chatRequest(t, `{
		"messages":[{"role":"user","content":"Hi"}],
		"tools":[{"type":"function","function":{"name":"f"}}],
		"tool_choice":{"type":"function","function":{"name":"f"}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"type": "tool", "name": "f"}, decode(t, out)["tool_choice"])
}

func TestChatRequestToUpstream_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		errMsg string
	}{
		{name: "no messages", body: `{"messages":[]}`, errMsg: "must not be empty"},
		{name: "only system", body: `{"messages":[{"role":"system","content":"x"}]}`, errMsg: "non-system"},
		{name: "unknown role", body: `{"messages":[{"role":"robot","content":"x"}]}`, errMsg: "unsupported role"},
		{name: "zero max_tokens", body: `{"messages":[{"role":"user","content":"x"}],"max_tokens":0}`, errMsg: "positive"},
		{name: "bad tool arguments", body: `{"messages":[{"role":"assistant","tool_calls":[{"id":"a","type":"function","function":{"name":"f","arguments":"[1]"}}]}]}`, errMsg: "JSON object"},
		{name: "bad tool choice", body: `{"messages":[{"role":"user","content":"x"}],"tools":[{"type":"function","function":{"name":"f"}}],"tool_choice":"sometimes"}`, errMsg: "tool_choice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ChatRequestToUpstream(chatRequest(t, tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrInvalidRequest)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := ChatRequestToUpstream(nil)
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}

func TestChatCompletionFromUpstream_Text(t *testing.T) {
	body := `{
		"id":"msg_1","type":"message","role":"assistant",
		"content":[{"type":"text","text":"Hello"},{"type":"text","text":" there"}],
		"stop_reason":"end_turn",
		"usage":{"input_tokens":12,"output_tokens":3}
	}`

	resp, err := ChatCompletionFromUpstream([]byte(body), "claude-sonnet-4")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
	assert.Equal(t, types.ObjectChatCompletion, resp.Object)
	assert.Equal(t, "claude-sonnet-4", resp.Model)
	assert.NotZero(t, resp.Created)
	require.Len(t, resp.Choices, 1)
	require.NotNil(t, resp.Choices[0].Message.Content)
	assert.Equal(t, "Hello there", *resp.Choices[0].Message.Content)
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	assert.Equal(t, types.FinishReasonStop, resp.Choices[0].FinishReason)
	assert.Equal(t, types.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}, resp.Usage)
}

func TestChatCompletionFromUpstream_ToolUse(t *testing.T) {
	body := `{
		"content":[{"type":"tool_use","id":"toolu_1","name":"get_weather","input":{"city":"Sydney"}}],
		"stop_reason":"tool_use",
		"usage":{"input_tokens":1,"output_tokens":1}
	}`

	resp, err := ChatCompletionFromUpstream([]byte(body), "m")
	require.NoError(t, err)

	choice := resp.Choices[0]
	assert.Nil(t, choice.Message.Content)
	assert.Equal(t, types.FinishReasonToolCalls, choice.FinishReason)
	require.Len(t, choice.Message.ToolCalls, 1)
	assert.Equal(t, "toolu_1", choice.Message.ToolCalls[0].ID)
	assert.Equal(t, "function", choice.Message.ToolCalls[0].Type)
	assert.Equal(t, "get_weather", choice.Message.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"city":"Sydney"}`, choice.Message.ToolCalls[0].Function.Arguments)
}

func TestChatCompletionFromUpstream_MaxTokens(t *testing.T) {
	resp, err := ChatCompletionFromUpstream([]byte(`{"content":[{"type":"text","text":"cut"}],"stop_reason":"max_tokens"}`), "m")
	require.NoError(t, err)
	assert.Equal(t, types.FinishReasonLength, resp.Choices[0].FinishReason)
}

func TestChatCompletionFromUpstream_InvalidJSON(t *testing.T) {
	_, err := ChatCompletionFromUpstream([]byte(`not json`), "m")
	assert.ErrorIs(t, err, types.ErrUpstream)
}

func TestChunkConverter(t *testing.T) {
	conv := NewChunkConverter("claude")

	events := []string{
		`{"type":"message_start","message":{"id":"msg_1"}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"max_tokens"}}`,
		`{"type":"message_stop"}`,
		`not json`,
	}

	var chunks []*types.ChatCompletionChunk
	for _, ev := range events {
		if chunk, ok := conv.Convert([]byte(ev)); ok {
			chunks = append(chunks, chunk)
		}
	}

	require.Len(t, chunks, 4)
	assert.Equal(t, 4, conv.Emitted())

	assert.Equal(t, "assistant", chunks[0].Choices[0].Delta.Role)
	assert.Nil(t, chunks[0].Choices[0].FinishReason)
	assert.Equal(t, "Hel", *chunks[1].Choices[0].Delta.Content)
	assert.Equal(t, "lo", *chunks[2].Choices[0].Delta.Content)
	require.NotNil(t, chunks[3].Choices[0].FinishReason)
	assert.Equal(t, types.FinishReasonLength, *chunks[3].Choices[0].FinishReason)

	for _, c := range chunks {
		assert.Equal(t, chunks[0].ID, c.ID)
		assert.Equal(t, types.ObjectChatCompletionChunk, c.Object)
		assert.Equal(t, "claude", c.Model)
	}
}

func TestChunkConverter_Empty(t *testing.T) {
	conv := NewChunkConverter("claude")
	chunk := conv.Empty()

	data, err := json.Marshal(chunk)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"delta":{"content":""}`)
	assert.Contains(t, string(data), `"finish_reason":null`)
	assert.Equal(t, 1, conv.Emitted())
}
