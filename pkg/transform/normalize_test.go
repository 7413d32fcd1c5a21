package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattmillen888/bedrock-proxy/pkg/types"
)

func decode(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestNormalize_LegacyPrompt(t *testing.T) {
	out, err := Normalize([]byte(`{"prompt":"Hi","max_tokens_to_sample":10}`))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"anthropic_version": "bedrock-2023-05-31",
		"messages": [{"role": "user", "content": "Hi"}],
		"max_tokens": 10
	}`, string(out))
}

func TestNormalize_LegacyPromptCarriesSamplingFields(t *testing.T) {
	out, err := Normalize([]byte(`{"prompt":"Hi","max_tokens_to_sample":10,"temperature":0.2,"top_k":5,"stop_sequences":["x"],"unknown":true,"system":null}`))
	require.NoError(t, err)

	body := decode(t, out)
	assert.Equal(t, 0.2, body["temperature"])
	assert.Equal(t, float64(5), body["top_k"])
	assert.Equal(t, []interface{}{"x"}, body["stop_sequences"])
	assert.NotContains(t, body, "unknown")
	assert.NotContains(t, body, "system")
	assert.NotContains(t, body, "prompt")
	assert.NotContains(t, body, "max_tokens_to_sample")
}

func TestNormalize_LegacyPromptPreservesText(t *testing.T) {
	prompt := "Line one\n<b>\"quoted\"</b> & ünïcode 🚀"
	in, err := json.Marshal(map[string]interface{}{"prompt": prompt, "max_tokens_to_sample": 1})
	require.NoError(t, err)

	out, err := Normalize(in)
	require.NoError(t, err)

	var body struct {
		Messages []types.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(out, &body))
	require.Len(t, body.Messages, 1)
	assert.Equal(t, types.RoleUser, body.Messages[0].Role)

	var content string
	require.NoError(t, json.Unmarshal(body.Messages[0].Content, &content))
	assert.Equal(t, prompt, content)
	assert.Contains(t, string(out), "<b>")
}

func TestNormalize_Messages(t *testing.T) {
	in := `{"messages":[{"role":"user","content":"Hi"}],"max_tokens":10}`

	out, err := Normalize([]byte(in))
	require.NoError(t, err)

	expected := decode(t, []byte(in))
	expected["anthropic_version"] = types.AnthropicVersion
	assert.Equal(t, expected, decode(t, out))
}

func TestNormalize_MessagesPreservesOrderAndBlocks(t *testing.T) {
	in := `{
		"messages": [
			{"role":"user","content":"one"},
			{"role":"assistant","content":"two"},
			{"role":"user","content":[{"type":"text","text":"three"}]}
		],
		"max_tokens": 64,
		"system": "be brief",
		"temperature": 0.5
	}`

	out, err := Normalize([]byte(in))
	require.NoError(t, err)

	body := decode(t, out)
	original := decode(t, []byte(in))
	assert.Equal(t, original["messages"], body["messages"])
	assert.Equal(t, "be brief", body["system"])
	assert.Equal(t, 0.5, body["temperature"])
	assert.Equal(t, types.AnthropicVersion, body["anthropic_version"])
}

func TestNormalize_MessagesOverridesVersionAndStripsRoutingKeys(t *testing.T) {
	out, err := Normalize([]byte(`{"messages":[{"role":"user","content":"Hi"}],"max_tokens":5,"anthropic_version":"other","model":"x","stream":true}`))
	require.NoError(t, err)

	body := decode(t, out)
	assert.Equal(t, types.AnthropicVersion, body["anthropic_version"])
	assert.NotContains(t, body, "model")
	assert.NotContains(t, body, "stream")
}

func TestNormalize_MessagesWithLegacyTokenLimit(t *testing.T) {
	out, err := Normalize([]byte(`{"messages":[{"role":"user","content":"Hi"}],"max_tokens_to_sample":7}`))
	require.NoError(t, err)

	body := decode(t, out)
	assert.Equal(t, float64(7), body["max_tokens"])
	assert.NotContains(t, body, "max_tokens_to_sample")
}

func TestNormalize_IntegralFloatAccepted(t *testing.T) {
	out, err := Normalize([]byte(`{"prompt":"Hi","max_tokens_to_sample":100.0}`))
	require.NoError(t, err)
	assert.Equal(t, float64(100), decode(t, out)["max_tokens"])
}

func TestNormalize_InvalidRequests(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		errMsg string
	}{
		{name: "empty body", body: ``, errMsg: "empty"},
		{name: "whitespace body", body: "  \n ", errMsg: "empty"},
		{name: "not an object", body: `["prompt"]`, errMsg: "JSON object"},
		{name: "malformed json", body: `{"prompt":`, errMsg: "not valid JSON"},
		{name: "neither shape", body: `{"max_tokens":10}`, errMsg: "must carry"},
		{name: "both shapes", body: `{"prompt":"a","messages":[{"role":"user","content":"a"}],"max_tokens":1}`, errMsg: "not both"},
		{name: "prompt not a string", body: `{"prompt":5,"max_tokens_to_sample":10}`, errMsg: "must be a string"},
		{name: "empty prompt", body: `{"prompt":"","max_tokens_to_sample":10}`, errMsg: "must not be empty"},
		{name: "missing legacy limit", body: `{"prompt":"Hi"}`, errMsg: "is required"},
		{name: "zero legacy limit", body: `{"prompt":"Hi","max_tokens_to_sample":0}`, errMsg: "positive"},
		{name: "negative legacy limit", body: `{"prompt":"Hi","max_tokens_to_sample":-3}`, errMsg: "positive"},
		{name: "string limit", body: `{"prompt":"Hi","max_tokens_to_sample":"10"}`, errMsg: "must be a number"},
		{name: "fractional limit", body: `{"prompt":"Hi","max_tokens_to_sample":1.5}`, errMsg: "integer"},
		{name: "null limit", body: `{"prompt":"Hi","max_tokens_to_sample":null}`, errMsg: "is required"},
		{name: "empty messages", body: `{"messages":[],"max_tokens":10}`, errMsg: "must not be empty"},
		{name: "messages not an array", body: `{"messages":{"role":"user"},"max_tokens":10}`, errMsg: "must be an array"},
		{name: "null messages", body: `{"messages":null,"max_tokens":10}`, errMsg: "must be an array"},
		{name: "missing max_tokens", body: `{"messages":[{"role":"user","content":"Hi"}]}`, errMsg: "is required"},
		{name: "zero max_tokens", body: `{"messages":[{"role":"user","content":"Hi"}],"max_tokens":0}`, errMsg: "positive"},
		{name: "bad role", body: `{"messages":[{"role":"system","content":"Hi"}],"max_tokens":10}`, errMsg: "messages[0]: role"},
		{name: "missing content", body: `{"messages":[{"role":"user"}],"max_tokens":10}`, errMsg: "content is required"},
		{name: "numeric content", body: `{"messages":[{"role":"user","content":1}],"max_tokens":10}`, errMsg: "string or an array"},
		{name: "message not an object", body: `{"messages":["Hi"],"max_tokens":10}`, errMsg: "must be an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Normalize([]byte(tt.body))
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, types.ErrInvalidRequest)
			assert.Contains(t, err.Error(), tt.errMsg)

			var perr *types.ProxyError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, 400, perr.HTTPStatus())
		})
	}
}
