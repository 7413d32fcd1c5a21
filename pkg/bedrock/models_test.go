package bedrock

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelMapper_Resolve(t *testing.T) {
	mapper := NewModelMapper(map[string]string{"fast": "anthropic.claude-3-haiku-20240307-v1:0"}, "us.anthropic.claude-sonnet-4-20250514-v1:0")

	tests := []struct {
		name      string
		model     string
		expected  string
		wantFound bool
	}{
		{name: "default mapping", model: "claude-3-5-haiku-20241022", expected: "anthropic.claude-3-5-haiku-20241022-v1:0", wantFound: true},
		{name: "custom mapping", model: "fast", expected: "anthropic.claude-3-haiku-20240307-v1:0", wantFound: true},
		{name: "case insensitive", model: "FAST", expected: "anthropic.claude-3-haiku-20240307-v1:0", wantFound: true},
		{name: "bedrock id passes through", model: "anthropic.claude-v2:1", expected: "anthropic.claude-v2:1", wantFound: true},
		{name: "regional profile passes through", model: "eu.anthropic.claude-3-7-sonnet-20250219-v1:0", expected: "eu.anthropic.claude-3-7-sonnet-20250219-v1:0", wantFound: true},
		{name: "arn passes through", model: "arn:aws:bedrock:us-east-1:1:inference-profile/x", expected: "arn:aws:bedrock:us-east-1:1:inference-profile/x", wantFound: true},
		{name: "unknown falls back", model: "gpt-4", expected: "us.anthropic.claude-sonnet-4-20250514-v1:0"},
		{name: "empty falls back", model: "", expected: "us.anthropic.claude-sonnet-4-20250514-v1:0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, found := mapper.Resolve(tt.model)
			assert.Equal(t, tt.expected, id)
			assert.Equal(t, tt.wantFound, found)
		})
	}
}

func TestModelMapper_CustomOverridesDefault(t *testing.T) {
	mapper := NewModelMapper(map[string]string{"claude-sonnet-4": "custom-id"}, "")

	id, found := mapper.Resolve("claude-sonnet-4")
	assert.True(t, found)
	assert.Equal(t, "custom-id", id)
	assert.Equal(t, DefaultInferenceProfile, mapper.Fallback())

	// Defaults are not modified
	assert.Equal(t, DefaultInferenceProfile, DefaultModelMappings["claude-sonnet-4"])
}

func TestModelMapper_Aliases(t *testing.T) {
	mapper := NewModelMapper(map[string]string{"aaa": "anthropic.x"}, "")

	aliases := mapper.Aliases()
	assert.True(t, sort.StringsAreSorted(aliases))
	assert.Contains(t, aliases, "aaa")
	assert.Len(t, aliases, len(DefaultModelMappings)+1)
}

func TestIsBedrockModelID(t *testing.T) {
	assert.True(t, IsBedrockModelID("anthropic.claude-v2"))
	assert.True(t, IsBedrockModelID("apac.anthropic.claude-sonnet-4-20250514-v1:0"))
	assert.True(t, IsBedrockModelID("arn:aws:bedrock:us-east-1:1:foundation-model/x"))
	assert.False(t, IsBedrockModelID("claude-3-opus"))
	assert.False(t, IsBedrockModelID("gpt-4o"))
}
