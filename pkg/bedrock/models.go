package bedrock

import (
	"sort"
	"strings"
)

// DefaultModelMappings maps the Anthropic model names OpenAI-style clients send
// to the Bedrock model or inference profile ids they are invoked as.
var DefaultModelMappings = map[string]string{
	"claude-3-5-sonnet-20241022": "anthropic.claude-3-5-sonnet-20241022-v2:0",
	"claude-3-5-haiku-20241022":  "anthropic.claude-3-5-haiku-20241022-v1:0",
	"claude-3-haiku-20240307":    "anthropic.claude-3-haiku-20240307-v1:0",
	"claude-sonnet-4-20250514":   DefaultInferenceProfile,
	"claude-sonnet-4":            DefaultInferenceProfile,
}

// ModelMapper resolves client-facing model names to Bedrock ids.
// Unknown names fall back to the configured inference profile.
type ModelMapper struct {
	mappings map[string]string
	fallback string
}

// NewModelMapper creates a mapper seeded with DefaultModelMappings. Entries in
// custom override the defaults; fallback is used for names with no mapping.
func NewModelMapper(custom map[string]string, fallback string) *ModelMapper {
	mappings := make(map[string]string, len(DefaultModelMappings)+len(custom))
	for k, v := range DefaultModelMappings {
		mappings[k] = v
	}
	for k, v := range custom {
		mappings[k] = v
	}
	if fallback == "" {
		fallback = DefaultInferenceProfile
	}

	return &ModelMapper{
		mappings: mappings,
		fallback: fallback,
	}
}

// Resolve returns the Bedrock id to invoke for model. The second result reports
// whether model was recognised rather than replaced by the fallback.
func (m *ModelMapper) Resolve(model string) (string, bool) {
	if model == "" {
		return m.fallback, false
	}

	if id, ok := m.mappings[model]; ok {
		return id, true
	}

	// Already a Bedrock id, inference profile or ARN
	if IsBedrockModelID(model) {
		return model, true
	}

	lower := strings.ToLower(model)
	for k, v := range m.mappings {
		if strings.ToLower(k) == lower {
			return v, true
		}
	}

	return m.fallback, false
}

// Aliases returns the known client-facing names in sorted order
func (m *ModelMapper) Aliases() []string {
	names := make([]string, 0, len(m.mappings))
	for k := range m.mappings {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Fallback returns the id used for unknown model names
func (m *ModelMapper) Fallback() string {
	return m.fallback
}

// IsBedrockModelID checks if a string looks like a Bedrock model id,
// a regional inference profile id or an ARN
func IsBedrockModelID(modelID string) bool {
	if strings.HasPrefix(modelID, "arn:") {
		return true
	}
	_, rest, ok := strings.Cut(modelID, ".")
	if !ok {
		return false
	}
	// "anthropic.x" or a regional profile such as "us.anthropic.x"
	return strings.HasPrefix(modelID, "anthropic.") || strings.HasPrefix(rest, "anthropic.")
}
