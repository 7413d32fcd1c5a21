// Package transform converts inbound request bodies into the upstream
// invocation schema and upstream responses into the OpenAI-compatible shapes.
package transform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/mattmillen888/bedrock-proxy/pkg/types"
)

// Inbound field names
const (
	fieldPrompt            = "prompt"
	fieldMaxTokensToSample = "max_tokens_to_sample"
	fieldMessages          = "messages"
	fieldMaxTokens         = "max_tokens"
	fieldAnthropicVersion  = "anthropic_version"
)

// Optional sampling fields carried over from the legacy shape
var legacyPassthroughFields = []string{
	"system",
	"temperature",
	"top_p",
	"top_k",
	"stop_sequences",
}

// Keys the invocation API rejects; the model travels in the URL and the
// endpoint selects streaming.
var strippedFields = []string{"model", "stream"}

// Normalize converts an inbound /invoke or /invoke_stream body into the upstream
// request body. The legacy prompt shape becomes a single user message; the
// messages shape passes through with its order and content untouched. Both get
// anthropic_version injected.
func Normalize(inbound []byte) ([]byte, error) {
	fields, err := decodeObject(inbound)
	if err != nil {
		return nil, err
	}

	_, hasPrompt := fields[fieldPrompt]
	_, hasMessages := fields[fieldMessages]

	var out map[string]json.RawMessage
	switch {
	case hasPrompt && hasMessages:
		return nil, types.NewInvalidRequestError("request must carry either %q or %q, not both", fieldPrompt, fieldMessages)
	case hasPrompt:
		out, err = normalizeLegacy(fields)
	case hasMessages:
		out, err = normalizeMessages(fields)
	default:
		return nil, types.NewInvalidRequestError("request must carry %q or %q", fieldPrompt, fieldMessages)
	}
	if err != nil {
		return nil, err
	}

	out[fieldAnthropicVersion] = mustMarshal(types.AnthropicVersion)
	return encodeJSON(out)
}

func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, types.NewInvalidRequestError("request body is empty")
	}
	if trimmed[0] != '{' {
		return nil, types.NewInvalidRequestError("request body must be a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, types.NewInvalidRequestError("request body is not valid JSON: %v", err)
	}
	return fields, nil
}

func normalizeLegacy(fields map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	var prompt string
	if err := json.Unmarshal(fields[fieldPrompt], &prompt); err != nil {
		return nil, types.NewInvalidRequestError("%q must be a string", fieldPrompt)
	}
	if prompt == "" {
		return nil, types.NewInvalidRequestError("%q must not be empty", fieldPrompt)
	}

	maxTokens, err := positiveInt(fields, fieldMaxTokensToSample)
	if err != nil {
		return nil, err
	}

	message, err := encodeJSON(types.Message{Role: types.RoleUser, Content: mustMarshal(prompt)})
	if err != nil {
		return nil, types.NewInvalidRequestError("%q cannot be encoded: %v", fieldPrompt, err)
	}

	out := map[string]json.RawMessage{
		fieldMessages:  json.RawMessage("[" + string(message) + "]"),
		fieldMaxTokens: mustMarshal(maxTokens),
	}
	for _, name := range legacyPassthroughFields {
		if v, ok := fields[name]; ok && !isNull(v) {
			out[name] = v
		}
	}
	return out, nil
}

func normalizeMessages(fields map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	var messages []json.RawMessage
	if err := json.Unmarshal(fields[fieldMessages], &messages); err != nil || messages == nil {
		return nil, types.NewInvalidRequestError("%q must be an array", fieldMessages)
	}
	if len(messages) == 0 {
		return nil, types.NewInvalidRequestError("%q must not be empty", fieldMessages)
	}
	for i, raw := range messages {
		if err := validateMessage(raw); err != nil {
			return nil, types.NewInvalidRequestError("messages[%d]: %v", i, err)
		}
	}

	// Older clients send max_tokens_to_sample with messages
	limitField := fieldMaxTokens
	if _, ok := fields[fieldMaxTokens]; !ok {
		if _, legacy := fields[fieldMaxTokensToSample]; legacy {
			limitField = fieldMaxTokensToSample
		}
	}
	maxTokens, err := positiveInt(fields, limitField)
	if err != nil {
		return nil, err
	}

	out := make(map[string]json.RawMessage, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	for _, k := range strippedFields {
		delete(out, k)
	}
	if limitField == fieldMaxTokensToSample {
		delete(out, fieldMaxTokensToSample)
		out[fieldMaxTokens] = mustMarshal(maxTokens)
	}
	return out, nil
}

func validateMessage(raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.New("must be an object")
	}

	var msg types.Message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return err
	}
	if msg.Role != types.RoleUser && msg.Role != types.RoleAssistant {
		return fmt.Errorf("role must be %q or %q, got %q", types.RoleUser, types.RoleAssistant, msg.Role)
	}

	content := bytes.TrimSpace(msg.Content)
	if len(content) == 0 || isNull(content) {
		return errors.New("content is required")
	}
	if content[0] != '"' && content[0] != '[' {
		return errors.New("content must be a string or an array of content blocks")
	}
	return nil
}

// positiveInt reads fields[name] as a JSON integer greater than zero
func positiveInt(fields map[string]json.RawMessage, name string) (int64, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return 0, types.NewInvalidRequestError("%q is required", name)
	}

	var num json.Number
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '"' {
		return 0, types.NewInvalidRequestError("%q must be a number", name)
	}
	if err := json.Unmarshal(raw, &num); err != nil {
		return 0, types.NewInvalidRequestError("%q must be a number", name)
	}

	n, err := strconv.ParseInt(num.String(), 10, 64)
	if err != nil {
		// Accept integral floats such as 100.0
		f, ferr := num.Float64()
		if ferr != nil || f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
			return 0, types.NewInvalidRequestError("%q must be an integer", name)
		}
		n = int64(f)
	}
	if n <= 0 {
		return 0, types.NewInvalidRequestError("%q must be positive, got %d", name, n)
	}
	return n, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// encodeJSON marshals v without HTML escaping
func encodeJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := encodeJSON(v)
	if err != nil {
		panic(err)
	}
	return b
}
