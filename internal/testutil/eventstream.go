// Package testutil provides shared testing utilities and a fake Bedrock
// runtime for the bedrock-proxy test suite.
package testutil

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
)

// EncodeChunkEvent encodes one chunk event whose payload wraps data as the
// invocation API does: {"bytes":"<base64 data>"}
func EncodeChunkEvent(t testing.TB, data []byte) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]string{"bytes": base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		t.Fatalf("marshal chunk payload: %v", err)
	}

	msg := eventstream.Message{Payload: payload}
	msg.Headers.Set(":message-type", eventstream.StringValue("event"))
	msg.Headers.Set(":event-type", eventstream.StringValue("chunk"))
	msg.Headers.Set(":content-type", eventstream.StringValue("application/json"))
	return encode(t, msg)
}

// EncodeException encodes an exception frame such as a mid-stream throttlingException
func EncodeException(t testing.TB, exceptionType, message string) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		t.Fatalf("marshal exception payload: %v", err)
	}

	msg := eventstream.Message{Payload: payload}
	msg.Headers.Set(":message-type", eventstream.StringValue("exception"))
	msg.Headers.Set(":exception-type", eventstream.StringValue(exceptionType))
	msg.Headers.Set(":content-type", eventstream.StringValue("application/json"))
	return encode(t, msg)
}

// EncodeEvent encodes an event frame of an arbitrary type with a raw payload
func EncodeEvent(t testing.TB, eventType string, payload []byte) []byte {
	t.Helper()

	msg := eventstream.Message{Payload: payload}
	msg.Headers.Set(":message-type", eventstream.StringValue("event"))
	msg.Headers.Set(":event-type", eventstream.StringValue(eventType))
	return encode(t, msg)
}

// ChunkStream concatenates one chunk event per element of chunks
func ChunkStream(t testing.TB, chunks ...string) []byte {
	t.Helper()

	var buf bytes.Buffer
	for _, c := range chunks {
		buf.Write(EncodeChunkEvent(t, []byte(c)))
	}
	return buf.Bytes()
}

func encode(t testing.TB, msg eventstream.Message) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := eventstream.NewEncoder().Encode(&buf, msg); err != nil {
		t.Fatalf("encode event-stream message: %v", err)
	}
	return buf.Bytes()
}
