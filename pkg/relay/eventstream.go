package relay

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"

	"github.com/mattmillen888/bedrock-proxy/pkg/types"
)

// Event-stream header names and values used by the invocation API
const (
	headerMessageType   = ":message-type"
	headerEventType     = ":event-type"
	headerExceptionType = ":exception-type"
	headerErrorCode     = ":error-code"
	headerErrorMessage  = ":error-message"

	messageTypeEvent     = "event"
	messageTypeException = "exception"
	messageTypeError     = "error"

	eventTypeChunk = "chunk"
)

// ChunkSource yields upstream chunks in arrival order. Next returns a bare
// io.EOF once the stream has ended cleanly; any other error, including one
// wrapping io.EOF, means the stream failed.
type ChunkSource interface {
	Next() ([]byte, error)
}

// countingReader tracks how many bytes have been read through it
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// EventStreamSource decodes an application/vnd.amazon.eventstream body into
// chunks. Each chunk is the decoded "bytes" field of one chunk event.
type EventStreamSource struct {
	reader  *countingReader
	decoder *eventstream.Decoder
	buf     []byte
}

// NewEventStreamSource creates a source reading frames from r
func NewEventStreamSource(r io.Reader) *EventStreamSource {
	return &EventStreamSource{
		reader:  &countingReader{r: r},
		decoder: eventstream.NewDecoder(),
		buf:     make([]byte, 0, 64*1024),
	}
}

// chunkPayload is the JSON body of a chunk event
type chunkPayload struct {
	Bytes string `json:"bytes"`
}

// Next returns the next chunk. It returns io.EOF when the stream ends on a
// frame boundary, an upstream error for exception frames, and a stream
// interrupted error when the stream breaks off inside a frame or the
// connection fails.
func (s *EventStreamSource) Next() ([]byte, error) {
	for {
		before := s.reader.n
		msg, err := s.decoder.Decode(s.reader, s.buf)
		if err != nil {
			if errors.Is(err, io.EOF) && s.reader.n == before {
				return nil, io.EOF
			}
			return nil, types.NewStreamInterruptedError(err)
		}

		switch headerString(msg.Headers, headerMessageType) {
		case messageTypeException:
			return nil, exceptionError(headerString(msg.Headers, headerExceptionType), msg.Payload)
		case messageTypeError:
			return nil, exceptionError(headerString(msg.Headers, headerErrorCode), []byte(headerString(msg.Headers, headerErrorMessage)))
		case messageTypeEvent, "":
		default:
			continue
		}

		if eventType := headerString(msg.Headers, headerEventType); eventType != eventTypeChunk {
			continue
		}

		var payload chunkPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return nil, types.NewStreamInterruptedError(fmt.Errorf("malformed chunk payload: %w", err))
		}
		chunk, err := base64.StdEncoding.DecodeString(payload.Bytes)
		if err != nil {
			return nil, types.NewStreamInterruptedError(fmt.Errorf("malformed chunk bytes: %w", err))
		}
		return chunk, nil
	}
}

func headerString(headers eventstream.Headers, name string) string {
	v := headers.Get(name)
	if v == nil {
		return ""
	}
	return v.String()
}

// StreamException is an exception frame sent by the upstream mid-stream
type StreamException struct {
	Type    string
	Message string
}

func exceptionError(excType string, payload []byte) error {
	if excType == "" {
		excType = "unknownException"
	}

	message := string(payload)
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Message != "" {
		message = body.Message
	}

	return &types.ProxyError{
		Kind:    types.KindUpstream,
		Message: fmt.Sprintf("upstream stream %s", excType),
		Body:    append([]byte(nil), payload...),
		Err:     &StreamException{Type: excType, Message: message},
	}
}

func (e *StreamException) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}
