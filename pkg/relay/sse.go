package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ContentTypeSSE is the content type of every streamed response
const ContentTypeSSE = "text/event-stream"

var doneMarker = []byte("[DONE]")

// SSEWriter handles Server-Sent Events (SSE) writing for streaming responses
type SSEWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewSSEWriter creates a new SSEWriter and sets up SSE headers.
// Returns an error if the http.ResponseWriter does not support flushing.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported: ResponseWriter does not implement http.Flusher")
	}

	w.Header().Set("Content-Type", ContentTypeSSE)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &SSEWriter{
		w:       w,
		flusher: flusher,
	}, nil
}

// WriteEvent writes data as one unnamed event and flushes it
func (s *SSEWriter) WriteEvent(data []byte) error {
	return s.WriteNamedEvent("", data)
}

// WriteNamedEvent writes data as one event of the given type. Data containing
// newlines is split across several data: lines, which a client joins back
// with "\n".
func (s *SSEWriter) WriteNamedEvent(event string, data []byte) error {
	var buf bytes.Buffer
	if event != "" {
		buf.WriteString("event: ")
		buf.WriteString(event)
		buf.WriteByte('\n')
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteJSON marshals v and writes it as one event
func (s *SSEWriter) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.WriteEvent(data)
}

// WriteDone sends the OpenAI-style completion marker
func (s *SSEWriter) WriteDone() error {
	return s.WriteEvent(doneMarker)
}

// WriteError sends an error event
func (s *SSEWriter) WriteError(code, message string) error {
	errorData := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	data, err := json.Marshal(errorData)
	if err != nil {
		return err
	}
	return s.WriteNamedEvent("error", data)
}
