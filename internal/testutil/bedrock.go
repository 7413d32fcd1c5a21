package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// RecordedRequest is an upstream call captured by FakeBedrock
type RecordedRequest struct {
	Method  string
	Path    string
	RawPath string
	Header  http.Header
	Body    []byte
}

// FakeBedrock is an httptest server standing in for the Bedrock runtime API.
// Tests configure the response for each endpoint and inspect the calls made.
type FakeBedrock struct {
	mu sync.Mutex

	server *httptest.Server

	// Sync endpoint response
	status      int
	contentType string
	body        []byte

	// Streaming endpoint response
	streamStatus int
	streamBody   []byte
	// Streams are cut off after this many bytes when >= 0
	truncateAt int
	// Delay between stream writes
	frameDelay time.Duration
	frames     [][]byte
	// Keep the stream open after the last frame until the caller goes away
	holdOpen     bool
	streamClosed chan struct{}
	closeOnce    sync.Once

	requests []RecordedRequest
}

// NewFakeBedrock starts a fake upstream answering 200 {} on both endpoints
func NewFakeBedrock(t testing.TB) *FakeBedrock {
	t.Helper()

	f := &FakeBedrock{
		status:       http.StatusOK,
		contentType:  "application/json",
		body:         []byte(`{}`),
		streamStatus: http.StatusOK,
		truncateAt:   -1,
		streamClosed: make(chan struct{}),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the base URL of the fake upstream
func (f *FakeBedrock) URL() string {
	return f.server.URL
}

// Client returns an HTTP client configured for the fake upstream
func (f *FakeBedrock) Client() *http.Client {
	return f.server.Client()
}

// RespondWith sets the status, content type and body returned by /invoke
func (f *FakeBedrock) RespondWith(status int, contentType string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.contentType = contentType
	f.body = body
}

// StreamWith sets the frames written by /invoke-with-response-stream, one
// write and flush per frame
func (f *FakeBedrock) StreamWith(status int, frames ...[]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamStatus = status
	f.frames = frames
}

// StreamError makes the streaming endpoint answer with a plain error response
func (f *FakeBedrock) StreamError(status int, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamStatus = status
	f.streamBody = body
}

// TruncateStreamAt cuts the stream after n bytes and drops the connection
func (f *FakeBedrock) TruncateStreamAt(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.truncateAt = n
}

// SetFrameDelay pauses between stream frames
func (f *FakeBedrock) SetFrameDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frameDelay = d
}

// HoldStreamOpen keeps the streaming response open after its frames until
// the proxy abandons the call. The returned channel is closed once the
// upstream request's context has ended.
func (f *FakeBedrock) HoldStreamOpen() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdOpen = true
	return f.streamClosed
}

// Requests returns the calls received so far
func (f *FakeBedrock) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RecordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// RequestCount returns how many calls were received
func (f *FakeBedrock) RequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *FakeBedrock) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		RawPath: r.URL.EscapedPath(),
		Header:  r.Header.Clone(),
		Body:    body,
	})
	status, contentType, syncBody := f.status, f.contentType, f.body
	streamStatus, streamBody, frames := f.streamStatus, f.streamBody, f.frames
	truncateAt, delay, holdOpen := f.truncateAt, f.frameDelay, f.holdOpen
	f.mu.Unlock()

	if !isStreamPath(r.URL.Path) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Amzn-Requestid", "fake-request-id")
		w.WriteHeader(status)
		_, _ = w.Write(syncBody)
		return
	}

	if streamStatus < 200 || streamStatus >= 300 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(streamStatus)
		_, _ = w.Write(streamBody)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.amazon.eventstream")
	w.WriteHeader(streamStatus)
	flusher, _ := w.(http.Flusher)

	written := 0
	for _, frame := range frames {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if truncateAt >= 0 && written+len(frame) > truncateAt {
			_, _ = w.Write(frame[:truncateAt-written])
			if flusher != nil {
				flusher.Flush()
			}
			abort(w)
			return
		}
		_, _ = w.Write(frame)
		written += len(frame)
		if flusher != nil {
			flusher.Flush()
		}
	}

	if holdOpen {
		<-r.Context().Done()
		f.closeOnce.Do(func() { close(f.streamClosed) })
	}
}

// abort drops the connection without a proper chunked terminator
func abort(w http.ResponseWriter) {
	if hj, ok := w.(http.Hijacker); ok {
		if conn, _, err := hj.Hijack(); err == nil {
			_ = conn.Close()
			return
		}
	}
	panic(http.ErrAbortHandler)
}

func isStreamPath(path string) bool {
	return strings.HasSuffix(path, "/invoke-with-response-stream")
}
