package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattmillen888/bedrock-proxy/pkg/backendtypes"
	"github.com/mattmillen888/bedrock-proxy/pkg/logging"
)

// Helper function to create a simple test handler
func testHandler(statusCode int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statusCode)
		_, _ = w.Write([]byte(body))
	})
}

func panicHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})
}

func decodeEnvelope(t *testing.T, body []byte) backendtypes.APIResponse {
	t.Helper()
	var resp backendtypes.APIResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestRequestID_GeneratesNewID(t *testing.T) {
	handler := RequestID(logging.Discard())(testHandler(http.StatusOK, "OK"))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	requestID := w.Header().Get(RequestIDHeader)
	assert.Len(t, requestID, 36, "expected a UUID")
}

func TestRequestID_UsesExistingHeader(t *testing.T) {
	handler := RequestID(logging.Discard())(testHandler(http.StatusOK, "OK"))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "existing-request-id-12345")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "existing-request-id-12345", w.Header().Get(RequestIDHeader))
}

func TestRequestID_ReplacesOversizedHeader(t *testing.T) {
	handler := RequestID(logging.Discard())(testHandler(http.StatusOK, "OK"))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}

func TestRequestID_StoresInContext(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	var capturedID string

	handler := RequestID(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = GetRequestID(r.Context())
		logging.FromContext(r.Context()).Info("inside handler")
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "test-request-id")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "test-request-id", capturedID)
	assert.Contains(t, buf.String(), "request_id=test-request-id")
}

func TestLogging_RecordsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := Logging(logger)(RequestID(logging.Discard())(testHandler(http.StatusTeapot, "short and stout")))

	req := httptest.NewRequest(http.MethodPost, "/invoke", nil)
	req.Header.Set(RequestIDHeader, "log-req")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request", entry["msg"])
	assert.Equal(t, "log-req", entry["request_id"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/invoke", entry["path"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
	assert.Equal(t, float64(len("short and stout")), entry["bytes"])
}

func TestLogging_PreservesFlusher(t *testing.T) {
	var flushed bool
	handler := Logging(logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok, "wrapped writer must implement http.Flusher")
		_, _ = w.Write([]byte("data: a\n\n"))
		f.Flush()
		flushed = true
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/invoke_stream", nil))

	assert.True(t, flushed)
	assert.True(t, w.Flushed)
}

func TestRecovery_HandlesPanic(t *testing.T) {
	handler := Recovery(RequestID(logging.Discard())(panicHandler()))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "panic-req")
	w := httptest.NewRecorder()

	assert.NotPanics(t, func() { handler.ServeHTTP(w, req) })
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	resp := decodeEnvelope(t, w.Body.Bytes())
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	assert.Equal(t, "panic-req", resp.RequestID)
}

func TestRecovery_LogsRequestID(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	handler := Recovery(RequestID(logging.Discard())(panicHandler()))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "panic-req")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "panic in handler", entry["msg"])
	assert.Equal(t, "panic-req", entry["request_id"])
}

func TestRecovery_AfterResponseStarted(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		panic("late panic")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "partial", w.Body.String())
}

func TestRecovery_RepanicsAbort(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
	})
}

func TestCORS(t *testing.T) {
	config := CORSConfig{
		AllowedOrigins: []string{"https://example.com"},
		AllowedMethods: []string{"GET", "POST"},
	}

	tests := []struct {
		name        string
		method      string
		origin      string
		wantOrigin  string
		wantStatus  int
		wantMethods string
	}{
		{"allowed origin", http.MethodPost, "https://example.com", "https://example.com", http.StatusOK, ""},
		{"disallowed origin", http.MethodPost, "https://evil.example", "", http.StatusOK, ""},
		{"preflight", http.MethodOptions, "https://example.com", "https://example.com", http.StatusNoContent, "GET, POST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := CORS(config)(testHandler(http.StatusOK, "OK"))

			req := httptest.NewRequest(tt.method, "/invoke", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantMethods, w.Header().Get("Access-Control-Allow-Methods"))
		})
	}
}

func TestCORS_DefaultHeaders(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"*"}})(testHandler(http.StatusOK, "OK"))

	req := httptest.NewRequest(http.MethodOptions, "/invoke", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestAuth(t *testing.T) {
	t.Setenv("BEDROCK_PROXY_TEST_KEY", "env-key")

	tests := []struct {
		name       string
		config     AuthConfig
		path       string
		header     string
		value      string
		wantStatus int
	}{
		{"disabled", AuthConfig{Enabled: false, APIPassword: "secret"}, "/invoke", "", "", http.StatusOK},
		{"bearer token", AuthConfig{Enabled: true, APIPassword: "secret"}, "/invoke", "Authorization", "Bearer secret", http.StatusOK},
		{"x-api-key", AuthConfig{Enabled: true, APIPassword: "secret"}, "/invoke", "X-Api-Key", "secret", http.StatusOK},
		{"wrong key", AuthConfig{Enabled: true, APIPassword: "secret"}, "/invoke", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"missing key", AuthConfig{Enabled: true, APIPassword: "secret"}, "/invoke", "", "", http.StatusUnauthorized},
		{"key from env", AuthConfig{Enabled: true, APIKeyEnv: "BEDROCK_PROXY_TEST_KEY"}, "/invoke", "Authorization", "Bearer env-key", http.StatusOK},
		{"public path", AuthConfig{Enabled: true, APIPassword: "secret", PublicPaths: []string{"/health"}}, "/health", "", "", http.StatusOK},
		{"public path prefix is not a wildcard", AuthConfig{Enabled: true, APIPassword: "secret", PublicPaths: []string{"/health"}}, "/healthz", "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Auth(tt.config)(testHandler(http.StatusOK, "OK"))

			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				resp := decodeEnvelope(t, w.Body.Bytes())
				require.NotNil(t, resp.Error)
				assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
			}
		})
	}
}

type requestCounter struct {
	calls map[string][]int
}

func (c *requestCounter) RecordRequest(route string, status int) {
	if c.calls == nil {
		c.calls = make(map[string][]int)
	}
	c.calls[route] = append(c.calls[route], status)
}

func TestMetrics_RecordsRouteAndStatus(t *testing.T) {
	counter := &requestCounter{}
	handler := Metrics("/invoke", counter)(testHandler(http.StatusTooManyRequests, "slow down"))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/invoke", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/invoke", nil))

	assert.Equal(t, []int{429, 429}, counter.calls["/invoke"])
}

func TestMetrics_NilRecorder(t *testing.T) {
	handler := Metrics("/invoke", nil)(testHandler(http.StatusOK, "OK"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/invoke", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
