package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mattmillen888/bedrock-proxy/pkg/backend/middleware"
	"github.com/mattmillen888/bedrock-proxy/pkg/backendtypes"
	"github.com/mattmillen888/bedrock-proxy/pkg/logging"
	"github.com/mattmillen888/bedrock-proxy/pkg/relay"
	"github.com/mattmillen888/bedrock-proxy/pkg/types"
)

// DefaultMaxBodyBytes bounds inbound bodies when no limit is configured
const DefaultMaxBodyBytes = 10 << 20

// Invoker sends a prepared body to the upstream. *bedrock.Client implements it.
type Invoker interface {
	Invoke(ctx context.Context, target types.InferenceTarget, body []byte) (*http.Response, error)
}

// Metrics is what handlers report to. *metrics.Collector implements it.
type Metrics interface {
	relay.Recorder
	ObserveUpstream(mode string, status int, d time.Duration)
	InvalidRequest(route string)
}

type noopMetrics struct{}

func (noopMetrics) StreamChunk()                               {}
func (noopMetrics) StreamInterrupted()                         {}
func (noopMetrics) ObserveUpstream(string, int, time.Duration) {}
func (noopMetrics) InvalidRequest(string)                      {}

// SendSuccess sends a successful JSON response with data
func SendSuccess(w http.ResponseWriter, r *http.Request, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(backendtypes.APIResponse{
		Success:   true,
		Data:      data,
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now(),
	})
}

// SendError sends an error JSON response with APIError
func SendError(w http.ResponseWriter, r *http.Request, code string, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(backendtypes.APIResponse{
		Success: false,
		Error: &backendtypes.APIError{
			Code:    code,
			Message: message,
		},
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now(),
	})
}

// SendProxyError reports a proxy-originated failure. Internal details of
// signing and configuration errors are logged, not returned.
func SendProxyError(w http.ResponseWriter, r *http.Request, err error) {
	var perr *types.ProxyError
	if !errors.As(err, &perr) {
		SendError(w, r, "INTERNAL_ERROR", "An internal error occurred", http.StatusInternalServerError)
		return
	}

	message := perr.Message
	if perr.Kind == types.KindUpstream && perr.Err != nil {
		message = fmt.Sprintf("%s: %v", perr.Message, perr.Err)
	}
	SendError(w, r, perr.Code(), message, perr.HTTPStatus())
}

// SendJSON writes v as a bare JSON body, for OpenAI-shaped responses
func SendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadBody reads the request body up to limit bytes
func ReadBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, types.NewInvalidRequestError("request body exceeds %d bytes", maxErr.Limit)
		}
		return nil, types.NewInvalidRequestError("failed to read request body: %v", err)
	}
	return body, nil
}

// requireMethod answers 405 unless r uses method
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	SendError(w, r, "METHOD_NOT_ALLOWED", fmt.Sprintf("Only %s is allowed", method), http.StatusMethodNotAllowed)
	return false
}

func logger(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context())
}
