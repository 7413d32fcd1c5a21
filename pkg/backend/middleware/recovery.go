package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/mattmillen888/bedrock-proxy/pkg/backendtypes"
	"github.com/mattmillen888/bedrock-proxy/pkg/logging"
)

// Recovery turns a handler panic into a 500 envelope. If the handler had
// already started its response the connection is left to be closed.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := newResponseWriter(w)
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if err == http.ErrAbortHandler {
				panic(err)
			}

			// Recovery runs outside RequestID, so the ID is only on the response
			logger := logging.FromContext(r.Context())
			if id := wrapped.Header().Get(RequestIDHeader); id != "" {
				logger = logger.With("request_id", id)
			}
			logger.ErrorContext(r.Context(), "panic in handler",
				"panic", err,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)

			if wrapped.wroteHeader {
				return
			}
			writeError(wrapped, r, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		}()

		next.ServeHTTP(wrapped, r)
	})
}

// writeError writes the standard error envelope
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := GetRequestID(r.Context())
	if requestID == "" {
		requestID = w.Header().Get(RequestIDHeader)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(backendtypes.APIResponse{
		Success: false,
		Error: &backendtypes.APIError{
			Code:    code,
			Message: message,
		},
		RequestID: requestID,
		Timestamp: time.Now(),
	})
}
