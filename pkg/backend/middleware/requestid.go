package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/mattmillen888/bedrock-proxy/pkg/logging"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds client-supplied IDs before they reach logs
const maxRequestIDLen = 128

// RequestID assigns every request an ID, echoes it in the response and stores
// it in the context together with a logger carrying request_id. A client
// supplied X-Request-ID is reused.
func RequestID(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			ctx := logging.WithRequestID(r.Context(), id)
			ctx = logging.WithLogger(ctx, base.With("request_id", id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID returns the request ID stored by RequestID
func GetRequestID(ctx context.Context) string {
	return logging.GetRequestID(ctx)
}
