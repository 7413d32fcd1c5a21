package middleware

import "net/http"

// RequestRecorder counts finished requests. *metrics.Collector implements it.
type RequestRecorder interface {
	RecordRequest(route string, status int)
}

// Metrics records the final status of every request under a fixed route
// label. It wraps individual routes so label values stay bounded.
func Metrics(route string, recorder RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if recorder == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)
			recorder.RecordRequest(route, wrapped.statusCode)
		})
	}
}
