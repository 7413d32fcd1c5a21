// Package middleware provides the HTTP middleware chain of the proxy server.
// It includes request ID tracking with request-scoped loggers, structured
// access logging, panic recovery, CORS, optional API key authentication and
// per-route request metrics.
package middleware
