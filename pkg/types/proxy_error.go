package types

import (
	"fmt"
	"net/http"
)

// ErrorKind categorizes errors raised while proxying an invocation
type ErrorKind string

const (
	KindConfiguration     ErrorKind = "configuration"
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindSigning           ErrorKind = "signing"
	KindUpstream          ErrorKind = "upstream"
	KindStreamInterrupted ErrorKind = "stream_interrupted"
)

// Sentinels for errors.Is checks. A *ProxyError matches a sentinel of the same kind.
var (
	ErrConfiguration     = &ProxyError{Kind: KindConfiguration}
	ErrInvalidRequest    = &ProxyError{Kind: KindInvalidRequest}
	ErrSigning           = &ProxyError{Kind: KindSigning}
	ErrUpstream          = &ProxyError{Kind: KindUpstream}
	ErrStreamInterrupted = &ProxyError{Kind: KindStreamInterrupted}
)

// ProxyError represents a categorized failure in the proxy pipeline
type ProxyError struct {
	Kind       ErrorKind // Categorized error kind
	Message    string    // Human-readable message
	StatusCode int       // Upstream HTTP status code (0 if not applicable)
	Body       []byte    // Upstream response body for KindUpstream
	Err        error     // Wrapped original error
}

// Error implements the error interface
func (e *ProxyError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status=%d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the original error for errors.Is/As
func (e *ProxyError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *ProxyError of the same kind.
func (e *ProxyError) Is(target error) bool {
	t, ok := target.(*ProxyError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// HTTPStatus returns the status code a proxy-originated error is reported with.
// Upstream errors report the upstream's own status.
func (e *ProxyError) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindUpstream:
		if e.StatusCode > 0 {
			return e.StatusCode
		}
		return http.StatusBadGateway
	case KindStreamInterrupted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the upper-case error code used in JSON error envelopes
func (e *ProxyError) Code() string {
	switch e.Kind {
	case KindConfiguration:
		return "CONFIGURATION_ERROR"
	case KindInvalidRequest:
		return "INVALID_REQUEST"
	case KindSigning:
		return "SIGNING_ERROR"
	case KindUpstream:
		return "UPSTREAM_ERROR"
	case KindStreamInterrupted:
		return "STREAM_INTERRUPTED"
	}
	return "INTERNAL_ERROR"
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string) *ProxyError {
	return &ProxyError{Kind: KindConfiguration, Message: message}
}

// NewInvalidRequestError creates a new invalid request error
func NewInvalidRequestError(format string, args ...interface{}) *ProxyError {
	return &ProxyError{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// NewSigningError wraps an internal signing failure
func NewSigningError(err error) *ProxyError {
	return &ProxyError{Kind: KindSigning, Message: "failed to sign request", Err: err}
}

// NewUpstreamError records a non-2xx upstream response
func NewUpstreamError(statusCode int, body []byte) *ProxyError {
	return &ProxyError{
		Kind:       KindUpstream,
		Message:    "upstream returned an error response",
		StatusCode: statusCode,
		Body:       body,
	}
}

// NewStreamInterruptedError wraps the read error that cut an upstream stream short
func NewStreamInterruptedError(err error) *ProxyError {
	return &ProxyError{Kind: KindStreamInterrupted, Message: "upstream stream ended before completion", Err: err}
}
