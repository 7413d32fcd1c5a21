package backend

import (
	"net"
	"net/http"
	"time"

	"github.com/mattmillen888/bedrock-proxy/pkg/backendtypes"
)

// NewUpstreamTransport builds the connection pool used for Bedrock calls
func NewUpstreamTransport(cfg backendtypes.UpstreamConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
	}
}

// NewUpstreamClient returns an HTTP client for Bedrock calls. It has no
// overall timeout: a stream lasts as long as the model keeps generating, and
// cancellation comes from the inbound request context.
func NewUpstreamClient(cfg backendtypes.UpstreamConfig) *http.Client {
	return &http.Client{Transport: NewUpstreamTransport(cfg)}
}
