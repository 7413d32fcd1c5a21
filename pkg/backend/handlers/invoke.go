package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mattmillen888/bedrock-proxy/pkg/relay"
	"github.com/mattmillen888/bedrock-proxy/pkg/transform"
	"github.com/mattmillen888/bedrock-proxy/pkg/types"
)

// Routes served by InvokeHandler
const (
	RouteInvoke       = "/invoke"
	RouteInvokeStream = "/invoke_stream"
)

// InvokeHandler serves the native invocation endpoints. Both accept the
// legacy prompt shape and the messages shape and route every call to the
// configured inference profile.
type InvokeHandler struct {
	client       Invoker
	profile      string
	metrics      Metrics
	maxBodyBytes int64
}

// NewInvokeHandler creates an invoke handler. A nil metrics discards
// measurements.
func NewInvokeHandler(client Invoker, profile string, metrics Metrics, maxBodyBytes int64) *InvokeHandler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &InvokeHandler{
		client:       client,
		profile:      profile,
		metrics:      metrics,
		maxBodyBytes: maxBodyBytes,
	}
}

// Invoke handles POST /invoke. The upstream response is relayed verbatim,
// whatever its status.
func (h *InvokeHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	body, ok := h.prepare(w, r, RouteInvoke)
	if !ok {
		return
	}

	resp, ok := h.call(w, r, types.ModeSync, body)
	if !ok {
		return
	}
	defer resp.Body.Close()

	n, err := relay.Forward(w, resp)
	if err != nil {
		logger(r).WarnContext(r.Context(), "failed to relay upstream response", "error", err, "bytes", n)
		return
	}
	logger(r).DebugContext(r.Context(), "relayed upstream response", "status", resp.StatusCode, "bytes", n)
}

// InvokeStream handles POST /invoke_stream. Each upstream chunk becomes one
// SSE data event, flushed as it arrives. An upstream error status is relayed
// verbatim before any event is written.
func (h *InvokeHandler) InvokeStream(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	body, ok := h.prepare(w, r, RouteInvokeStream)
	if !ok {
		return
	}

	resp, ok := h.call(w, r, types.ModeStream, body)
	if !ok {
		return
	}
	defer resp.Body.Close()

	if !relay.IsSuccess(resp.StatusCode) {
		if _, err := relay.Forward(w, resp); err != nil {
			logger(r).WarnContext(r.Context(), "failed to relay upstream error", "error", err)
		}
		return
	}

	sse, err := relay.NewSSEWriter(w)
	if err != nil {
		SendError(w, r, "STREAMING_NOT_SUPPORTED", "Streaming not supported by server", http.StatusInternalServerError)
		return
	}

	n, err := relay.Stream(r.Context(), relay.NewEventStreamSource(resp.Body), sse, relay.Options{
		Logger:   logger(r),
		Recorder: h.metrics,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger(r).InfoContext(r.Context(), "stream ended with error", "error", err, "chunks", n)
		return
	}
	logger(r).DebugContext(r.Context(), "stream finished", "chunks", n)
}

// prepare reads and normalizes the inbound body. On failure the error has
// been sent and ok is false.
func (h *InvokeHandler) prepare(w http.ResponseWriter, r *http.Request, route string) ([]byte, bool) {
	inbound, err := ReadBody(w, r, h.maxBodyBytes)
	if err != nil {
		h.metrics.InvalidRequest(route)
		SendProxyError(w, r, err)
		return nil, false
	}

	upstream, err := transform.Normalize(inbound)
	if err != nil {
		h.metrics.InvalidRequest(route)
		logger(r).InfoContext(r.Context(), "rejected invalid request", "error", err)
		SendProxyError(w, r, err)
		return nil, false
	}

	logger(r).DebugContext(r.Context(), "normalized request", "payload", string(upstream))
	return upstream, true
}

// call sends body upstream and records its latency. On failure the error has
// been sent and ok is false.
func (h *InvokeHandler) call(w http.ResponseWriter, r *http.Request, mode types.Mode, body []byte) (*http.Response, bool) {
	return invokeUpstream(w, r, h.client, h.metrics, types.InferenceTarget{ModelID: h.profile, Mode: mode}, body)
}

func invokeUpstream(w http.ResponseWriter, r *http.Request, client Invoker, metrics Metrics, target types.InferenceTarget, body []byte) (*http.Response, bool) {
	start := time.Now()
	resp, err := client.Invoke(r.Context(), target, body)
	if err != nil {
		metrics.ObserveUpstream(string(target.Mode), 0, time.Since(start))
		if errors.Is(err, context.Canceled) {
			logger(r).DebugContext(r.Context(), "client went away before upstream answered")
			return nil, false
		}
		logger(r).WarnContext(r.Context(), "upstream call failed", "error", err, "model", target.ModelID)
		SendProxyError(w, r, err)
		return nil, false
	}
	metrics.ObserveUpstream(string(target.Mode), resp.StatusCode, time.Since(start))

	if !relay.IsSuccess(resp.StatusCode) {
		logger(r).InfoContext(r.Context(), "upstream returned error status",
			"status", resp.StatusCode,
			"model", target.ModelID,
			"upstream_request_id", resp.Header.Get("X-Amzn-Requestid"),
		)
	}
	return resp, true
}
