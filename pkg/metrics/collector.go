package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mattmillen888/bedrock-proxy/pkg/backendtypes"
)

// DefaultNamespace prefixes every metric name
const DefaultNamespace = "bedrock_proxy"

// Upstream latencies for model calls run from well under a second for small
// sync prompts to tens of seconds before the first streamed byte.
var upstreamDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Collector owns the proxy's metrics and the registry they are exposed from.
// It satisfies relay.Recorder.
type Collector struct {
	registry *prometheus.Registry

	requests          *prometheus.CounterVec
	upstreamDuration  *prometheus.HistogramVec
	streamChunks      prometheus.Counter
	streamInterrupted prometheus.Counter
	invalidRequests   *prometheus.CounterVec
}

// NewCollector creates and registers all metrics. A nil registry gets a
// fresh one so that tests and multiple servers do not collide.
func NewCollector(cfg backendtypes.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}

	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "requests_total",
			Help:      "Inbound requests by route and response status.",
		}, []string{"route", "status"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "upstream_duration_seconds",
			Help:      "Time from dispatching an upstream call to receiving its response headers.",
			Buckets:   upstreamDurationBuckets,
		}, []string{"mode", "status"}),
		streamChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "stream_chunks_total",
			Help:      "Upstream chunks relayed to streaming clients.",
		}),
		streamInterrupted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "stream_interruptions_total",
			Help:      "Upstream streams that ended before a clean frame boundary.",
		}),
		invalidRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "invalid_requests_total",
			Help:      "Inbound requests rejected before any upstream call.",
		}, []string{"route"}),
	}

	registry.MustRegister(
		c.requests,
		c.upstreamDuration,
		c.streamChunks,
		c.streamInterrupted,
		c.invalidRequests,
	)
	return c
}

// Registry returns the registry the metrics are registered with
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordRequest counts one finished inbound request
func (c *Collector) RecordRequest(route string, status int) {
	c.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// ObserveUpstream records how long an upstream call took to answer. A status
// of 0 means no response was received.
func (c *Collector) ObserveUpstream(mode string, status int, d time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	c.upstreamDuration.WithLabelValues(mode, label).Observe(d.Seconds())
}

// StreamChunk counts one relayed chunk
func (c *Collector) StreamChunk() {
	c.streamChunks.Inc()
}

// StreamInterrupted counts one interrupted stream
func (c *Collector) StreamInterrupted() {
	c.streamInterrupted.Inc()
}

// InvalidRequest counts one rejected inbound body
func (c *Collector) InvalidRequest(route string) {
	c.invalidRequests.WithLabelValues(route).Inc()
}
