// Package metrics exposes the proxy's Prometheus metrics.
//
// All metrics live in a private registry owned by the Collector and are
// served by Collector.Handler:
//
//	<ns>_requests_total{route,status}              inbound requests by final status
//	<ns>_upstream_duration_seconds{mode,status}    time to upstream response headers
//	<ns>_stream_chunks_total                       chunks relayed to streaming clients
//	<ns>_stream_interruptions_total                streams cut off before a clean end
//	<ns>_invalid_requests_total{route}             bodies rejected before any upstream call
//
// The namespace defaults to "bedrock_proxy".
package metrics
