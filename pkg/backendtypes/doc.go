// Package backendtypes defines the proxy's configuration structures and the
// JSON envelopes it answers with.
//
// The types live apart from the server so that the config loader, handlers
// and CLI can share them without import cycles.
//
// # Configuration Types
//
// ProxyConfig is the root of the YAML file:
//
//   - ServerConfig: listen address, timeouts, body size limit
//   - AuthConfig: optional API key check for inbound calls
//   - LoggingConfig: slog level and format
//   - CORSConfig: cross-origin settings
//   - MetricsConfig: Prometheus endpoint
//   - UpstreamConfig: HTTP transport tuning for Bedrock calls
//   - bedrock.Config: region, credentials and inference profile
//
// # Response Types
//
// APIResponse wraps every proxy-originated JSON body. Upstream responses are
// relayed as they are and never wrapped.
//
//	{"success":false,"error":{"code":"INVALID_REQUEST","message":"..."},"request_id":"...","timestamp":"..."}
package backendtypes
