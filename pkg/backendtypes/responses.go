package backendtypes

import "time"

// APIResponse is the standard response wrapper
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// HealthResponse for health endpoints
type HealthResponse struct {
	Status  string          `json:"status"`
	Version string          `json:"version"`
	Uptime  string          `json:"uptime"`
	Bedrock *UpstreamStatus `json:"bedrock,omitempty"`
}

// UpstreamStatus describes the configured Bedrock target. Credentials are
// reported only as present or absent.
type UpstreamStatus struct {
	Region           string `json:"region"`
	Endpoint         string `json:"endpoint"`
	InferenceProfile string `json:"inference_profile"`
	Credentials      bool   `json:"credentials"`
	SessionToken     bool   `json:"session_token"`
	Aliases          int    `json:"aliases"`
}

// VersionResponse for the version endpoint
type VersionResponse struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
}
