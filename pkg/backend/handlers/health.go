package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/mattmillen888/bedrock-proxy/pkg/backendtypes"
)

type HealthHandler struct {
	version   string
	upstream  backendtypes.UpstreamStatus
	startTime time.Time
}

func NewHealthHandler(version string, upstream backendtypes.UpstreamStatus) *HealthHandler {
	return &HealthHandler{
		version:   version,
		upstream:  upstream,
		startTime: time.Now(),
	}
}

// Status returns simple liveness status
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	SendSuccess(w, r, map[string]string{"status": "ok"})
}

// Health returns the configured upstream target. It does not call Bedrock.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	upstream := h.upstream
	SendSuccess(w, r, backendtypes.HealthResponse{
		Status:  "healthy",
		Version: h.version,
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
		Bedrock: &upstream,
	})
}

// Version returns version information
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	SendSuccess(w, r, backendtypes.VersionResponse{
		Version:   h.version,
		GoVersion: runtime.Version(),
	})
}

// NotFound answers every unrouted path
func NotFound(w http.ResponseWriter, r *http.Request) {
	logger(r).WarnContext(r.Context(), "no route", "method", r.Method, "path", r.URL.Path)
	SendError(w, r, "NOT_FOUND", "No route for "+r.Method+" "+r.URL.Path, http.StatusNotFound)
}
