package http

import (
	"net/http"
	"sync/atomic"
)

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	provider ProviderStatus
	draining atomic.Bool
}

// ProviderStatus reports whether the provider has credentials.
type ProviderStatus interface {
	Configured() bool
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider,omitempty"`
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(provider ProviderStatus) *HealthHandler {
	return &HealthHandler{provider: provider}
}

// SetDraining marks the service as shutting down; readiness then fails.
func (h *HealthHandler) SetDraining() {
	h.draining.Store(true)
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readiness reports whether the service accepts traffic. A missing provider
// key does not fail readiness: the feedback endpoint still serves fallbacks.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	provider := "missing"
	if h.provider != nil && h.provider.Configured() {
		provider = "configured"
	}

	if h.draining.Load() {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "draining", Provider: provider})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Provider: provider})
}
