// Package admin provides HTTP handlers for the operator API.
package admin

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/artpar/lexgate/app"
	"github.com/artpar/lexgate/ports"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler provides admin API endpoints.
type Handler struct {
	gateway   *app.Gateway
	telemetry ports.TelemetryStore
	clock     ports.Clock
	token     string
	version   string
	logger    zerolog.Logger
}

// Deps contains dependencies for the admin handler.
type Deps struct {
	Gateway   *app.Gateway
	Telemetry ports.TelemetryStore // Optional; history is unavailable without it
	Clock     ports.Clock
	Token     string
	Version   string
	Logger    zerolog.Logger
}

// NewHandler creates a new admin API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		gateway:   deps.Gateway,
		telemetry: deps.Telemetry,
		clock:     deps.Clock,
		token:     deps.Token,
		version:   deps.Version,
		logger:    deps.Logger,
	}
}

// Router returns the admin API router. Every route requires the bearer token.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(h.AuthMiddleware)

	r.Get("/usage", h.GetUsage)
	r.Get("/usage/history", h.GetUsageHistory)
	r.Get("/policy", h.GetPolicy)
	r.Get("/doctor", h.Doctor)

	return r
}

// AuthMiddleware requires "Authorization: Bearer <token>".
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || h.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
