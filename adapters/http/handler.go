// Package http provides the HTTP surface of the gateway.
package http

import (
	"encoding/json"
	"io"
	"net"
	"net/http"

	"github.com/artpar/lexgate/app"
	"github.com/artpar/lexgate/domain/gateway"
	"github.com/artpar/lexgate/domain/validation"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// ErrorBody is the JSON error envelope returned by both endpoints.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	ResetIn int64  `json:"resetIn,omitempty"` // Milliseconds, admission errors only
	Used    int    `json:"used,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// GatewayHandler serves the chat, feedback and quota endpoints.
type GatewayHandler struct {
	gateway *app.Gateway
	logger  zerolog.Logger
}

// NewGatewayHandler creates a new gateway HTTP handler.
func NewGatewayHandler(gw *app.Gateway, logger zerolog.Logger) *GatewayHandler {
	return &GatewayHandler{gateway: gw, logger: logger}
}

// Chat handles the streaming chat endpoint.
func (h *GatewayHandler) Chat(w http.ResponseWriter, r *http.Request) {
	in, ok := h.inbound(w, r)
	if !ok {
		return
	}

	sink := newSSESink(w)
	res := h.gateway.Chat(r.Context(), in, sink)
	if res.Error != nil {
		setHeaders(w, res.Headers)
		writeError(w, res.Error)
	}
}

// Feedback handles the scoring endpoint.
func (h *GatewayHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	in, ok := h.inbound(w, r)
	if !ok {
		return
	}

	res := h.gateway.Feedback(r.Context(), in)
	setHeaders(w, res.Headers)
	if res.Error != nil {
		writeError(w, res.Error)
		return
	}
	writeJSON(w, http.StatusOK, res.Feedback)
}

// Quota reports a user's session quota without consuming a session.
func (h *GatewayHandler) Quota(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	tier := r.URL.Query().Get("tier")
	if !validation.ValidUserID(userID) {
		writeError(w, gateway.ErrInvalidRequest.WithMessage("Invalid request: userId: must be 1-128 identifier characters"))
		return
	}
	if !validation.ValidTier(tier) {
		writeError(w, gateway.ErrInvalidRequest.WithMessage("Invalid request: tier: must be a lowercase identifier"))
		return
	}

	status, err := h.gateway.Quota(r.Context(), userID, tier)
	if err != nil {
		h.logger.Error().Err(err).Msg("quota lookup failed")
		writeError(w, &gateway.ErrorResponse{
			Status:  http.StatusInternalServerError,
			Code:    "INTERNAL_ERROR",
			Message: "Quota lookup failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// inbound reads the body with a bound one byte past the configured ceiling,
// so an oversized body is still detected by the size check.
func (h *GatewayHandler) inbound(w http.ResponseWriter, r *http.Request) (app.Inbound, bool) {
	limit := int64(h.gateway.Policy().Validation.MaxBodyBytes) + 1

	body, err := io.ReadAll(io.LimitReader(r.Body, limit))
	if err != nil {
		h.logger.Debug().Err(err).Msg("failed to read request body")
		writeError(w, gateway.ErrInvalidJSON.WithMessage("Failed to read request body"))
		return app.Inbound{}, false
	}

	return app.Inbound{
		ClientIP:  clientIP(r),
		Body:      body,
		RequestID: middleware.GetReqID(r.Context()),
	}, true
}

// clientIP returns the caller's address. middleware.RealIP has already
// replaced RemoteAddr with X-Forwarded-For or X-Real-IP when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func setHeaders(w http.ResponseWriter, headers map[string]string) {
	for k, v := range headers {
		w.Header().Set(k, v)
	}
}

// writeError writes the JSON error envelope.
func writeError(w http.ResponseWriter, e *gateway.ErrorResponse) {
	body := ErrorBody{
		Error: e.Message,
		Code:  e.Code,
		Used:  e.Used,
		Limit: e.Limit,
	}
	if e.ResetIn > 0 {
		body.ResetIn = e.ResetIn.Milliseconds()
	}
	writeJSON(w, e.Status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// VersionHandler returns a handler reporting version.
func VersionHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{Version: version, Service: "lexgate"})
	}
}

