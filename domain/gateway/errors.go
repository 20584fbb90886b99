// Package gateway defines the gateway's endpoints and client-facing failures.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Endpoint names a gateway endpoint. It is used as a telemetry and metric label.
type Endpoint string

const (
	EndpointChat     Endpoint = "chat"
	EndpointFeedback Endpoint = "feedback"
)

// Error codes returned to clients and recorded in telemetry.
const (
	CodeBodyTooLarge          = "BODY_TOO_LARGE"
	CodeInvalidJSON           = "INVALID_JSON"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeIPRateLimit           = "IP_RATE_LIMIT"
	CodeGlobalRateLimit       = "GLOBAL_RATE_LIMIT"
	CodeSessionQuotaExceeded  = "SESSION_QUOTA_EXCEEDED"
	CodeBudgetExceeded        = "BUDGET_EXCEEDED"
	CodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	CodeProviderRateLimit     = "PROVIDER_RATE_LIMIT"
	CodeProviderError         = "PROVIDER_ERROR"
	CodeParseError            = "PARSE_ERROR"
	CodeStreamError           = "STREAM_ERROR"
	CodeClientClosed          = "CLIENT_CLOSED"
)

// ErrorResponse represents an error to return to client (value type).
type ErrorResponse struct {
	Status  int
	Code    string
	Message string
	ResetIn time.Duration // Admission errors only
	Used    int           // Session quota errors only
	Limit   int           // Session quota errors only
}

func (e ErrorResponse) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithMessage returns a copy of e with a more specific message.
func (e ErrorResponse) WithMessage(msg string) *ErrorResponse {
	e.Message = msg
	return &e
}

// WithResetIn returns a copy of e carrying a back-off hint.
func (e ErrorResponse) WithResetIn(d time.Duration) *ErrorResponse {
	e.ResetIn = d
	return &e
}

// WithUsage returns a copy of e carrying quota usage.
func (e ErrorResponse) WithUsage(used, limit int) *ErrorResponse {
	e.Used = used
	e.Limit = limit
	return &e
}

// Common error responses
var (
	ErrBodyTooLarge = ErrorResponse{
		Status:  http.StatusRequestEntityTooLarge,
		Code:    CodeBodyTooLarge,
		Message: "Request body is too large",
	}
	ErrInvalidJSON = ErrorResponse{
		Status:  http.StatusBadRequest,
		Code:    CodeInvalidJSON,
		Message: "Request body must be a JSON object",
	}
	ErrInvalidRequest = ErrorResponse{
		Status:  http.StatusBadRequest,
		Code:    CodeInvalidRequest,
		Message: "Invalid request",
	}
	ErrIPRateLimit = ErrorResponse{
		Status:  http.StatusTooManyRequests,
		Code:    CodeIPRateLimit,
		Message: "Too many requests, please slow down",
	}
	ErrGlobalRateLimit = ErrorResponse{
		Status:  http.StatusServiceUnavailable,
		Code:    CodeGlobalRateLimit,
		Message: "The service is busy, please try again later",
	}
	ErrSessionQuotaExceeded = ErrorResponse{
		Status:  http.StatusForbidden,
		Code:    CodeSessionQuotaExceeded,
		Message: "Monthly AI session limit reached",
	}
	ErrBudgetExceeded = ErrorResponse{
		Status:  http.StatusServiceUnavailable,
		Code:    CodeBudgetExceeded,
		Message: "AI features are paused for today, please try again tomorrow",
	}
	ErrProviderNotConfigured = ErrorResponse{
		Status:  http.StatusServiceUnavailable,
		Code:    CodeProviderNotConfigured,
		Message: "AI service is not configured",
	}
	ErrProviderRateLimit = ErrorResponse{
		Status:  http.StatusBadGateway,
		Code:    CodeProviderRateLimit,
		Message: "AI service is busy, please try again shortly",
	}
	ErrProvider = ErrorResponse{
		Status:  http.StatusBadGateway,
		Code:    CodeProviderError,
		Message: "AI service is unavailable",
	}
	ErrStream = ErrorResponse{
		Status:  http.StatusBadGateway,
		Code:    CodeStreamError,
		Message: "AI response was interrupted",
	}
)

// ErrNotConfigured is returned by a provider that has no credentials.
var ErrNotConfigured = errors.New("provider not configured")

// ProviderStatusError is a non-2xx response from the provider.
type ProviderStatusError struct {
	Status int
}

func (e *ProviderStatusError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.Status)
}

// ProviderFailure maps a provider error to its client-facing response.
// A 429 from the provider is distinct from every other failure.
func ProviderFailure(err error) *ErrorResponse {
	if errors.Is(err, ErrNotConfigured) {
		e := ErrProviderNotConfigured
		return &e
	}
	var statusErr *ProviderStatusError
	if errors.As(err, &statusErr) && statusErr.Status == http.StatusTooManyRequests {
		e := ErrProviderRateLimit
		return &e
	}
	e := ErrProvider
	return &e
}

// StatusFailure maps a non-2xx provider status to its client-facing response.
func StatusFailure(status int) *ErrorResponse {
	return ProviderFailure(&ProviderStatusError{Status: status})
}
