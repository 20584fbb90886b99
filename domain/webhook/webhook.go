// Package webhook provides value types and pure functions for alert webhooks.
// Operators receive an HTTP callback whenever an alert flag switches on or off.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"time"
)

// EventType represents a type of event that triggers a callback.
type EventType string

// Supported event types
const (
	EventAlertRaised  EventType = "alert.raised"
	EventAlertCleared EventType = "alert.cleared"
	EventTest         EventType = "test"
)

// Header names set on every delivery.
const (
	HeaderSignature = "X-Lexgate-Signature"
	HeaderEventID   = "X-Lexgate-Event-ID"
	HeaderEventType = "X-Lexgate-Event-Type"
)

// Target is the configured callback endpoint (value type).
type Target struct {
	URL        string
	Secret     string        // HMAC-SHA256 signing secret; empty disables signing
	MaxRetries int           // Retries after the first attempt
	Timeout    time.Duration // Per-attempt timeout
}

// Event is one alert transition to be delivered (value type).
// It carries aggregate figures only, never request content.
type Event struct {
	ID        string
	Type      EventType
	Alert     string
	Timestamp time.Time
	Data      Snapshot
}

// Snapshot holds the figures that explain an alert.
type Snapshot struct {
	CostCents      string  `json:"costCents"`
	BudgetCents    int64   `json:"budgetCents"`
	ErrorRate      float64 `json:"errorRate"`
	MeanLatencyMs  float64 `json:"meanLatencyMs"`
	WindowRequests int     `json:"windowRequests"`
}

// Payload is the JSON body sent to the endpoint.
type Payload struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Alert     string   `json:"alert,omitempty"`
	Timestamp string   `json:"timestamp"`
	Data      Snapshot `json:"data"`
}

// BuildPayload creates a payload from an event.
func BuildPayload(event Event) Payload {
	return Payload{
		ID:        event.ID,
		Type:      string(event.Type),
		Alert:     event.Alert,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Data:      event.Data,
	}
}

// SerializePayload serializes a payload to JSON bytes.
func SerializePayload(payload Payload) ([]byte, error) {
	return json.Marshal(payload)
}

// SignPayload signs a payload with the secret using HMAC-SHA256.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature verifies that a signature matches the payload.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// ShouldRetry determines if a delivery should be retried based on status code.
// A zero status means no response was received.
func ShouldRetry(statusCode int) bool {
	switch {
	case statusCode == 0:
		return true
	case statusCode >= 500:
		return true
	case statusCode == 408, statusCode == 429:
		return true
	}
	return false
}

// RetryDelay returns the wait before the given retry (1-based) using
// exponential backoff: 1s, 5s, 30s, then 30s.
func RetryDelay(retry int) time.Duration {
	delays := []time.Duration{
		1 * time.Second,
		5 * time.Second,
		30 * time.Second,
	}
	idx := retry - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(delays) {
		idx = len(delays) - 1
	}
	return delays[idx]
}

// ValidateURL validates a callback URL.
func ValidateURL(raw string) (bool, string) {
	if raw == "" {
		return false, "URL is required"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false, "URL is malformed"
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return false, "URL must start with https:// or http://"
	}
	if u.Host == "" {
		return false, "URL must include a host"
	}
	return true, ""
}
