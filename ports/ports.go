// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"io"
	"time"

	"github.com/artpar/lexgate/domain/quota"
	"github.com/artpar/lexgate/domain/ratelimit"
	"github.com/artpar/lexgate/domain/usage"
	"github.com/artpar/lexgate/domain/webhook"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Admission State Ports
// -----------------------------------------------------------------------------

// RateLimitStore owns fixed-window buckets keyed by identifier.
// Check must be atomic per key: read, decide and write under one lock.
type RateLimitStore interface {
	Check(ctx context.Context, key string, policy ratelimit.Policy) (ratelimit.Result, error)
}

// SessionStore owns monthly session buckets keyed by user.
type SessionStore interface {
	// Check reports whether the user may start another session this month.
	Check(ctx context.Context, userID string, limit int) (quota.Result, error)

	// Reserve atomically checks the quota and, when allowed, counts one
	// session. Result.Key names the bucket to pass to Release.
	Reserve(ctx context.Context, userID string, limit int) (quota.Result, error)

	// Release returns one session reserved in the bucket key.
	Release(ctx context.Context, key string) error
}

// UsageLedger owns the daily, lifetime and trailing-window usage counters.
// Reads and writes that observe a new UTC day reset the daily counters first.
type UsageLedger interface {
	// AddTokens adds token counts to today's and lifetime counters.
	AddTokens(inputTokens, outputTokens int64)

	// AddRequest counts one provider call and appends it to the trailing window.
	AddRequest(success bool, latencyMs int64)

	// Daily returns today's counters.
	Daily() usage.Daily

	// Lifetime returns the process-lifetime counters.
	Lifetime() usage.Lifetime

	// Window returns a copy of the trailing window, pruned to the retention period.
	Window() []usage.WindowEntry
}

// -----------------------------------------------------------------------------
// Provider Ports
// -----------------------------------------------------------------------------

// ProviderMessage is one conversation turn sent to the provider.
type ProviderMessage struct {
	Role    string
	Content string
}

// ProviderRequest is a single model invocation.
type ProviderRequest struct {
	System    string
	Messages  []ProviderMessage
	MaxTokens int
	RequestID string
}

// ProviderStream is an open streaming response.
// Body is nil when Status is not 2xx. The caller must call Close.
type ProviderStream struct {
	Status int
	Body   io.Reader
	Close  func() error
}

// Completion is the result of a non-streaming call.
type Completion struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Provider performs calls to the LLM provider. A single attempt is made per call.
type Provider interface {
	// Configured reports whether credentials are present.
	Configured() bool

	// Stream starts a streaming call. An error means no response was received.
	Stream(ctx context.Context, req ProviderRequest) (ProviderStream, error)

	// Complete performs a non-streaming call. Token counts are returned
	// whenever the provider reported them, even alongside an error.
	Complete(ctx context.Context, req ProviderRequest) (Completion, error)
}

// -----------------------------------------------------------------------------
// Streaming Ports
// -----------------------------------------------------------------------------

// StreamSink receives client-facing stream frames.
type StreamSink interface {
	// Open commits the streaming response with the given extra headers.
	Open(headers map[string]string) error

	// Text writes one text delta frame.
	Text(delta string) error

	// Error writes one error frame.
	Error(code, message string) error

	// Done writes the terminal sentinel frame.
	Done() error
}

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// GatewayMetrics receives gateway measurements.
type GatewayMetrics interface {
	// ProviderCall observes one completed provider call.
	ProviderCall(endpoint string, success bool, latency time.Duration)

	// Tokens counts consumed provider tokens.
	Tokens(input, output int64)

	// Rejection counts a request refused before reaching the provider.
	Rejection(endpoint, code string)

	// FeedbackFallback counts a feedback response served from the fallback payload.
	FeedbackFallback(reason string)

	// StreamOpened and StreamClosed track relays in flight.
	StreamOpened()
	StreamClosed()

	// Spend publishes today's estimated cost and budget utilization.
	Spend(costCents, utilization float64)

	// SetAlerts publishes the current alert flags.
	SetAlerts(a usage.Alerts)
}

// AlertNotifier delivers alert transitions to an external endpoint.
type AlertNotifier interface {
	// Notify queues an event for delivery (non-blocking).
	Notify(event webhook.Event)
}

// -----------------------------------------------------------------------------
// Telemetry Ports
// -----------------------------------------------------------------------------

// TelemetryStore persists content-free telemetry records.
type TelemetryStore interface {
	// RecordBatch stores multiple records.
	RecordBatch(ctx context.Context, records []usage.Record) error

	// DailySummaries returns per-day aggregates for days on or after since, newest first.
	DailySummaries(ctx context.Context, since time.Time) ([]usage.DaySummary, error)
}

// TelemetryRecorder accepts telemetry records asynchronously.
type TelemetryRecorder interface {
	// Record queues a record for persistence (non-blocking).
	Record(r usage.Record)

	// Flush forces immediate processing of queued records.
	Flush(ctx context.Context) error

	// Close stops the recorder and flushes remaining records.
	Close() error
}
