package app

import (
	"maps"
	"sync"
	"time"

	"github.com/artpar/lexgate/domain/gateway"
	"github.com/artpar/lexgate/domain/usage"
	"github.com/artpar/lexgate/domain/webhook"
	"github.com/artpar/lexgate/ports"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RequestEvent describes one finished provider call. It carries no content.
type RequestEvent struct {
	Endpoint     gateway.Endpoint
	Mode         string
	InputTokens  int64
	OutputTokens int64
	Latency      time.Duration
	Success      bool
	ErrorCode    string
}

// UsageTracker accounts provider calls and rejections and evaluates alerts.
type UsageTracker struct {
	ledger    ports.UsageLedger
	budget    *BudgetGuard
	policy    *PolicyRef
	telemetry ports.TelemetryRecorder
	metrics   ports.GatewayMetrics
	notifier  ports.AlertNotifier
	clock     ports.Clock
	idGen     ports.IDGenerator
	logger    zerolog.Logger

	mu         sync.Mutex
	alerts     usage.Alerts
	rejections map[string]int64
}

// UsageTrackerDeps contains dependencies for UsageTracker.
type UsageTrackerDeps struct {
	Ledger    ports.UsageLedger
	Budget    *BudgetGuard
	Policy    *PolicyRef
	Telemetry ports.TelemetryRecorder // Optional
	Metrics   ports.GatewayMetrics    // Optional
	Notifier  ports.AlertNotifier     // Optional
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    zerolog.Logger
}

// NewUsageTracker creates a usage tracker.
func NewUsageTracker(deps UsageTrackerDeps) *UsageTracker {
	m := deps.Metrics
	if m == nil {
		m = nopMetrics{}
	}
	return &UsageTracker{
		ledger:     deps.Ledger,
		budget:     deps.Budget,
		policy:     deps.Policy,
		telemetry:  deps.Telemetry,
		metrics:    m,
		notifier:   deps.Notifier,
		clock:      deps.Clock,
		idGen:      deps.IDGen,
		logger:     deps.Logger,
		rejections: make(map[string]int64),
	}
}

// TrackUsage adds one call's tokens to today's and lifetime totals and
// returns the call's cost in cents.
func (t *UsageTracker) TrackUsage(inputTokens, outputTokens int64) decimal.Decimal {
	t.ledger.AddTokens(inputTokens, outputTokens)
	t.metrics.Tokens(inputTokens, outputTokens)
	t.metrics.Spend(t.budget.TodayCost().InexactFloat64(), t.budget.Utilization())
	return t.budget.EstimateCost(inputTokens, outputTokens)
}

// LogRequest counts one provider call, emits its telemetry record and
// re-evaluates alerts.
func (t *UsageTracker) LogRequest(ev RequestEvent) {
	latencyMs := ev.Latency.Milliseconds()
	t.ledger.AddRequest(ev.Success, latencyMs)

	rec := usage.Record{
		ID:           t.idGen.New(),
		Timestamp:    t.clock.Now(),
		Endpoint:     string(ev.Endpoint),
		Mode:         ev.Mode,
		InputTokens:  ev.InputTokens,
		OutputTokens: ev.OutputTokens,
		LatencyMs:    latencyMs,
		Success:      ev.Success,
		ErrorCode:    ev.ErrorCode,
		CostCents:    t.budget.EstimateCost(ev.InputTokens, ev.OutputTokens),
	}
	if t.telemetry != nil {
		t.telemetry.Record(rec)
	}

	t.logger.Info().
		Str("id", rec.ID).
		Str("endpoint", rec.Endpoint).
		Str("mode", rec.Mode).
		Int64("input_tokens", rec.InputTokens).
		Int64("output_tokens", rec.OutputTokens).
		Int64("latency_ms", rec.LatencyMs).
		Bool("success", rec.Success).
		Str("error_code", rec.ErrorCode).
		Str("cost_cents", rec.CostCents.StringFixed(2)).
		Msg("ai request")

	t.metrics.ProviderCall(rec.Endpoint, ev.Success, ev.Latency)
	t.CheckAlertThresholds()
}

// RecordRejection counts a request refused before any provider call.
// Rejections do not count as provider requests or errors.
func (t *UsageTracker) RecordRejection(ep gateway.Endpoint, mode, code string) {
	t.mu.Lock()
	t.rejections[code]++
	t.mu.Unlock()

	t.metrics.Rejection(string(ep), code)
	t.logger.Debug().
		Str("endpoint", string(ep)).
		Str("mode", mode).
		Str("code", code).
		Msg("request rejected")
}

// CheckAlertThresholds evaluates the alert flags, logs flags that changed
// and returns the current flags.
func (t *UsageTracker) CheckAlertThresholds() usage.Alerts {
	// Evaluation, swap and publication share one critical section: a stale
	// evaluation never replaces a newer one and transitions go out in order.
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.policy.Load()
	cost := t.budget.TodayCost()
	window := t.ledger.Window()
	cur := usage.EvaluateAlerts(cost, p.DailyBudgetCents, window, p.Thresholds)
	raised, cleared := usage.Changes(t.alerts, cur)
	t.alerts = cur

	for _, name := range raised {
		t.logger.Warn().
			Str("alert", name).
			Str("cost_cents", cost.StringFixed(2)).
			Int64("budget_cents", p.DailyBudgetCents).
			Float64("error_rate", usage.ErrorRate(window)).
			Float64("mean_latency_ms", usage.MeanLatencyMs(window)).
			Int("window_requests", len(window)).
			Msg("alert raised")
	}
	for _, name := range cleared {
		t.logger.Info().Str("alert", name).Msg("alert cleared")
	}

	if t.notifier != nil && len(raised)+len(cleared) > 0 {
		data := webhook.Snapshot{
			CostCents:      cost.StringFixed(2),
			BudgetCents:    p.DailyBudgetCents,
			ErrorRate:      usage.ErrorRate(window),
			MeanLatencyMs:  usage.MeanLatencyMs(window),
			WindowRequests: len(window),
		}
		now := t.clock.Now()
		for _, name := range raised {
			t.notify(webhook.EventAlertRaised, name, now, data)
		}
		for _, name := range cleared {
			t.notify(webhook.EventAlertCleared, name, now, data)
		}
	}

	t.metrics.SetAlerts(cur)
	return cur
}

func (t *UsageTracker) notify(typ webhook.EventType, alert string, now time.Time, data webhook.Snapshot) {
	t.notifier.Notify(webhook.Event{
		ID:        t.idGen.New(),
		Type:      typ,
		Alert:     alert,
		Timestamp: now,
		Data:      data,
	})
}

// Rejections returns rejection counts by error code.
func (t *UsageTracker) Rejections() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.rejections)
}

// Snapshot is a point-in-time view of usage and alerts.
type Snapshot struct {
	Daily            usage.Daily      `json:"daily"`
	Lifetime         usage.Lifetime   `json:"lifetime"`
	CostCents        float64          `json:"costCents"`
	DailyBudgetCents int64            `json:"dailyBudgetCents"`
	Utilization      float64          `json:"utilization"`
	Window           WindowStats      `json:"window"`
	Alerts           usage.Alerts     `json:"alerts"`
	Rejections       map[string]int64 `json:"rejections"`
}

// WindowStats summarizes the trailing alert window.
type WindowStats struct {
	Requests      int     `json:"requests"`
	ErrorRate     float64 `json:"errorRate"`
	MeanLatencyMs float64 `json:"meanLatencyMs"`
}

// Snapshot returns current usage, spend and alert flags.
func (t *UsageTracker) Snapshot() Snapshot {
	p := t.policy.Load()
	window := t.ledger.Window()
	return Snapshot{
		Daily:            t.ledger.Daily(),
		Lifetime:         t.ledger.Lifetime(),
		CostCents:        t.budget.TodayCost().InexactFloat64(),
		DailyBudgetCents: p.DailyBudgetCents,
		Utilization:      t.budget.Utilization(),
		Window: WindowStats{
			Requests:      len(window),
			ErrorRate:     usage.ErrorRate(window),
			MeanLatencyMs: usage.MeanLatencyMs(window),
		},
		Alerts:     t.CheckAlertThresholds(),
		Rejections: t.Rejections(),
	}
}

// nopMetrics discards measurements.
type nopMetrics struct{}

func (nopMetrics) ProviderCall(string, bool, time.Duration) {}
func (nopMetrics) Tokens(int64, int64)                      {}
func (nopMetrics) Rejection(string, string)                 {}
func (nopMetrics) FeedbackFallback(string)                  {}
func (nopMetrics) StreamOpened()                            {}
func (nopMetrics) StreamClosed()                            {}
func (nopMetrics) Spend(float64, float64)                   {}
func (nopMetrics) SetAlerts(usage.Alerts)                   {}
