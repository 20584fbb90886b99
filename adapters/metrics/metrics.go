// Package metrics provides Prometheus metrics collection for lexgate.
package metrics

import (
	"time"

	"github.com/artpar/lexgate/domain/usage"
	"github.com/artpar/lexgate/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lexgate"

// Collector holds all Prometheus metrics for lexgate.
type Collector struct {
	// HTTP metrics
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Gateway metrics
	RequestsTotal     *prometheus.CounterVec
	RejectionsTotal   *prometheus.CounterVec
	FeedbackFallbacks *prometheus.CounterVec

	// Provider metrics
	ProviderDuration *prometheus.HistogramVec
	TokensTotal      *prometheus.CounterVec
	StreamsInFlight  prometheus.Gauge

	// Budget and alert metrics
	CostCentsToday    prometheus.Gauge
	BudgetUtilization prometheus.Gauge
	Alerts            *prometheus.GaugeVec

	// Housekeeping metrics
	SweepRemoved *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a new metrics collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ai_requests_total",
				Help:      "Total number of provider calls by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		RejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejections_total",
				Help:      "Total number of requests rejected before reaching the provider",
			},
			[]string{"endpoint", "code"},
		),
		FeedbackFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feedback_fallbacks_total",
				Help:      "Total number of feedback responses served from the fallback payload",
			},
			[]string{"reason"},
		),

		ProviderDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_duration_seconds",
				Help:      "Provider call duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 30, 60},
			},
			[]string{"endpoint"},
		),
		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Total provider tokens consumed",
			},
			[]string{"direction"},
		),
		StreamsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "streams_in_flight",
				Help:      "Number of chat streams currently being relayed",
			},
		),

		CostCentsToday: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cost_cents_today",
				Help:      "Estimated provider spend for the current UTC day, in cents",
			},
		),
		BudgetUtilization: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "budget_utilization_ratio",
				Help:      "Today's estimated spend as a fraction of the daily budget",
			},
		),
		Alerts: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "alert_active",
				Help:      "Whether an alert is currently raised (1) or not (0)",
			},
			[]string{"alert"},
		),

		SweepRemoved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_removed_total",
				Help:      "Total number of expired entries removed from in-memory stores",
			},
			[]string{"store"},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// Outcome returns the outcome label for a provider call.
func Outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// SetAlerts mirrors the current alert flags into the alert gauges.
func (c *Collector) SetAlerts(a usage.Alerts) {
	for name, on := range a.Flags() {
		v := 0.0
		if on {
			v = 1
		}
		c.Alerts.WithLabelValues(name).Set(v)
	}
}

// ProviderCall observes one completed provider call.
func (c *Collector) ProviderCall(endpoint string, success bool, latency time.Duration) {
	c.RequestsTotal.WithLabelValues(endpoint, Outcome(success)).Inc()
	c.ProviderDuration.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// Tokens counts consumed provider tokens.
func (c *Collector) Tokens(input, output int64) {
	if input > 0 {
		c.TokensTotal.WithLabelValues("input").Add(float64(input))
	}
	if output > 0 {
		c.TokensTotal.WithLabelValues("output").Add(float64(output))
	}
}

// Rejection counts a request refused before reaching the provider.
func (c *Collector) Rejection(endpoint, code string) {
	c.RejectionsTotal.WithLabelValues(endpoint, code).Inc()
}

// FeedbackFallback counts a fallback feedback response.
func (c *Collector) FeedbackFallback(reason string) {
	c.FeedbackFallbacks.WithLabelValues(reason).Inc()
}

// StreamOpened marks a relay as started.
func (c *Collector) StreamOpened() { c.StreamsInFlight.Inc() }

// StreamClosed marks a relay as finished.
func (c *Collector) StreamClosed() { c.StreamsInFlight.Dec() }

// Spend publishes today's estimated cost and budget utilization.
func (c *Collector) Spend(costCents, utilization float64) {
	c.CostCentsToday.Set(costCents)
	c.BudgetUtilization.Set(utilization)
}

// SweepObserved counts entries removed by a store sweep.
func (c *Collector) SweepObserved(store string, removed int) {
	c.SweepRemoved.WithLabelValues(store).Add(float64(removed))
}

// Ensure interface compliance.
var _ ports.GatewayMetrics = (*Collector)(nil)
