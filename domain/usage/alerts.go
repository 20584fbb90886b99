package usage

import (
	"time"

	"github.com/artpar/lexgate/domain/budget"
	"github.com/shopspring/decimal"
)

// Alert names, used as log fields and metric labels.
const (
	AlertBudgetWarning50 = "budget_warning_50"
	AlertBudgetWarning80 = "budget_warning_80"
	AlertBudgetExceeded  = "budget_exceeded"
	AlertHighErrorRate   = "high_error_rate"
	AlertHighLatency     = "high_latency"
)

// AlertNames lists every alert in a stable order.
var AlertNames = []string{
	AlertBudgetWarning50,
	AlertBudgetWarning80,
	AlertBudgetExceeded,
	AlertHighErrorRate,
	AlertHighLatency,
}

// Thresholds configures the rolling-window alerts.
type Thresholds struct {
	ErrorRate float64       // Flag when the error rate is strictly above this
	Latency   time.Duration // Flag when the mean latency is strictly above this
}

// DefaultThresholds returns 20% error rate and 5s mean latency.
func DefaultThresholds() Thresholds {
	return Thresholds{ErrorRate: 0.2, Latency: 5 * time.Second}
}

// Alerts are the current alert flags (value type).
type Alerts struct {
	BudgetWarning50 bool `json:"budgetWarning50"`
	BudgetWarning80 bool `json:"budgetWarning80"`
	BudgetExceeded  bool `json:"budgetExceeded"`
	HighErrorRate   bool `json:"highErrorRate"`
	HighLatency     bool `json:"highLatency"`
}

// Flags returns the alerts keyed by name.
func (a Alerts) Flags() map[string]bool {
	return map[string]bool{
		AlertBudgetWarning50: a.BudgetWarning50,
		AlertBudgetWarning80: a.BudgetWarning80,
		AlertBudgetExceeded:  a.BudgetExceeded,
		AlertHighErrorRate:   a.HighErrorRate,
		AlertHighLatency:     a.HighLatency,
	}
}

// EvaluateAlerts computes alert flags.
//
// Budget flags use today's cost (calendar day). Error rate and latency use the
// trailing window, which the caller must already have pruned.
func EvaluateAlerts(todayCostCents decimal.Decimal, dailyBudgetCents int64, window []WindowEntry, th Thresholds) Alerts {
	levels := budget.CheckLevels(todayCostCents, dailyBudgetCents)
	return Alerts{
		BudgetWarning50: levels.Warning50,
		BudgetWarning80: levels.Warning80,
		BudgetExceeded:  levels.Exceeded,
		HighErrorRate:   len(window) > 0 && ErrorRate(window) > th.ErrorRate,
		HighLatency:     len(window) > 0 && MeanLatencyMs(window) > float64(th.Latency.Milliseconds()),
	}
}

// Changes returns the alerts that switched on and off between prev and cur,
// in AlertNames order.
func Changes(prev, cur Alerts) (raised, cleared []string) {
	p, c := prev.Flags(), cur.Flags()
	for _, name := range AlertNames {
		switch {
		case c[name] && !p[name]:
			raised = append(raised, name)
		case !c[name] && p[name]:
			cleared = append(cleared, name)
		}
	}
	return raised, cleared
}
