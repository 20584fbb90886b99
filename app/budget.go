package app

import (
	"github.com/artpar/lexgate/domain/budget"
	"github.com/artpar/lexgate/ports"
	"github.com/shopspring/decimal"
)

// BudgetGuard enforces the daily spend ceiling.
// Today's cost is always derived from today's token totals, so it resets
// with the ledger's UTC day rollover.
type BudgetGuard struct {
	ledger ports.UsageLedger
	policy *PolicyRef
}

// NewBudgetGuard creates a budget guard over ledger.
func NewBudgetGuard(ledger ports.UsageLedger, policy *PolicyRef) *BudgetGuard {
	return &BudgetGuard{ledger: ledger, policy: policy}
}

// EstimateCost returns the cost in cents of the given tokens at current prices.
func (b *BudgetGuard) EstimateCost(inputTokens, outputTokens int64) decimal.Decimal {
	return budget.EstimateCost(inputTokens, outputTokens, b.policy.Load().Pricing)
}

// TodayCost returns today's estimated spend in cents.
func (b *BudgetGuard) TodayCost() decimal.Decimal {
	d := b.ledger.Daily()
	return b.EstimateCost(d.InputTokens, d.OutputTokens)
}

// CheckDailyBudget reports whether today's spend is still below the ceiling.
func (b *BudgetGuard) CheckDailyBudget() bool {
	return budget.WithinBudget(b.TodayCost(), b.policy.Load().DailyBudgetCents)
}

// Utilization returns today's spend as a fraction of the ceiling.
func (b *BudgetGuard) Utilization() float64 {
	return budget.Utilization(b.TodayCost(), b.policy.Load().DailyBudgetCents)
}
