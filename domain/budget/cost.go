// Package budget provides pure cost estimation and daily spend checks.
package budget

import (
	"github.com/shopspring/decimal"
)

var (
	oneMillion = decimal.NewFromInt(1_000_000)
	hundred    = decimal.NewFromInt(100)
	half       = decimal.RequireFromString("0.5")
	fourFifths = decimal.RequireFromString("0.8")
)

// Pricing holds dollars-per-million-token prices for the active model.
type Pricing struct {
	InputPerMillion  decimal.Decimal
	OutputPerMillion decimal.Decimal
}

// DefaultPricing returns the default model prices ($0.25 in, $1.25 out per million tokens).
func DefaultPricing() Pricing {
	return Pricing{
		InputPerMillion:  decimal.RequireFromString("0.25"),
		OutputPerMillion: decimal.RequireFromString("1.25"),
	}
}

// NewPricing builds a Pricing from float prices as they appear in configuration.
func NewPricing(inputPerMillion, outputPerMillion float64) Pricing {
	return Pricing{
		InputPerMillion:  decimal.NewFromFloat(inputPerMillion),
		OutputPerMillion: decimal.NewFromFloat(outputPerMillion),
	}
}

// EstimateCost converts token counts into cents, rounded to 2 decimal places.
//
//	cents = round(((in/1e6)*pIn + (out/1e6)*pOut) * 100, 2)
func EstimateCost(inputTokens, outputTokens int64, p Pricing) decimal.Decimal {
	in := decimal.NewFromInt(inputTokens).Div(oneMillion).Mul(p.InputPerMillion)
	out := decimal.NewFromInt(outputTokens).Div(oneMillion).Mul(p.OutputPerMillion)
	return in.Add(out).Mul(hundred).Round(2)
}

// WithinBudget reports whether spend is still below the daily ceiling.
// Reaching the ceiling exactly counts as exceeded.
func WithinBudget(costCents decimal.Decimal, dailyBudgetCents int64) bool {
	return costCents.LessThan(decimal.NewFromInt(dailyBudgetCents))
}

// Levels are the budget alert flags for one day (value type).
type Levels struct {
	Warning50 bool
	Warning80 bool
	Exceeded  bool
}

// CheckLevels compares today's cost against the ceiling at 50%, 80% and 100%.
func CheckLevels(costCents decimal.Decimal, dailyBudgetCents int64) Levels {
	ceiling := decimal.NewFromInt(dailyBudgetCents)
	return Levels{
		Warning50: costCents.GreaterThanOrEqual(ceiling.Mul(half)),
		Warning80: costCents.GreaterThanOrEqual(ceiling.Mul(fourFifths)),
		Exceeded:  costCents.GreaterThanOrEqual(ceiling),
	}
}

// Utilization returns cost as a fraction of the ceiling (0 when there is no ceiling).
func Utilization(costCents decimal.Decimal, dailyBudgetCents int64) float64 {
	if dailyBudgetCents <= 0 {
		return 0
	}
	return costCents.Div(decimal.NewFromInt(dailyBudgetCents)).InexactFloat64()
}
