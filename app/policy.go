// Package app provides application services that orchestrate domain logic.
package app

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/artpar/lexgate/domain/budget"
	"github.com/artpar/lexgate/domain/feedback"
	"github.com/artpar/lexgate/domain/gateway"
	"github.com/artpar/lexgate/domain/ratelimit"
	"github.com/artpar/lexgate/domain/usage"
	"github.com/artpar/lexgate/domain/validation"
)

// DefaultTier is assumed when a request names a user but no tier.
const DefaultTier = "free"

// Policy contains the hot-reloadable admission, budget and scoring settings.
type Policy struct {
	Validation validation.Limits

	Global     ratelimit.Policy
	ChatIP     ratelimit.Policy
	FeedbackIP ratelimit.Policy

	SessionsPerMonth int
	MeteredTiers     []string

	DailyBudgetCents int64
	Pricing          budget.Pricing
	Thresholds       usage.Thresholds

	ScoreRange        feedback.Range
	ChatMaxTokens     int
	FeedbackMaxTokens int
}

// DefaultPolicy returns the default policy.
func DefaultPolicy() Policy {
	return Policy{
		Validation:        validation.DefaultLimits(),
		Global:            ratelimit.Policy{Limit: 1000, Window: time.Hour},
		ChatIP:            ratelimit.Policy{Limit: 20, Window: time.Minute},
		FeedbackIP:        ratelimit.Policy{Limit: 5, Window: time.Minute},
		SessionsPerMonth:  3,
		MeteredTiers:      []string{DefaultTier},
		DailyBudgetCents:  1000,
		Pricing:           budget.DefaultPricing(),
		Thresholds:        usage.DefaultThresholds(),
		ScoreRange:        feedback.DefaultRange(),
		ChatMaxTokens:     1024,
		FeedbackMaxTokens: 1024,
	}
}

// Metered reports whether tier is subject to the monthly session quota.
func (p *Policy) Metered(tier string) bool {
	if tier == "" {
		tier = DefaultTier
	}
	return slices.Contains(p.MeteredTiers, tier)
}

// IPPolicy returns the per-client limit for an endpoint.
func (p *Policy) IPPolicy(ep gateway.Endpoint) ratelimit.Policy {
	if ep == gateway.EndpointFeedback {
		return p.FeedbackIP
	}
	return p.ChatIP
}

// PolicyRef holds the active policy. Readers always observe a complete Policy;
// a reload swaps the whole value at once.
type PolicyRef struct {
	p atomic.Pointer[Policy]
}

// NewPolicyRef creates a reference holding p.
func NewPolicyRef(p Policy) *PolicyRef {
	r := &PolicyRef{}
	r.Store(p)
	return r
}

// Load returns the active policy. Callers must not mutate it.
func (r *PolicyRef) Load() *Policy {
	return r.p.Load()
}

// Store replaces the active policy.
func (r *PolicyRef) Store(p Policy) {
	p.MeteredTiers = slices.Clone(p.MeteredTiers)
	r.p.Store(&p)
}
