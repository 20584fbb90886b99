package app

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/artpar/lexgate/domain/feedback"
	"github.com/artpar/lexgate/domain/gateway"
	"github.com/artpar/lexgate/domain/quota"
	"github.com/artpar/lexgate/domain/ratelimit"
	"github.com/artpar/lexgate/domain/validation"
	"github.com/artpar/lexgate/ports"
	"github.com/rs/zerolog"
)

// Gateway runs the guard chain for both endpoints and performs provider calls.
type Gateway struct {
	rateLimits ports.RateLimitStore
	sessions   ports.SessionStore
	provider   ports.Provider
	metrics    ports.GatewayMetrics
	clock      ports.Clock
	idGen      ports.IDGenerator
	logger     zerolog.Logger

	policy  *PolicyRef
	budget  *BudgetGuard
	tracker *UsageTracker
}

// GatewayDeps contains dependencies for Gateway.
type GatewayDeps struct {
	RateLimits ports.RateLimitStore
	Sessions   ports.SessionStore
	Ledger     ports.UsageLedger
	Provider   ports.Provider
	Telemetry  ports.TelemetryRecorder // Optional
	Metrics    ports.GatewayMetrics    // Optional
	Notifier   ports.AlertNotifier     // Optional
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Logger     zerolog.Logger
}

// NewGateway creates a gateway enforcing policy.
func NewGateway(deps GatewayDeps, policy Policy) *Gateway {
	m := deps.Metrics
	if m == nil {
		m = nopMetrics{}
	}

	ref := NewPolicyRef(policy)
	guard := NewBudgetGuard(deps.Ledger, ref)
	tracker := NewUsageTracker(UsageTrackerDeps{
		Ledger:    deps.Ledger,
		Budget:    guard,
		Policy:    ref,
		Telemetry: deps.Telemetry,
		Metrics:   m,
		Notifier:  deps.Notifier,
		Clock:     deps.Clock,
		IDGen:     deps.IDGen,
		Logger:    deps.Logger,
	})

	return &Gateway{
		rateLimits: deps.RateLimits,
		sessions:   deps.Sessions,
		provider:   deps.Provider,
		metrics:    m,
		clock:      deps.Clock,
		idGen:      deps.IDGen,
		logger:     deps.Logger,
		policy:     ref,
		budget:     guard,
		tracker:    tracker,
	}
}

// UpdatePolicy atomically replaces the active policy (hot-reload).
func (g *Gateway) UpdatePolicy(p Policy) {
	g.policy.Store(p)
}

// Policy returns a copy of the active policy.
func (g *Gateway) Policy() Policy {
	return *g.policy.Load()
}

// Tracker returns the usage tracker.
func (g *Gateway) Tracker() *UsageTracker {
	return g.tracker
}

// Budget returns the budget guard.
func (g *Gateway) Budget() *BudgetGuard {
	return g.budget
}

// ProviderConfigured reports whether the provider has credentials.
func (g *Gateway) ProviderConfigured() bool {
	return g.provider.Configured()
}

// Inbound is one raw request as received by the transport.
type Inbound struct {
	ClientIP  string
	Body      []byte // Read with a bound of at least MaxBodyBytes+1
	RequestID string
}

// Result is the outcome of the admission part of a request.
// Headers are set on the response whether or not Error is nil.
type Result struct {
	Headers map[string]string
	Error   *gateway.ErrorResponse
}

// FeedbackResult is the outcome of a feedback request.
type FeedbackResult struct {
	Result
	Feedback feedback.Result
}

// admit runs the rate limits and the size check, in that order.
func (g *Gateway) admit(ctx context.Context, ep gateway.Endpoint, in Inbound, p *Policy) Result {
	res, ok := g.checkLimit(ctx, ratelimit.GlobalKey, p.Global)
	if !ok {
		return g.reject(ep, "", g.rateLimitHeaders(res), gateway.ErrGlobalRateLimit.WithResetIn(res.ResetIn))
	}

	res, ok = g.checkLimit(ctx, string(ep)+":"+in.ClientIP, p.IPPolicy(ep))
	headers := g.rateLimitHeaders(res)
	if !ok {
		return g.reject(ep, "", headers, gateway.ErrIPRateLimit.WithResetIn(res.ResetIn))
	}

	if !validation.ValidateSize(in.Body, p.Validation.MaxBodyBytes) {
		return g.reject(ep, "", headers, &gateway.ErrBodyTooLarge)
	}
	return Result{Headers: headers}
}

// checkLimit applies one rate limit. A store failure admits the request.
func (g *Gateway) checkLimit(ctx context.Context, key string, policy ratelimit.Policy) (ratelimit.Result, bool) {
	res, err := g.rateLimits.Check(ctx, key, policy)
	if err != nil {
		g.logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
		return ratelimit.Result{Allowed: true, Limit: policy.Limit, Remaining: policy.Limit, ResetIn: policy.Window}, true
	}
	return res, res.Allowed
}

func (g *Gateway) reject(ep gateway.Endpoint, mode string, headers map[string]string, e *gateway.ErrorResponse) Result {
	g.tracker.RecordRejection(ep, mode, e.Code)
	if e.ResetIn > 0 {
		headers["Retry-After"] = strconv.FormatInt(ratelimit.Result{ResetIn: e.ResetIn}.RetryAfterSeconds(), 10)
	}
	return Result{Headers: headers, Error: e}
}

func (g *Gateway) rateLimitHeaders(res ratelimit.Result) map[string]string {
	return map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(res.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(res.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(g.clock.Now().Add(res.ResetIn).Unix(), 10),
	}
}

// schemaFailure maps a parse error to its client-facing response.
func schemaFailure(err error) *gateway.ErrorResponse {
	if errors.Is(err, validation.ErrMalformedJSON) {
		return &gateway.ErrInvalidJSON
	}
	var schemaErr *validation.SchemaError
	if errors.As(err, &schemaErr) {
		return gateway.ErrInvalidRequest.WithMessage("Invalid request: " + schemaErr.Error())
	}
	return &gateway.ErrInvalidRequest
}

// Chat admits a chat request and relays the provider stream to sink.
// When the returned Error is non-nil nothing was written to sink and the
// caller must send the error as a JSON response.
func (g *Gateway) Chat(ctx context.Context, in Inbound, sink ports.StreamSink) Result {
	p := g.policy.Load()
	if in.RequestID == "" {
		in.RequestID = g.idGen.New()
	}

	adm := g.admit(ctx, gateway.EndpointChat, in, p)
	if adm.Error != nil {
		return adm
	}

	req, err := validation.ParseChat(in.Body, p.Validation)
	if err != nil {
		return g.reject(gateway.EndpointChat, "", adm.Headers, schemaFailure(err))
	}

	// A metered session start holds its quota slot from here on; it is
	// returned unless the provider accepts the call.
	var reservation string
	sessionCommitted := false
	if req.StartsSession() && req.UserContext != nil && p.Metered(req.UserContext.Tier) {
		q, err := g.sessions.Reserve(ctx, req.UserContext.UserID, p.SessionsPerMonth)
		if err != nil {
			g.logger.Warn().Err(err).Msg("session quota reserve failed")
		} else if !q.Allowed {
			return g.reject(gateway.EndpointChat, req.Mode, adm.Headers, gateway.ErrSessionQuotaExceeded.WithUsage(q.Used, q.Limit))
		}
		reservation = q.Key
	}
	defer func() {
		if reservation != "" && !sessionCommitted {
			if err := g.sessions.Release(context.WithoutCancel(ctx), reservation); err != nil {
				g.logger.Warn().Err(err).Msg("session quota release failed")
			}
		}
	}()

	if !g.budget.CheckDailyBudget() {
		return g.reject(gateway.EndpointChat, req.Mode, adm.Headers, &gateway.ErrBudgetExceeded)
	}
	if !g.provider.Configured() {
		return g.reject(gateway.EndpointChat, req.Mode, adm.Headers, &gateway.ErrProviderNotConfigured)
	}

	start := g.clock.Now()
	stream, err := g.provider.Stream(ctx, ports.ProviderRequest{
		System:    chatSystemPrompt(req),
		Messages:  providerMessages(req.Messages),
		MaxTokens: p.ChatMaxTokens,
		RequestID: in.RequestID,
	})
	if err != nil {
		fail := gateway.ProviderFailure(err)
		g.logger.Warn().Err(err).Str("request_id", in.RequestID).Msg("provider stream failed")
		g.tracker.TrackUsage(0, 0)
		g.tracker.LogRequest(RequestEvent{
			Endpoint:  gateway.EndpointChat,
			Mode:      req.Mode,
			Latency:   g.clock.Now().Sub(start),
			ErrorCode: fail.Code,
		})
		return Result{Headers: adm.Headers, Error: fail}
	}
	defer stream.Close()

	g.metrics.StreamOpened()
	defer g.metrics.StreamClosed()

	relay := NewStreamRelay(sink, g.logger.With().Str("request_id", in.RequestID).Logger())
	defer relay.Finalize(func(o RelayOutcome) {
		g.tracker.TrackUsage(o.InputTokens, o.OutputTokens)
		g.tracker.LogRequest(RequestEvent{
			Endpoint:     gateway.EndpointChat,
			Mode:         req.Mode,
			InputTokens:  o.InputTokens,
			OutputTokens: o.OutputTokens,
			Latency:      g.clock.Now().Sub(start),
			Success:      o.Success(),
			ErrorCode:    o.ErrorCode,
		})
	})

	if err := sink.Open(adm.Headers); err != nil {
		g.logger.Debug().Err(err).Msg("open stream")
		relay.Abandon()
		return Result{Headers: adm.Headers}
	}

	if stream.Status < 200 || stream.Status > 299 {
		g.logger.Warn().Int("status", stream.Status).Str("request_id", in.RequestID).Msg("provider returned error status")
		relay.Fail(gateway.StatusFailure(stream.Status))
		return Result{Headers: adm.Headers}
	}

	sessionCommitted = true

	relay.Run(ctx, stream.Body)
	return Result{Headers: adm.Headers}
}

// Feedback admits a feedback request and scores the session.
// Once the request is valid, every failure yields the fallback payload.
func (g *Gateway) Feedback(ctx context.Context, in Inbound) FeedbackResult {
	p := g.policy.Load()
	if in.RequestID == "" {
		in.RequestID = g.idGen.New()
	}

	adm := g.admit(ctx, gateway.EndpointFeedback, in, p)
	if adm.Error != nil {
		return FeedbackResult{Result: adm}
	}

	req, err := validation.ParseFeedback(in.Body, p.Validation)
	if err != nil {
		return FeedbackResult{Result: g.reject(gateway.EndpointFeedback, "", adm.Headers, schemaFailure(err))}
	}

	fallback := func(reason string) FeedbackResult {
		g.metrics.FeedbackFallback(reason)
		return FeedbackResult{
			Result:   Result{Headers: adm.Headers},
			Feedback: feedback.DefaultFeedback(feedback.Dimensions, p.ScoreRange),
		}
	}

	if !g.budget.CheckDailyBudget() {
		g.tracker.RecordRejection(gateway.EndpointFeedback, req.Mode, gateway.CodeBudgetExceeded)
		return fallback(gateway.CodeBudgetExceeded)
	}
	if !g.provider.Configured() {
		g.tracker.RecordRejection(gateway.EndpointFeedback, req.Mode, gateway.CodeProviderNotConfigured)
		return fallback(gateway.CodeProviderNotConfigured)
	}

	start := g.clock.Now()
	completion, callErr := g.provider.Complete(ctx, ports.ProviderRequest{
		System: feedbackSystemPrompt(req, p.ScoreRange),
		Messages: []ports.ProviderMessage{{
			Role:    validation.RoleUser,
			Content: feedback.Transcript(feedbackTurns(req.Messages), *req.SessionDuration),
		}},
		MaxTokens: p.FeedbackMaxTokens,
		RequestID: in.RequestID,
	})
	latency := g.clock.Now().Sub(start)

	g.tracker.TrackUsage(completion.InputTokens, completion.OutputTokens)

	ev := RequestEvent{
		Endpoint:     gateway.EndpointFeedback,
		Mode:         req.Mode,
		InputTokens:  completion.InputTokens,
		OutputTokens: completion.OutputTokens,
		Latency:      latency,
	}

	if callErr != nil {
		ev.ErrorCode = gateway.ProviderFailure(callErr).Code
		g.logger.Warn().Err(callErr).Str("request_id", in.RequestID).Msg("provider scoring call failed")
		g.tracker.LogRequest(ev)
		return fallback(ev.ErrorCode)
	}

	result, parseErr := feedback.Parse(completion.Text, feedback.Dimensions, p.ScoreRange)
	if parseErr != nil {
		ev.ErrorCode = gateway.CodeParseError
		g.logger.Warn().Err(parseErr).Str("request_id", in.RequestID).Msg("scoring output rejected")
		g.tracker.LogRequest(ev)
		return fallback(ev.ErrorCode)
	}

	ev.Success = true
	g.tracker.LogRequest(ev)
	return FeedbackResult{Result: Result{Headers: adm.Headers}, Feedback: result}
}

// QuotaStatus is a user's session quota for the current month.
type QuotaStatus struct {
	UserID    string    `json:"userId"`
	Tier      string    `json:"tier"`
	Metered   bool      `json:"metered"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Allowed   bool      `json:"allowed"`
	ResetsAt  time.Time `json:"resetsAt"`
}

// Quota reports a user's session quota without consuming a session.
func (g *Gateway) Quota(ctx context.Context, userID, tier string) (QuotaStatus, error) {
	p := g.policy.Load()
	if tier == "" {
		tier = DefaultTier
	}

	status := QuotaStatus{
		UserID:   userID,
		Tier:     tier,
		Metered:  p.Metered(tier),
		Allowed:  true,
		ResetsAt: quota.MonthEnd(g.clock.Now()),
	}
	if !status.Metered {
		return status, nil
	}

	q, err := g.sessions.Check(ctx, userID, p.SessionsPerMonth)
	if err != nil {
		return QuotaStatus{}, err
	}
	status.Used = q.Used
	status.Limit = q.Limit
	status.Remaining = q.Remaining()
	status.Allowed = q.Allowed
	return status, nil
}

// UsageSnapshot returns current usage, spend and alert flags.
func (g *Gateway) UsageSnapshot() Snapshot {
	return g.tracker.Snapshot()
}
