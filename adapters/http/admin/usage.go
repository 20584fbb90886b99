package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/artpar/lexgate/domain/usage"
)

// maxHistoryDays bounds the history query.
const maxHistoryDays = 90

// UsageHistoryResponse lists per-day telemetry aggregates, newest first.
type UsageHistoryResponse struct {
	Days []DaySummary `json:"days"`
}

// DaySummary is one day of persisted telemetry.
type DaySummary struct {
	Date         string `json:"date"`
	Requests     int64  `json:"requests"`
	Errors       int64  `json:"errors"`
	InputTokens  int64  `json:"inputTokens"`
	OutputTokens int64  `json:"outputTokens"`
	CostCents    string `json:"costCents"`
	AvgLatencyMs int64  `json:"avgLatencyMs"`
}

// PolicyResponse is the active policy in operator units.
type PolicyResponse struct {
	GlobalLimit         int      `json:"globalLimit"`
	GlobalWindowSec     int64    `json:"globalWindowSec"`
	ChatIPLimit         int      `json:"chatIpLimit"`
	ChatIPWindowSec     int64    `json:"chatIpWindowSec"`
	FeedbackIPLimit     int      `json:"feedbackIpLimit"`
	FeedbackIPWindowSec int64    `json:"feedbackIpWindowSec"`
	SessionsPerMonth    int      `json:"sessionsPerMonth"`
	MeteredTiers        []string `json:"meteredTiers"`
	DailyBudgetCents    int64    `json:"dailyBudgetCents"`
	InputPerMillion     string   `json:"inputPricePerMillion"`
	OutputPerMillion    string   `json:"outputPricePerMillion"`
	ErrorRateThreshold  float64  `json:"errorRateThreshold"`
	LatencyThresholdMs  int64    `json:"latencyThresholdMs"`
	MaxBodyBytes        int      `json:"maxBodyBytes"`
}

// GetUsage returns today's usage, spend, alerts and rejection counts.
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gateway.UsageSnapshot())
}

// GetUsageHistory returns persisted per-day aggregates for the last ?days=N days (default 7).
func (h *Handler) GetUsageHistory(w http.ResponseWriter, r *http.Request) {
	if h.telemetry == nil {
		writeError(w, http.StatusNotFound, "HISTORY_UNAVAILABLE", "Telemetry history requires the sqlite sink")
		return
	}

	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryDays {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "days must be between 1 and 90")
			return
		}
		days = n
	}

	since := startOfDay(h.clock.Now()).AddDate(0, 0, -(days - 1))
	summaries, err := h.telemetry.DailySummaries(r.Context(), since)
	if err != nil {
		h.logger.Error().Err(err).Msg("load usage history")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load usage history")
		return
	}

	resp := UsageHistoryResponse{Days: make([]DaySummary, 0, len(summaries))}
	for _, s := range summaries {
		resp.Days = append(resp.Days, toDaySummary(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPolicy returns the active (possibly hot-reloaded) policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p := h.gateway.Policy()
	writeJSON(w, http.StatusOK, PolicyResponse{
		GlobalLimit:         p.Global.Limit,
		GlobalWindowSec:     int64(p.Global.Window / time.Second),
		ChatIPLimit:         p.ChatIP.Limit,
		ChatIPWindowSec:     int64(p.ChatIP.Window / time.Second),
		FeedbackIPLimit:     p.FeedbackIP.Limit,
		FeedbackIPWindowSec: int64(p.FeedbackIP.Window / time.Second),
		SessionsPerMonth:    p.SessionsPerMonth,
		MeteredTiers:        p.MeteredTiers,
		DailyBudgetCents:    p.DailyBudgetCents,
		InputPerMillion:     p.Pricing.InputPerMillion.String(),
		OutputPerMillion:    p.Pricing.OutputPerMillion.String(),
		ErrorRateThreshold:  p.Thresholds.ErrorRate,
		LatencyThresholdMs:  p.Thresholds.Latency.Milliseconds(),
		MaxBodyBytes:        p.Validation.MaxBodyBytes,
	})
}

func toDaySummary(s usage.DaySummary) DaySummary {
	return DaySummary{
		Date:         s.Date,
		Requests:     s.Requests,
		Errors:       s.Errors,
		InputTokens:  s.InputTokens,
		OutputTokens: s.OutputTokens,
		CostCents:    s.CostCents.StringFixed(2),
		AvgLatencyMs: s.AvgLatencyMs,
	}
}

func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
