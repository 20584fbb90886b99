// Package usage provides usage counters, telemetry records and alert evaluation.
// All functions are pure - no side effects.
package usage

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayFormat is the layout of a UTC calendar day key.
const DayFormat = "2006-01-02"

// Day returns the UTC calendar day containing t.
func Day(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// Daily holds today's aggregate counters (value type).
// Exactly one Daily is current at any instant; see Roll.
type Daily struct {
	Date         string `json:"date"`
	Requests     int64  `json:"requests"`
	Errors       int64  `json:"errors"`
	InputTokens  int64  `json:"inputTokens"`
	OutputTokens int64  `json:"outputTokens"`
	LatencySumMs int64  `json:"latencySumMs"`
}

// Roll returns d unchanged when it belongs to today, otherwise a zeroed Daily for today.
func Roll(d Daily, today string) Daily {
	if d.Date == today {
		return d
	}
	return Daily{Date: today}
}

// AverageLatencyMs returns the mean latency of today's requests.
func (d Daily) AverageLatencyMs() int64 {
	if d.Requests == 0 {
		return 0
	}
	return d.LatencySumMs / d.Requests
}

// Lifetime holds process-lifetime counters. They only ever grow.
type Lifetime struct {
	Requests     int64 `json:"requests"`
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
}

// WindowEntry is one provider call in the trailing alert window.
type WindowEntry struct {
	Timestamp time.Time
	Success   bool
	LatencyMs int64
}

// Record is one content-free telemetry record.
// It must never carry message text, transcripts or any other user-supplied content.
type Record struct {
	ID           string
	Timestamp    time.Time
	Endpoint     string
	Mode         string
	InputTokens  int64
	OutputTokens int64
	LatencyMs    int64
	Success      bool
	ErrorCode    string
	CostCents    decimal.Decimal
}

// DaySummary aggregates telemetry records for one UTC day.
type DaySummary struct {
	Date         string
	Requests     int64
	Errors       int64
	InputTokens  int64
	OutputTokens int64
	CostCents    decimal.Decimal
	AvgLatencyMs int64
}
