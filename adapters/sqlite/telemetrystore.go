package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/lexgate/domain/usage"
	"github.com/artpar/lexgate/ports"
	"github.com/shopspring/decimal"
)

// timestampFormat is the UTC layout used for stored timestamps.
const timestampFormat = "2006-01-02 15:04:05"

// TelemetryStore implements ports.TelemetryStore using SQLite.
// Cost is stored as an integer count of hundredths of a cent so sums stay exact.
type TelemetryStore struct {
	db *DB
}

// NewTelemetryStore creates a new SQLite telemetry store.
func NewTelemetryStore(db *DB) *TelemetryStore {
	return &TelemetryStore{db: db}
}

// RecordBatch stores multiple records in one transaction.
func (s *TelemetryStore) RecordBatch(ctx context.Context, records []usage.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO ai_requests (
			id, day, timestamp, endpoint, mode, input_tokens, output_tokens,
			latency_ms, success, error_code, cost_centicents
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		ts := r.Timestamp.UTC()
		_, err := stmt.ExecContext(ctx,
			r.ID, usage.Day(ts), ts.Format(timestampFormat), r.Endpoint, r.Mode,
			r.InputTokens, r.OutputTokens, r.LatencyMs, r.Success, r.ErrorCode,
			r.CostCents.Shift(2).Round(0).IntPart(),
		)
		if err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// DailySummaries returns per-day aggregates for days on or after since, newest first.
func (s *TelemetryStore) DailySummaries(ctx context.Context, since time.Time) ([]usage.DaySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			day,
			COUNT(*),
			COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(cost_centicents), 0),
			CAST(COALESCE(AVG(latency_ms), 0) AS INTEGER)
		FROM ai_requests
		WHERE day >= ?
		GROUP BY day
		ORDER BY day DESC
	`, usage.Day(since))
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []usage.DaySummary
	for rows.Next() {
		var d usage.DaySummary
		var centicents int64
		if err := rows.Scan(&d.Date, &d.Requests, &d.Errors, &d.InputTokens, &d.OutputTokens, &centicents, &d.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		d.CostCents = decimal.New(centicents, -2)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Ensure interface compliance.
var _ ports.TelemetryStore = (*TelemetryStore)(nil)
