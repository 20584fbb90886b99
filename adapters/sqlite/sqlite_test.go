package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/lexgate/adapters/sqlite"
	"github.com/artpar/lexgate/domain/usage"
	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func record(id string, ts time.Time, success bool, in, out int64, latency int64, cost string) usage.Record {
	r := usage.Record{
		ID:           id,
		Timestamp:    ts,
		Endpoint:     "chat",
		Mode:         "oral_argument",
		InputTokens:  in,
		OutputTokens: out,
		LatencyMs:    latency,
		Success:      success,
		CostCents:    decimal.RequireFromString(cost),
	}
	if !success {
		r.ErrorCode = "PROVIDER_ERROR"
	}
	return r
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Errorf("applied migrations = %d, want 1", n)
	}
}

func TestTelemetryStore_DailySummaries(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewTelemetryStore(db)
	ctx := context.Background()

	day1 := time.Date(2024, 1, 14, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 15, 0, 1, 0, 0, time.UTC)

	err := store.RecordBatch(ctx, []usage.Record{
		record("r1", day1, true, 1000, 100, 400, "0.04"),
		record("r2", day2, true, 2000, 200, 600, "0.08"),
		record("r3", day2, false, 0, 0, 1000, "0"),
		record("r4", day2, true, 1_000_000, 0, 800, "25.00"),
	})
	if err != nil {
		t.Fatalf("RecordBatch: %v", err)
	}

	got, err := store.DailySummaries(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DailySummaries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("summaries = %d, want 2", len(got))
	}

	newest := got[0]
	if newest.Date != "2024-01-15" {
		t.Errorf("first date = %s, want newest first", newest.Date)
	}
	if newest.Requests != 3 || newest.Errors != 1 || newest.InputTokens != 1_002_000 || newest.OutputTokens != 200 {
		t.Errorf("newest = %+v", newest)
	}
	if newest.CostCents.StringFixed(2) != "25.08" {
		t.Errorf("CostCents = %s, want 25.08", newest.CostCents.StringFixed(2))
	}
	if newest.AvgLatencyMs != 800 {
		t.Errorf("AvgLatencyMs = %d, want 800", newest.AvgLatencyMs)
	}

	if got[1].Date != "2024-01-14" || got[1].Requests != 1 {
		t.Errorf("older = %+v", got[1])
	}
}

func TestTelemetryStore_SinceFiltersDays(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewTelemetryStore(db)
	ctx := context.Background()

	store.RecordBatch(ctx, []usage.Record{
		record("old", time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC), true, 1, 1, 1, "0"),
		record("new", time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), true, 1, 1, 1, "0"),
	})

	got, err := store.DailySummaries(ctx, time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DailySummaries: %v", err)
	}
	if len(got) != 1 || got[0].Date != "2024-01-15" {
		t.Errorf("summaries = %+v", got)
	}
}

func TestTelemetryStore_DuplicateIDsIgnored(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewTelemetryStore(db)
	ctx := context.Background()

	r := record("dup", time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), true, 10, 10, 10, "0.01")
	if err := store.RecordBatch(ctx, []usage.Record{r}); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if err := store.RecordBatch(ctx, []usage.Record{r}); err != nil {
		t.Fatalf("retried batch: %v", err)
	}

	got, _ := store.DailySummaries(ctx, time.Time{})
	if len(got) != 1 || got[0].Requests != 1 {
		t.Errorf("summaries = %+v, want one record", got)
	}
}

func TestTelemetryStore_EmptyBatch(t *testing.T) {
	store := sqlite.NewTelemetryStore(setupTestDB(t))
	if err := store.RecordBatch(context.Background(), nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
}

func TestTelemetryStore_StoresNoContentColumns(t *testing.T) {
	db := setupTestDB(t)

	rows, err := db.Query("SELECT name FROM pragma_table_info('ai_requests')")
	if err != nil {
		t.Fatalf("table info: %v", err)
	}
	defer rows.Close()

	allowed := map[string]bool{
		"id": true, "day": true, "timestamp": true, "endpoint": true, "mode": true,
		"input_tokens": true, "output_tokens": true, "latency_ms": true,
		"success": true, "error_code": true, "cost_centicents": true,
	}
	for rows.Next() {
		var name string
		rows.Scan(&name)
		if !allowed[name] {
			t.Errorf("unexpected column %q", name)
		}
	}
}
