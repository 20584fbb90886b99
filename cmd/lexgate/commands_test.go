package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/lexgate/adapters/sqlite"
	"github.com/artpar/lexgate/domain/usage"
	"github.com/shopspring/decimal"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lexgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestCostCommand(t *testing.T) {
	path := writeConfig(t, "budget:\n  daily_cents: 1000\n")

	out, err := run(t, "cost", "--config", path, "--input", "1000000", "--output", "1000000")
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if !strings.Contains(out, "Cost:         150.00 cents") {
		t.Errorf("output missing cost line:\n%s", out)
	}
	if !strings.Contains(out, "15.00% of 1000 cents") {
		t.Errorf("output missing budget share:\n%s", out)
	}
}

func TestUsageCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "telemetry.db")
	db, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	err = sqlite.NewTelemetryStore(db).RecordBatch(context.Background(), []usage.Record{{
		ID:           "r1",
		Timestamp:    time.Now().UTC(),
		Endpoint:     "chat",
		InputTokens:  1000,
		OutputTokens: 200,
		LatencyMs:    350,
		Success:      true,
		CostCents:    decimal.RequireFromString("0.05"),
	}})
	db.Close()
	if err != nil {
		t.Fatalf("RecordBatch: %v", err)
	}

	path := writeConfig(t, "telemetry:\n  sink: sqlite\n  dsn: \""+dbPath+"\"\n")

	out, err := run(t, "usage", "--config", path, "--days", "1")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	today := time.Now().UTC().Format("2006-01-02")
	if !strings.Contains(out, today) || !strings.Contains(out, "0.05") || !strings.Contains(out, "350ms") {
		t.Errorf("unexpected usage output:\n%s", out)
	}
}

func TestUsageCommand_RequiresSQLiteSink(t *testing.T) {
	path := writeConfig(t, "telemetry:\n  sink: log\n")

	_, err := run(t, "usage", "--config", path, "--days", "1")
	if err == nil || !strings.Contains(err.Error(), "telemetry.sink") {
		t.Errorf("err = %v, want telemetry.sink error", err)
	}
}
