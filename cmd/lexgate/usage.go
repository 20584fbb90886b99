package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/artpar/lexgate/adapters/sqlite"
	"github.com/artpar/lexgate/config"
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show per-day telemetry totals",
	Long: `Show per-day request, token and cost totals from the SQLite telemetry sink.

Requires telemetry.sink: sqlite. Counters held in memory by a running server
are not included.

Examples:
  lexgate usage
  lexgate usage --days 30`,
	RunE: runUsage,
}

var usageDays int

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.Flags().IntVar(&usageDays, "days", 7, "number of days to show (including today)")
}

func runUsage(cmd *cobra.Command, args []string) error {
	if usageDays < 1 {
		return fmt.Errorf("--days must be at least 1")
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if cfg.Telemetry.Sink != "sqlite" {
		return fmt.Errorf("usage history needs telemetry.sink: sqlite (current: %s)", cfg.Telemetry.Sink)
	}
	if _, err := os.Stat(cfg.Telemetry.DSN); err != nil {
		return fmt.Errorf("telemetry database %s: %w", cfg.Telemetry.DSN, err)
	}

	db, err := sqlite.Open(cfg.Telemetry.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -(usageDays - 1))

	days, err := sqlite.NewTelemetryStore(db).DailySummaries(context.Background(), since)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(days) == 0 {
		fmt.Fprintf(out, "No requests recorded since %s.\n", since.Format("2006-01-02"))
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tREQUESTS\tERRORS\tINPUT\tOUTPUT\tCOST (CENTS)\tAVG LATENCY")
	for _, d := range days {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\t%dms\n",
			d.Date, d.Requests, d.Errors, d.InputTokens, d.OutputTokens, d.CostCents.StringFixed(2), d.AvgLatencyMs)
	}
	return w.Flush()
}
