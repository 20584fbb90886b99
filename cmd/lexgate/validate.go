package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/artpar/lexgate/adapters/sqlite"
	"github.com/artpar/lexgate/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the lexgate configuration file.

Checks:
  - YAML syntax is valid and every value is in range
  - Provider API key is present
  - Provider endpoint is reachable (optional)
  - Telemetry database can be opened and migrated (optional)

Examples:
  lexgate validate
  lexgate validate --check-provider --check-database`,
	RunE: runValidate,
}

var (
	validateCheckProvider bool
	validateCheckDatabase bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckProvider, "check-provider", false, "check if the provider endpoint is reachable")
	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if the telemetry database is writable")
	validateCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading configuration")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Fprintf(out, "  %s Config file exists (using environment only)\n", crossMark)
	} else {
		fmt.Fprintf(out, "  %s Config file exists\n", checkMark)
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	if cfg.Provider.APIKey == "" {
		fmt.Fprintf(out, "  %s Provider API key set (requests will get PROVIDER_NOT_CONFIGURED)\n", crossMark)
	} else {
		fmt.Fprintf(out, "  %s Provider API key set\n", checkMark)
	}

	fmt.Fprintf(out, "  %s Provider: %s (%s)\n", checkMark, cfg.Provider.BaseURL, cfg.Provider.Model)
	fmt.Fprintf(out, "  %s Limits: global %d/%s, chat %d/%s per IP, feedback %d/%s per IP\n", checkMark,
		cfg.Limits.Global.Requests, cfg.Limits.Global.Window,
		cfg.Limits.ChatIP.Requests, cfg.Limits.ChatIP.Window,
		cfg.Limits.FeedbackIP.Requests, cfg.Limits.FeedbackIP.Window)
	fmt.Fprintf(out, "  %s Sessions: %d per month for %v\n", checkMark, cfg.Sessions.PerMonth, cfg.Sessions.MeteredTiers)
	fmt.Fprintf(out, "  %s Daily budget: %d cents\n", checkMark, cfg.Budget.DailyCents)
	fmt.Fprintf(out, "  %s Telemetry: %s\n", checkMark, cfg.Telemetry.Sink)
	if cfg.Admin.Token == "" {
		fmt.Fprintf(out, "  %s Admin API: disabled\n", checkMark)
	} else {
		fmt.Fprintf(out, "  %s Admin API: enabled\n", checkMark)
	}

	if validateCheckProvider {
		if err := checkProviderReachable(cfg.Provider.BaseURL); err != nil {
			fmt.Fprintf(out, "  %s Provider reachable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Provider reachable\n", checkMark)
		}
	}

	if validateCheckDatabase {
		if err := checkDatabaseWritable(cfg.Telemetry.DSN); err != nil {
			fmt.Fprintf(out, "  %s Database writable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Database writable\n", checkMark)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func checkProviderReachable(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func checkDatabaseWritable(dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate()
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
