package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/artpar/lexgate/bootstrap"
	"github.com/artpar/lexgate/config"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
	envFile   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Long: `Start the lexgate HTTP server.

The server will:
  - Load variables from .env (or --env-file) when present
  - Load configuration from lexgate.yaml (or --config), or from LEXGATE_* variables
  - Serve POST /v1/chat, POST /v1/feedback and GET /v1/quota
  - Stop gracefully on SIGINT or SIGTERM

Environment variables (for container deployments):
  ANTHROPIC_API_KEY         - Provider API key
  LEXGATE_SERVER_PORT       - Server port (default: 8080)
  LEXGATE_BUDGET_DAILY_CENTS - Daily spend ceiling in cents (default: 1000)
  LEXGATE_TELEMETRY_SINK    - log or sqlite (default: log)
  LEXGATE_ADMIN_TOKEN       - Enables /admin with this bearer token
  LEXGATE_LOG_LEVEL         - Log level: debug, info, warn, error

Examples:
  lexgate serve
  lexgate serve --config /etc/lexgate/lexgate.yaml
  lexgate serve --hot-reload=false --env-file prod.env`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload policy when the config file changes or on SIGHUP")
	serveCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	opts := bootstrap.Options{Version: version}
	var cfg *config.Config

	if hasConfigFile && hotReload {
		// Hot reload only works with a config file
		holder, err := config.NewHolder(cfgFile, zerolog.New(os.Stdout).With().Timestamp().Logger())
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		opts.Holder = holder
	} else {
		var err error
		cfg, err = config.LoadWithFallback(cfgFile)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		if !hasConfigFile {
			fmt.Fprintln(cmd.ErrOrStderr(), "Running with environment variables (no config file)")
		}
	}

	app, err := bootstrap.New(cfg, opts)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
