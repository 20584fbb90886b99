// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/lexgate/domain/webhook"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Provider   ProviderConfig   `yaml:"provider"`
	Limits     LimitsConfig     `yaml:"limits"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Budget     BudgetConfig     `yaml:"budget"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Feedback   FeedbackConfig   `yaml:"feedback"`
	Validation ValidationConfig `yaml:"validation"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Admin      AdminConfig      `yaml:"admin"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // Non-streaming routes only
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
}

// ProviderConfig configures the LLM provider.
type ProviderConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	APIVersion      string        `yaml:"api_version"`
	StreamTimeout   time.Duration `yaml:"stream_timeout"`
	FeedbackTimeout time.Duration `yaml:"feedback_timeout"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// WindowLimit is one fixed-window rate limit.
type WindowLimit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// LimitsConfig configures rate limiting.
type LimitsConfig struct {
	Global        WindowLimit   `yaml:"global"`
	ChatIP        WindowLimit   `yaml:"chat_ip"`
	FeedbackIP    WindowLimit   `yaml:"feedback_ip"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// SessionsConfig configures the monthly session quota.
type SessionsConfig struct {
	PerMonth     int      `yaml:"per_month"`
	MeteredTiers []string `yaml:"metered_tiers"`
}

// BudgetConfig configures the daily spend ceiling and model prices.
type BudgetConfig struct {
	DailyCents          int64   `yaml:"daily_cents"`
	InputPerMillionUSD  float64 `yaml:"input_per_million_usd"`
	OutputPerMillionUSD float64 `yaml:"output_per_million_usd"`
	ChatMaxTokens       int     `yaml:"chat_max_tokens"`
	FeedbackMaxTokens   int     `yaml:"feedback_max_tokens"`
}

// AlertsConfig configures the trailing-hour alert thresholds and the
// optional callback fired when an alert switches on or off.
type AlertsConfig struct {
	ErrorRate      float64       `yaml:"error_rate"`
	Latency        time.Duration `yaml:"latency"`
	WebhookURL     string        `yaml:"webhook_url"`
	WebhookSecret  string        `yaml:"webhook_secret"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
	WebhookRetries int           `yaml:"webhook_retries"`
}

// FeedbackConfig configures the score range.
type FeedbackConfig struct {
	MinScore     float64 `yaml:"min_score"`
	MaxScore     float64 `yaml:"max_score"`
	DefaultScore float64 `yaml:"default_score"`
}

// ValidationConfig bounds request sizes.
type ValidationConfig struct {
	MaxBodyBytes         int `yaml:"max_body_bytes"`
	MaxMessages          int `yaml:"max_messages"`
	MaxContentChars      int `yaml:"max_content_chars"`
	MaxCaseContextChars  int `yaml:"max_case_context_chars"`
	MaxSystemPromptChars int `yaml:"max_system_prompt_chars"`
	MaxSessionSeconds    int `yaml:"max_session_seconds"`
}

// TelemetryConfig configures where per-request records go.
// Use "log" to emit them as log lines or "sqlite" to persist them.
type TelemetryConfig struct {
	Sink          string        `yaml:"sink"` // "log" or "sqlite"
	DSN           string        `yaml:"dsn"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // Enable /metrics endpoint
}

// AdminConfig configures the admin API. Admin routes are mounted only when a token is set.
type AdminConfig struct {
	Token string `yaml:"token"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	cfg := Config{Metrics: MetricsConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(&cfg)
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	LEXGATE_SERVER_HOST       - Server host (default: 0.0.0.0)
//	LEXGATE_SERVER_PORT       - Server port (default: 8080)
//	LEXGATE_PROVIDER_API_KEY  - Provider API key (falls back to ANTHROPIC_API_KEY)
//	LEXGATE_PROVIDER_BASE_URL - Provider base URL
//	LEXGATE_PROVIDER_MODEL    - Model name
//	LEXGATE_BUDGET_DAILY_CENTS - Daily spend ceiling in cents (default: 1000)
//	LEXGATE_TELEMETRY_SINK    - log or sqlite (default: log)
//	LEXGATE_TELEMETRY_DSN     - SQLite path (default: lexgate.db)
//	LEXGATE_LOG_LEVEL         - Log level: debug, info, warn, error (default: info)
//	LEXGATE_LOG_FORMAT        - Log format: json or console (default: json)
//	LEXGATE_ALERTS_WEBHOOK_URL - Callback for alert transitions (default: none)
//	LEXGATE_METRICS_ENABLED   - Enable /metrics endpoint (default: true)
//	LEXGATE_ADMIN_TOKEN       - Bearer token for /admin routes
func LoadFromEnv() (*Config, error) {
	cfg := Config{Metrics: MetricsConfig{Enabled: true}}
	return finish(&cfg)
}

// LoadWithFallback tries to load from file, falls back to environment variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies LEXGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	envString("LEXGATE_SERVER_HOST", &cfg.Server.Host)
	envInt("LEXGATE_SERVER_PORT", &cfg.Server.Port)
	envDuration("LEXGATE_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("LEXGATE_SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)

	// Provider configuration
	envString("LEXGATE_PROVIDER_BASE_URL", &cfg.Provider.BaseURL)
	envString("LEXGATE_PROVIDER_API_KEY", &cfg.Provider.APIKey)
	envString("LEXGATE_PROVIDER_MODEL", &cfg.Provider.Model)
	envDuration("LEXGATE_PROVIDER_STREAM_TIMEOUT", &cfg.Provider.StreamTimeout)
	envDuration("LEXGATE_PROVIDER_FEEDBACK_TIMEOUT", &cfg.Provider.FeedbackTimeout)

	// Limits
	envInt("LEXGATE_LIMITS_GLOBAL_REQUESTS", &cfg.Limits.Global.Requests)
	envInt("LEXGATE_LIMITS_CHAT_IP_REQUESTS", &cfg.Limits.ChatIP.Requests)
	envInt("LEXGATE_LIMITS_FEEDBACK_IP_REQUESTS", &cfg.Limits.FeedbackIP.Requests)

	// Sessions and budget
	envInt("LEXGATE_SESSIONS_PER_MONTH", &cfg.Sessions.PerMonth)
	if v := os.Getenv("LEXGATE_BUDGET_DAILY_CENTS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Budget.DailyCents = n
		}
	}

	// Telemetry
	envString("LEXGATE_TELEMETRY_SINK", &cfg.Telemetry.Sink)
	envString("LEXGATE_TELEMETRY_DSN", &cfg.Telemetry.DSN)

	// Logging configuration
	envString("LEXGATE_LOG_LEVEL", &cfg.Logging.Level)
	envString("LEXGATE_LOG_FORMAT", &cfg.Logging.Format)

	// Metrics configuration
	if v := os.Getenv("LEXGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}

	envString("LEXGATE_ALERTS_WEBHOOK_URL", &cfg.Alerts.WebhookURL)
	envString("LEXGATE_ALERTS_WEBHOOK_SECRET", &cfg.Alerts.WebhookSecret)

	envString("LEXGATE_ADMIN_TOKEN", &cfg.Admin.Token)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = "claude-3-haiku-20240307"
	}
	if cfg.Provider.APIVersion == "" {
		cfg.Provider.APIVersion = "2023-06-01"
	}
	if cfg.Provider.StreamTimeout == 0 {
		cfg.Provider.StreamTimeout = 60 * time.Second
	}
	if cfg.Provider.FeedbackTimeout == 0 {
		cfg.Provider.FeedbackTimeout = 15 * time.Second
	}

	defaultWindow(&cfg.Limits.Global, 1000, time.Hour)
	defaultWindow(&cfg.Limits.ChatIP, 20, time.Minute)
	defaultWindow(&cfg.Limits.FeedbackIP, 5, time.Minute)
	if cfg.Limits.SweepInterval == 0 {
		cfg.Limits.SweepInterval = time.Minute
	}

	if cfg.Sessions.PerMonth == 0 {
		cfg.Sessions.PerMonth = 3
	}
	if cfg.Sessions.MeteredTiers == nil {
		cfg.Sessions.MeteredTiers = []string{"free"}
	}

	if cfg.Budget.DailyCents == 0 {
		cfg.Budget.DailyCents = 1000
	}
	if cfg.Budget.InputPerMillionUSD == 0 {
		cfg.Budget.InputPerMillionUSD = 0.25
	}
	if cfg.Budget.OutputPerMillionUSD == 0 {
		cfg.Budget.OutputPerMillionUSD = 1.25
	}
	if cfg.Budget.ChatMaxTokens == 0 {
		cfg.Budget.ChatMaxTokens = 1024
	}
	if cfg.Budget.FeedbackMaxTokens == 0 {
		cfg.Budget.FeedbackMaxTokens = 1024
	}

	if cfg.Alerts.ErrorRate == 0 {
		cfg.Alerts.ErrorRate = 0.2
	}
	if cfg.Alerts.Latency == 0 {
		cfg.Alerts.Latency = 5 * time.Second
	}
	if cfg.Alerts.WebhookTimeout == 0 {
		cfg.Alerts.WebhookTimeout = 10 * time.Second
	}
	if cfg.Alerts.WebhookRetries == 0 {
		cfg.Alerts.WebhookRetries = 3
	}

	if cfg.Feedback.MinScore == 0 && cfg.Feedback.MaxScore == 0 {
		cfg.Feedback.MinScore = 1.0
		cfg.Feedback.MaxScore = 5.0
	}
	if cfg.Feedback.DefaultScore == 0 {
		cfg.Feedback.DefaultScore = 3.0
	}

	v := &cfg.Validation
	if v.MaxBodyBytes == 0 {
		v.MaxBodyBytes = 256 * 1024
	}
	if v.MaxMessages == 0 {
		v.MaxMessages = 100
	}
	if v.MaxContentChars == 0 {
		v.MaxContentChars = 4000
	}
	if v.MaxCaseContextChars == 0 {
		v.MaxCaseContextChars = 10000
	}
	if v.MaxSystemPromptChars == 0 {
		v.MaxSystemPromptChars = 20000
	}
	if v.MaxSessionSeconds == 0 {
		v.MaxSessionSeconds = 4 * 60 * 60
	}

	if cfg.Telemetry.Sink == "" {
		cfg.Telemetry.Sink = "log"
	}
	if cfg.Telemetry.DSN == "" {
		cfg.Telemetry.DSN = "lexgate.db"
	}
	if cfg.Telemetry.BatchSize == 0 {
		cfg.Telemetry.BatchSize = 100
	}
	if cfg.Telemetry.FlushInterval == 0 {
		cfg.Telemetry.FlushInterval = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func defaultWindow(w *WindowLimit, requests int, window time.Duration) {
	if w.Requests == 0 {
		w.Requests = requests
	}
	if w.Window == 0 {
		w.Window = window
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	u, err := url.Parse(cfg.Provider.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("provider.base_url must be an http(s) URL, got %q", cfg.Provider.BaseURL)
	}

	limits := map[string]WindowLimit{
		"limits.global":      cfg.Limits.Global,
		"limits.chat_ip":     cfg.Limits.ChatIP,
		"limits.feedback_ip": cfg.Limits.FeedbackIP,
	}
	for name, l := range limits {
		if l.Requests < 1 {
			return fmt.Errorf("%s.requests must be positive", name)
		}
		if l.Window < time.Second {
			return fmt.Errorf("%s.window must be at least 1s", name)
		}
	}

	if cfg.Sessions.PerMonth < 1 {
		return fmt.Errorf("sessions.per_month must be positive")
	}
	if cfg.Budget.DailyCents < 1 {
		return fmt.Errorf("budget.daily_cents must be positive")
	}
	if cfg.Budget.InputPerMillionUSD < 0 || cfg.Budget.OutputPerMillionUSD < 0 {
		return fmt.Errorf("budget prices must not be negative")
	}
	if cfg.Alerts.ErrorRate <= 0 || cfg.Alerts.ErrorRate > 1 {
		return fmt.Errorf("alerts.error_rate must be in (0, 1], got %v", cfg.Alerts.ErrorRate)
	}
	if cfg.Alerts.WebhookURL != "" {
		if ok, msg := webhook.ValidateURL(cfg.Alerts.WebhookURL); !ok {
			return fmt.Errorf("alerts.webhook_url: %s", msg)
		}
	}
	if cfg.Alerts.WebhookRetries < 0 {
		return fmt.Errorf("alerts.webhook_retries must not be negative, got %d", cfg.Alerts.WebhookRetries)
	}

	f := cfg.Feedback
	if f.MinScore >= f.MaxScore {
		return fmt.Errorf("feedback.min_score must be below feedback.max_score")
	}
	if f.DefaultScore < f.MinScore || f.DefaultScore > f.MaxScore {
		return fmt.Errorf("feedback.default_score must lie within the score range")
	}

	validSinks := map[string]bool{"log": true, "sqlite": true}
	if !validSinks[cfg.Telemetry.Sink] {
		return fmt.Errorf("telemetry.sink must be 'log' or 'sqlite', got %q", cfg.Telemetry.Sink)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
