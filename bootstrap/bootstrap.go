// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/artpar/lexgate/adapters/clock"
	lexhttp "github.com/artpar/lexgate/adapters/http"
	"github.com/artpar/lexgate/adapters/http/admin"
	"github.com/artpar/lexgate/adapters/idgen"
	"github.com/artpar/lexgate/adapters/memory"
	"github.com/artpar/lexgate/adapters/metrics"
	"github.com/artpar/lexgate/adapters/provider"
	"github.com/artpar/lexgate/adapters/sqlite"
	"github.com/artpar/lexgate/app"
	"github.com/artpar/lexgate/config"
	"github.com/artpar/lexgate/domain/budget"
	"github.com/artpar/lexgate/domain/feedback"
	"github.com/artpar/lexgate/domain/ratelimit"
	"github.com/artpar/lexgate/domain/usage"
	"github.com/artpar/lexgate/domain/validation"
	"github.com/artpar/lexgate/domain/webhook"
	"github.com/artpar/lexgate/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	DB         *sqlite.DB // Nil unless telemetry.sink is sqlite
	HTTPServer *http.Server
	Metrics    *metrics.Collector // Nil when metrics are disabled
	Gateway    *app.Gateway
	Health     *lexhttp.HealthHandler

	provider  *provider.Anthropic
	telemetry *TelemetryRecorder
	notifier  *app.AlertNotifier
	janitor   *memory.Janitor
	holder    *config.Holder

	shutdownOnce sync.Once
}

// Options provides optional configuration for application initialization.
type Options struct {
	// Version is reported by GET /version.
	Version string

	// LogOutput receives log lines (default: os.Stdout).
	LogOutput io.Writer

	// Clock overrides the wall clock, for tests.
	Clock ports.Clock

	// Holder enables hot reload. Its current config is used instead of the cfg argument.
	Holder *config.Holder
}

// New creates and initializes the application.
func New(cfg *config.Config, opts Options) (*App, error) {
	if opts.Holder != nil {
		cfg = opts.Holder.Get()
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stdout
	}
	var clk ports.Clock = clock.Real{}
	if opts.Clock != nil {
		clk = opts.Clock
	}

	logger := SetupLogger(cfg.Logging, opts.LogOutput)
	logger.Info().Msg("initializing lexgate")

	a := &App{
		Logger: logger,
		Config: cfg,
		holder: opts.Holder,
	}

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(registry)
		logger.Info().Msg("prometheus metrics enabled")
	}

	var telemetryStore ports.TelemetryStore
	var recorder ports.TelemetryRecorder
	if cfg.Telemetry.Sink == "sqlite" {
		if err := a.initDatabase(cfg.Telemetry.DSN); err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		store := sqlite.NewTelemetryStore(a.DB)
		a.telemetry = NewTelemetryRecorder(store, cfg.Telemetry.BatchSize, cfg.Telemetry.FlushInterval, logger)
		telemetryStore = store
		recorder = a.telemetry
	}

	prov, err := provider.New(provider.Config{
		BaseURL:         cfg.Provider.BaseURL,
		APIKey:          cfg.Provider.APIKey,
		Model:           cfg.Provider.Model,
		APIVersion:      cfg.Provider.APIVersion,
		StreamTimeout:   cfg.Provider.StreamTimeout,
		CompleteTimeout: cfg.Provider.FeedbackTimeout,
		MaxIdleConns:    cfg.Provider.MaxIdleConns,
		IdleConnTimeout: cfg.Provider.IdleConnTimeout,
	})
	if err != nil {
		a.closeStorage()
		return nil, fmt.Errorf("init provider: %w", err)
	}
	a.provider = prov
	if !prov.Configured() {
		logger.Warn().Msg("provider API key not set; chat and feedback will report PROVIDER_NOT_CONFIGURED")
	}

	rateLimits := memory.NewRateLimitStore(clk, memory.RateLimitStoreConfig{})
	sessions := memory.NewSessionStore(clk, memory.SessionStoreConfig{})

	var gm ports.GatewayMetrics
	if a.Metrics != nil {
		gm = a.Metrics
	}

	var notifier ports.AlertNotifier
	if cfg.Alerts.WebhookURL != "" {
		a.notifier = app.NewAlertNotifier(app.AlertNotifierDeps{
			Target: webhook.Target{
				URL:        cfg.Alerts.WebhookURL,
				Secret:     cfg.Alerts.WebhookSecret,
				MaxRetries: cfg.Alerts.WebhookRetries,
				Timeout:    cfg.Alerts.WebhookTimeout,
			},
			Logger: logger,
		})
		notifier = a.notifier
		logger.Info().Msg("alert webhook enabled")
	}

	a.Gateway = app.NewGateway(app.GatewayDeps{
		RateLimits: rateLimits,
		Sessions:   sessions,
		Ledger:     memory.NewUsageLedger(clk, time.Hour),
		Provider:   prov,
		Telemetry:  recorder,
		Metrics:    gm,
		Notifier:   notifier,
		Clock:      clk,
		IDGen:      idgen.UUID{},
		Logger:     logger,
	}, PolicyFromConfig(cfg))

	a.janitor = memory.NewJanitor(cfg.Limits.SweepInterval, logger, rateLimits, sessions)
	if a.Metrics != nil {
		a.janitor.OnSweep(a.Metrics.SweepObserved)
	}

	a.Health = lexhttp.NewHealthHandler(prov)

	routerCfg := lexhttp.RouterConfig{
		Metrics:        a.Metrics,
		RequestTimeout: cfg.Server.RequestTimeout,
		Version:        opts.Version,
	}
	if registry != nil {
		routerCfg.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}
	if cfg.Admin.Token != "" {
		routerCfg.AdminHandler = admin.NewHandler(admin.Deps{
			Gateway:   a.Gateway,
			Telemetry: telemetryStore,
			Clock:     clk,
			Token:     cfg.Admin.Token,
			Version:   opts.Version,
			Logger:    logger,
		}).Router()
		logger.Info().Msg("admin API mounted at /admin")
	}

	router := lexhttp.NewRouter(lexhttp.NewGatewayHandler(a.Gateway, logger), a.Health, logger, routerCfg)

	a.HTTPServer = &http.Server{
		Addr:        cfg.Addr(),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// Streams clear their own write deadline.
		WriteTimeout: cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if a.holder != nil {
		a.holder.OnChange(a.ApplyConfig)
		a.holder.OnError(func(error) {
			if a.Metrics != nil {
				a.Metrics.ConfigReloadErrors.Inc()
			}
		})
	}

	logger.Info().
		Str("addr", a.HTTPServer.Addr).
		Str("telemetry", cfg.Telemetry.Sink).
		Str("model", prov.Model()).
		Msg("http server configured")
	return a, nil
}

func (a *App) initDatabase(dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	a.DB = db
	a.Logger.Info().Str("dsn", dsn).Msg("telemetry database initialized")
	return nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.HTTPServer.Handler
}

// ApplyConfig applies the reloadable parts of cfg to the running application.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.Gateway.UpdatePolicy(PolicyFromConfig(cfg))

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if a.Metrics != nil {
		a.Metrics.ConfigReloads.Inc()
		a.Metrics.ConfigLastReload.SetToCurrentTime()
	}
	a.Logger.Info().Msg("policy updated from configuration")
}

// Start begins background maintenance and, when configured, config watching.
func (a *App) Start(ctx context.Context) error {
	a.janitor.Start(ctx)

	if a.holder != nil {
		if err := a.holder.WatchFile(); err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		a.holder.WatchSignals()
	}
	return nil
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application. Safe to call more than once.
func (a *App) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.Health.SetDraining()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}

		a.janitor.Stop()

		if a.notifier != nil {
			a.notifier.Close()
		}

		if a.holder != nil {
			a.holder.Stop()
		}

		a.closeStorage()

		a.Logger.Info().Msg("shutdown complete")
	})
	return nil
}

// closeStorage flushes telemetry and closes the database.
func (a *App) closeStorage() {
	if a.telemetry != nil {
		if err := a.telemetry.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("telemetry recorder close error")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}
}

// PolicyFromConfig builds the gateway policy from configuration.
func PolicyFromConfig(cfg *config.Config) app.Policy {
	v := cfg.Validation
	return app.Policy{
		Validation: validation.Limits{
			MaxBodyBytes:         v.MaxBodyBytes,
			MaxMessages:          v.MaxMessages,
			MaxContentChars:      v.MaxContentChars,
			MaxCaseContextChars:  v.MaxCaseContextChars,
			MaxSystemPromptChars: v.MaxSystemPromptChars,
			MaxSessionSeconds:    v.MaxSessionSeconds,
		},
		Global:            windowPolicy(cfg.Limits.Global),
		ChatIP:            windowPolicy(cfg.Limits.ChatIP),
		FeedbackIP:        windowPolicy(cfg.Limits.FeedbackIP),
		SessionsPerMonth:  cfg.Sessions.PerMonth,
		MeteredTiers:      cfg.Sessions.MeteredTiers,
		DailyBudgetCents:  cfg.Budget.DailyCents,
		Pricing:           budget.NewPricing(cfg.Budget.InputPerMillionUSD, cfg.Budget.OutputPerMillionUSD),
		Thresholds:        usage.Thresholds{ErrorRate: cfg.Alerts.ErrorRate, Latency: cfg.Alerts.Latency},
		ScoreRange:        feedback.Range{Min: cfg.Feedback.MinScore, Max: cfg.Feedback.MaxScore, Default: cfg.Feedback.DefaultScore},
		ChatMaxTokens:     cfg.Budget.ChatMaxTokens,
		FeedbackMaxTokens: cfg.Budget.FeedbackMaxTokens,
	}
}

func windowPolicy(w config.WindowLimit) ratelimit.Policy {
	return ratelimit.Policy{Limit: w.Requests, Window: w.Window}
}

// SetupLogger builds the process logger from the logging section.
func SetupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}
