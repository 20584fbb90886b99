package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder provides thread-safe access to configuration with hot reload support.
type Holder struct {
	mu       sync.RWMutex
	reloadMu sync.Mutex
	config   *Config
	path     string
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	onError  []func(error)
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewHolder creates a new config holder and loads the initial configuration.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	return &Holder{
		config: cfg,
		path:   absPath,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Get returns the current configuration (thread-safe).
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Reload reloads the configuration from disk.
// Returns error if loading fails (keeps old config).
func (h *Holder) Reload() error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	h.logger.Info().Str("path", h.path).Msg("reloading configuration")

	newCfg, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Msg("config reload failed, keeping old config")
		err = fmt.Errorf("reload config: %w", err)
		for _, fn := range h.errorListeners() {
			fn(err)
		}
		return err
	}

	h.mu.Lock()
	oldCfg := h.config
	h.config = newCfg
	listeners := append([]func(*Config){}, h.onChange...)
	h.mu.Unlock()

	h.logChanges(oldCfg, newCfg)

	for _, fn := range listeners {
		fn(newCfg)
	}

	h.logger.Info().Msg("configuration reloaded successfully")
	return nil
}

func (h *Holder) errorListeners() []func(error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]func(error){}, h.onError...)
}

// OnChange registers a callback to be called when config changes.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// OnError registers a callback to be called when a reload fails.
func (h *Holder) OnError(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = append(h.onError, fn)
}

// WatchFile starts watching the config file for changes.
// Changes trigger automatic reload.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	// Watch the directory (more reliable for editors that do atomic saves)
	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go h.watchLoop()

	h.logger.Info().Str("path", h.path).Msg("watching config file for changes")
	return nil
}

// WatchSignals starts listening for SIGHUP to trigger reload.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, reloading config")
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
			case <-h.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()

	h.logger.Info().Msg("listening for SIGHUP to reload config")
}

// Stop stops watching for file changes and signals. Safe to call more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop() {
	filename := filepath.Base(h.path)

	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filename {
				continue
			}

			// React to write or create (atomic save = create)
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.logger.Debug().
					Str("event", event.Op.String()).
					Str("file", event.Name).
					Msg("config file changed")

				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("file watch reload failed")
				}
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("file watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) logChanges(old, new *Config) {
	if old.Logging.Level != new.Logging.Level {
		h.logger.Info().
			Str("old", old.Logging.Level).
			Str("new", new.Logging.Level).
			Msg("log level changed")
	}

	if old.Budget.DailyCents != new.Budget.DailyCents {
		h.logger.Info().
			Int64("old", old.Budget.DailyCents).
			Int64("new", new.Budget.DailyCents).
			Msg("daily budget changed")
	}

	if old.Limits.ChatIP != new.Limits.ChatIP || old.Limits.FeedbackIP != new.Limits.FeedbackIP ||
		old.Limits.Global != new.Limits.Global {
		h.logger.Info().Msg("rate limits changed")
	}

	if old.Sessions.PerMonth != new.Sessions.PerMonth {
		h.logger.Info().
			Int("old", old.Sessions.PerMonth).
			Int("new", new.Sessions.PerMonth).
			Msg("session quota changed")
	}

	for _, field := range changedRestartFields(old, new) {
		h.logger.Warn().Str("field", field).Msg("setting changed but requires a restart")
	}
}

func changedRestartFields(old, new *Config) []string {
	var changed []string
	if old.Server.Host != new.Server.Host {
		changed = append(changed, "server.host")
	}
	if old.Server.Port != new.Server.Port {
		changed = append(changed, "server.port")
	}
	if old.Provider.BaseURL != new.Provider.BaseURL {
		changed = append(changed, "provider.base_url")
	}
	if old.Provider.APIKey != new.Provider.APIKey {
		changed = append(changed, "provider.api_key")
	}
	if old.Provider.Model != new.Provider.Model {
		changed = append(changed, "provider.model")
	}
	if old.Telemetry.Sink != new.Telemetry.Sink || old.Telemetry.DSN != new.Telemetry.DSN {
		changed = append(changed, "telemetry")
	}
	if old.Alerts.WebhookURL != new.Alerts.WebhookURL || old.Alerts.WebhookSecret != new.Alerts.WebhookSecret {
		changed = append(changed, "alerts.webhook")
	}
	if old.Admin.Token != new.Admin.Token {
		changed = append(changed, "admin.token")
	}
	return changed
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string {
	return []string{
		"limits",
		"sessions",
		"budget",
		"alerts.error_rate",
		"alerts.latency",
		"feedback",
		"validation",
		"logging.level",
	}
}

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string {
	return []string{
		"server.host",
		"server.port",
		"provider.base_url",
		"provider.api_key",
		"provider.model",
		"provider.stream_timeout",
		"provider.feedback_timeout",
		"telemetry.sink",
		"telemetry.dsn",
		"alerts.webhook_url",
		"alerts.webhook_secret",
		"alerts.webhook_timeout",
		"alerts.webhook_retries",
		"admin.token",
	}
}
