package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/artpar/lexgate/config"
	"github.com/rs/zerolog"
)

func TestHolder_Get(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	got := h.Get()
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.Limits.ChatIP.Requests != 20 {
		t.Errorf("ChatIP.Requests = %d, want 20", got.Limits.ChatIP.Requests)
	}
}

func TestHolder_Reload(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	newContent := `
limits:
  chat_ip:
    requests: 40
budget:
  daily_cents: 5000
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	cfg := h.Get()
	if cfg.Limits.ChatIP.Requests != 40 {
		t.Errorf("reloaded ChatIP.Requests = %d, want 40", cfg.Limits.ChatIP.Requests)
	}
	if cfg.Budget.DailyCents != 5000 {
		t.Errorf("reloaded DailyCents = %d, want 5000", cfg.Budget.DailyCents)
	}
}

func TestHolder_OnChange(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var got *config.Config
	h.OnChange(func(cfg *config.Config) { got = cfg })

	if err := os.WriteFile(path, []byte("sessions:\n  per_month: 9\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	if got == nil {
		t.Fatal("OnChange callback not called")
	}
	if got.Sessions.PerMonth != 9 {
		t.Errorf("callback PerMonth = %d, want 9", got.Sessions.PerMonth)
	}
}

func TestHolder_ReloadInvalidConfig(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var reloadErr error
	h.OnError(func(err error) { reloadErr = err })
	changed := false
	h.OnChange(func(*config.Config) { changed = true })

	if err := os.WriteFile(path, []byte("budget:\n  daily_cents: -1\n"), 0644); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	if err := h.Reload(); err == nil {
		t.Error("Reload should fail for invalid config")
	}
	if reloadErr == nil {
		t.Error("OnError callback not called")
	}
	if changed {
		t.Error("OnChange should not run for a failed reload")
	}

	if got := h.Get().Budget.DailyCents; got != 1000 {
		t.Errorf("should keep old config, got DailyCents = %d", got)
	}
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	changed := make(chan struct{}, 8)
	h.OnChange(func(*config.Config) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	if err := os.WriteFile(path, []byte("limits:\n  feedback_ip:\n    requests: 2\n"), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("file watcher did not trigger reload")
	}

	// A write may arrive as several events; wait for the final content.
	deadline := time.Now().Add(2 * time.Second)
	for h.Get().Limits.FeedbackIP.Requests != 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := h.Get().Limits.FeedbackIP.Requests; got != 2 {
		t.Errorf("after file watch, FeedbackIP.Requests = %d, want 2", got)
	}
}

func TestHolder_StopTwice(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	h.Stop()
	h.Stop()
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if h.Get() == nil {
					t.Error("concurrent Get returned nil")
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}

	wg.Wait()
}

func TestReloadableFields(t *testing.T) {
	fields := config.ReloadableFields()
	for _, e := range []string{"limits", "budget", "alerts.error_rate", "logging.level"} {
		if !slices.Contains(fields, e) {
			t.Errorf("%s not in ReloadableFields", e)
		}
	}
}

func TestNonReloadableFields(t *testing.T) {
	fields := config.NonReloadableFields()
	for _, e := range []string{"server.port", "provider.api_key", "telemetry.sink", "admin.token"} {
		if !slices.Contains(fields, e) {
			t.Errorf("%s not in NonReloadableFields", e)
		}
	}
}

// Helpers

func validConfig() string {
	return `
server:
  port: 8080
provider:
  api_key: "sk-test"
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lexgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
