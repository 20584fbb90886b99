package memory_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/artpar/lexgate/adapters/clock"
	"github.com/artpar/lexgate/adapters/memory"
	"github.com/artpar/lexgate/domain/ratelimit"
	"github.com/rs/zerolog"
)

type countingSweeper struct {
	calls atomic.Int64
}

func (s *countingSweeper) Name() string { return "counting" }

func (s *countingSweeper) Sweep() int {
	s.calls.Add(1)
	return 1
}

func TestJanitor_SweepOnce(t *testing.T) {
	clk := clock.NewFake(baseTime)
	rl := memory.NewRateLimitStore(clk, memory.RateLimitStoreConfig{})
	sessions := memory.NewSessionStore(clk, memory.SessionStoreConfig{})
	ctx := context.Background()

	rl.Check(ctx, "chat:1.1.1.1", ratelimit.Policy{Limit: 1, Window: time.Minute})
	rl.Check(ctx, "chat:2.2.2.2", ratelimit.Policy{Limit: 1, Window: time.Minute})
	sessions.Reserve(ctx, "user-1", 3)

	observed := map[string]int{}
	j := memory.NewJanitor(time.Minute, zerolog.Nop(), rl, sessions)
	j.OnSweep(func(store string, removed int) { observed[store] = removed })

	clk.Advance(time.Minute)
	if removed := j.SweepOnce(); removed != 2 {
		t.Errorf("SweepOnce() = %d, want 2", removed)
	}
	if observed["rate_limit"] != 2 {
		t.Errorf("observed = %v, want rate_limit=2", observed)
	}
	if _, ok := observed["session_quota"]; ok {
		t.Error("stores with nothing removed should not be reported")
	}
}

func TestJanitor_StartStop(t *testing.T) {
	s := &countingSweeper{}
	j := memory.NewJanitor(5*time.Millisecond, zerolog.Nop(), s)

	j.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for s.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	j.Stop()

	if s.calls.Load() < 2 {
		t.Fatalf("sweeper called %d times, want at least 2", s.calls.Load())
	}

	after := s.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if s.calls.Load() != after {
		t.Error("sweeps continued after Stop")
	}

	// Stop is idempotent.
	j.Stop()
}

func TestJanitor_StopsOnContextCancel(t *testing.T) {
	j := memory.NewJanitor(time.Hour, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	j.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		j.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not exit after context cancel")
	}
}
