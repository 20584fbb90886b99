package memory_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/artpar/lexgate/adapters/clock"
	"github.com/artpar/lexgate/adapters/memory"
)

func TestSessionStore_CheckAndReserve(t *testing.T) {
	store := memory.NewSessionStore(clock.NewFake(baseTime), memory.SessionStoreConfig{})
	ctx := context.Background()

	res, err := store.Check(ctx, "user-1", 3)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !res.Allowed || res.Used != 0 || res.Limit != 3 {
		t.Errorf("fresh Check = %+v, want allowed with 0 used of 3", res)
	}

	for i := 0; i < 3; i++ {
		r, err := store.Reserve(ctx, "user-1", 3)
		if err != nil {
			t.Fatalf("Reserve failed: %v", err)
		}
		if !r.Allowed || r.Key != "user-1:2024-01" {
			t.Fatalf("Reserve %d = %+v", i+1, r)
		}
	}

	res, _ = store.Check(ctx, "user-1", 3)
	if res.Allowed {
		t.Error("4th session should be denied")
	}
	if res.Used != 3 {
		t.Errorf("Used = %d, want 3", res.Used)
	}
	if res.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", res.Remaining())
	}

	other, _ := store.Check(ctx, "user-2", 3)
	if !other.Allowed || other.Used != 0 {
		t.Errorf("other user Check = %+v, want untouched", other)
	}
}

func TestSessionStore_CheckDoesNotIncrement(t *testing.T) {
	store := memory.NewSessionStore(clock.NewFake(baseTime), memory.SessionStoreConfig{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		store.Check(ctx, "user-1", 1)
	}
	if res, _ := store.Check(ctx, "user-1", 1); !res.Allowed {
		t.Error("Check alone must not consume sessions")
	}
}

func TestSessionStore_MonthRollover(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC))
	store := memory.NewSessionStore(clk, memory.SessionStoreConfig{})
	ctx := context.Background()

	store.Reserve(ctx, "user-1", 2)
	store.Reserve(ctx, "user-1", 2)
	if res, _ := store.Check(ctx, "user-1", 2); res.Allowed {
		t.Fatal("quota should be exhausted in January")
	}

	clk.Advance(2 * time.Minute)

	res, _ := store.Check(ctx, "user-1", 2)
	if !res.Allowed || res.Used != 0 {
		t.Errorf("February Check = %+v, want a fresh month", res)
	}

	if removed := store.Sweep(); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1 January bucket", removed)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestSessionStore_ReserveDeniedDoesNotCount(t *testing.T) {
	store := memory.NewSessionStore(clock.NewFake(baseTime), memory.SessionStoreConfig{})
	ctx := context.Background()

	store.Reserve(ctx, "user-1", 1)
	r, _ := store.Reserve(ctx, "user-1", 1)
	if r.Allowed || r.Key != "" || r.Used != 1 {
		t.Errorf("Reserve over limit = %+v, want denied at 1 used", r)
	}
	if res, _ := store.Check(ctx, "user-1", 5); res.Used != 1 {
		t.Errorf("Used = %d after denied reserve, want 1", res.Used)
	}
}

func TestSessionStore_Release(t *testing.T) {
	clk := clock.NewFake(baseTime)
	store := memory.NewSessionStore(clk, memory.SessionStoreConfig{})
	ctx := context.Background()

	r, _ := store.Reserve(ctx, "user-1", 1)
	if err := store.Release(ctx, r.Key); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if res, _ := store.Check(ctx, "user-1", 1); !res.Allowed || res.Used != 0 {
		t.Errorf("Check after release = %+v, want the slot back", res)
	}

	// Unknown keys are ignored.
	if err := store.Release(ctx, "nobody:2024-01"); err != nil {
		t.Errorf("Release of unknown key: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestSessionStore_ConcurrentReserve(t *testing.T) {
	store := memory.NewSessionStore(clock.NewFake(baseTime), memory.SessionStoreConfig{})
	ctx := context.Background()

	const limit = 3
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r, _ := store.Reserve(ctx, "user-1", limit); r.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != limit {
		t.Errorf("allowed = %d, want %d", got, limit)
	}
	if res, _ := store.Check(ctx, "user-1", limit); res.Used != limit {
		t.Errorf("Used = %d, want %d", res.Used, limit)
	}
}
