package memory

import (
	"sync"
	"time"

	"github.com/artpar/lexgate/domain/usage"
	"github.com/artpar/lexgate/ports"
)

// UsageLedger is the in-memory owner of daily, lifetime and trailing-window usage.
// A single mutex guards all three; every accessor rolls the daily counters over
// to the current UTC day before reading or applying an update.
type UsageLedger struct {
	mu        sync.Mutex
	clock     ports.Clock
	retention time.Duration
	daily     usage.Daily
	lifetime  usage.Lifetime
	window    []usage.WindowEntry
}

// NewUsageLedger creates a ledger whose trailing window keeps entries for retention
// (default: 1h).
func NewUsageLedger(clk ports.Clock, retention time.Duration) *UsageLedger {
	if retention <= 0 {
		retention = time.Hour
	}
	now := clk.Now()
	return &UsageLedger{
		clock:     clk,
		retention: retention,
		daily:     usage.Daily{Date: usage.Day(now)},
	}
}

// rollLocked adopts today's date, zeroing the daily counters on a date change.
func (l *UsageLedger) rollLocked(now time.Time) {
	l.daily = usage.Roll(l.daily, usage.Day(now))
}

// pruneLocked drops window entries older than the retention period in place.
func (l *UsageLedger) pruneLocked(now time.Time) {
	kept := usage.Prune(l.window, now, l.retention)
	if len(kept) == len(l.window) {
		return
	}
	n := copy(l.window, kept)
	clear(l.window[n:])
	l.window = l.window[:n]
}

// AddTokens adds token counts to today's and lifetime counters.
func (l *UsageLedger) AddTokens(inputTokens, outputTokens int64) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollLocked(now)
	l.daily.InputTokens += inputTokens
	l.daily.OutputTokens += outputTokens
	l.lifetime.InputTokens += inputTokens
	l.lifetime.OutputTokens += outputTokens
}

// AddRequest counts one provider call and appends it to the trailing window.
func (l *UsageLedger) AddRequest(success bool, latencyMs int64) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollLocked(now)
	l.daily.Requests++
	if !success {
		l.daily.Errors++
	}
	l.daily.LatencySumMs += latencyMs
	l.lifetime.Requests++

	l.pruneLocked(now)
	l.window = append(l.window, usage.WindowEntry{
		Timestamp: now,
		Success:   success,
		LatencyMs: latencyMs,
	})
}

// Daily returns today's counters.
func (l *UsageLedger) Daily() usage.Daily {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollLocked(now)
	return l.daily
}

// Lifetime returns the process-lifetime counters.
func (l *UsageLedger) Lifetime() usage.Lifetime {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lifetime
}

// Window returns a copy of the trailing window after pruning it.
func (l *UsageLedger) Window() []usage.WindowEntry {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)
	out := make([]usage.WindowEntry, len(l.window))
	copy(out, l.window)
	return out
}

// Ensure interface compliance.
var _ ports.UsageLedger = (*UsageLedger)(nil)
