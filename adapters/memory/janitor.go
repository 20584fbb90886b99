package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper is a store whose expired entries can be removed in bulk.
type Sweeper interface {
	Name() string
	Sweep() int
}

// SweepObserver is notified of every sweep that removed entries.
type SweepObserver func(store string, removed int)

// Janitor periodically sweeps expired entries from in-memory stores.
type Janitor struct {
	interval time.Duration
	sweepers []Sweeper
	logger   zerolog.Logger
	observe  SweepObserver

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewJanitor creates a janitor that sweeps every interval (default: 60s).
func NewJanitor(interval time.Duration, logger zerolog.Logger, sweepers ...Sweeper) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		interval: interval,
		sweepers: sweepers,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// OnSweep registers a callback invoked after each store sweep that removed entries.
func (j *Janitor) OnSweep(fn SweepObserver) {
	j.observe = fn
}

// Start runs the sweep loop until ctx is cancelled or Stop is called.
func (j *Janitor) Start(ctx context.Context) {
	j.wg.Add(1)
	go j.loop(ctx)
}

func (j *Janitor) loop(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.SweepOnce()
		case <-ctx.Done():
			return
		case <-j.done:
			return
		}
	}
}

// SweepOnce sweeps every store immediately and returns the total removed.
func (j *Janitor) SweepOnce() int {
	total := 0
	for _, s := range j.sweepers {
		removed := s.Sweep()
		if removed == 0 {
			continue
		}
		total += removed
		j.logger.Debug().
			Str("store", s.Name()).
			Int("removed", removed).
			Msg("swept expired entries")
		if j.observe != nil {
			j.observe(s.Name(), removed)
		}
	}
	return total
}

// Stop halts the sweep loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
	})
	j.wg.Wait()
}
