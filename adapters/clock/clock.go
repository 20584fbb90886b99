// Package clock provides Clock implementations.
// All clocks report UTC so day and month keys never depend on the host zone.
package clock

import (
	"sync"
	"time"

	"github.com/artpar/lexgate/ports"
)

// Real returns the actual current time in UTC.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Fake provides a controllable clock for testing.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFake creates a fake clock set to the given time.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t.UTC()}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Set sets the fake current time.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t.UTC()
}

// Advance moves the fake time forward by duration d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// Ensure interface compliance.
var (
	_ ports.Clock = Real{}
	_ ports.Clock = (*Fake)(nil)
)
