// Package idgen provides identifiers for telemetry records and provider calls.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/artpar/lexgate/ports"
	"github.com/google/uuid"
)

// UUID generates time-ordered UUIDs (version 7), so telemetry rows sort by
// creation time when ordered by ID.
type UUID struct{}

// New generates a new UUID v7, falling back to v4 if the clock source fails.
func (UUID) New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Sequential generates "<prefix><n>" IDs (for testing).
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New returns the next ID, starting at 1.
func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.counter.Add(1), 10)
}

// Ensure interface compliance.
var (
	_ ports.IDGenerator = UUID{}
	_ ports.IDGenerator = (*Sequential)(nil)
)
