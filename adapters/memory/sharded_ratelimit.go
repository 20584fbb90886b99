// Package memory provides in-process implementations of the gateway's state ports.
package memory

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/artpar/lexgate/domain/ratelimit"
	"github.com/artpar/lexgate/ports"
)

// defaultShards is the shard count used when none is configured.
const defaultShards = 32

// shardIndex maps a key to a shard using FNV-1a.
func shardIndex(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// rateLimitShard is a single shard of the rate limit store.
type rateLimitShard struct {
	mu      sync.Mutex
	buckets map[string]ratelimit.Bucket
}

// RateLimitStore is a sharded in-memory fixed-window rate limit store.
// Every check runs read-decide-write under its shard lock, so concurrent
// requests for one key are serialized.
type RateLimitStore struct {
	shards []*rateLimitShard
	clock  ports.Clock
}

// RateLimitStoreConfig configures the rate limit store.
type RateLimitStoreConfig struct {
	NumShards int // Number of shards (default: 32)
}

// NewRateLimitStore creates a new sharded in-memory rate limit store.
func NewRateLimitStore(clk ports.Clock, cfg RateLimitStoreConfig) *RateLimitStore {
	if cfg.NumShards <= 0 {
		cfg.NumShards = defaultShards
	}

	s := &RateLimitStore{
		shards: make([]*rateLimitShard, cfg.NumShards),
		clock:  clk,
	}
	for i := range s.shards {
		s.shards[i] = &rateLimitShard{
			buckets: make(map[string]ratelimit.Bucket),
		}
	}
	return s
}

func (s *RateLimitStore) getShard(key string) *rateLimitShard {
	return s.shards[shardIndex(key, len(s.shards))]
}

// Check atomically evaluates and records one request against key's window.
func (s *RateLimitStore) Check(ctx context.Context, key string, policy ratelimit.Policy) (ratelimit.Result, error) {
	now := s.clock.Now()
	shard := s.getShard(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	result, bucket := ratelimit.Check(shard.buckets[key], policy, now)
	if result.Allowed {
		shard.buckets[key] = bucket
	}
	return result, nil
}

// Sweep removes expired buckets and returns how many were removed.
func (s *RateLimitStore) Sweep() int {
	now := s.clock.Now()
	removed := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key, b := range shard.buckets {
			if ratelimit.Expired(b, now) {
				delete(shard.buckets, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// Name identifies the store in sweep logs and metrics.
func (s *RateLimitStore) Name() string {
	return "rate_limit"
}

// Len returns the total number of buckets across all shards.
func (s *RateLimitStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.buckets)
		shard.mu.Unlock()
	}
	return total
}

// Clear removes all state (for testing).
func (s *RateLimitStore) Clear() {
	for _, shard := range s.shards {
		shard.mu.Lock()
		shard.buckets = make(map[string]ratelimit.Bucket)
		shard.mu.Unlock()
	}
}

// Ensure interface compliance.
var _ ports.RateLimitStore = (*RateLimitStore)(nil)
