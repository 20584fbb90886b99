package memory

import (
	"context"
	"sync"

	"github.com/artpar/lexgate/domain/quota"
	"github.com/artpar/lexgate/ports"
)

// sessionShard is a single shard of the session store.
type sessionShard struct {
	mu      sync.Mutex
	buckets map[string]quota.Bucket
}

// SessionStore is a sharded in-memory store of monthly session counts.
// Buckets are keyed by user and UTC month, so a new month starts from zero
// without any explicit reset.
type SessionStore struct {
	shards []*sessionShard
	clock  ports.Clock
}

// SessionStoreConfig configures the session store.
type SessionStoreConfig struct {
	NumShards int // Number of shards (default: 32)
}

// NewSessionStore creates a new sharded in-memory session store.
func NewSessionStore(clk ports.Clock, cfg SessionStoreConfig) *SessionStore {
	if cfg.NumShards <= 0 {
		cfg.NumShards = defaultShards
	}

	s := &SessionStore{
		shards: make([]*sessionShard, cfg.NumShards),
		clock:  clk,
	}
	for i := range s.shards {
		s.shards[i] = &sessionShard{
			buckets: make(map[string]quota.Bucket),
		}
	}
	return s
}

func (s *SessionStore) getShard(key string) *sessionShard {
	return s.shards[shardIndex(key, len(s.shards))]
}

// Check reports whether the user may start another session this month.
func (s *SessionStore) Check(ctx context.Context, userID string, limit int) (quota.Result, error) {
	now := s.clock.Now()
	key := quota.Key(userID, now)
	shard := s.getShard(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	return quota.Check(shard.buckets[key], limit, now), nil
}

// Reserve checks the quota and counts one session under the same shard lock,
// so concurrent session starts for one user never exceed the limit.
func (s *SessionStore) Reserve(ctx context.Context, userID string, limit int) (quota.Result, error) {
	now := s.clock.Now()
	key := quota.Key(userID, now)
	shard := s.getShard(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	b, res := quota.Reserve(shard.buckets[key], limit, now)
	if res.Allowed {
		shard.buckets[key] = b
		res.Key = key
	}
	return res, nil
}

// Release returns a session reserved in the bucket key.
func (s *SessionStore) Release(ctx context.Context, key string) error {
	shard := s.getShard(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if b, ok := shard.buckets[key]; ok {
		shard.buckets[key] = quota.Release(b, s.clock.Now())
	}
	return nil
}

// Sweep removes buckets of months that have ended.
func (s *SessionStore) Sweep() int {
	now := s.clock.Now()
	removed := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key, b := range shard.buckets {
			if quota.Expired(b, now) {
				delete(shard.buckets, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// Name identifies the store in sweep logs and metrics.
func (s *SessionStore) Name() string {
	return "session_quota"
}

// Len returns the total number of buckets across all shards.
func (s *SessionStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.buckets)
		shard.mu.Unlock()
	}
	return total
}

// Ensure interface compliance.
var _ ports.SessionStore = (*SessionStore)(nil)
