package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupStats tracks duplicate-suppression counters.
type DedupStats struct {
	FirstSeen  int64 `json:"first_seen"`
	Duplicates int64 `json:"duplicates"`
	mu         sync.RWMutex
}

// TransactionDedup suppresses duplicate transaction deliveries from the feed.
// Backed by Redis SETNX with a TTL, so re-orgs and feed reconnects replaying
// recent blocks do not double-process transactions, while old hashes age out
// on their own.
type TransactionDedup struct {
	redis  *redis.Client
	ttl    time.Duration
	stats  *DedupStats
	prefix string
}

// NewTransactionDedup creates a dedup cache. The TTL should comfortably cover
// the feed's replay horizon; entries are only ever written, never read back.
func NewTransactionDedup(redisClient *redis.Client, ttl time.Duration) *TransactionDedup {
	return &TransactionDedup{
		redis:  redisClient,
		ttl:    ttl,
		stats:  &DedupStats{},
		prefix: "seen_tx:",
	}
}

// MarkSeen records a transaction hash and reports whether this was its first
// observation. A Redis failure is returned to the caller, which treats the
// transaction as unseen rather than dropping it.
func (c *TransactionDedup) MarkSeen(ctx context.Context, hash string) (bool, error) {
	first, err := c.redis.SetNX(ctx, c.prefix+hash, 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("marking transaction seen: %w", err)
	}

	c.stats.mu.Lock()
	if first {
		c.stats.FirstSeen++
	} else {
		c.stats.Duplicates++
	}
	c.stats.mu.Unlock()

	return first, nil
}

// Forget drops a hash so it can be observed again; used when processing a
// transaction failed after the dedup mark was taken.
func (c *TransactionDedup) Forget(ctx context.Context, hash string) error {
	if err := c.redis.Del(ctx, c.prefix+hash).Err(); err != nil {
		return fmt.Errorf("forgetting transaction: %w", err)
	}
	return nil
}

// Stats returns a copy of the current counters.
func (c *TransactionDedup) Stats() DedupStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return DedupStats{
		FirstSeen:  c.stats.FirstSeen,
		Duplicates: c.stats.Duplicates,
	}
}
