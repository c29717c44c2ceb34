package services

import (
	"context"
	"sync"
	"time"

	"github.com/sentinelfi/pioneerwatch/internal/utils"
)

// keyedLock serializes work per string key. Distinct keys proceed fully in
// parallel; acquisition is bounded by a timeout so a stuck holder surfaces as
// a per-key conflict instead of wedging the pipeline.
type keyedLock struct {
	mu      sync.Mutex
	holders map[string]chan struct{}
	timeout time.Duration
}

func newKeyedLock(timeout time.Duration) *keyedLock {
	return &keyedLock{
		holders: make(map[string]chan struct{}),
		timeout: timeout,
	}
}

// acquire takes the lock for key, waiting up to the configured timeout. The
// returned release function must be called exactly once. A timeout or context
// cancellation yields a ConflictError for that key.
func (l *keyedLock) acquire(ctx context.Context, key string) (func(), error) {
	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	for {
		l.mu.Lock()
		ch, held := l.holders[key]
		if !held {
			done := make(chan struct{})
			l.holders[key] = done
			l.mu.Unlock()
			return func() {
				l.mu.Lock()
				delete(l.holders, key)
				l.mu.Unlock()
				close(done)
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
			// Holder released; retry the take.
		case <-timer.C:
			return nil, utils.NewConflictError(key)
		case <-ctx.Done():
			return nil, utils.NewConflictError(key)
		}
	}
}
