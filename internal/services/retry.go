package services

import (
	"context"
	"time"

	"github.com/sentinelfi/pioneerwatch/internal/utils"
)

// RetryPolicy bounds retries of transient I/O failures at the collaborator
// boundary. Pure computation is never retried; only persistence and dispatch
// cross this policy.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// run invokes fn up to MaxAttempts times, backing off between attempts.
// Non-transient errors abort immediately.
func (p RetryPolicy) run(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.Backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if !utils.IsTransient(err) {
			return err
		}
	}
	return err
}
