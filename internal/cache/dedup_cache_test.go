package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDedup(t *testing.T) (*TransactionDedup, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewTransactionDedup(client, time.Hour), mr
}

func TestMarkSeenFirstObservation(t *testing.T) {
	dedup, _ := newTestDedup(t)

	first, err := dedup.MarkSeen(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestMarkSeenDuplicate(t *testing.T) {
	dedup, _ := newTestDedup(t)
	ctx := context.Background()

	_, err := dedup.MarkSeen(ctx, "0xabc")
	require.NoError(t, err)

	first, err := dedup.MarkSeen(ctx, "0xabc")
	require.NoError(t, err)
	assert.False(t, first)

	stats := dedup.Stats()
	assert.Equal(t, int64(1), stats.FirstSeen)
	assert.Equal(t, int64(1), stats.Duplicates)
}

func TestMarkSeenExpiresWithTTL(t *testing.T) {
	dedup, mr := newTestDedup(t)
	ctx := context.Background()

	_, err := dedup.MarkSeen(ctx, "0xabc")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	first, err := dedup.MarkSeen(ctx, "0xabc")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestForgetAllowsReobservation(t *testing.T) {
	dedup, _ := newTestDedup(t)
	ctx := context.Background()

	_, err := dedup.MarkSeen(ctx, "0xabc")
	require.NoError(t, err)

	require.NoError(t, dedup.Forget(ctx, "0xabc"))

	first, err := dedup.MarkSeen(ctx, "0xabc")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestMarkSeenRedisDown(t *testing.T) {
	dedup, mr := newTestDedup(t)
	mr.Close()

	_, err := dedup.MarkSeen(context.Background(), "0xabc")
	assert.Error(t, err)
}
