package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetSetExpire(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v)

	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Set(ctx, "ttl-key", "v", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	_, ok, err = s.Get(ctx, "ttl-key")
	require.NoError(t, err)
	assert.False(t, ok, "expired key must not be returned")
}

func TestMemoryStoreTTLAndExpire(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	ttl, err := s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl, "no TTL set should report -1")

	require.NoError(t, s.Expire(ctx, "k", time.Minute))
	ttl, err = s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestMemoryStoreRPush(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.RPush(ctx, "list", "a"))
	require.NoError(t, s.RPush(ctx, "list", "b"))
	assert.Equal(t, 2, s.ListLen("list"))
}

func TestMemoryStoreHash(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	exists, err := s.HExists(ctx, "h", "f")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.HSet(ctx, "h", map[string]string{"f": "1", "g": "2"}))
	exists, err = s.HExists(ctx, "h", "f")
	require.NoError(t, err)
	assert.True(t, exists)

	all, err := s.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"f": "1", "g": "2"}, all)

	n, err := s.HIncrBy(ctx, "h", "counter", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.HIncrBy(ctx, "h", "counter", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestMemoryStoreSortedSetMonotonicMax(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.ZAdd(ctx, "top", map[string]float64{"metric.a": 10}))
	score, ok, err := s.ZScore(ctx, "top", "metric.a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.0, score)

	// A caller implementing the monotonic-max leaderboard pattern reads the
	// current score, compares, and only writes when the new value is larger.
	if newVal := 5.0; newVal > score {
		require.NoError(t, s.ZAdd(ctx, "top", map[string]float64{"metric.a": newVal}))
	}
	score, _, err = s.ZScore(ctx, "top", "metric.a")
	require.NoError(t, err)
	assert.Equal(t, 10.0, score, "lower value must not overwrite a higher recorded score")

	require.NoError(t, s.ZAdd(ctx, "top", map[string]float64{"metric.b": 99}))
	ranked, err := s.ZRangeWithScoresDesc(ctx, "top")
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "metric.b", ranked[0].Member)
	assert.Equal(t, "metric.a", ranked[1].Member)
}
