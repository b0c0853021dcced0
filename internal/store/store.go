// Package store defines the abstract key/value StatsStore every historical
// stats and leaderboard operation is built on, plus a Redis-backed
// implementation and an in-memory implementation for tests.
package store

import (
	"context"
	"time"
)

// ZMember is one member/score pair from a sorted-set range.
type ZMember struct {
	Member string
	Score  float64
}

// StatsStore is the abstract persistence layer behind the feedback loop:
// strings, lists, hashes, sorted sets, TTLs, and atomic hash-field
// increment. It intentionally mirrors a small Redis-shaped surface so the
// RedisStore adapter maps each method onto a single Redis command.
type StatsStore interface {
	Ping(ctx context.Context) error

	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	RPush(ctx context.Context, list, value string) error

	HExists(ctx context.Context, hash, field string) (bool, error)
	HSet(ctx context.Context, hash string, fields map[string]string) error
	HGetAll(ctx context.Context, hash string) (map[string]string, error)
	HIncrBy(ctx context.Context, hash, field string, delta int64) (int64, error)

	ZScore(ctx context.Context, set, member string) (float64, bool, error)
	ZAdd(ctx context.Context, set string, members map[string]float64) error
	ZRangeWithScoresDesc(ctx context.Context, set string) ([]ZMember, error)
}
