package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore adapts a *redis.Client to StatsStore. Grounded on the
// repository-layer cache adapters: each method is a thin, single-purpose
// wrapper around one Redis command, with redis.Nil translated into the
// store's "not found" return rather than an error.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.rdb.TTL(ctx, key).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.rdb.Expire(ctx, key, ttl).Err()
}

func (s *RedisStore) RPush(ctx context.Context, list, value string) error {
	return s.rdb.RPush(ctx, list, value).Err()
}

func (s *RedisStore) HExists(ctx context.Context, hash, field string) (bool, error) {
	return s.rdb.HExists(ctx, hash, field).Result()
}

func (s *RedisStore) HSet(ctx context.Context, hash string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		values = append(values, k, v)
	}
	return s.rdb.HSet(ctx, hash, values...).Err()
}

func (s *RedisStore) HGetAll(ctx context.Context, hash string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, hash).Result()
}

func (s *RedisStore) HIncrBy(ctx context.Context, hash, field string, delta int64) (int64, error) {
	return s.rdb.HIncrBy(ctx, hash, field, delta).Result()
}

func (s *RedisStore) ZScore(ctx context.Context, set, member string) (float64, bool, error) {
	score, err := s.rdb.ZScore(ctx, set, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

func (s *RedisStore) ZAdd(ctx context.Context, set string, members map[string]float64) error {
	if len(members) == 0 {
		return nil
	}
	zs := make([]redis.Z, 0, len(members))
	for member, score := range members {
		zs = append(zs, redis.Z{Score: score, Member: member})
	}
	return s.rdb.ZAdd(ctx, set, zs...).Err()
}

func (s *RedisStore) ZRangeWithScoresDesc(ctx context.Context, set string) ([]ZMember, error) {
	zs, err := s.rdb.ZRevRangeWithScores(ctx, set, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ZMember, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, ZMember{Member: member, Score: z.Score})
	}
	return out, nil
}
