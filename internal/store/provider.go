package store

import (
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"

	"github.com/adobe/opentsdb-protector/internal/config"
)

// ProviderSet exposes the Redis client and RedisStore construction to wire.
var ProviderSet = wire.NewSet(
	NewRedisClient,
	NewRedisStore,
	wire.Bind(new(StatsStore), new(*RedisStore)),
)

// NewRedisClient builds the shared *redis.Client from configuration.
func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.DB.Redis.Password,
	})
}
