//go:build integration

package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

const redisImageTag = "redis:8.4-alpine"

var integrationRedis *redis.Client

func TestMain(m *testing.M) {
	ctx := context.Background()

	if !dockerIsAvailable(ctx) {
		if os.Getenv("CI") != "" {
			log.Printf("docker is not available (CI=true); failing integration tests")
			os.Exit(1)
		}
		log.Printf("docker is not available; skipping integration tests (start Docker to enable)")
		os.Exit(0)
	}

	redisContainer, err := tcredis.Run(ctx, redisImageTag)
	if err != nil {
		log.Printf("failed to start redis container: %v", err)
		os.Exit(1)
	}
	defer func() { _ = redisContainer.Terminate(ctx) }()

	host, err := redisContainer.Host(ctx)
	if err != nil {
		log.Printf("failed to get redis host: %v", err)
		os.Exit(1)
	}
	port, err := redisContainer.MappedPort(ctx, "6379/tcp")
	if err != nil {
		log.Printf("failed to get redis port: %v", err)
		os.Exit(1)
	}

	integrationRedis = redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", host, port.Int()),
	})
	if err := integrationRedis.Ping(ctx).Err(); err != nil {
		log.Printf("failed to ping redis: %v", err)
		os.Exit(1)
	}

	code := m.Run()
	_ = integrationRedis.Close()
	os.Exit(code)
}

func dockerIsAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "info")
	cmd.Env = os.Environ()
	return cmd.Run() == nil
}

type RedisStoreSuite struct {
	suite.Suite
	ctx   context.Context
	rdb   *redis.Client
	store *RedisStore
}

func (s *RedisStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.rdb = integrationRedis
	s.store = NewRedisStore(s.rdb)
	require.NoError(s.T(), s.rdb.FlushDB(s.ctx).Err())
}

func (s *RedisStoreSuite) TestGetSetExpire() {
	_, ok, err := s.store.Get(s.ctx, "missing")
	s.Require().NoError(err)
	s.Require().False(ok)

	s.Require().NoError(s.store.Set(s.ctx, "k", "v", 50*time.Millisecond))
	v, ok, err := s.store.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Require().Equal("v", v)

	time.Sleep(100 * time.Millisecond)
	_, ok, err = s.store.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Require().False(ok, "key must expire")
}

func (s *RedisStoreSuite) TestHashIncrBy() {
	n, err := s.store.HIncrBy(s.ctx, "h", "total_counter", 1)
	s.Require().NoError(err)
	s.Require().Equal(int64(1), n)

	n, err = s.store.HIncrBy(s.ctx, "h", "total_counter", 1)
	s.Require().NoError(err)
	s.Require().Equal(int64(2), n)
}

func (s *RedisStoreSuite) TestSortedSetDescRange() {
	s.Require().NoError(s.store.ZAdd(s.ctx, "top_duration_0_0", map[string]float64{
		"metric.a": 1.5,
		"metric.b": 9.9,
	}))

	ranked, err := s.store.ZRangeWithScoresDesc(s.ctx, "top_duration_0_0")
	s.Require().NoError(err)
	s.Require().Len(ranked, 2)
	s.Require().Equal("metric.b", ranked[0].Member)
}

func (s *RedisStoreSuite) TestRPushAndHSet() {
	s.Require().NoError(s.store.RPush(s.ctx, "queries:bucket", "query-doc-1"))
	s.Require().NoError(s.store.HSet(s.ctx, "stats:bucket", map[string]string{
		"first_occurrence": "1600000000",
	}))
	exists, err := s.store.HExists(s.ctx, "stats:bucket", "first_occurrence")
	s.Require().NoError(err)
	s.Require().True(exists)
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}
