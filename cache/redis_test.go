package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return mr, NewRedisCache(rdb, zap.NewNop())
}

func TestRedisCache_SetAndGet(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Minute)

	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)
}

func TestRedisCache_MissOnUnknownKey(t *testing.T) {
	_, c := setupTestRedis(t)

	_, ok := c.Get(context.Background(), "nope")
	assert.False(t, ok)
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	c.Set(ctx, "short", []byte("v"), 100*time.Millisecond)

	_, ok := c.Get(ctx, "short")
	require.True(t, ok)

	mr.FastForward(200 * time.Millisecond)

	_, ok = c.Get(ctx, "short")
	assert.False(t, ok)
}

func TestRedisCache_Delete(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Delete(ctx, "k")

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisCache_KeyPrefix(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	c.Set(ctx, "prefixed", []byte("v"), time.Minute)

	// 存入 Redis 的键带统一前缀
	assert.True(t, mr.Exists("clipflow:ai:prefixed"))
}

func TestRedisCache_BackendDownDegradesToMiss(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	mr.Close()

	// 后端不可用：Get 降级为未命中，Set 静默失败，均不 panic
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	c.Set(ctx, "k2", []byte("v2"), time.Minute)
	c.Delete(ctx, "k")
}

func TestRedisCache_Stats(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Get(ctx, "a")
	c.Get(ctx, "missing")

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestRedisCache_Ping(t *testing.T) {
	mr, c := setupTestRedis(t)

	require.NoError(t, c.Ping(context.Background()))

	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}
