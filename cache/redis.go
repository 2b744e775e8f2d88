package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "clipflow:ai:"

// RedisCache 基于 Redis 的缓存后端。
// 连接故障降级为未命中 / 空操作，只记录日志，不影响调用方。
type RedisCache struct {
	rdb        *redis.Client
	logger     *zap.Logger
	ownsClient bool

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRedisCache 使用现有客户端创建 Redis 缓存。
// 客户端生命周期由调用方管理；通过 New 工厂创建时由本包持有并关闭。
func NewRedisCache(rdb *redis.Client, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{
		rdb:    rdb,
		logger: logger.With(zap.String("component", "redis_cache")),
	}
}

// Get 返回 key 对应的值。连接故障按未命中处理。
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		}
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return data, true
}

// Set 写入值。ttl <= 0 表示不过期。写入失败只记录日志。
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+key, value, ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete 删除条目。
func (c *RedisCache) Delete(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		c.logger.Warn("redis delete failed", zap.String("key", key), zap.Error(err))
	}
}

// Len 对 Redis 后端不可用，返回 -1。
func (c *RedisCache) Len() int {
	return -1
}

// Stats 返回本进程观测到的命中统计。
func (c *RedisCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   -1,
	}
}

// Close 关闭由本包持有的客户端。
func (c *RedisCache) Close() error {
	if c.ownsClient {
		return c.rdb.Close()
	}
	return nil
}

// Ping 检查 Redis 连接。
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
