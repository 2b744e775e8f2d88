package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/clipflow/config"
)

// Cache 是 AI 结果缓存的统一接口。
//
// Get/Set 不向调用方返回错误：后端故障降级为未命中 / 空操作并记录日志，
// 缓存故障永远不会导致一次编排调用失败。
type Cache interface {
	// Get 返回 key 对应的值。过期条目视为未命中并被删除。
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set 写入值。ttl <= 0 表示不过期。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)

	// Delete 删除条目。
	Delete(ctx context.Context, key string)

	// Len 返回当前条目数（Redis 后端返回 -1）。
	Len() int

	// Stats 返回命中统计。
	Stats() Stats

	// Close 释放后端资源。
	Close() error
}

// Stats 缓存命中统计
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
}

// New 根据配置构建缓存后端。
// backend=redis 时由本包创建并持有 Redis 客户端。
func New(cfg config.CacheConfig, redisCfg config.RedisConfig, logger *zap.Logger) (Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryCache(cfg.Capacity, cfg.CleanupInterval, logger), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:         redisCfg.Addr,
			Password:     redisCfg.Password,
			DB:           redisCfg.DB,
			PoolSize:     redisCfg.PoolSize,
			MinIdleConns: redisCfg.MinIdleConns,
		})
		c := NewRedisCache(rdb, logger)
		c.ownsClient = true
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %q", cfg.Backend)
	}
}
