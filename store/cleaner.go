package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/clipflow/config"
)

// Cleaner 周期性清理终结已久的记录，避免存储无限增长。
type Cleaner struct {
	pruner   Pruner
	interval time.Duration
	maxAge   time.Duration
	logger   *zap.Logger

	stopCh chan struct{}
	stopMu sync.Once
	done   chan struct{}
}

// StartCleaner 按配置启动清理循环。
// 清理未启用或后端不支持 Prune 时返回 nil，调用方无需区分。
func StartCleaner(s Store, cfg config.CleanupConfig, logger *zap.Logger) *Cleaner {
	if !cfg.Enabled {
		return nil
	}
	pruner, ok := s.(Pruner)
	if !ok {
		if logger != nil {
			logger.Warn("存储后端不支持清理，已跳过",
				zap.Duration("interval", cfg.Interval))
		}
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	c := &Cleaner{
		pruner:   pruner,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger.With(zap.String("component", "store_cleaner")),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.loop()
	c.logger.Info("记录清理循环已启动",
		zap.Duration("interval", interval),
		zap.Duration("max_age", maxAge))
	return c
}

// Stop 停止清理循环并等待当前一轮结束。nil 接收者安全。
func (c *Cleaner) Stop() {
	if c == nil {
		return
	}
	c.stopMu.Do(func() { close(c.stopCh) })
	<-c.done
}

func (c *Cleaner) loop() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cleaner) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := c.pruner.Prune(ctx, time.Now().Add(-c.maxAge))
	if err != nil {
		c.logger.Error("记录清理失败", zap.Error(err))
		return
	}
	if n > 0 {
		c.logger.Info("记录清理完成", zap.Int("workflows", n))
	}
}
