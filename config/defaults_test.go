package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	// 验证服务器默认值
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	// 验证缓存默认值
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 2048, cfg.Cache.Capacity)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)

	// 验证编排默认值
	assert.Equal(t, 2*time.Minute, cfg.AI.CallTimeout)
	assert.Equal(t, 3, cfg.AI.MaxRetries)
	assert.Equal(t, time.Second, cfg.AI.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.AI.MaxDelay)
	assert.Equal(t, 2.0, cfg.AI.Multiplier)
	assert.True(t, cfg.AI.Jitter)
	assert.True(t, cfg.AI.EnableLocalFallback)

	// 验证渲染默认值
	assert.Equal(t, 2, cfg.Render.MaxConcurrent)
	assert.Equal(t, "medium", cfg.Render.Quality)
	assert.Equal(t, 10*time.Minute, cfg.Render.Command.Timeout)

	// 验证工作流默认值
	assert.Equal(t, 4, cfg.Workflow.MaxConcurrent)
	assert.False(t, cfg.Workflow.EnableTranslation)
	assert.False(t, cfg.Workflow.EnableIconMatching)
	assert.Equal(t, "zh-CN", cfg.Workflow.DefaultLanguage)
	assert.Equal(t, "default", cfg.Workflow.DefaultStyle)
	assert.Equal(t, 60, cfg.Workflow.TargetDuration)

	// 验证持久化默认值
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.False(t, cfg.Store.Cleanup.Enabled)

	// 验证日志默认值
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// 默认配置必须通过自身校验
	require.NoError(t, cfg.Validate())
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "clipflow", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 0.1, cfg.SampleRate)
}
