// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 2, cfg.Render.MaxConcurrent)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

cache:
  backend: "redis"
  capacity: 512
  ttl: 1h

ai:
  max_retries: 5
  initial_delay: 500ms
  chains:
    Translation: ["deepl-bridge", "local-translate"]
    TTS: ["edge-bridge"]
  rate_limits:
    deepl-bridge:
      rps: 2
      burst: 4

render:
  max_concurrent: 3
  quality: "high"

workflow:
  enable_translation: true
  default_language: "en-US"

store:
  type: "file"
  base_dir: "/tmp/clipflow-test"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	// 加载配置
	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	// 验证 YAML 值覆盖了默认值
	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 512, cfg.Cache.Capacity)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)

	assert.Equal(t, 5, cfg.AI.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.AI.InitialDelay)
	assert.Equal(t, []string{"deepl-bridge", "local-translate"}, cfg.AI.Chains["Translation"])
	assert.Equal(t, []string{"edge-bridge"}, cfg.AI.Chains["TTS"])
	assert.Equal(t, 2.0, cfg.AI.RateLimits["deepl-bridge"].RPS)
	assert.Equal(t, 4, cfg.AI.RateLimits["deepl-bridge"].Burst)

	assert.Equal(t, 3, cfg.Render.MaxConcurrent)
	assert.Equal(t, "high", cfg.Render.Quality)

	assert.True(t, cfg.Workflow.EnableTranslation)
	assert.Equal(t, "en-US", cfg.Workflow.DefaultLanguage)

	assert.Equal(t, "file", cfg.Store.Type)
	assert.Equal(t, "/tmp/clipflow-test", cfg.Store.BaseDir)

	// 未覆盖的字段保持默认值
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 2*time.Minute, cfg.AI.CallTimeout)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/nonexistent/clipflow.yaml").
		Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("CLIPFLOW_SERVER_HTTP_PORT", "9000")
	t.Setenv("CLIPFLOW_CACHE_BACKEND", "redis")
	t.Setenv("CLIPFLOW_AI_CALL_TIMEOUT", "90s")
	t.Setenv("CLIPFLOW_AI_JITTER", "false")
	t.Setenv("CLIPFLOW_RENDER_MAX_CONCURRENT", "5")
	t.Setenv("CLIPFLOW_LOG_OUTPUT_PATHS", "stdout, /var/log/clipflow.log")
	t.Setenv("CLIPFLOW_TELEMETRY_SAMPLE_RATE", "0.25")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 90*time.Second, cfg.AI.CallTimeout)
	assert.False(t, cfg.AI.Jitter)
	assert.Equal(t, 5, cfg.Render.MaxConcurrent)
	assert.Equal(t, []string{"stdout", "/var/log/clipflow.log"}, cfg.Log.OutputPaths)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRate)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8888\n"), 0644))

	t.Setenv("CLIPFLOW_SERVER_HTTP_PORT", "9999")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	// 环境变量优先于 YAML
	assert.Equal(t, 9999, cfg.Server.HTTPPort)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("CF_SERVER_HTTP_PORT", "7000")

	cfg, err := NewLoader().WithEnvPrefix("CF").Load()
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.HTTPPort)
}

func TestLoader_ValidatorFailure(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			return assert.AnError
		}).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad http port", func(c *Config) { c.Server.HTTPPort = 0 }},
		{"bad cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"zero cache capacity", func(c *Config) { c.Cache.Capacity = 0 }},
		{"negative retries", func(c *Config) { c.AI.MaxRetries = -1 }},
		{"multiplier below one", func(c *Config) { c.AI.Multiplier = 0.5 }},
		{"zero render concurrency", func(c *Config) { c.Render.MaxConcurrent = 0 }},
		{"bad quality", func(c *Config) { c.Render.Quality = "ultra" }},
		{"zero workflow concurrency", func(c *Config) { c.Workflow.MaxConcurrent = 0 }},
		{"bad store type", func(c *Config) { c.Store.Type = "mongo" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig()
			tc.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
