// =============================================================================
// 📦 ClipFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Redis:     DefaultRedisConfig(),
		Cache:     DefaultCacheConfig(),
		AI:        DefaultAIConfig(),
		Render:    DefaultRenderConfig(),
		Workflow:  DefaultWorkflowConfig(),
		Store:     DefaultStoreConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "clipflow",
		SampleRate:   0.1,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Backend:         "memory",
		Capacity:        2048,
		TTL:             24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// DefaultAIConfig 返回默认能力编排配置
func DefaultAIConfig() AIConfig {
	return AIConfig{
		CallTimeout:         2 * time.Minute,
		MaxRetries:          3,
		InitialDelay:        time.Second,
		MaxDelay:            30 * time.Second,
		Multiplier:          2.0,
		Jitter:              true,
		EnableLocalFallback: true,
	}
}

// DefaultRenderConfig 返回默认渲染配置
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		MaxConcurrent: 2,
		MaxQueued:     0,
		Quality:       "medium",
		MediaDir:      "./media",
		Command: CommandConfig{
			Binary:  "",
			Timeout: 10 * time.Minute,
		},
	}
}

// DefaultWorkflowConfig 返回默认工作流配置
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		MaxConcurrent:      4,
		EnableTranslation:  false,
		EnableIconMatching: false,
		DefaultLanguage:    "zh-CN",
		DefaultStyle:       "default",
		TargetDuration:     60,
	}
}

// DefaultStoreConfig 返回默认持久化配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:       "memory",
		BaseDir:    "./data",
		SQLitePath: "./data/clipflow.db",
		RecordTTL:  0,
		Cleanup: CleanupConfig{
			Enabled:  false,
			Interval: time.Hour,
			MaxAge:   7 * 24 * time.Hour,
		},
	}
}
