// =============================================================================
// 📦 ClipFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("CLIPFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 ClipFlow 的完整配置结构
type Config struct {
	// Server 管理服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Redis Redis 连接配置（缓存与存储后端共用）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Cache AI 结果缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// AI 能力编排配置
	AI AIConfig `yaml:"ai" env:"AI"`

	// Render 渲染队列配置
	Render RenderConfig `yaml:"render" env:"RENDER"`

	// Workflow 工作流引擎配置
	Workflow WorkflowConfig `yaml:"workflow" env:"WORKFLOW"`

	// Store 持久化配置
	Store StoreConfig `yaml:"store" env:"STORE"`
}

// ServerConfig 管理服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每 IP 限流速率（请求/秒，0 表示关闭限流）
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// CacheConfig AI 结果缓存配置
type CacheConfig struct {
	// 后端类型: memory, redis
	Backend string `yaml:"backend" env:"BACKEND"`
	// 内存缓存容量（条目数）
	Capacity int `yaml:"capacity" env:"CAPACITY"`
	// 条目存活时间（<=0 表示不过期）
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 后台清扫间隔（0 表示仅惰性过期）
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
}

// AIConfig 能力编排配置
type AIConfig struct {
	// 单次 Provider 调用超时
	CallTimeout time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT"`
	// 单 Provider 瞬时失败最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 首次重试延迟
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	// 重试延迟上限
	MaxDelay time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	// 退避倍率
	Multiplier float64 `yaml:"multiplier" env:"MULTIPLIER"`
	// 是否启用抖动
	Jitter bool `yaml:"jitter" env:"JITTER"`
	// 是否在各能力链尾部挂载内置离线 Provider
	EnableLocalFallback bool `yaml:"enable_local_fallback" env:"ENABLE_LOCAL_FALLBACK"`
	// 各能力的 Provider 链顺序（仅 YAML 配置），键为能力名
	Chains map[string][]string `yaml:"chains" env:"-"`
	// 各 Provider 的限流配置（仅 YAML 配置），键为 Provider 名
	RateLimits map[string]RateLimitConfig `yaml:"rate_limits" env:"-"`
}

// RateLimitConfig 单 Provider 限流配置
type RateLimitConfig struct {
	// 每秒请求数
	RPS float64 `yaml:"rps"`
	// 突发容量
	Burst int `yaml:"burst"`
}

// RenderConfig 渲染队列配置
type RenderConfig struct {
	// 同时运行的渲染任务上限
	MaxConcurrent int `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
	// 排队任务上限（0 表示不限）
	MaxQueued int `yaml:"max_queued" env:"MAX_QUEUED"`
	// 默认画质: low, medium, high, production
	Quality string `yaml:"quality" env:"QUALITY"`
	// 产物输出目录
	MediaDir string `yaml:"media_dir" env:"MEDIA_DIR"`
	// 外部渲染命令配置
	Command CommandConfig `yaml:"command" env:"COMMAND"`
}

// CommandConfig 外部渲染命令配置
type CommandConfig struct {
	// 渲染器可执行文件（为空时使用内置模拟执行器）
	Binary string `yaml:"binary" env:"BINARY"`
	// 追加参数
	ExtraArgs []string `yaml:"extra_args" env:"EXTRA_ARGS"`
	// 单任务渲染超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// WorkflowConfig 工作流引擎配置
type WorkflowConfig struct {
	// 同时运行的工作流上限
	MaxConcurrent int `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
	// 默认是否启用翻译阶段
	EnableTranslation bool `yaml:"enable_translation" env:"ENABLE_TRANSLATION"`
	// 默认是否启用图标匹配阶段
	EnableIconMatching bool `yaml:"enable_icon_matching" env:"ENABLE_ICON_MATCHING"`
	// 默认语言
	DefaultLanguage string `yaml:"default_language" env:"DEFAULT_LANGUAGE"`
	// 默认内容风格
	DefaultStyle string `yaml:"default_style" env:"DEFAULT_STYLE"`
	// 默认目标时长（秒）
	TargetDuration int `yaml:"target_duration" env:"TARGET_DURATION"`
}

// StoreConfig 持久化配置
type StoreConfig struct {
	// 后端类型: memory, file, redis, sqlite
	Type string `yaml:"type" env:"TYPE"`
	// 文件存储根目录
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// SQLite 数据库文件路径
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	// Redis 记录存活时间（<=0 表示不过期）
	RecordTTL time.Duration `yaml:"record_ttl" env:"RECORD_TTL"`
	// 终态记录清理配置
	Cleanup CleanupConfig `yaml:"cleanup" env:"CLEANUP"`
}

// CleanupConfig 终态记录清理配置
type CleanupConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 清理间隔
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	// 终态记录保留时长
	MaxAge time.Duration `yaml:"max_age" env:"MAX_AGE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "CLIPFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown cache backend %q", c.Cache.Backend))
	}
	if c.Cache.Capacity <= 0 {
		errs = append(errs, "cache capacity must be positive")
	}

	if c.AI.MaxRetries < 0 {
		errs = append(errs, "ai max_retries must not be negative")
	}
	if c.AI.Multiplier < 1 {
		errs = append(errs, "ai multiplier must be >= 1")
	}
	if c.AI.CallTimeout <= 0 {
		errs = append(errs, "ai call_timeout must be positive")
	}

	if c.Render.MaxConcurrent < 1 {
		errs = append(errs, "render max_concurrent must be >= 1")
	}
	if c.Render.MaxQueued < 0 {
		errs = append(errs, "render max_queued must not be negative")
	}
	switch c.Render.Quality {
	case "low", "medium", "high", "production":
	default:
		errs = append(errs, fmt.Sprintf("unknown render quality %q", c.Render.Quality))
	}

	if c.Workflow.MaxConcurrent < 1 {
		errs = append(errs, "workflow max_concurrent must be >= 1")
	}
	if c.Workflow.TargetDuration <= 0 {
		errs = append(errs, "workflow target_duration must be positive")
	}

	switch c.Store.Type {
	case "memory", "file", "redis", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unknown store type %q", c.Store.Type))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
