package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/BaSui01/clipflow/ai"
	"github.com/BaSui01/clipflow/ai/local"
	"github.com/BaSui01/clipflow/ai/retry"
	"github.com/BaSui01/clipflow/api/handlers"
	"github.com/BaSui01/clipflow/cache"
	"github.com/BaSui01/clipflow/config"
	"github.com/BaSui01/clipflow/internal/metrics"
	"github.com/BaSui01/clipflow/internal/server"
	"github.com/BaSui01/clipflow/internal/telemetry"
	"github.com/BaSui01/clipflow/render"
	"github.com/BaSui01/clipflow/store"
	"github.com/BaSui01/clipflow/workflow"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 ClipFlow 的主服务器，按依赖顺序组装全部组件并管理生命周期
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager *server.Manager

	// 核心组件（按依赖顺序创建，逆序关闭）
	collector *metrics.Collector
	cache     cache.Cache
	storage   store.Store
	cleaner   *store.Cleaner
	registry  *ai.Registry
	orch      *ai.Orchestrator
	queue     *render.Queue
	engine    *workflow.Engine

	// Handlers
	healthHandler   *handlers.HealthHandler
	workflowHandler *handlers.WorkflowHandler
	renderHandler   *handlers.RenderHandler
	statsHandler    *handlers.StatsHandler

	// 遥测提供者
	otelProviders *telemetry.Providers

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.collector = metrics.NewCollector("clipflow", s.logger)

	// 2. 初始化核心组件（缓存 → 存储 → AI 编排 → 渲染队列 → 工作流引擎）
	if err := s.initComponents(); err != nil {
		return fmt.Errorf("failed to init components: %w", err)
	}

	// 3. 初始化 Handlers
	s.initHandlers()

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.String("store_backend", s.cfg.Store.Type),
		zap.String("cache_backend", s.cfg.Cache.Backend),
		zap.Int("ai_providers", len(s.registry.List())),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initComponents 初始化核心组件
func (s *Server) initComponents() error {
	var err error

	// AI 结果缓存
	s.cache, err = cache.New(s.cfg.Cache, s.cfg.Redis, s.logger)
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}

	// 持久化存储
	s.storage, err = store.New(s.cfg.Store, s.cfg.Redis, s.collector, s.logger)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	s.cleaner = store.StartCleaner(s.storage, s.cfg.Store.Cleanup, s.logger)

	// Provider 注册表：离线兜底 Provider 挂在各能力链尾
	s.registry = ai.NewRegistry()
	if s.cfg.AI.EnableLocalFallback {
		if err := local.RegisterAll(s.registry, s.cfg.Render.MediaDir, s.logger); err != nil {
			return fmt.Errorf("register local providers: %w", err)
		}
	}
	for capability, names := range s.cfg.AI.Chains {
		if err := s.registry.SetChain(ai.Capability(capability), names...); err != nil {
			return fmt.Errorf("configure chain for %s: %w", capability, err)
		}
	}
	for name, limit := range s.cfg.AI.RateLimits {
		s.registry.SetLimit(name, limit.RPS, limit.Burst)
	}

	// 能力编排器
	s.orch = ai.NewOrchestrator(s.registry, s.cache, &ai.OrchestratorConfig{
		CallTimeout: s.cfg.AI.CallTimeout,
		CacheTTL:    s.cfg.Cache.TTL,
		RetryPolicy: &retry.RetryPolicy{
			MaxRetries:   s.cfg.AI.MaxRetries,
			InitialDelay: s.cfg.AI.InitialDelay,
			MaxDelay:     s.cfg.AI.MaxDelay,
			Multiplier:   s.cfg.AI.Multiplier,
			Jitter:       s.cfg.AI.Jitter,
		},
	}, s.collector, s.logger)

	// 渲染队列：配置了外部渲染器则走命令执行器，否则用内置模拟执行器
	var exec render.Executor
	if s.cfg.Render.Command.Binary != "" {
		exec = render.NewCommandExecutor(
			s.cfg.Render.Command.Binary,
			s.cfg.Render.Command.ExtraArgs,
			s.cfg.Render.Command.Timeout,
			s.cfg.Render.MediaDir,
			s.logger,
		)
	}
	s.queue = render.NewQueue(exec, s.storage, &render.QueueConfig{
		MaxConcurrent:  s.cfg.Render.MaxConcurrent,
		MaxQueued:      s.cfg.Render.MaxQueued,
		MediaDir:       s.cfg.Render.MediaDir,
		DefaultQuality: render.Quality(s.cfg.Render.Quality),
	}, s.collector, s.logger)

	// 工作流引擎
	s.engine = workflow.NewEngine(s.orch, s.queue, s.storage, &workflow.EngineConfig{
		MaxConcurrent:      s.cfg.Workflow.MaxConcurrent,
		EnableTranslation:  s.cfg.Workflow.EnableTranslation,
		EnableIconMatching: s.cfg.Workflow.EnableIconMatching,
		DefaultLanguage:    s.cfg.Workflow.DefaultLanguage,
		DefaultStyle:       s.cfg.Workflow.DefaultStyle,
		TargetDuration:     s.cfg.Workflow.TargetDuration,
		DefaultQuality:     s.cfg.Render.Quality,
		MediaDir:           s.cfg.Render.MediaDir,
	}, s.collector, s.logger)

	// 上次进程中断遗留的记录在接收新请求前标记失败
	if recovered, err := s.engine.Recover(context.Background()); err != nil {
		s.logger.Warn("workflow recovery incomplete", zap.Int("recovered", recovered), zap.Error(err))
	}

	s.logger.Info("Components initialized")
	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("store", s.storage.Ping))

	s.workflowHandler = handlers.NewWorkflowHandler(s.engine, s.logger)
	s.renderHandler = handlers.NewRenderHandler(s.queue, s.logger)
	s.statsHandler = handlers.NewStatsHandler(s.engine, s.queue, s.storage, s.logger)

	s.logger.Info("Handlers initialized")
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查与运维端点
	// ========================================
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))
	mux.Handle("GET /metrics", promhttp.Handler())

	// ========================================
	// API 路由
	// ========================================
	mux.HandleFunc("POST /api/v1/workflows", s.workflowHandler.HandleSubmit)
	mux.HandleFunc("GET /api/v1/workflows", s.workflowHandler.HandleList)
	mux.HandleFunc("GET /api/v1/workflows/{id}", s.workflowHandler.HandleGet)
	mux.HandleFunc("POST /api/v1/workflows/{id}/cancel", s.workflowHandler.HandleCancel)
	mux.HandleFunc("GET /api/v1/workflows/{id}/events", s.workflowHandler.HandleEvents)
	mux.HandleFunc("GET /api/v1/render/jobs/{id}", s.renderHandler.HandleGetJob)
	mux.HandleFunc("GET /api/v1/stats", s.statsHandler.HandleStats)

	// ========================================
	// 构建中间件链
	// ========================================
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	s.httpManager = server.NewManager(handler, server.ConfigFrom(s.cfg.Server), s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务。
// 顺序：先停入口再排空引擎与队列，最后释放存储与缓存。
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 关闭 HTTP 服务器，不再接收新请求
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 取消运行中的工作流并等待退出
	if s.engine != nil {
		s.engine.Close()
	}

	// 3. 停止渲染队列
	if s.queue != nil {
		s.queue.Close()
	}

	// 4. 停止存储清理循环
	s.cleaner.Stop()

	// 5. 释放存储与缓存
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			s.logger.Error("store close error", zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("cache close error", zap.Error(err))
		}
	}

	// 6. 刷出剩余遥测数据
	if err := s.otelProviders.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
