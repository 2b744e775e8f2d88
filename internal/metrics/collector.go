// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
// 所有记录方法对 nil 接收者安全，组件可以持有可选的 Collector。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// AI 调用指标
	aiRequestsTotal   *prometheus.CounterVec
	aiRequestDuration *prometheus.HistogramVec
	aiRetriesTotal    *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 渲染指标
	renderJobsTotal *prometheus.CounterVec
	renderDuration  *prometheus.HistogramVec
	renderQueueSize prometheus.Gauge
	renderRunning   prometheus.Gauge

	// 工作流指标
	workflowsTotal   *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec
	stagesTotal      *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec

	// 存储指标
	storeOpDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AI 调用指标
	c.aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "Total number of AI provider calls",
		},
		[]string{"capability", "provider", "status"},
	)

	c.aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_request_duration_seconds",
			Help:      "AI provider call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"capability", "provider"},
	)

	c.aiRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_retries_total",
			Help:      "Total number of AI provider call retries",
		},
		[]string{"capability", "provider"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"capability"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"capability"},
	)

	// 渲染指标
	c.renderJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_jobs_total",
			Help:      "Total number of render jobs by terminal status",
		},
		[]string{"status", "quality"},
	)

	c.renderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Render job duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"quality"},
	)

	c.renderQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "render_queue_size",
			Help:      "Number of jobs waiting in the render queue",
		},
	)

	c.renderRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "render_running",
			Help:      "Number of render jobs currently executing",
		},
	)

	// 工作流指标
	c.workflowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_total",
			Help:      "Total number of workflows by terminal status",
		},
		[]string{"status"},
	)

	c.workflowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Workflow end-to-end duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"status"},
	)

	c.stagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_stages_total",
			Help:      "Total number of workflow stage executions",
		},
		[]string{"stage", "status"},
	)

	c.stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_stage_duration_seconds",
			Help:      "Workflow stage duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	// 存储指标
	c.storeOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_op_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🤖 AI 调用指标记录
// =============================================================================

// RecordAIRequest 记录一次 Provider 调用结果
func (c *Collector) RecordAIRequest(capability, provider, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.aiRequestsTotal.WithLabelValues(capability, provider, status).Inc()
	c.aiRequestDuration.WithLabelValues(capability, provider).Observe(duration.Seconds())
}

// RecordAIRetry 记录一次 Provider 调用重试
func (c *Collector) RecordAIRetry(capability, provider string) {
	if c == nil {
		return
	}
	c.aiRetriesTotal.WithLabelValues(capability, provider).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(capability string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(capability).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(capability string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(capability).Inc()
}

// =============================================================================
// 🎬 渲染指标记录
// =============================================================================

// RecordRenderJob 记录渲染任务的终态
func (c *Collector) RecordRenderJob(status, quality string, duration time.Duration) {
	if c == nil {
		return
	}
	c.renderJobsTotal.WithLabelValues(status, quality).Inc()
	c.renderDuration.WithLabelValues(quality).Observe(duration.Seconds())
}

// SetRenderQueueSize 更新等待队列深度
func (c *Collector) SetRenderQueueSize(n int) {
	if c == nil {
		return
	}
	c.renderQueueSize.Set(float64(n))
}

// SetRenderRunning 更新运行中的渲染任务数
func (c *Collector) SetRenderRunning(n int) {
	if c == nil {
		return
	}
	c.renderRunning.Set(float64(n))
}

// =============================================================================
// 🎞️ 工作流指标记录
// =============================================================================

// RecordWorkflow 记录工作流终态
func (c *Collector) RecordWorkflow(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.workflowsTotal.WithLabelValues(status).Inc()
	c.workflowDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStage 记录单个阶段执行结果
func (c *Collector) RecordStage(stage, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.stagesTotal.WithLabelValues(stage, status).Inc()
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// =============================================================================
// 🗄️ 存储指标记录
// =============================================================================

// RecordStoreOp 记录存储操作
func (c *Collector) RecordStoreOp(backend, operation string, duration time.Duration) {
	if c == nil {
		return
	}
	c.storeOpDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
