package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/clipflow/ai/retry"
	"github.com/BaSui01/clipflow/cache"
	"github.com/BaSui01/clipflow/internal/metrics"
	"github.com/BaSui01/clipflow/types"
)

// ProviderFailure 记录降级链中单个 Provider 的失败结果。
type ProviderFailure struct {
	Provider string          `json:"provider"`
	Code     types.ErrorCode `json:"code"`
	Attempts int             `json:"attempts"`
	Message  string          `json:"message"`
}

// ExhaustedError 表示某能力的整条降级链都失败了。
// Failures 按链序排列，每个 Provider 一条。
type ExhaustedError struct {
	Capability Capability        `json:"capability"`
	Failures   []ProviderFailure `json:"failures"`
}

func (e *ExhaustedError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("no providers available for %s", e.Capability)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s(%s x%d): %s", f.Provider, f.Code, f.Attempts, f.Message))
	}
	return fmt.Sprintf("all providers exhausted for %s: %s", e.Capability, strings.Join(parts, "; "))
}

// OrchestratorConfig 编排器配置
type OrchestratorConfig struct {
	// CallTimeout 单次 Provider 调用的超时，超时按瞬时失败处理
	CallTimeout time.Duration
	// CacheTTL 成功结果的缓存时间
	CacheTTL time.Duration
	// RetryPolicy 单个 Provider 内的重试策略
	RetryPolicy *retry.RetryPolicy
}

// DefaultOrchestratorConfig 返回默认配置
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		CallTimeout: 2 * time.Minute,
		CacheTTL:    24 * time.Hour,
		RetryPolicy: retry.DefaultRetryPolicy(),
	}
}

// Orchestrator 按能力编排 Provider 降级链。
//
// 一次 Invoke 的路径：请求指纹 → 缓存命中直接返回 → singleflight 合并并发
// 同指纹请求 → 按链序调用 Provider（每个 Provider 内部做退避重试，永久失败
// 立即切换下一个）→ 成功结果写回缓存。整条链耗尽时返回携带
// ErrProviderAllExhausted 的错误，Cause 为 *ExhaustedError。
type Orchestrator struct {
	registry  *Registry
	cache     cache.Cache
	policy    *retry.RetryPolicy
	timeout   time.Duration
	cacheTTL  time.Duration
	group     singleflight.Group
	collector *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewOrchestrator 创建编排器。collector 可以为 nil。
func NewOrchestrator(
	registry *Registry,
	c cache.Cache,
	cfg *OrchestratorConfig,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Orchestrator {
	if cfg == nil {
		cfg = DefaultOrchestratorConfig()
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = retry.DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		registry:  registry,
		cache:     c,
		policy:    cfg.RetryPolicy,
		timeout:   cfg.CallTimeout,
		cacheTTL:  cfg.CacheTTL,
		collector: collector,
		tracer:    otel.Tracer("github.com/BaSui01/clipflow/ai"),
		logger:    logger.With(zap.String("component", "ai_orchestrator")),
	}
}

// Invoke 执行一次能力调用。
//
// 返回的 *Result 可能被并发调用方共享，调用方必须按只读处理。
// 缓存命中时 Result.Cached 为 true 且不消耗任何 Provider 调用。
func (o *Orchestrator) Invoke(ctx context.Context, capability Capability, input string, params map[string]any) (*Result, error) {
	if !capability.Valid() {
		return nil, types.NewError(types.ErrValidation, fmt.Sprintf("unknown capability %q", capability))
	}

	ctx, span := o.tracer.Start(ctx, "ai.Invoke",
		trace.WithAttributes(attribute.String("ai.capability", string(capability))))
	defer span.End()

	key := Fingerprint(capability, input, params)

	if res, ok := o.lookupCache(ctx, key); ok {
		o.collector.RecordCacheHit(string(capability))
		span.SetAttributes(attribute.Bool("ai.cache_hit", true), attribute.String("ai.provider", res.Provider))
		o.logger.Debug("缓存命中，跳过 Provider 调用",
			zap.String("capability", string(capability)),
			zap.String("key", key),
		)
		return res, nil
	}
	o.collector.RecordCacheMiss(string(capability))
	span.SetAttributes(attribute.Bool("ai.cache_hit", false))

	// 相同指纹的并发未命中只触发一次链调用
	v, err, shared := o.group.Do(key, func() (any, error) {
		return o.invokeChain(ctx, capability, input, params, key)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	res := v.(*Result)
	if shared {
		span.SetAttributes(attribute.Bool("ai.deduplicated", true))
	}
	span.SetAttributes(attribute.String("ai.provider", res.Provider))
	return res, nil
}

// lookupCache 读取并反序列化缓存结果。损坏的缓存条目按未命中处理并删除。
func (o *Orchestrator) lookupCache(ctx context.Context, key string) (*Result, bool) {
	data, ok := o.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		o.logger.Warn("缓存条目损坏，已删除",
			zap.String("key", key),
			zap.Error(err),
		)
		o.cache.Delete(ctx, key)
		return nil, false
	}
	res.Cached = true
	return &res, true
}

// invokeChain 按链序调用 Provider 直到成功，成功结果写回缓存。
func (o *Orchestrator) invokeChain(ctx context.Context, capability Capability, input string, params map[string]any, key string) (*Result, error) {
	chain := o.registry.Chain(capability)
	if len(chain) == 0 {
		exhausted := &ExhaustedError{Capability: capability}
		return nil, types.NewError(types.ErrProviderAllExhausted,
			fmt.Sprintf("no providers registered for %s", capability)).WithCause(exhausted)
	}

	failures := make([]ProviderFailure, 0, len(chain))
	for _, p := range chain {
		res, attempts, err := o.callProvider(ctx, capability, p, input, params)
		if err == nil {
			o.storeCache(ctx, key, res)
			return res, nil
		}

		// 调用方取消后不再尝试后续 Provider
		if ctx.Err() != nil {
			return nil, fmt.Errorf("invoke aborted: %w", ctx.Err())
		}

		failures = append(failures, newProviderFailure(p.Name(), attempts, err))
		o.logger.Warn("Provider 失败，切换下一个",
			zap.String("capability", string(capability)),
			zap.String("provider", p.Name()),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	}

	exhausted := &ExhaustedError{Capability: capability, Failures: failures}
	o.logger.Error("降级链耗尽",
		zap.String("capability", string(capability)),
		zap.Int("providers", len(chain)),
	)
	return nil, types.NewError(types.ErrProviderAllExhausted,
		fmt.Sprintf("all %d providers failed for %s", len(chain), capability)).WithCause(exhausted)
}

// callProvider 调用单个 Provider，内部做退避重试并统计实际调用次数。
func (o *Orchestrator) callProvider(ctx context.Context, capability Capability, p Provider, input string, params map[string]any) (*Result, int, error) {
	attempts := 0

	policy := *o.policy
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		o.collector.RecordAIRetry(string(capability), p.Name())
	}
	retryer := retry.NewBackoffRetryer(&policy, o.logger)

	res, err := retry.DoWithResultTyped(retryer, ctx, func() (*Result, error) {
		attempts++
		return o.callOnce(ctx, capability, p, input, params)
	})
	return res, attempts, err
}

// callOnce 执行一次带超时的 Provider 调用并记录指标。
func (o *Orchestrator) callOnce(ctx context.Context, capability Capability, p Provider, input string, params map[string]any) (*Result, error) {
	cctx := ctx
	cancel := context.CancelFunc(func() {})
	if o.timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, o.timeout)
	}
	defer cancel()

	if lim := o.registry.Limiter(p.Name()); lim != nil {
		if err := lim.Wait(cctx); err != nil {
			return nil, o.translateTimeout(cctx, ctx, p.Name(), err)
		}
	}

	start := time.Now()
	res, err := p.Call(cctx, Request{Input: input, Params: params, Timeout: o.timeout})
	elapsed := time.Since(start)

	if err != nil {
		o.collector.RecordAIRequest(string(capability), p.Name(), "error", elapsed)
		return nil, o.translateTimeout(cctx, ctx, p.Name(), err)
	}

	o.collector.RecordAIRequest(string(capability), p.Name(), "success", elapsed)
	res.Provider = p.Name()
	res.Cached = false
	res.Elapsed = elapsed
	return res, nil
}

// translateTimeout 把单次调用超时归类为瞬时失败。
// 只有调用级 context 超时而外层 context 仍然存活时才转换，
// 调用方主动取消必须原样向上传播。
func (o *Orchestrator) translateTimeout(cctx, ctx context.Context, provider string, err error) error {
	if cctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return types.NewTransientError(provider,
			fmt.Sprintf("call timed out after %s", o.timeout)).WithCause(err)
	}
	return err
}

// storeCache 序列化并写回成功结果，失败只记日志。
func (o *Orchestrator) storeCache(ctx context.Context, key string, res *Result) {
	data, err := json.Marshal(res)
	if err != nil {
		o.logger.Warn("缓存结果序列化失败",
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}
	o.cache.Set(ctx, key, data, o.cacheTTL)
}

// newProviderFailure 把一个 Provider 的最终错误折叠成失败记录。
func newProviderFailure(provider string, attempts int, err error) ProviderFailure {
	code := types.GetErrorCode(err)
	msg := err.Error()
	if e := types.AsError(err); e != nil {
		msg = e.Message
	}
	if code == "" {
		if types.IsRetryable(err) {
			code = types.ErrProviderTransient
		} else {
			code = types.ErrProviderPermanent
		}
	}
	return ProviderFailure{Provider: provider, Code: code, Attempts: attempts, Message: msg}
}
