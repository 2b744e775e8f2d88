// ScriptedProvider 的 AI 能力提供者测试模拟实现。
//
// 支持按调用次序回放输出、错误注入与延迟模拟场景。
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/clipflow/ai"
)

// --- ScriptedProvider 结构 ---

// ProviderStep 描述脚本中的一步响应。
// Err 非空时该步返回错误，否则返回 Output；Delay 为该步的额外延迟。
type ProviderStep struct {
	Output string
	Err    error
	Delay  time.Duration
}

// ScriptedProvider 是 ai.Provider 的脚本化模拟实现。
// 每次 Call 按顺序消费一步脚本，脚本耗尽后复读最后一步；
// 空脚本始终返回固定成功响应。
type ScriptedProvider struct {
	name       string
	capability ai.Capability

	mu     sync.Mutex
	script []ProviderStep
	delay  time.Duration
	calls  int
}

// --- 构造函数和 Builder 方法 ---

// NewScriptedProvider 创建指定名称与能力的 ScriptedProvider
func NewScriptedProvider(name string, capability ai.Capability) *ScriptedProvider {
	return &ScriptedProvider{name: name, capability: capability}
}

// WithOutput 追加一个成功步骤
func (p *ScriptedProvider) WithOutput(output string) *ScriptedProvider {
	return p.WithStep(ProviderStep{Output: output})
}

// WithError 追加一个失败步骤
func (p *ScriptedProvider) WithError(err error) *ScriptedProvider {
	return p.WithStep(ProviderStep{Err: err})
}

// WithStep 追加一个完整脚本步骤
func (p *ScriptedProvider) WithStep(step ProviderStep) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, step)
	return p
}

// WithDelay 设置每次调用前的固定延迟
func (p *ScriptedProvider) WithDelay(d time.Duration) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
	return p
}

// --- Provider 接口实现 ---

// Call 消费下一步脚本并返回其结果，延迟期间响应上下文取消
func (p *ScriptedProvider) Call(ctx context.Context, req ai.Request) (*ai.Result, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	var step ProviderStep
	switch {
	case len(p.script) == 0:
		step = ProviderStep{Output: "scripted response"}
	case idx >= len(p.script):
		step = p.script[len(p.script)-1]
	default:
		step = p.script[idx]
	}
	delay := p.delay + step.Delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return &ai.Result{Output: step.Output, Provider: p.name}, nil
}

// Name 返回提供者名称
func (p *ScriptedProvider) Name() string { return p.name }

// Capability 返回提供者能力
func (p *ScriptedProvider) Capability() ai.Capability { return p.capability }

// --- 调用记录 ---

// Calls 返回累计调用次数
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Reset 清空调用计数
func (p *ScriptedProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = 0
}
