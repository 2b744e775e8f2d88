// FakeExecutor 的渲染执行器测试模拟实现。
//
// 支持延迟、错误注入、挂起放行与调用记录场景。
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/clipflow/render"
)

// --- FakeExecutor 结构 ---

// FakeExecutor 是 render.Executor 的模拟实现。
// 默认立即成功并返回约定的产物路径，不触碰文件系统。
type FakeExecutor struct {
	mu         sync.Mutex
	delay      time.Duration
	err        error
	renderFunc func(ctx context.Context, job *render.Job) (string, error)
	gate       chan struct{}
	release    sync.Once
	rendered   []string
}

// --- 构造函数和 Builder 方法 ---

// NewFakeExecutor 创建新的 FakeExecutor
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{}
}

// WithDelay 设置每次渲染前的模拟耗时
func (f *FakeExecutor) WithDelay(d time.Duration) *FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return f
}

// WithError 设置渲染固定返回的错误
func (f *FakeExecutor) WithError(err error) *FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	return f
}

// WithRenderFunc 设置自定义渲染函数，优先于错误注入
func (f *FakeExecutor) WithRenderFunc(fn func(ctx context.Context, job *render.Job) (string, error)) *FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renderFunc = fn
	return f
}

// Blocking 使渲染挂起，直到 Release 被调用
func (f *FakeExecutor) Blocking() *FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f
}

// Release 放行所有挂起的渲染，可安全重复调用
func (f *FakeExecutor) Release() {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate == nil {
		return
	}
	f.release.Do(func() { close(gate) })
}

// --- Executor 接口实现 ---

// Render 记录任务后按配置返回，挂起与延迟期间响应上下文取消
func (f *FakeExecutor) Render(ctx context.Context, job *render.Job) (string, error) {
	f.mu.Lock()
	f.rendered = append(f.rendered, job.ID)
	fn := f.renderFunc
	injected := f.err
	delay := f.delay
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fn != nil {
		return fn(ctx, job)
	}
	if injected != nil {
		return "", injected
	}
	format := job.Settings.Format
	if format == "" {
		format = "mp4"
	}
	return "/out/" + job.ID + "." + format, nil
}

// --- 调用记录 ---

// Rendered 返回已收到任务的 ID 副本，按到达顺序
func (f *FakeExecutor) Rendered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.rendered...)
}

// Count 返回已收到的任务数
func (f *FakeExecutor) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rendered)
}
