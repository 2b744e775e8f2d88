package ai

import (
	"context"
	"time"
)

// Capability 标识一类 AI 服务能力，同一能力下可注册多个 Provider 组成降级链。
type Capability string

const (
	CapabilityContentGeneration Capability = "ContentGeneration" // 文案生成
	CapabilityTranslation       Capability = "Translation"       // 翻译
	CapabilityIconMatching      Capability = "IconMatching"      // 图标匹配
	CapabilityTTS               Capability = "TTS"               // 语音合成
)

// Capabilities 返回全部已知能力，顺序与流水线阶段一致。
func Capabilities() []Capability {
	return []Capability{
		CapabilityContentGeneration,
		CapabilityTranslation,
		CapabilityIconMatching,
		CapabilityTTS,
	}
}

// Valid 报告能力是否为已知取值。
func (c Capability) Valid() bool {
	switch c {
	case CapabilityContentGeneration, CapabilityTranslation, CapabilityIconMatching, CapabilityTTS:
		return true
	}
	return false
}

// Request 是一次能力调用的输入。
// Params 携带能力相关的可选参数（风格、目标语言、音色等），
// 取值必须可被 JSON 序列化，因为它参与请求指纹计算。
type Request struct {
	Input   string         `json:"input"`
	Params  map[string]any `json:"params,omitempty"`
	Timeout time.Duration  `json:"timeout,omitempty"`
}

// Result 是一次能力调用的输出。
type Result struct {
	Output   string         `json:"output"`
	Raw      map[string]any `json:"raw,omitempty"`
	Provider string         `json:"provider,omitempty"`
	Cached   bool           `json:"cached,omitempty"`
	Elapsed  time.Duration  `json:"elapsed,omitempty"`
}

// Provider 定义了统一的 AI 能力适配接口，便于编排与降级。
// 实现方通过返回 *types.Error 声明失败类别：Retryable=true 表示瞬时失败
// （编排层会退避重试），Retryable=false 表示永久失败（直接切换下一个
// Provider）。未分类的错误按瞬时失败处理。
type Provider interface {
	// Call 执行一次能力调用，返回完整结果
	Call(ctx context.Context, req Request) (*Result, error)

	// Name 返回 Provider 的唯一标识
	Name() string

	// Capability 返回该 Provider 服务的能力
	Capability() Capability
}
