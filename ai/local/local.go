// 包 local 提供四类能力的离线兜底 Provider：模板文案、词典翻译、
// 关键词图标和占位语音合成。它们不依赖任何外部服务，注册在降级链
// 末端，保证没有网络或密钥时流水线仍能端到端跑通。
package local

import (
	"go.uber.org/zap"

	"github.com/BaSui01/clipflow/ai"
)

// RegisterAll 把全部离线 Provider 注册到 registry 的链尾。
// audioDir 是占位音频的输出目录。
func RegisterAll(registry *ai.Registry, audioDir string, logger *zap.Logger) error {
	providers := []ai.Provider{
		NewContentProvider(logger),
		NewTranslateProvider(logger),
		NewIconProvider(logger),
		NewTTSProvider(audioDir, logger),
	}
	for _, p := range providers {
		if err := registry.Register(p); err != nil {
			return err
		}
	}
	return nil
}
