package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/clipflow/ai"
	"github.com/BaSui01/clipflow/types"
)

// TTSProvider 是离线语音合成兜底。它不调用真实 TTS 服务，
// 只落一个占位音频文件并按字数估算时长，让流水线在无外部服务时
// 也能端到端跑通。
type TTSProvider struct {
	outputDir string
	logger    *zap.Logger
}

// NewTTSProvider 创建离线 TTS Provider。outputDir 为空时用系统临时目录。
func NewTTSProvider(outputDir string, logger *zap.Logger) *TTSProvider {
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TTSProvider{
		outputDir: outputDir,
		logger:    logger.With(zap.String("provider", "local-tts")),
	}
}

func (p *TTSProvider) Name() string              { return "local-tts" }
func (p *TTSProvider) Capability() ai.Capability { return ai.CapabilityTTS }

// Call 合成语音。Output 是音频文件路径。
// Params: voice（语音 ID，缺省按文本语言选默认音色）、speed（语速倍率 0.5~2.0）。
func (p *TTSProvider) Call(ctx context.Context, req ai.Request) (*ai.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(req.Input)
	if text == "" {
		return nil, types.NewPermanentError(p.Name(), "text is empty")
	}

	voiceID := stringParam(req.Params, "voice", "")
	var voice Voice
	if voiceID == "" {
		voice = DefaultVoice(detectLanguage(text))
	} else {
		v, ok := VoiceByID(voiceID)
		if !ok {
			return nil, types.NewPermanentError(p.Name(), fmt.Sprintf("unknown voice %q", voiceID))
		}
		voice = v
	}

	speed := floatParam(req.Params, "speed", 1.0)
	if speed < 0.5 {
		speed = 0.5
	}
	if speed > 2.0 {
		speed = 2.0
	}

	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return nil, types.NewTransientError(p.Name(), "create output directory").WithCause(err)
	}

	sum := sha256.Sum256([]byte(text))
	filename := fmt.Sprintf("tts_%s_%s.mp3", hex.EncodeToString(sum[:])[:8], voice.ID)
	path := filepath.Join(p.outputDir, filename)

	data := []byte(text)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, types.NewTransientError(p.Name(), "write audio file").WithCause(err)
	}

	textLen := len([]rune(text))
	duration := float64(textLen) / (3.0 * speed)

	p.logger.Debug("离线合成完成",
		zap.String("voice", voice.ID),
		zap.String("file", path),
		zap.Float64("duration", duration),
	)
	return &ai.Result{
		Output: path,
		Raw: map[string]any{
			"audio_file":  path,
			"duration":    duration,
			"voice":       voice.ID,
			"text_length": textLen,
			"file_size":   len(data),
		},
	}, nil
}
