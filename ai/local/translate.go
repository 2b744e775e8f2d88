package local

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/clipflow/ai"
	"github.com/BaSui01/clipflow/types"
)

// 简单的英中词典映射
var translationDict = map[string]string{
	"hello":        "你好",
	"world":        "世界",
	"machine":      "机器",
	"learning":     "学习",
	"artificial":   "人工",
	"intelligence": "智能",
	"mission":      "使命",
	"let":          "让",
	"the":          "这个",
	"to":           "",
	"have":         "有",
	"no":           "没有",
	"difficult":    "困难",
	"business":     "生意",
	"weather":      "天气",
	"nice":         "好的",
	"today":        "今天",
	"how":          "如何",
	"are":          "",
	"you":          "你",
	"python":       "Python",
	"go":           "Go",
	"programming":  "编程",
	"code":         "代码",
	"software":     "软件",
	"development":  "开发",
	"video":        "视频",
	"short":        "短",
	"content":      "内容",
}

// TranslateProvider 基于词典的离线翻译兜底，只支持英译中。
// 其他语言对按永久失败处理，编排器会切换到下一个 Provider。
type TranslateProvider struct {
	logger *zap.Logger
}

// NewTranslateProvider 创建离线翻译 Provider。
func NewTranslateProvider(logger *zap.Logger) *TranslateProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranslateProvider{logger: logger.With(zap.String("provider", "local-translate"))}
}

func (p *TranslateProvider) Name() string              { return "local-translate" }
func (p *TranslateProvider) Capability() ai.Capability { return ai.CapabilityTranslation }

// Call 翻译文本。
// Params: source（源语言，缺省自动检测）、target（目标语言，缺省 zh-CN）。
// 源语言与目标语言相同时原样返回。
func (p *TranslateProvider) Call(ctx context.Context, req ai.Request) (*ai.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(req.Input)
	if text == "" {
		return nil, types.NewPermanentError(p.Name(), "text is empty")
	}

	source := stringParam(req.Params, "source", "")
	if source == "" || source == "auto" {
		source = detectLanguage(text)
	}
	target := stringParam(req.Params, "target", "zh-CN")

	if sameLanguage(source, target) {
		return &ai.Result{Output: text, Raw: map[string]any{"source": source, "target": target, "passthrough": true}}, nil
	}

	// 词典翻译仅支持英译中
	if !strings.HasPrefix(source, "en") || !strings.HasPrefix(target, "zh") {
		return nil, types.NewPermanentError(p.Name(),
			fmt.Sprintf("unsupported language pair %s -> %s", source, target))
	}

	words := strings.Fields(strings.ToLower(text))
	translated := make([]string, 0, len(words))
	for _, word := range words {
		clean := strings.Trim(word, ".,!?;:\"'")
		out, ok := translationDict[clean]
		if !ok {
			out = clean
		}
		if out != "" {
			translated = append(translated, out)
		}
	}
	result := strings.Join(translated, " ")

	p.logger.Debug("词典翻译完成",
		zap.String("source", source),
		zap.String("target", target),
		zap.Int("words", len(words)),
	)
	return &ai.Result{Output: result, Raw: map[string]any{"source": source, "target": target}}, nil
}

// sameLanguage 比较语言标签，容忍地区后缀差异（zh 与 zh-CN 视为相同）。
func sameLanguage(a, b string) bool {
	if a == b {
		return true
	}
	base := func(tag string) string {
		if i := strings.IndexByte(tag, '-'); i > 0 {
			return tag[:i]
		}
		return tag
	}
	return base(a) == base(b)
}
