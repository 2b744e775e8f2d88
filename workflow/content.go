package workflow

import (
	"encoding/json"
	"strings"
)

// VideoContent 视频内容。在各阶段之间传递并逐步填充:
// 内容生成写入标题与脚本，翻译写入译文，图标匹配写入图标，
// TTS 写入音频与字幕文件路径。
type VideoContent struct {
	Title            string   `json:"title"`
	Script           string   `json:"script"`
	Language         string   `json:"language"`
	Style            string   `json:"style"`
	TargetDuration   int      `json:"target_duration"`
	TranslatedScript string   `json:"translated_script,omitempty"`
	Icons            []string `json:"icons,omitempty"`
	AudioFile        string   `json:"audio_file,omitempty"`
	SubtitleFile     string   `json:"subtitle_file,omitempty"`
}

// NarrationScript 返回送入 TTS 与渲染的口播文本。
// 翻译成功时用译文，否则回退原始脚本，绝不返回部分值。
func (c VideoContent) NarrationScript() string {
	if c.TranslatedScript != "" {
		return c.TranslatedScript
	}
	return c.Script
}

// Clone 返回深拷贝。
func (c VideoContent) Clone() VideoContent {
	out := c
	if c.Icons != nil {
		out.Icons = append([]string(nil), c.Icons...)
	}
	return out
}

// contentPayload 内容生成 Provider 的结构化输出。
type contentPayload struct {
	Title       string   `json:"title"`
	Script      string   `json:"script"`
	Hooks       []string `json:"hooks"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
}

// ParseContent 解析内容生成的输出并合入 c。
// 输出是 JSON 时取 title/script 字段，否则整段文本作为脚本。
// 标题始终有值: 解析出的标题优先，其次回退主题。
func ParseContent(c *VideoContent, topic, output string) {
	var payload contentPayload
	if err := json.Unmarshal([]byte(output), &payload); err == nil && payload.Script != "" {
		c.Script = payload.Script
		if payload.Title != "" {
			c.Title = payload.Title
		}
	} else {
		c.Script = output
	}
	if c.Title == "" {
		c.Title = topic
	}
}

// DetectLanguage 朴素的语言检测。
// 去除空白后 CJK 字符占比超过 30% 判为中文，否则视为英文。
func DetectLanguage(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\t', '\r':
			return -1
		}
		return r
	}, text)
	if cleaned == "" {
		return "en-US"
	}
	var cjk, total int
	for _, r := range cleaned {
		total++
		if r >= 0x4e00 && r <= 0x9fff {
			cjk++
		}
	}
	if float64(cjk)/float64(total) > 0.3 {
		return "zh-CN"
	}
	return "en-US"
}

// SplitSentences 把脚本切成句子片段，用于字幕与列表模板。
// 按中英文句末标点与换行切分，空片段丢弃。
func SplitSentences(script string) []string {
	parts := strings.FieldsFunc(script, func(r rune) bool {
		switch r {
		case '。', '！', '？', '.', '!', '?', '\n':
			return true
		}
		return false
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
