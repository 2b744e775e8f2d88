package workflow

import "strings"

// 内置渲染模板。
const (
	// TemplateSimpleText 大标题加正文摘要
	TemplateSimpleText = "simple_text"
	// TemplateListDisplay 分条目逐项展示
	TemplateListDisplay = "list_display"
)

// SelectTemplate 按内容形态选择渲染模板。
// override 非空时直接采用；脚本能切出 3 行以上视为列表式内容。
func SelectTemplate(content VideoContent, override string) string {
	if override != "" {
		return override
	}
	var lines int
	for _, l := range strings.Split(content.NarrationScript(), "\n") {
		if strings.TrimSpace(l) != "" {
			lines++
		}
	}
	if lines >= 3 {
		return TemplateListDisplay
	}
	return TemplateSimpleText
}

// RenderParams 组装渲染模板参数。
// 展示文本使用口播文本（译文优先），附带图标、音频与字幕产物。
func RenderParams(content VideoContent, templateID string) map[string]any {
	script := content.NarrationScript()
	params := map[string]any{
		"title":    content.Title,
		"language": content.Language,
	}

	switch templateID {
	case TemplateListDisplay:
		params["items"] = SplitSentences(script)
		params["max_items_per_screen"] = 5
		params["item_animation"] = "sequential"
	default:
		params["subtitle"] = truncateRunes(script, 100)
		params["font_size"] = 48
		params["text_color"] = "WHITE"
		params["background_color"] = "BLACK"
		params["animation_style"] = "fade"
	}

	if len(content.Icons) > 0 {
		params["icons"] = append([]string(nil), content.Icons...)
	}
	if content.AudioFile != "" {
		params["audio_file"] = content.AudioFile
	}
	if content.SubtitleFile != "" {
		params["subtitle_file"] = content.SubtitleFile
	}
	return params
}

// truncateRunes 按字符数截断，超长时追加省略号。
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
