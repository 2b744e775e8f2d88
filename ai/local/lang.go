package local

import "strings"

// detectLanguage 用汉字占比做粗粒度语言判断。
// 非空白字符中汉字超过 30% 判为中文，否则判为英文。
func detectLanguage(text string) string {
	stripped := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\t' {
			return -1
		}
		return r
	}, text)

	total := 0
	chinese := 0
	for _, r := range stripped {
		total++
		if r >= 0x4e00 && r <= 0x9fff {
			chinese++
		}
	}
	if total == 0 {
		return "en"
	}
	if float64(chinese)/float64(total) > 0.3 {
		return "zh-CN"
	}
	return "en"
}
