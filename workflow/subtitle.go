package workflow

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/clipflow/types"
)

// WriteSRT 把脚本写成 SRT 字幕文件。
//
// 脚本按句切分，每句时长按字符数占比分摊 totalDuration（秒），
// 片段首尾相接。totalDuration 无效时按 3 字符/秒估算。
func WriteSRT(path, script string, totalDuration float64) error {
	segments := SplitSentences(script)
	if len(segments) == 0 {
		return types.NewError(types.ErrValidation, "subtitle script is empty")
	}

	var totalRunes int
	for _, seg := range segments {
		totalRunes += utf8.RuneCountInString(seg)
	}
	if totalDuration <= 0 {
		totalDuration = math.Max(float64(totalRunes)/3.0, 10.0)
	}

	var b strings.Builder
	var consumed int
	start := 0.0
	for i, seg := range segments {
		consumed += utf8.RuneCountInString(seg)
		end := totalDuration * float64(consumed) / float64(totalRunes)
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, formatSRTTime(start), formatSRTTime(end), seg)
		start = end
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create subtitle dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write subtitle file: %w", err)
	}
	return nil
}

// formatSRTTime 格式化为 SRT 时间戳 HH:MM:SS,mmm。
func formatSRTTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int(math.Round(seconds * 1000))
	h := ms / 3600000
	ms %= 3600000
	m := ms / 60000
	ms %= 60000
	s := ms / 1000
	ms %= 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
