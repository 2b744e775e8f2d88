package render

import (
	"fmt"
	"strings"
)

// Quality 渲染画质档位。
type Quality string

const (
	// QualityLow 低画质，预览与快速迭代用
	QualityLow Quality = "low"
	// QualityMedium 中等画质，默认档位
	QualityMedium Quality = "medium"
	// QualityHigh 高画质
	QualityHigh Quality = "high"
	// QualityProduction 成片画质
	QualityProduction Quality = "production"
)

// Valid 报告 q 是否为已知画质档位。
func (q Quality) Valid() bool {
	switch q {
	case QualityLow, QualityMedium, QualityHigh, QualityProduction:
		return true
	}
	return false
}

// ParseQuality 解析画质字符串，大小写不敏感。
// 空串返回 QualityMedium，未知值返回错误。
func ParseQuality(s string) (Quality, error) {
	if s == "" {
		return QualityMedium, nil
	}
	q := Quality(strings.ToLower(strings.TrimSpace(s)))
	if !q.Valid() {
		return "", fmt.Errorf("unknown render quality %q", s)
	}
	return q, nil
}

// RenderSettings 单次渲染的输出参数。
type RenderSettings struct {
	Quality     Quality `json:"quality"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FrameRate   int     `json:"frame_rate"`
	AspectRatio string  `json:"aspect_ratio"`
	Background  string  `json:"background"`
	Format      string  `json:"format"`
	PreviewMode bool    `json:"preview_mode"`
}

// 各档位的分辨率与帧率预设。
var qualityPresets = map[Quality]RenderSettings{
	QualityLow:        {Quality: QualityLow, Width: 854, Height: 480, FrameRate: 15},
	QualityMedium:     {Quality: QualityMedium, Width: 1280, Height: 720, FrameRate: 24},
	QualityHigh:       {Quality: QualityHigh, Width: 1920, Height: 1080, FrameRate: 30},
	QualityProduction: {Quality: QualityProduction, Width: 1920, Height: 1080, FrameRate: 60},
}

// SettingsForQuality 返回指定档位的完整渲染参数。
// 未知档位按 QualityMedium 处理。
func SettingsForQuality(q Quality) RenderSettings {
	preset, ok := qualityPresets[q]
	if !ok {
		preset = qualityPresets[QualityMedium]
	}
	preset.AspectRatio = "16:9"
	preset.Background = "black"
	preset.Format = "mp4"
	return preset
}

// Normalized 补全零值字段并应用预览降档。
//
// 画质无效时回退 QualityMedium；宽高或帧率缺省时取档位预设；
// 预览模式强制使用低档分辨率与帧率以缩短渲染时间。
func (s RenderSettings) Normalized() RenderSettings {
	if !s.Quality.Valid() {
		s.Quality = QualityMedium
	}
	preset := SettingsForQuality(s.Quality)
	if s.Width <= 0 || s.Height <= 0 {
		s.Width, s.Height = preset.Width, preset.Height
	}
	if s.FrameRate <= 0 {
		s.FrameRate = preset.FrameRate
	}
	if s.AspectRatio == "" {
		s.AspectRatio = preset.AspectRatio
	}
	if s.Background == "" {
		s.Background = preset.Background
	}
	if s.Format == "" {
		s.Format = preset.Format
	}
	if s.PreviewMode {
		low := SettingsForQuality(QualityLow)
		s.Width, s.Height = low.Width, low.Height
		s.FrameRate = low.FrameRate
	}
	return s
}
