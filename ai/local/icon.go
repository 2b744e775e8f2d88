package local

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/clipflow/ai"
	"github.com/BaSui01/clipflow/types"
)

// defaultIcon 在没有任何关键词命中时使用。
const defaultIcon = "🎬"

// 关键词到图标的内置索引，中英文关键词共用一套图标。
var iconIndex = map[string]string{
	// 学习与知识
	"学习": "📚", "study": "📚", "learn": "📚",
	"知识": "🧠", "knowledge": "🧠",
	"书": "📖", "book": "📖",
	"技巧": "💡", "idea": "💡", "tip": "💡",
	"方法": "🛠️", "method": "🛠️",

	// 技术
	"代码": "💻", "code": "💻", "编程": "💻", "programming": "💻",
	"软件": "🖥️", "software": "🖥️",
	"数据": "📊", "data": "📊",
	"网络": "🌐", "network": "🌐", "internet": "🌐",
	"安全": "🔒", "security": "🔒",
	"机器人": "🤖", "robot": "🤖", "智能": "🤖", "ai": "🤖",
	"火箭": "🚀", "rocket": "🚀", "launch": "🚀",
	"速度": "⚡", "fast": "⚡", "快": "⚡",

	// 生活
	"生活": "🏡", "life": "🏡",
	"美食": "🍜", "food": "🍜", "吃": "🍜",
	"旅行": "✈️", "travel": "✈️",
	"健康": "💪", "health": "💪", "运动": "💪",
	"音乐": "🎵", "music": "🎵",
	"电影": "🎥", "movie": "🎥",
	"游戏": "🎮", "game": "🎮",
	"咖啡": "☕", "coffee": "☕",

	// 商业
	"钱": "💰", "money": "💰", "价格": "💰",
	"产品": "📦", "product": "📦",
	"增长": "📈", "growth": "📈", "提升": "📈",
	"目标": "🎯", "target": "🎯", "goal": "🎯",
	"工作": "💼", "work": "💼", "职场": "💼",
	"时间": "⏰", "time": "⏰",
	"成功": "🎉", "success": "🎉",
	"合作": "🤝", "team": "🤝",

	// 情绪与语气
	"问题": "❓", "question": "❓",
	"注意": "⚠️", "warning": "⚠️",
	"爱": "❤️", "love": "❤️",
	"星": "⭐", "star": "⭐",
	"火": "🔥", "hot": "🔥", "热门": "🔥",
	"思考": "🤔", "think": "🤔",
	"惊讶": "😲", "wow": "😲",
	"开心": "😄", "happy": "😄", "笑": "😄",
}

// IconMatch 是一次关键词命中。
type IconMatch struct {
	Keyword string `json:"keyword"`
	Icon    string `json:"icon"`
}

// IconProvider 是离线图标匹配兜底，用内置关键词索引给句子配图标。
// 永不失败：没有命中时返回默认图标。
type IconProvider struct {
	logger *zap.Logger
}

// NewIconProvider 创建离线图标 Provider。
func NewIconProvider(logger *zap.Logger) *IconProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IconProvider{logger: logger.With(zap.String("provider", "local-icon"))}
}

func (p *IconProvider) Name() string              { return "local-icon" }
func (p *IconProvider) Capability() ai.Capability { return ai.CapabilityIconMatching }

// Call 为文本匹配图标。Output 是最佳图标，Raw.matches 携带全部命中。
// Params: count 限制返回的命中数量（缺省 5）。
func (p *IconProvider) Call(ctx context.Context, req ai.Request) (*ai.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(req.Input)
	if text == "" {
		return nil, types.NewPermanentError(p.Name(), "text is empty")
	}
	count := intParam(req.Params, "count", 5)
	if count <= 0 {
		count = 5
	}

	matches := matchIcons(text, count)

	best := defaultIcon
	if len(matches) > 0 {
		best = matches[0].Icon
	}
	raw := map[string]any{"matches": matches, "count": len(matches)}
	return &ai.Result{Output: best, Raw: raw}, nil
}

// matchIcons 在文本中查找索引关键词，更长（更具体）的关键词优先。
func matchIcons(text string, limit int) []IconMatch {
	lower := strings.ToLower(text)

	matches := make([]IconMatch, 0, 8)
	for keyword, icon := range iconIndex {
		if strings.Contains(lower, keyword) {
			matches = append(matches, IconMatch{Keyword: keyword, Icon: icon})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		ki, kj := matches[i].Keyword, matches[j].Keyword
		if len(ki) != len(kj) {
			return len(ki) > len(kj)
		}
		return ki < kj
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
