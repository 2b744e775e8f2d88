package local

// Style 定义一种文案风格。
type Style struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tone        string   `json:"tone"`      // 语调: formal, casual, humorous, professional
	Structure   string   `json:"structure"` // 结构: narrative, list, qa, tutorial
	Keywords    []string `json:"keywords"`
}

// 预定义内容风格
var styles = map[string]Style{
	"default": {
		Name:        "默认",
		Description: "通用短视频风格",
		Tone:        "casual",
		Structure:   "narrative",
		Keywords:    []string{"有趣", "实用", "分享"},
	},
	"educational": {
		Name:        "教育科普",
		Description: "知识分享类视频",
		Tone:        "professional",
		Structure:   "tutorial",
		Keywords:    []string{"学习", "知识", "技巧", "方法"},
	},
	"entertainment": {
		Name:        "娱乐搞笑",
		Description: "轻松娱乐类视频",
		Tone:        "humorous",
		Structure:   "narrative",
		Keywords:    []string{"搞笑", "有趣", "娱乐", "轻松"},
	},
	"lifestyle": {
		Name:        "生活方式",
		Description: "生活分享类视频",
		Tone:        "casual",
		Structure:   "list",
		Keywords:    []string{"生活", "分享", "体验", "推荐"},
	},
	"business": {
		Name:        "商业营销",
		Description: "商业推广类视频",
		Tone:        "professional",
		Structure:   "qa",
		Keywords:    []string{"产品", "服务", "优势", "价值"},
	},
}

// Styles 返回全部可用风格的副本。
func Styles() map[string]Style {
	out := make(map[string]Style, len(styles))
	for k, v := range styles {
		out[k] = v
	}
	return out
}

// StyleByName 按名字查找风格，未知名字回退到 default。
func StyleByName(name string) Style {
	if s, ok := styles[name]; ok {
		return s
	}
	return styles["default"]
}

// StyleNames 返回已知风格名，供配置校验使用。
func StyleNames() []string {
	return []string{"default", "educational", "entertainment", "lifestyle", "business"}
}
