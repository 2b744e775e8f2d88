package local

// Voice 语音配置
type Voice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Language    string `json:"language"`
	Gender      string `json:"gender"`
	Description string `json:"description"`
	SampleRate  int    `json:"sample_rate"`
}

// Edge TTS 支持的语音
var voices = []Voice{
	{ID: "zh-CN-XiaoxiaoNeural", Name: "晓晓", Language: "zh-CN", Gender: "female", Description: "温柔女声", SampleRate: 24000},
	{ID: "zh-CN-YunxiNeural", Name: "云希", Language: "zh-CN", Gender: "male", Description: "成熟男声", SampleRate: 24000},
	{ID: "zh-CN-YunyangNeural", Name: "云扬", Language: "zh-CN", Gender: "male", Description: "青年男声", SampleRate: 24000},
	{ID: "zh-CN-XiaoyiNeural", Name: "晓伊", Language: "zh-CN", Gender: "female", Description: "甜美女声", SampleRate: 24000},
	{ID: "zh-CN-YunjianNeural", Name: "云健", Language: "zh-CN", Gender: "male", Description: "稳重男声", SampleRate: 24000},
	{ID: "zh-CN-XiaochenNeural", Name: "晓辰", Language: "zh-CN", Gender: "female", Description: "活泼女声", SampleRate: 24000},
	{ID: "zh-CN-XiaohanNeural", Name: "晓涵", Language: "zh-CN", Gender: "female", Description: "知性女声", SampleRate: 24000},
	{ID: "zh-CN-XiaomengNeural", Name: "晓梦", Language: "zh-CN", Gender: "female", Description: "少女声", SampleRate: 24000},
	{ID: "zh-CN-XiaomoNeural", Name: "晓墨", Language: "zh-CN", Gender: "female", Description: "成熟女声", SampleRate: 24000},
	{ID: "zh-CN-XiaoqiuNeural", Name: "晓秋", Language: "zh-CN", Gender: "female", Description: "温暖女声", SampleRate: 24000},
	{ID: "zh-CN-XiaoruiNeural", Name: "晓睿", Language: "zh-CN", Gender: "female", Description: "清脆女声", SampleRate: 24000},
	{ID: "zh-CN-XiaoshuangNeural", Name: "晓双", Language: "zh-CN", Gender: "female", Description: "双语女声", SampleRate: 24000},
	{ID: "zh-CN-XiaoxuanNeural", Name: "晓萱", Language: "zh-CN", Gender: "female", Description: "优雅女声", SampleRate: 24000},
	{ID: "zh-CN-XiaoyanNeural", Name: "晓颜", Language: "zh-CN", Gender: "female", Description: "亲切女声", SampleRate: 24000},
	{ID: "zh-CN-XiaoyouNeural", Name: "晓悠", Language: "zh-CN", Gender: "female", Description: "悠扬女声", SampleRate: 24000},
	{ID: "zh-CN-XiaozhenNeural", Name: "晓甄", Language: "zh-CN", Gender: "female", Description: "专业女声", SampleRate: 24000},
	{ID: "zh-CN-YunfengNeural", Name: "云枫", Language: "zh-CN", Gender: "male", Description: "磁性男声", SampleRate: 24000},
	{ID: "zh-CN-YunhaoNeural", Name: "云皓", Language: "zh-CN", Gender: "male", Description: "阳光男声", SampleRate: 24000},
	{ID: "zh-CN-YunjieNeural", Name: "云杰", Language: "zh-CN", Gender: "male", Description: "商务男声", SampleRate: 24000},

	{ID: "en-US-AriaNeural", Name: "Aria", Language: "en-US", Gender: "female", Description: "Natural female voice", SampleRate: 24000},
	{ID: "en-US-DavisNeural", Name: "Davis", Language: "en-US", Gender: "male", Description: "Natural male voice", SampleRate: 24000},
	{ID: "en-US-GuyNeural", Name: "Guy", Language: "en-US", Gender: "male", Description: "Casual male voice", SampleRate: 24000},
	{ID: "en-US-JaneNeural", Name: "Jane", Language: "en-US", Gender: "female", Description: "Professional female voice", SampleRate: 24000},
	{ID: "en-US-JasonNeural", Name: "Jason", Language: "en-US", Gender: "male", Description: "Energetic male voice", SampleRate: 24000},
	{ID: "en-US-JennyNeural", Name: "Jenny", Language: "en-US", Gender: "female", Description: "Friendly female voice", SampleRate: 24000},
	{ID: "en-US-NancyNeural", Name: "Nancy", Language: "en-US", Gender: "female", Description: "Warm female voice", SampleRate: 24000},
	{ID: "en-US-TonyNeural", Name: "Tony", Language: "en-US", Gender: "male", Description: "Professional male voice", SampleRate: 24000},
}

// Voices 返回语音列表的副本。
func Voices() []Voice {
	out := make([]Voice, len(voices))
	copy(out, voices)
	return out
}

// VoiceByID 按 ID 查找语音。
func VoiceByID(id string) (Voice, bool) {
	for _, v := range voices {
		if v.ID == id {
			return v, true
		}
	}
	return Voice{}, false
}

// DefaultVoice 按语言返回默认语音。
func DefaultVoice(language string) Voice {
	if language == "zh-CN" || language == "zh" {
		v, _ := VoiceByID("zh-CN-XiaoxiaoNeural")
		return v
	}
	v, _ := VoiceByID("en-US-JennyNeural")
	return v
}
