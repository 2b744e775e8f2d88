package local

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/clipflow/ai"
	"github.com/BaSui01/clipflow/types"
)

// ContentProvider 是离线文案生成兜底，按风格模板生成视频脚本。
// 输出为 JSON，字段与工作流的脚本模型对齐：
// title / script / hooks / tags / description / style / estimated_duration。
type ContentProvider struct {
	logger *zap.Logger
}

// NewContentProvider 创建离线文案 Provider。
func NewContentProvider(logger *zap.Logger) *ContentProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentProvider{logger: logger.With(zap.String("provider", "local-content"))}
}

func (p *ContentProvider) Name() string              { return "local-content" }
func (p *ContentProvider) Capability() ai.Capability { return ai.CapabilityContentGeneration }

// Call 生成视频脚本。
// Params: style（风格名）、duration（目标秒数）、language（zh-CN / en-US）。
func (p *ContentProvider) Call(ctx context.Context, req ai.Request) (*ai.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topic := strings.TrimSpace(req.Input)
	if topic == "" {
		return nil, types.NewPermanentError(p.Name(), "topic is empty")
	}

	styleName := stringParam(req.Params, "style", "default")
	style := StyleByName(styleName)
	duration := intParam(req.Params, "duration", 60)
	if duration <= 0 {
		duration = 60
	}
	language := stringParam(req.Params, "language", "zh-CN")

	title, script, hooks, tags, description := buildScript(topic, style, duration, language)

	payload := map[string]any{
		"title":              title,
		"script":             script,
		"hooks":              hooks,
		"tags":               tags,
		"description":        description,
		"style":              styleName,
		"estimated_duration": estimateDuration(script),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewPermanentError(p.Name(), "encode script payload").WithCause(err)
	}

	p.logger.Debug("生成离线脚本",
		zap.String("topic", topic),
		zap.String("style", styleName),
		zap.Int("chars", len([]rune(script))),
	)
	return &ai.Result{Output: string(data), Raw: payload}, nil
}

// buildScript 按风格结构拼装脚本，向 duration*3 字的目标长度靠拢。
func buildScript(topic string, style Style, duration int, language string) (title, script string, hooks, tags []string, description string) {
	if strings.HasPrefix(language, "en") {
		return buildScriptEN(topic, style, duration)
	}

	targetChars := duration * 3

	hook := fmt.Sprintf("你有没有想过，%s到底是怎么回事？", topic)
	closing := fmt.Sprintf("关于%s就聊到这里，觉得有用记得点赞收藏。", topic)

	var body []string
	switch style.Structure {
	case "tutorial":
		hook = fmt.Sprintf("三步带你搞懂%s。", topic)
		body = []string{
			fmt.Sprintf("第一步，先弄清楚%s解决的是什么问题。", topic),
			fmt.Sprintf("第二步，抓住%s里最核心的那个概念。", topic),
			fmt.Sprintf("第三步，亲手把%s用一遍，印象才会深。", topic),
		}
	case "list":
		hook = fmt.Sprintf("关于%s，这几点你一定要知道。", topic)
		body = []string{
			fmt.Sprintf("第一点，%s比大多数人想象的更贴近日常。", topic),
			fmt.Sprintf("第二点，入门%s根本不需要太多准备。", topic),
			fmt.Sprintf("第三点，坚持一小段时间，%s就会给你惊喜。", topic),
		}
	case "qa":
		hook = fmt.Sprintf("%s值得投入吗？今天一次说清。", topic)
		body = []string{
			fmt.Sprintf("有人问，%s的门槛高不高？其实远比传闻中友好。", topic),
			fmt.Sprintf("又有人问，%s能带来什么？答案是实打实的回报。", topic),
			fmt.Sprintf("最后的问题是，现在开始%s晚不晚？永远不晚。", topic),
		}
	default: // narrative
		body = []string{
			fmt.Sprintf("很多人第一次接触%s，都会被它的门槛吓退。", topic),
			fmt.Sprintf("但真正上手之后你会发现，%s没有想象中那么复杂。", topic),
			fmt.Sprintf("真正拉开差距的，是你愿不愿意在%s上多花一点时间。", topic),
		}
	}

	sentences := append([]string{hook}, body...)

	// 用风格关键词补足目标长度
	filler := []string{}
	for _, kw := range style.Keywords {
		filler = append(filler, fmt.Sprintf("把%s这件事做到%s，内容自然会被看见。", topic, kw))
	}
	for i := 0; runeLen(strings.Join(sentences, "")) < targetChars && len(filler) > 0 && i < len(filler); i++ {
		sentences = append(sentences, filler[i])
	}
	sentences = append(sentences, closing)

	title = fmt.Sprintf("%s：%s", style.Name, topic)
	script = strings.Join(sentences, "\n")
	hooksOut := []string{hook}
	tagsOut := append([]string{topic}, style.Keywords...)
	description = fmt.Sprintf("一条关于%s的%s短视频。", topic, style.Description)
	return title, script, hooksOut, tagsOut, description
}

func buildScriptEN(topic string, style Style, duration int) (title, script string, hooks, tags []string, description string) {
	hook := fmt.Sprintf("Here is what nobody tells you about %s.", topic)
	sentences := []string{
		hook,
		fmt.Sprintf("Most people give up on %s before it gets interesting.", topic),
		fmt.Sprintf("The trick with %s is to start small and stay consistent.", topic),
		fmt.Sprintf("Give %s a week and see the difference yourself.", topic),
	}

	title = fmt.Sprintf("%s, explained in %d seconds", topic, duration)
	script = strings.Join(sentences, "\n")
	hooksOut := []string{hook}
	tagsOut := append([]string{topic}, style.Keywords...)
	description = fmt.Sprintf("A short video about %s.", topic)
	return title, script, hooksOut, tagsOut, description
}

// estimateDuration 按每秒约 3 个字估算脚本时长，最少 10 秒。
func estimateDuration(script string) int {
	chars := 0
	for _, r := range script {
		if r != ' ' && r != '\n' {
			chars++
		}
	}
	d := chars / 3
	if d < 10 {
		d = 10
	}
	return d
}

func runeLen(s string) int {
	return len([]rune(s))
}
