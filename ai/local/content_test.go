package local

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/clipflow/ai"
	"github.com/BaSui01/clipflow/types"
)

func TestStyles_Catalog(t *testing.T) {
	all := Styles()
	assert.Len(t, all, 5)
	for _, name := range StyleNames() {
		assert.Contains(t, all, name)
	}

	edu := StyleByName("educational")
	assert.Equal(t, "tutorial", edu.Structure)
	assert.Equal(t, "professional", edu.Tone)

	// 未知风格回退 default
	assert.Equal(t, StyleByName("default"), StyleByName("vaporwave"))
}

func TestContentProvider_GeneratesScriptPayload(t *testing.T) {
	p := NewContentProvider(nil)
	assert.Equal(t, "local-content", p.Name())
	assert.Equal(t, ai.CapabilityContentGeneration, p.Capability())

	res, err := p.Call(context.Background(), ai.Request{
		Input:  "Go 并发模型",
		Params: map[string]any{"style": "educational", "duration": 45},
	})
	require.NoError(t, err)

	var payload struct {
		Title             string   `json:"title"`
		Script            string   `json:"script"`
		Hooks             []string `json:"hooks"`
		Tags              []string `json:"tags"`
		Description       string   `json:"description"`
		Style             string   `json:"style"`
		EstimatedDuration int      `json:"estimated_duration"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Output), &payload))

	assert.Equal(t, "教育科普：Go 并发模型", payload.Title)
	assert.Contains(t, payload.Script, "第一步")
	assert.Contains(t, payload.Script, "Go 并发模型")
	assert.Equal(t, "educational", payload.Style)
	assert.NotEmpty(t, payload.Hooks)
	assert.Contains(t, payload.Tags, "Go 并发模型")
	assert.GreaterOrEqual(t, payload.EstimatedDuration, 10)
}

func TestContentProvider_StructureVariants(t *testing.T) {
	p := NewContentProvider(nil)
	ctx := context.Background()

	cases := []struct {
		style  string
		marker string
	}{
		{"default", "很多人第一次接触"},
		{"educational", "第一步"},
		{"lifestyle", "第一点"},
		{"business", "有人问"},
	}
	for _, tc := range cases {
		t.Run(tc.style, func(t *testing.T) {
			res, err := p.Call(ctx, ai.Request{Input: "骑行", Params: map[string]any{"style": tc.style}})
			require.NoError(t, err)
			assert.Contains(t, res.Output, tc.marker)
		})
	}
}

func TestContentProvider_EnglishTemplate(t *testing.T) {
	p := NewContentProvider(nil)

	res, err := p.Call(context.Background(), ai.Request{
		Input:  "urban gardening",
		Params: map[string]any{"language": "en-US", "duration": 30},
	})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Here is what nobody tells you")
	assert.Contains(t, res.Output, "urban gardening")
}

func TestContentProvider_EmptyTopic(t *testing.T) {
	p := NewContentProvider(nil)

	_, err := p.Call(context.Background(), ai.Request{Input: "   "})
	require.Error(t, err)
	assert.False(t, types.IsRetryable(err))
}

func TestEstimateDuration(t *testing.T) {
	// 每秒 3 个字
	assert.Equal(t, 30, estimateDuration(strings.Repeat("字", 90)))
	// 空白不计入
	assert.Equal(t, 30, estimateDuration(strings.Repeat("字 ", 90)))
	// 下限 10 秒
	assert.Equal(t, 10, estimateDuration("短"))
}
