package workflow

import (
	"context"
	"time"

	"github.com/BaSui01/clipflow/types"
)

// Status 工作流状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal 报告状态是否为终态。
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// StageName 流水线阶段名。
type StageName string

const (
	StageContentGeneration StageName = "ContentGeneration"
	StageTranslation       StageName = "Translation"
	StageIconMatching      StageName = "IconMatching"
	StageTTS               StageName = "TTS"
	StageRendering         StageName = "Rendering"
)

// StageOrder 阶段的固定执行顺序。Translation 与 IconMatching 可选，
// 其余必选。
var StageOrder = []StageName{
	StageContentGeneration,
	StageTranslation,
	StageIconMatching,
	StageTTS,
	StageRendering,
}

// StageStatus 单个阶段的状态。
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusSucceeded StageStatus = "succeeded"
	// StageStatusSkipped 阶段未启用，未执行
	StageStatusSkipped StageStatus = "skipped"
	// StageStatusDegraded 可选阶段执行失败，工作流使用缺省值继续
	StageStatusDegraded  StageStatus = "degraded"
	StageStatusFailed    StageStatus = "failed"
	StageStatusCancelled StageStatus = "cancelled"
)

// IsTerminal 报告阶段状态是否为终态。
func (s StageStatus) IsTerminal() bool {
	switch s {
	case StageStatusSucceeded, StageStatusSkipped, StageStatusDegraded, StageStatusFailed, StageStatusCancelled:
		return true
	}
	return false
}

// StageRecord 阶段执行记录。
type StageRecord struct {
	Name       StageName   `json:"name"`
	Status     StageStatus `json:"status"`
	Attempts   int         `json:"attempts"`
	Provider   string      `json:"provider,omitempty"`
	Error      string      `json:"error,omitempty"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// Options 单次工作流的执行选项。
// 布尔开关用指针区分"未指定"与"显式关闭"，未指定时落到引擎默认值。
type Options struct {
	// 内容风格: default, educational, entertainment, lifestyle, business
	Style string `json:"style,omitempty"`
	// 源语言，空时自动检测
	Language string `json:"language,omitempty"`
	// 目标时长（秒）
	TargetDuration int `json:"target_duration,omitempty"`
	// 是否启用翻译阶段
	EnableTranslation *bool `json:"enable_translation,omitempty"`
	// 翻译目标语言
	TargetLanguage string `json:"target_language,omitempty"`
	// 是否启用图标匹配阶段
	EnableIconMatching *bool `json:"enable_icon_matching,omitempty"`
	// 图标数量上限
	IconCount int `json:"icon_count,omitempty"`
	// TTS 音色 ID，空时按语言选默认音色
	Voice string `json:"voice,omitempty"`
	// TTS 语速
	Speed float64 `json:"speed,omitempty"`
	// 渲染画质: low, medium, high, production
	Quality string `json:"quality,omitempty"`
	// 显式指定渲染模板，空时按内容自动选择
	TemplateID string `json:"template_id,omitempty"`
	// 渲染优先级
	Priority int `json:"priority,omitempty"`
	// 渲染预览模式
	PreviewMode bool `json:"preview_mode,omitempty"`
}

func (o Options) translationEnabled(def bool) bool {
	if o.EnableTranslation == nil {
		return def
	}
	return *o.EnableTranslation
}

func (o Options) iconMatchingEnabled(def bool) bool {
	if o.EnableIconMatching == nil {
		return def
	}
	return *o.EnableIconMatching
}

// Request 工作流提交请求。
// 提供 Content 时跳过 AI 内容生成，直接使用给定内容走后续阶段。
type Request struct {
	Topic   string        `json:"topic"`
	Content *VideoContent `json:"content,omitempty"`
	Options Options       `json:"options"`
}

// Validate 校验请求。
func (r *Request) Validate() error {
	if r.Topic == "" && (r.Content == nil || r.Content.Script == "") {
		return types.NewError(types.ErrValidation, "workflow request requires a topic or explicit content")
	}
	if r.Options.Speed < 0 {
		return types.NewError(types.ErrValidation, "tts speed must not be negative")
	}
	if r.Options.Quality != "" {
		if !qualityKnown(r.Options.Quality) {
			return types.NewError(types.ErrValidation, "unknown render quality: "+r.Options.Quality)
		}
	}
	return nil
}

func qualityKnown(q string) bool {
	switch q {
	case "low", "medium", "high", "production":
		return true
	}
	return false
}

// Workflow 一次视频生成工作流的完整记录。
type Workflow struct {
	ID          string        `json:"id"`
	Topic       string        `json:"topic"`
	Options     Options       `json:"options"`
	Status      Status        `json:"status"`
	Stages      []StageRecord `json:"stages"`
	Content     VideoContent  `json:"content"`
	RenderJobID string        `json:"render_job_id,omitempty"`
	OutputFiles []string      `json:"output_files,omitempty"`
	Error       *types.Error  `json:"error,omitempty"`
	Progress    float64       `json:"progress"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
}

// Stage 返回指定阶段的记录，不存在时返回 nil。
func (w *Workflow) Stage(name StageName) *StageRecord {
	for i := range w.Stages {
		if w.Stages[i].Name == name {
			return &w.Stages[i]
		}
	}
	return nil
}

// Clone 返回深拷贝，可安全交给调用方。
func (w *Workflow) Clone() *Workflow {
	c := *w
	c.Stages = make([]StageRecord, len(w.Stages))
	copy(c.Stages, w.Stages)
	for i := range c.Stages {
		if w.Stages[i].StartedAt != nil {
			t := *w.Stages[i].StartedAt
			c.Stages[i].StartedAt = &t
		}
		if w.Stages[i].FinishedAt != nil {
			t := *w.Stages[i].FinishedAt
			c.Stages[i].FinishedAt = &t
		}
	}
	c.Content = w.Content.Clone()
	if w.OutputFiles != nil {
		c.OutputFiles = append([]string(nil), w.OutputFiles...)
	}
	if w.Error != nil {
		e := *w.Error
		c.Error = &e
	}
	if w.StartedAt != nil {
		t := *w.StartedAt
		c.StartedAt = &t
	}
	if w.FinishedAt != nil {
		t := *w.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Filter 工作流列表过滤条件。
type Filter struct {
	Status Status `json:"status,omitempty"`
	Topic  string `json:"topic,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store 工作流记录的持久化后端。引擎在每次状态变更时写入。
type Store interface {
	SaveWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	ListWorkflows(ctx context.Context, filter Filter) ([]*Workflow, error)
}

// EventType 工作流事件类型。
type EventType string

const (
	EventStageStarted     EventType = "stage_started"
	EventStageFinished    EventType = "stage_finished"
	EventWorkflowFinished EventType = "workflow_finished"
)

// Event 工作流进度事件，通过 Watch 推送。
type Event struct {
	Type        EventType   `json:"type"`
	WorkflowID  string      `json:"workflow_id"`
	Stage       StageName   `json:"stage,omitempty"`
	StageStatus StageStatus `json:"stage_status,omitempty"`
	Status      Status      `json:"status,omitempty"`
	Progress    float64     `json:"progress"`
	Message     string      `json:"message,omitempty"`
	At          time.Time   `json:"at"`
}
