package render

import (
	"os"
	"time"

	"github.com/BaSui01/clipflow/types"
)

// Status 渲染任务状态。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal 报告状态是否为终态。终态任务只读，不再被队列修改。
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Spec 描述一次渲染请求。
type Spec struct {
	// 所属工作流 ID，可为空（独立提交的任务）
	WorkflowID string `json:"workflow_id,omitempty"`
	// 渲染模板 ID，必填
	TemplateID string `json:"template_id"`
	// 模板参数，原样传给执行器
	Params map[string]any `json:"params,omitempty"`
	// 调度优先级，大者先出队
	Priority int `json:"priority"`
	// 输出参数，nil 时使用队列默认画质
	Settings *RenderSettings `json:"settings,omitempty"`
}

func (s *Spec) validate() error {
	if s.TemplateID == "" {
		return types.NewError(types.ErrValidation, "render spec requires a template id")
	}
	return nil
}

// Job 渲染任务记录。由队列创建并独占修改，进入终态后只读。
type Job struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	TemplateID string         `json:"template_id"`
	Params     map[string]any `json:"params,omitempty"`
	Priority   int            `json:"priority"`
	Settings   RenderSettings `json:"settings"`
	Status     Status         `json:"status"`
	OutputPath string         `json:"output_path,omitempty"`
	Err        string         `json:"error,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`

	// 出队顺序号，同优先级按此保持 FIFO
	seq uint64
	// 在等待堆中的下标，出堆后为 -1
	heapIdx int
	// 运行期间收到过取消请求
	cancelRequested bool
}

// Clone 返回可安全交给调用方的深拷贝。
func (j *Job) Clone() *Job {
	c := *j
	if j.Params != nil {
		c.Params = make(map[string]any, len(j.Params))
		for k, v := range j.Params {
			c.Params[k] = v
		}
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	c.heapIdx = -1
	return &c
}

// Result 渲染结果汇总，对齐任务终态生成。
type Result struct {
	JobID      string        `json:"job_id"`
	Success    bool          `json:"success"`
	OutputFile string        `json:"output_file,omitempty"`
	Duration   time.Duration `json:"duration"`
	FileSize   int64         `json:"file_size"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	FrameCount int           `json:"frame_count"`
	Error      string        `json:"error,omitempty"`
}

// Result 根据任务当前状态生成结果汇总。
// 未结束的任务返回 Success=false 且不含产物信息。
func (j *Job) Result() *Result {
	r := &Result{
		JobID:  j.ID,
		Error:  j.Err,
		Width:  j.Settings.Width,
		Height: j.Settings.Height,
	}
	if j.StartedAt != nil && j.FinishedAt != nil {
		r.Duration = j.FinishedAt.Sub(*j.StartedAt)
	}
	if j.Status != StatusSucceeded {
		return r
	}
	r.Success = true
	r.OutputFile = j.OutputPath
	if info, err := os.Stat(j.OutputPath); err == nil {
		r.FileSize = info.Size()
	}
	// 精确帧数需要探测产物，这里不做估算，留 0
	return r
}
