package api

import (
	"time"

	"github.com/BaSui01/clipflow/render"
	"github.com/BaSui01/clipflow/store"
	"github.com/BaSui01/clipflow/workflow"
)

// =============================================================================
// 工作流类型
// =============================================================================

// SubmitWorkflowRequest is a type alias for workflow.Request to avoid
// duplicate definitions. The canonical definition lives in workflow.Request
// (workflow/model.go); its json tags are the wire format.
type SubmitWorkflowRequest = workflow.Request

// SubmitWorkflowResponse 工作流提交受理结果。
// @Description 工作流提交响应结构
type SubmitWorkflowResponse struct {
	// 新建工作流 ID
	ID string `json:"id" example:"6f1c0f9e-8d7a-4f7b-9a55-0f4c4b6e2d31"`
	// 初始状态
	Status workflow.Status `json:"status" example:"pending"`
}

// WorkflowSummary 工作流列表条目,省略 Content、Stages 等大字段。
// 完整记录通过 GET /api/v1/workflows/{id} 获取。
// @Description 工作流摘要结构
type WorkflowSummary struct {
	// 工作流 ID
	ID string `json:"id" example:"6f1c0f9e-8d7a-4f7b-9a55-0f4c4b6e2d31"`
	// 视频主题
	Topic string `json:"topic" example:"如何高效学习"`
	// 当前状态（pending、running、succeeded、failed、cancelled）
	Status workflow.Status `json:"status" example:"running"`
	// 总体进度（0-100）
	Progress float64 `json:"progress" example:"62.5"`
	// 关联的渲染任务 ID
	RenderJobID string `json:"render_job_id,omitempty"`
	// 失败时的错误消息
	Error string `json:"error,omitempty"`
	// 创建时间
	CreatedAt time.Time `json:"created_at"`
	// 终结时间（终态才有值）
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// WorkflowListResponse 工作流列表。
// @Description 工作流列表响应
type WorkflowListResponse struct {
	// 工作流摘要列表
	Workflows []WorkflowSummary `json:"workflows"`
	// 本页条数
	Count int `json:"count" example:"20"`
}

// CancelWorkflowResponse 取消请求受理结果。
// 取消是异步的,正在执行的阶段收到取消信号后工作流才进入终态。
// @Description 工作流取消响应结构
type CancelWorkflowResponse struct {
	// 工作流 ID
	ID string `json:"id" example:"6f1c0f9e-8d7a-4f7b-9a55-0f4c4b6e2d31"`
	// 取消请求是否被受理
	Accepted bool `json:"accepted" example:"true"`
}

// =============================================================================
// 进度事件类型
// =============================================================================

// ProgressEvent is a type alias for workflow.Event. Events are pushed as
// JSON text frames over the WebSocket at
// GET /api/v1/workflows/{id}/events.
type ProgressEvent = workflow.Event

// =============================================================================
// 统计类型
// =============================================================================

// StatsResponse 引擎、渲染队列与存储的聚合统计。
// @Description 聚合统计响应结构
type StatsResponse struct {
	// 工作流引擎统计
	Workflows workflow.EngineStats `json:"workflows"`
	// 渲染队列统计
	Render render.Stats `json:"render"`
	// 持久化存储统计
	Store store.Stats `json:"store"`
}
