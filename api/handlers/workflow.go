package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/clipflow/api"
	"github.com/BaSui01/clipflow/types"
	"github.com/BaSui01/clipflow/workflow"
	"go.uber.org/zap"
)

// =============================================================================
// 🎬 工作流接口 Handler
// =============================================================================

// 列表分页参数
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// WorkflowService 工作流处理器依赖的引擎能力,由 workflow.Engine 实现。
type WorkflowService interface {
	Submit(ctx context.Context, req workflow.Request) (string, error)
	Get(ctx context.Context, id string) (*workflow.Workflow, error)
	List(ctx context.Context, filter workflow.Filter) ([]*workflow.Workflow, error)
	Cancel(id string) error
	Watch(id string) (<-chan workflow.Event, func(), error)
}

// WorkflowHandler 工作流接口处理器
type WorkflowHandler struct {
	engine WorkflowService
	logger *zap.Logger
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(engine WorkflowService, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		engine: engine,
		logger: logger,
	}
}

// HandleSubmit 处理工作流提交请求
// @Summary 提交工作流
// @Description 提交一条视频生成工作流,受理后异步执行
// @Tags 工作流
// @Accept json
// @Produce json
// @Param request body api.SubmitWorkflowRequest true "提交请求"
// @Success 202 {object} Response{data=api.SubmitWorkflowResponse} "已受理"
// @Failure 400 {object} Response "无效请求"
// @Failure 503 {object} Response "引擎已关闭"
// @Router /api/v1/workflows [post]
func (h *WorkflowHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	// 验证 Content-Type
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	// 解码请求,字段校验由引擎完成
	var req api.SubmitWorkflowRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	id, err := h.engine.Submit(r.Context(), req)
	if err != nil {
		h.handleEngineError(w, err)
		return
	}

	h.logger.Info("workflow submitted",
		zap.String("workflow_id", id),
		zap.String("topic", req.Topic),
	)

	WriteJSON(w, http.StatusAccepted, Response{
		Success:   true,
		Data:      api.SubmitWorkflowResponse{ID: id, Status: workflow.StatusPending},
		Timestamp: time.Now(),
	})
}

// HandleList 处理工作流列表请求
// @Summary 工作流列表
// @Description 按状态/主题过滤的分页列表,按创建时间倒序
// @Tags 工作流
// @Produce json
// @Param status query string false "状态过滤" Enums(pending, running, succeeded, failed, cancelled)
// @Param topic query string false "主题子串过滤"
// @Param limit query int false "每页条数,默认 50,上限 200"
// @Param offset query int false "跳过条数"
// @Success 200 {object} Response{data=api.WorkflowListResponse} "工作流列表"
// @Failure 400 {object} Response "无效查询参数"
// @Router /api/v1/workflows [get]
func (h *WorkflowHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, ferr := parseListFilter(r)
	if ferr != nil {
		WriteError(w, ferr, h.logger)
		return
	}

	wfs, err := h.engine.List(r.Context(), filter)
	if err != nil {
		h.handleEngineError(w, err)
		return
	}

	summaries := make([]api.WorkflowSummary, 0, len(wfs))
	for _, wf := range wfs {
		summaries = append(summaries, toWorkflowSummary(wf))
	}

	WriteSuccess(w, api.WorkflowListResponse{
		Workflows: summaries,
		Count:     len(summaries),
	})
}

// HandleGet 处理单条工作流查询
// @Summary 查询工作流
// @Description 返回工作流完整记录,含阶段明细与生成内容
// @Tags 工作流
// @Produce json
// @Param id path string true "工作流 ID"
// @Success 200 {object} Response{data=workflow.Workflow} "工作流记录"
// @Failure 404 {object} Response "工作流不存在"
// @Router /api/v1/workflows/{id} [get]
func (h *WorkflowHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := extractWorkflowID(r)
	if id == "" {
		WriteErrorMessage(w, types.ErrValidation, "workflow ID is required", h.logger)
		return
	}

	wf, err := h.engine.Get(r.Context(), id)
	if err != nil {
		h.handleEngineError(w, err)
		return
	}

	WriteSuccess(w, wf)
}

// HandleCancel 处理工作流取消请求
// @Summary 取消工作流
// @Description 请求取消工作流,正在执行的阶段收到取消信号后异步终结
// @Tags 工作流
// @Produce json
// @Param id path string true "工作流 ID"
// @Success 200 {object} Response{data=api.CancelWorkflowResponse} "已受理"
// @Failure 404 {object} Response "工作流不存在"
// @Failure 409 {object} Response "工作流已终结"
// @Router /api/v1/workflows/{id}/cancel [post]
func (h *WorkflowHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := extractWorkflowID(r)
	if id == "" {
		WriteErrorMessage(w, types.ErrValidation, "workflow ID is required", h.logger)
		return
	}

	if err := h.engine.Cancel(id); err != nil {
		h.handleEngineError(w, err)
		return
	}

	h.logger.Info("workflow cancel requested", zap.String("workflow_id", id))

	WriteSuccess(w, api.CancelWorkflowResponse{ID: id, Accepted: true})
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// handleEngineError 处理引擎错误
func (h *WorkflowHandler) handleEngineError(w http.ResponseWriter, err error) {
	if typedErr := types.AsError(err); typedErr != nil {
		WriteError(w, typedErr, h.logger)
		return
	}

	// 未知错误，包装为内部错误
	internalErr := types.NewError(types.ErrInternal, "workflow operation failed").
		WithCause(err).
		WithRetryable(false)

	WriteError(w, internalErr, h.logger)
}

// parseListFilter 解析列表查询参数
func parseListFilter(r *http.Request) (workflow.Filter, *types.Error) {
	q := r.URL.Query()
	filter := workflow.Filter{
		Topic: q.Get("topic"),
		Limit: defaultListLimit,
	}

	if s := q.Get("status"); s != "" {
		status := workflow.Status(s)
		switch status {
		case workflow.StatusPending, workflow.StatusRunning,
			workflow.StatusSucceeded, workflow.StatusFailed, workflow.StatusCancelled:
			filter.Status = status
		default:
			return filter, types.NewError(types.ErrValidation, "unknown status: "+s)
		}
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, types.NewError(types.ErrValidation, "limit must be a positive integer")
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		filter.Limit = n
	}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, types.NewError(types.ErrValidation, "offset must be a non-negative integer")
		}
		filter.Offset = n
	}

	return filter, nil
}

// toWorkflowSummary 转换为列表摘要
func toWorkflowSummary(wf *workflow.Workflow) api.WorkflowSummary {
	s := api.WorkflowSummary{
		ID:          wf.ID,
		Topic:       wf.Topic,
		Status:      wf.Status,
		Progress:    wf.Progress,
		RenderJobID: wf.RenderJobID,
		CreatedAt:   wf.CreatedAt,
		FinishedAt:  wf.FinishedAt,
	}
	if wf.Error != nil {
		s.Error = wf.Error.Message
	}
	return s
}

// extractWorkflowID 从 URL 路径提取工作流 ID。
// 优先 Go 1.22+ PathValue，回退到前缀裁剪。
func extractWorkflowID(r *http.Request) string {
	if id := r.PathValue("id"); id != "" {
		return id
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/workflows/")
	path = strings.TrimSuffix(path, "/cancel")
	path = strings.TrimSuffix(path, "/events")
	if path != "" && path != r.URL.Path && !strings.Contains(path, "/") {
		return path
	}
	return ""
}
