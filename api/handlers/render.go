package handlers

import (
	"net/http"
	"strings"

	"github.com/BaSui01/clipflow/render"
	"github.com/BaSui01/clipflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🎞️ 渲染任务接口 Handler
// =============================================================================

// RenderService 渲染任务查询能力,由 render.Queue 实现。
type RenderService interface {
	Status(jobID string) (*render.Job, error)
}

// RenderHandler 渲染任务接口处理器
type RenderHandler struct {
	queue  RenderService
	logger *zap.Logger
}

// NewRenderHandler 创建渲染任务处理器
func NewRenderHandler(queue RenderService, logger *zap.Logger) *RenderHandler {
	return &RenderHandler{
		queue:  queue,
		logger: logger,
	}
}

// HandleGetJob 查询渲染任务状态
// @Summary 渲染任务状态
// @Description 查询单个渲染任务的状态与产物路径
// @Tags 渲染
// @Produce json
// @Param id path string true "渲染任务 ID"
// @Success 200 {object} Response{data=render.Job} "任务记录"
// @Failure 404 {object} Response "任务不存在"
// @Router /api/v1/render/jobs/{id} [get]
func (h *RenderHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	id := extractJobID(r)
	if id == "" {
		WriteErrorMessage(w, types.ErrValidation, "render job ID is required", h.logger)
		return
	}

	job, err := h.queue.Status(id)
	if err != nil {
		h.handleRenderError(w, err)
		return
	}

	WriteSuccess(w, job)
}

// handleRenderError 处理渲染队列错误
func (h *RenderHandler) handleRenderError(w http.ResponseWriter, err error) {
	if typedErr := types.AsError(err); typedErr != nil {
		WriteError(w, typedErr, h.logger)
		return
	}

	WriteError(w, types.NewError(types.ErrInternal, "render queue operation failed").
		WithCause(err), h.logger)
}

// extractJobID 从 URL 路径提取渲染任务 ID
func extractJobID(r *http.Request) string {
	if id := r.PathValue("id"); id != "" {
		return id
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/render/jobs/")
	if path != "" && path != r.URL.Path && !strings.Contains(path, "/") {
		return path
	}
	return ""
}
