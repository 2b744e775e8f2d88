package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/BaSui01/clipflow/api"
	"github.com/BaSui01/clipflow/render"
	"github.com/BaSui01/clipflow/store"
	"github.com/BaSui01/clipflow/workflow"
	"go.uber.org/zap"
)

// =============================================================================
// 📈 统计接口 Handler
// =============================================================================

// EngineStatsSource 工作流引擎统计来源。
type EngineStatsSource interface {
	Stats() workflow.EngineStats
}

// RenderStatsSource 渲染队列统计来源。
type RenderStatsSource interface {
	Stats() render.Stats
}

// StoreStatsSource 持久化存储统计来源。
type StoreStatsSource interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// StatsHandler 聚合统计处理器
type StatsHandler struct {
	engine  EngineStatsSource
	queue   RenderStatsSource
	storage StoreStatsSource
	logger  *zap.Logger
}

// NewStatsHandler 创建统计处理器
func NewStatsHandler(engine EngineStatsSource, queue RenderStatsSource, storage StoreStatsSource, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		engine:  engine,
		queue:   queue,
		storage: storage,
		logger:  logger,
	}
}

// HandleStats 返回聚合统计
// @Summary 聚合统计
// @Description 返回工作流引擎、渲染队列与持久化存储的统计快照
// @Tags 统计
// @Produce json
// @Success 200 {object} Response{data=api.StatsResponse} "统计快照"
// @Router /api/v1/stats [get]
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := api.StatsResponse{
		Workflows: h.engine.Stats(),
		Render:    h.queue.Stats(),
	}

	// 存储统计失败时只记日志，返回其余部分
	storeStats, err := h.storage.Stats(ctx)
	if err != nil {
		h.logger.Warn("store stats unavailable", zap.Error(err))
	} else {
		resp.Store = storeStats
	}

	WriteSuccess(w, resp)
}
