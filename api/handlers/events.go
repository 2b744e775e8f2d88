package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/clipflow/types"
)

// =============================================================================
// 📡 进度事件 WebSocket
// =============================================================================

// wsWriteTimeout 单帧推送超时
const wsWriteTimeout = 10 * time.Second

// HandleEvents 升级为 WebSocket 并推送工作流进度事件。
// 事件为 JSON 文本帧（api.ProgressEvent），工作流终结后服务端正常关闭连接；
// 已终结的工作流会立即收到最终事件。
// @Summary 订阅工作流进度
// @Description 升级为 WebSocket,按 JSON 文本帧推送进度事件直到工作流终结
// @Tags 工作流
// @Param id path string true "工作流 ID"
// @Success 101 {string} string "协议已切换"
// @Failure 404 {object} Response "工作流不存在"
// @Router /api/v1/workflows/{id}/events [get]
func (h *WorkflowHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id := extractWorkflowID(r)
	if id == "" {
		WriteErrorMessage(w, types.ErrValidation, "workflow ID is required", h.logger)
		return
	}

	// 升级前订阅，未知工作流走普通 JSON 404
	events, stop, err := h.engine.Watch(id)
	if err != nil {
		h.handleEngineError(w, err)
		return
	}
	defer stop()

	conn, acceptErr := websocket.Accept(w, r, nil)
	if acceptErr != nil {
		h.logger.Warn("websocket accept failed",
			zap.String("workflow_id", id),
			zap.Error(acceptErr),
		)
		return
	}
	defer conn.CloseNow()

	// 只写连接：丢弃入站帧，客户端断开时 ctx 被取消
	ctx := conn.CloseRead(r.Context())

	h.logger.Info("进度订阅已建立", zap.String("workflow_id", id))

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "workflow finished")
				return
			}
			if werr := writeEvent(ctx, conn, ev); werr != nil {
				h.logger.Debug("progress push failed",
					zap.String("workflow_id", id),
					zap.Error(werr),
				)
				return
			}
		}
	}
}

// writeEvent 带超时推送单个事件
func writeEvent(ctx context.Context, conn *websocket.Conn, ev any) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, ev)
}
