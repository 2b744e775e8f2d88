// Copyright (c) ClipFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 ClipFlow HTTP 管理 API 的请求处理器实现。

# 概述

handlers 包实现了 ClipFlow 所有 HTTP 端点的请求处理逻辑，
包括工作流提交与查询、渲染任务查询、进度事件推送、健康检查
以及统一的响应/错误处理。所有 Handler 均遵循标准 net/http
接口，通过 Swagger 注解生成 API 文档。

# 核心类型

  - WorkflowHandler  — 工作流提交、列表、查询、取消与 WebSocket 进度流
  - RenderHandler    — 渲染任务状态查询
  - StatsHandler     — 引擎/渲染/存储聚合统计
  - HealthHandler    — 服务健康检查（/healthz, /readyz, /version）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、stage、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（PingCheck 适配任意 ping 函数）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - WebSocket 进度流：HandleEvents 把 Engine.Watch 事件推送给客户端
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
