// Copyright (c) ClipFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 ClipFlow 服务端程序入口。

# 概述

cmd/clipflow 是 ClipFlow 编排引擎的可执行入口，提供工作流管理 HTTP API、
WebSocket 进度推送、健康检查和版本查询等子命令。程序支持 YAML 配置文件
加载、结构化日志（zap）、Prometheus 指标采集以及 OpenTelemetry 追踪。

# 核心类型

  - Server           — 主服务器，组装缓存/存储/编排器/渲染队列/工作流引擎并管理优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、workflow create|status|cancel（操作运行中的
    服务）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    OTelTracing、MetricsMiddleware、RateLimiter（基于 IP，rps=0 关闭）
  - 指标端点：/metrics（Prometheus）与 API 同端口暴露
  - 优雅关闭：信号监听 → 关闭 HTTP → 取消工作流 → 排空渲染队列 →
    释放存储与缓存 → 刷出遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
