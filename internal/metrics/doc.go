// 版权所有 2025 ClipFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、AI 调用、缓存、渲染、工作流与存储六大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。
所有记录方法对 nil 接收者安全，组件可以把 Collector 当作可选依赖。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数、请求耗时，按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - AI 指标：Provider 调用总数、调用耗时、重试计数，
    按 capability/provider 分组。
  - 缓存指标：命中与未命中计数，按 capability 分组。
  - 渲染指标：任务终态计数、渲染耗时 Histogram、
    等待队列深度与运行数 Gauge。
  - 工作流指标：终态计数、端到端耗时、阶段执行计数与耗时。
  - 存储指标：存储操作耗时，按 backend/operation 分组。
*/
package metrics
