// 版权所有 2025 ClipFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 ai 提供统一的 AI 能力编排层，包括 Provider 抽象、能力降级链、
请求指纹缓存与退避重试。

# 概述

视频流水线依赖多类 AI 服务（文案生成、翻译、图标匹配、语音合成），
不同服务商在接口、错误语义和可用性上差异很大。本包对上层暴露一致的
能力调用模型：按 [Capability] 注册 Provider 组成有序降级链，
编排器负责缓存、重试与故障转移，上层只关心能力与结果。

你可以使用它完成以下典型场景：

- 单一 Provider 的快速接入与调用。
- 多 Provider 降级链与故障转移。
- 相同请求的指纹级缓存与并发去重。
- 重试、退避、限流与调用观测。

# 核心接口

  - [Provider]：AI 能力提供者接口，提供 Call / Name / Capability

# 核心类型

  - [Capability]：能力枚举（ContentGeneration / Translation /
    IconMatching / TTS）
  - [Request] / [Result]：能力调用的请求与响应
  - [Registry]：按能力维护有序 Provider 链，支持重排与限流配置
  - [Orchestrator]：编排器，实现缓存短路、singleflight 去重、
    链式降级与退避重试
  - [ProviderFailure] / [ExhaustedError]：链耗尽时的逐 Provider 失败记录

# 失败语义

Provider 通过 *types.Error 声明失败类别：瞬时失败在同一 Provider 内
退避重试，永久失败立即切换下一个 Provider。整条链耗尽时返回
ErrProviderAllExhausted，Cause 携带按链序排列的失败列表。
结果缓存按请求指纹寻址，指纹对 Params 的插入顺序不敏感。
*/
package ai
