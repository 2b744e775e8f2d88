// Copyright (c) ClipFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 ClipFlow 引擎的全局共享类型定义。

# 概述

types 是引擎最底层的公共包，不依赖任何内部包，为 ai、workflow、render、
store 等上层模块提供统一的类型契约。所有跨包共享的错误码和结构化错误
均定义于此，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 Retryable、Provider、Stage 标记

# 主要能力

  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
  - 常用错误构造：NewTransientError / NewPermanentError
  - 瞬时（Transient）与永久（Permanent）失败的统一判定规则：
    未携带 *Error 的未知错误按瞬时处理，由上层的有界重试兜底
*/
package types
