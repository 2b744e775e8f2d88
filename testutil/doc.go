// Copyright 2026 ClipFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 ClipFlow 测试的共享工具和测试替身。

# 概述

testutil 包为整个项目的单元测试与集成测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。包内不依赖任何真实外部
服务，所有替身均为内存实现，可直接用于并发场景。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue，超时轮询等待条件满足
  - 时间辅助: WaitFor / WaitForChannel，等待条件或通道就绪
  - 数据工具: MustJSON / MustParseJSON，简化测试数据构造
  - 测试替身: ScriptedProvider（ai.Provider，按脚本回放输出、
    错误与延迟）、FakeExecutor（render.Executor，支持延迟、
    错误注入、挂起放行与调用记录），均支持 Builder 链式配置

# 使用示例

	ctx := testutil.TestContext(t)
	provider := testutil.NewScriptedProvider("gen", ai.CapabilityContentGeneration).
		WithError(errors.New("transient")).
		WithOutput("最终脚本")
	res, err := provider.Call(ctx, ai.Request{Input: "topic"})
*/
package testutil
