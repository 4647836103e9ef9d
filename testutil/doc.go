// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 flowcore 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免各包重复实现
相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue，支持超时轮询等待条件满足
  - 数据工具: MustJSON

# 子包

  - testutil/mocks: MockInvoker（模型调用桩），支持按模型固定响应、
    按模型脚本化失败序列、延迟与忽略 context 的阻塞调用，并记录全部调用
  - testutil/fixtures: 预置 Agent 配置

# 使用示例

	ctx := testutil.TestContext(t)
	inv := mocks.NewMockInvoker().WithModelError("primary", types.NewTimeoutError("primary", "slow"))
	resp, err := inv.Invoke(ctx, &llm.Request{Model: "fallback"})
*/
package testutil
