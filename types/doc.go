// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 flowcore 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 llm、workflow、registry、
orchestrator 等上层模块提供统一的类型契约，避免循环依赖。

# 核心类型

  - Agent / ModelSpec：Agent 配置：主模型、有序降级模型、温度、Token 上限、超时
  - Error / ErrorCode：结构化错误体系，覆盖注册、查找、调用与工作流四类错误

# 主要能力

  - 配置校验：Agent.Validate 在注册时拒绝越界配置
  - 错误工具链：GetErrorCode / IsCode / IsRetryable 均基于 errors.As，
    可穿透 fmt.Errorf("%w") 包装
*/
package types
