/*
包 orchestrator 是 FlowCore 的对外门面，组合 Registry 与 WorkflowEngine。

# 概述

New 根据 config.Config 组装模型调用链（日志、响应缓存、熔断、限流），
在其外层构建 retry.FallbackResolver，再创建注册表与执行引擎。
调用方只需提供一个 llm.Invoker 实现。

# 核心类型

  - Orchestrator：注册 Agent/Workflow 并执行工作流，Shutdown 幂等释放资源。
  - Option：函数式选项，注入日志、配置、指标、链路追踪与额外的调用中间件。

# 调用链

由外到内依次为：日志 → 响应缓存（Redis）→ 熔断器 → 限流 → 额外中间件 → Invoker。
缓存命中不会消耗限流配额，也不会影响熔断状态。

# 生命周期

Shutdown 关闭调用链（包括 Redis 连接池）并依次执行通过 WithCloser
注册的清理函数。关闭后 Execute 与注册操作返回 ORCHESTRATOR_CLOSED。
*/
package orchestrator
