/*
包 metrics 提供基于 Prometheus 的工作流指标采集能力，覆盖
工作流执行、步骤、模型调用、响应缓存与熔断器五个维度。

# 概述

Collector 注册到调用方提供的 Registerer，所有指标按 namespace 隔离。
同一 Registerer 上重复创建 Collector 时复用已注册的指标族，不会 panic。Collector 实现 workflow.Metrics，
可直接交给 workflow.WithMetrics 使用；Fanout 可以把同一组观测
同时转发给多个实现（例如 Prometheus 与 OpenTelemetry）。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram 向量指标。
  - Fanout：workflow.Metrics 的多路转发器。

# 主要能力

  - 工作流指标：执行总数与耗时，按 workflow_id/status/code 分组。
  - 步骤指标：按 kind 分组的步骤计数与耗时。
  - 模型调用指标：尝试次数、耗时、Token 用量以及降级模型上的尝试。
  - 缓存指标：命中与未命中计数，签名与 cache.Config.OnLookup 一致。
  - 熔断器指标：状态转换计数，按 model/from_state/to_state 分组。
*/
package metrics
