// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 定义编排引擎消费的模型调用契约，以及围绕该契约的装饰器。

# 概述

真正的模型推理（鉴权、报文格式、响应解析）由集成方提供，本包只定义
[Invoker] 接口：给定模型、系统提示词、输入、温度、Token 上限与超时，
返回生成文本或带错误码的失败。

# 核心接口

  - [Invoker]：模型调用接口 Invoke(ctx, *Request) (*Response, error)
  - [InvokerFunc]：函数适配器
  - [Closer]：持有连接池、后台定时器等资源的调用方实现，Orchestrator 关闭时释放
  - [Middleware] / [Chain]：装饰器链

# 装饰器

  - [RateLimitedInvoker]：基于 golang.org/x/time/rate 的令牌桶限流
  - llm/circuitbreaker：按模型熔断
  - llm/cache：Redis 响应缓存
  - llm/retry：重试与降级模型解析（FallbackResolver）
*/
package llm
