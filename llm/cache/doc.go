// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供模型调用的 Redis 响应缓存装饰器。

# 概述

相同的确定性请求（temperature 为 0）在同一工作流的重复执行中频繁出现。
[Invoker] 以 Hash 键在 Redis 中缓存 [llm.Response]，命中时不再调用下游模型。

# 主要能力

  - Hash 键：模型、系统提示词、输入、温度与 Token 上限共同决定缓存键
  - 可缓存判断：默认只缓存 temperature == 0 的请求
  - 失败隔离：Redis 读写失败只记录日志，不影响模型调用结果
  - 资源释放：Close 关闭 Redis 连接池，并转发给被包装的调用方

# 使用方式

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	inv := cache.NewInvoker(next, rdb, cache.DefaultConfig(), logger)
	defer inv.Close()
*/
package cache
