/*
Package main 提供 FlowCore 命令行入口。

# 概述

cmd/flowcore 读取 YAML 配置与 DSL 定义文件，提供定义校验、
使用内置 echo 调用器试运行工作流以及版本查询等子命令。

# 主要能力

  - 子命令：validate（校验定义文件）、run（试运行工作流）、version
  - 配置加载：config.Loader，支持 FLOWCORE_ 前缀环境变量覆盖
  - 结构化日志：按 log 配置构建 zap.Logger
  - 可选输出本次运行的 Prometheus 指标文本
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
