// Package dsl 提供 YAML 声明式的 Agent 与工作流定义格式，
// 支持 ${var} 变量插值、条件分支与并行分支，
// 解析结果可直接注册到 Orchestrator 或 Registry。
package dsl
