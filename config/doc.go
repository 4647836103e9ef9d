// Package config 提供 FlowCore 的配置管理功能。
//
// 配置优先级为 默认值 → YAML 文件 → 环境变量（前缀 FLOWCORE），
// Validate 一次性报告所有非法配置项。
package config
