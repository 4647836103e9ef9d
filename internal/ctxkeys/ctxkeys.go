// Package ctxkeys 定义跨包传递的 context 键，
// 引擎在执行时写入，调用链中的日志中间件读取。
package ctxkeys

import (
	"context"

	"go.uber.org/zap"
)

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	executionIDKey contextKey = "execution_id"
	workflowIDKey  contextKey = "workflow_id"
	stepIDKey      contextKey = "step_id"
)

// WithExecutionID 设置 ExecutionID
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey, id)
}

// ExecutionID 获取 ExecutionID
func ExecutionID(ctx context.Context) (string, bool) {
	return stringValue(ctx, executionIDKey)
}

// WithWorkflowID 设置 WorkflowID
func WithWorkflowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workflowIDKey, id)
}

// WorkflowID 获取 WorkflowID
func WorkflowID(ctx context.Context) (string, bool) {
	return stringValue(ctx, workflowIDKey)
}

// WithStepID 设置当前叶子步骤 ID
func WithStepID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, stepIDKey, id)
}

// StepID 获取当前叶子步骤 ID
func StepID(ctx context.Context) (string, bool) {
	return stringValue(ctx, stepIDKey)
}

// LogFields 返回 ctx 中已设置的键对应的 zap 字段
func LogFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	for _, k := range []contextKey{workflowIDKey, executionIDKey, stepIDKey} {
		if v, ok := stringValue(ctx, k); ok {
			fields = append(fields, zap.String(string(k), v))
		}
	}
	return fields
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
