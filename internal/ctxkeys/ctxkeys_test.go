package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestKeys(t *testing.T) {
	ctx := context.Background()

	_, ok := ExecutionID(ctx)
	assert.False(t, ok)
	assert.Empty(t, LogFields(ctx))

	ctx = WithWorkflowID(ctx, "wf")
	ctx = WithExecutionID(ctx, "exec-1")
	ctx = WithStepID(ctx, "step")

	id, ok := ExecutionID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "exec-1", id)

	wf, _ := WorkflowID(ctx)
	step, _ := StepID(ctx)
	assert.Equal(t, "wf", wf)
	assert.Equal(t, "step", step)

	assert.Equal(t, []zap.Field{
		zap.String("workflow_id", "wf"),
		zap.String("execution_id", "exec-1"),
		zap.String("step_id", "step"),
	}, LogFields(ctx))
}

func TestEmptyValueIsUnset(t *testing.T) {
	ctx := WithStepID(context.Background(), "")
	_, ok := StepID(ctx)
	assert.False(t, ok)
}
