package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/flowcore/workflow"
)

// WorkflowMetrics records engine observations as OTel instruments so they
// ride the same OTLP pipeline as the spans.
type WorkflowMetrics struct {
	executions metric.Int64Counter
	execDur    metric.Float64Histogram
	steps      metric.Int64Counter
	stepDur    metric.Float64Histogram
	attempts   metric.Int64Counter
	attemptDur metric.Float64Histogram
	tokens     metric.Int64Counter
}

var _ workflow.Metrics = (*WorkflowMetrics)(nil)

// NewWorkflowMetrics creates the instruments on meter.
func NewWorkflowMetrics(meter metric.Meter) (*WorkflowMetrics, error) {
	m := &WorkflowMetrics{}
	var err error

	if m.executions, err = meter.Int64Counter("flowcore.workflow.executions",
		metric.WithDescription("Workflow executions")); err != nil {
		return nil, fmt.Errorf("create executions counter: %w", err)
	}
	if m.execDur, err = meter.Float64Histogram("flowcore.workflow.duration",
		metric.WithDescription("Workflow execution duration"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create execution histogram: %w", err)
	}
	if m.steps, err = meter.Int64Counter("flowcore.workflow.steps",
		metric.WithDescription("Executed workflow steps")); err != nil {
		return nil, fmt.Errorf("create steps counter: %w", err)
	}
	if m.stepDur, err = meter.Float64Histogram("flowcore.workflow.step.duration",
		metric.WithDescription("Workflow step duration"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create step histogram: %w", err)
	}
	if m.attempts, err = meter.Int64Counter("flowcore.llm.attempts",
		metric.WithDescription("Model invocation attempts")); err != nil {
		return nil, fmt.Errorf("create attempts counter: %w", err)
	}
	if m.attemptDur, err = meter.Float64Histogram("flowcore.llm.attempt.duration",
		metric.WithDescription("Model invocation attempt duration"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create attempt histogram: %w", err)
	}
	if m.tokens, err = meter.Int64Counter("flowcore.llm.tokens",
		metric.WithDescription("Tokens consumed by successful attempts")); err != nil {
		return nil, fmt.Errorf("create tokens counter: %w", err)
	}
	return m, nil
}

// RecordExecution implements workflow.Metrics.
func (m *WorkflowMetrics) RecordExecution(workflowID string, success bool, code string, d time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("workflow.id", workflowID),
		attribute.Bool("success", success),
		attribute.String("error.code", code),
	)
	m.executions.Add(ctx, 1, attrs)
	m.execDur.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("workflow.id", workflowID)))
}

// RecordStep implements workflow.Metrics.
func (m *WorkflowMetrics) RecordStep(workflowID, kind string, success bool, d time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("workflow.id", workflowID),
		attribute.String("step.kind", kind),
		attribute.Bool("success", success),
	)
	m.steps.Add(ctx, 1, attrs)
	m.stepDur.Record(ctx, d.Seconds(), attrs)
}

// RecordAttempt implements workflow.Metrics.
func (m *WorkflowMetrics) RecordAttempt(model string, fallback, success bool, code string, d time.Duration, tokens int) {
	ctx := context.Background()
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("llm.model", model),
		attribute.Bool("fallback", fallback),
		attribute.Bool("success", success),
		attribute.String("error.code", code),
	))
	m.attemptDur.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("llm.model", model)))
	if tokens > 0 {
		m.tokens.Add(ctx, int64(tokens), metric.WithAttributes(attribute.String("llm.model", model)))
	}
}
