package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/internal/ctxkeys"
	"github.com/BaSui01/flowcore/llm/retry"
	"github.com/BaSui01/flowcore/types"
	"github.com/BaSui01/flowcore/workflow/expr"
)

const instrumentationName = "github.com/BaSui01/flowcore/workflow"

// Catalog resolves registered agents and workflows.
type Catalog interface {
	Agent(id string) (types.Agent, error)
	Workflow(id string) (*Workflow, error)
}

// Metrics observes executions, steps and model attempts.
type Metrics interface {
	RecordExecution(workflowID string, success bool, code string, d time.Duration)
	RecordStep(workflowID, kind string, success bool, d time.Duration)
	RecordAttempt(model string, fallback, success bool, code string, d time.Duration, tokens int)
}

type nopMetrics struct{}

func (nopMetrics) RecordExecution(string, bool, string, time.Duration)          {}
func (nopMetrics) RecordStep(string, string, bool, time.Duration)               {}
func (nopMetrics) RecordAttempt(string, bool, bool, string, time.Duration, int) {}

// ParallelPolicy decides what happens to sibling branches after a failure.
type ParallelPolicy string

const (
	// ParallelWaitAll lets every branch finish before the step fails.
	ParallelWaitAll ParallelPolicy = "wait_all"
	// ParallelFailFast cancels the remaining branches on the first failure.
	ParallelFailFast ParallelPolicy = "fail_fast"
)

// Valid reports whether p is a known policy.
func (p ParallelPolicy) Valid() bool {
	return p == ParallelWaitAll || p == ParallelFailFast
}

// EngineConfig tunes execution.
type EngineConfig struct {
	// ExecutionTimeout bounds a whole Execute call; zero means no bound
	// beyond the caller's context.
	ExecutionTimeout time.Duration
	ParallelPolicy   ParallelPolicy
	// MaxParallelBranches limits concurrently running branches; zero means unlimited.
	MaxParallelBranches int
	// DefaultStepTimeout applies when neither the step nor the agent sets one.
	DefaultStepTimeout time.Duration
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ParallelPolicy:     ParallelWaitAll,
		DefaultStepTimeout: 30 * time.Second,
	}
}

// Engine executes registered workflows. It is safe for concurrent use; each
// Execute call owns its variables and history.
type Engine struct {
	catalog   Catalog
	resolver  *retry.FallbackResolver
	evaluator *expr.Evaluator
	cfg       EngineConfig
	logger    *zap.Logger
	tracer    trace.Tracer
	metrics   Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer sets the tracer used for execution and step spans.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithEvaluator shares a condition evaluator, and its AST cache, with the engine.
func WithEvaluator(ev *expr.Evaluator) EngineOption {
	return func(e *Engine) {
		if ev != nil {
			e.evaluator = ev
		}
	}
}

// WithEngineConfig replaces the engine configuration.
func WithEngineConfig(cfg EngineConfig) EngineOption {
	return func(e *Engine) {
		if !cfg.ParallelPolicy.Valid() {
			cfg.ParallelPolicy = ParallelWaitAll
		}
		e.cfg = cfg
	}
}

// NewEngine creates an engine that reads definitions from catalog and calls
// models through resolver.
func NewEngine(catalog Catalog, resolver *retry.FallbackResolver, opts ...EngineOption) *Engine {
	e := &Engine{
		catalog:   catalog,
		resolver:  resolver,
		evaluator: expr.NewEvaluator(),
		cfg:       DefaultEngineConfig(),
		logger:    zap.NewNop(),
		tracer:    otel.Tracer(instrumentationName),
		metrics:   nopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "workflow_engine"))
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() EngineConfig { return e.cfg }

// Execute runs a workflow to completion or first failure.
//
// An unknown workflow returns a NOT_FOUND error and no result. An ordinary
// step failure returns a result with Success=false and a nil error. When the
// deadline fires or ctx is canceled the partial result is returned together
// with a WORKFLOW_TIMEOUT or EXECUTION_CANCELED error. A DUPLICATE_WRITE is
// an engine fault and returns no result.
func (e *Engine) Execute(ctx context.Context, workflowID string, input any) (*ExecutionResult, error) {
	wf, err := e.catalog.Workflow(workflowID)
	if err != nil {
		return nil, err
	}

	x := &execution{
		engine:     e,
		id:         uuid.NewString(),
		workflowID: wf.ID,
		vars:       NewVariableStore(),
		history:    newExecutionHistory(),
	}
	x.emitter, _ = eventEmitterFromContext(ctx)
	ctx = ctxkeys.WithExecutionID(ctxkeys.WithWorkflowID(ctx, wf.ID), x.id)
	x.logger = e.logger.With(ctxkeys.LogFields(ctx)...)

	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "workflow.execute",
		trace.WithAttributes(
			attribute.String("workflow.id", wf.ID),
			attribute.String("execution.id", x.id),
		),
	)
	defer span.End()

	if e.cfg.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ExecutionTimeout)
		defer cancel()
	}

	x.logger.Info("workflow execution started", zap.Int("steps", len(wf.Steps)))

	_, runErr := x.runSequence(ctx, wf.Steps, input, "")
	end := time.Now()

	if types.IsCode(runErr, types.ErrDuplicateWrite) {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		x.logger.Error("workflow execution aborted", zap.Error(runErr))
		return nil, runErr
	}

	result := &ExecutionResult{
		Variables:       x.vars.Snapshot(),
		VariableOrder:   x.vars.Keys(),
		History:         x.history.snapshot(),
		TotalDurationMs: durationMs(end.Sub(start)),
		Success:         runErr == nil,
		Metadata: ExecutionMetadata{
			ExecutionID: x.id,
			WorkflowID:  wf.ID,
			StartTime:   start,
			EndTime:     end,
		},
	}

	var retErr error
	if runErr != nil {
		failure := runErr
		if ctxErr := ctx.Err(); ctxErr != nil {
			failure = contextFailure(wf.ID, ctxErr, runErr)
			retErr = failure
		}
		result.Error = failure.Error()
		result.ErrorCode = types.GetErrorCode(failure)

		span.RecordError(failure)
		span.SetStatus(codes.Error, failure.Error())
		x.logger.Warn("workflow execution failed",
			zap.Duration("duration", end.Sub(start)),
			zap.String("error_code", string(result.ErrorCode)),
			zap.Error(failure),
		)
	} else {
		x.logger.Info("workflow execution completed",
			zap.Duration("duration", end.Sub(start)),
			zap.Int("variables", len(result.VariableOrder)),
		)
	}

	e.metrics.RecordExecution(wf.ID, result.Success, string(result.ErrorCode), end.Sub(start))
	return result, retErr
}

func contextFailure(workflowID string, ctxErr, cause error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return types.Errorf(types.ErrWorkflowTimeout, "workflow %q exceeded its deadline", workflowID).WithCause(cause)
	}
	return types.Errorf(types.ErrExecutionCanceled, "workflow %q canceled", workflowID).WithCause(cause)
}
