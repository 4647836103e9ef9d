package workflow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/flowcore/internal/ctxkeys"
	"github.com/BaSui01/flowcore/llm/retry"
	"github.com/BaSui01/flowcore/types"
)

// execution is the per-call state of one Execute. It is never shared.
type execution struct {
	engine     *Engine
	id         string
	workflowID string
	vars       *VariableStore
	history    *executionHistory
	emitter    EventEmitter
	logger     *zap.Logger
}

func (x *execution) emit(ev Event) {
	if x.emitter == nil {
		return
	}
	ev.ExecutionID = x.id
	ev.WorkflowID = x.workflowID
	x.emitter(ev)
}

// runSequence executes steps in order. The first step receives input, each
// later step the previous step's output. An empty sequence returns input.
func (x *execution) runSequence(ctx context.Context, steps []Step, input any, parentID string) (any, error) {
	current := input
	for _, step := range steps {
		// 截止时间或取消后不再启动新步骤
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := x.runStep(ctx, step, current, parentID)
		if err != nil {
			return nil, err
		}
		current = out
	}
	return current, nil
}

func (x *execution) runStep(ctx context.Context, step Step, input any, parentID string) (any, error) {
	if step == nil {
		return nil, types.NewError(types.ErrInvalidStep, "nil step")
	}

	start := time.Now()
	ctx, span := x.engine.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("step.id", step.StepID()),
			attribute.String("step.kind", string(step.Kind())),
		),
	)
	defer span.End()

	x.emit(Event{Type: EventStepStart, StepID: step.StepID(), Kind: step.Kind()})
	x.logger.Debug("step started",
		zap.String("step_id", step.StepID()),
		zap.String("kind", string(step.Kind())),
		zap.String("parent_id", parentID),
	)

	var out any
	var err error
	switch s := step.(type) {
	case *AgentStep:
		out, err = x.runAgentStep(ctx, s, input, parentID)
	case *ConditionStep:
		out, err = x.runConditionStep(ctx, s, input, parentID)
	case *ParallelStep:
		out, err = x.runParallelStep(ctx, s, input)
	default:
		err = types.Errorf(types.ErrInvalidStep, "unsupported step type %T", step)
	}

	duration := time.Since(start)
	x.engine.metrics.RecordStep(x.workflowID, string(step.Kind()), err == nil, duration)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		x.emit(Event{Type: EventStepError, StepID: step.StepID(), Kind: step.Kind(), Error: err})
		x.logger.Debug("step failed",
			zap.String("step_id", step.StepID()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	x.emit(Event{Type: EventStepComplete, StepID: step.StepID(), Kind: step.Kind(), Data: out})
	x.logger.Debug("step completed",
		zap.String("step_id", step.StepID()),
		zap.Duration("duration", duration),
	)
	return out, nil
}

func (x *execution) runAgentStep(ctx context.Context, s *AgentStep, input any, parentID string) (any, error) {
	out, err := x.runLeaf(ctx, leafCall{
		stepID:   s.ID,
		parentID: parentID,
		kind:     StepKindAgent,
		agentID:  s.AgentID,
		retries:  s.Retries,
		timeout:  s.Timeout,
	}, input)
	if err != nil {
		return nil, err
	}
	if err := x.vars.Set(s.ID, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (x *execution) runConditionStep(ctx context.Context, s *ConditionStep, input any, parentID string) (any, error) {
	start := time.Now()
	matched, err := x.engine.evaluator.Evaluate(s.Condition, conditionScope{vars: x.vars, input: input})
	if err != nil {
		x.history.record(failedEntry(HistoryEntry{
			StepID:     s.ID,
			ParentID:   parentID,
			Kind:       StepKindCondition,
			StartTime:  start,
			DurationMs: durationMs(time.Since(start)),
		}, err))
		return nil, err
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("condition.result", matched))
	x.logger.Debug("condition evaluated",
		zap.String("step_id", s.ID),
		zap.Bool("result", matched),
	)

	branch := s.FalseSteps
	if matched {
		branch = s.TrueSteps
	}

	// 分支中的第一个步骤接收条件步骤自身的输入
	out, err := x.runSequence(ctx, branch, input, s.ID)
	if err != nil {
		return nil, err
	}
	if err := x.vars.Set(s.ID, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (x *execution) runParallelStep(ctx context.Context, s *ParallelStep, input any) (any, error) {
	cfg := x.engine.cfg

	g := &errgroup.Group{}
	branchCtx := ctx
	if cfg.ParallelPolicy == ParallelFailFast {
		g, branchCtx = errgroup.WithContext(ctx)
	}
	if cfg.MaxParallelBranches > 0 {
		g.SetLimit(cfg.MaxParallelBranches)
	}

	x.logger.Debug("parallel fan-out",
		zap.String("step_id", s.ID),
		zap.Int("branches", len(s.Branches)),
		zap.String("policy", string(cfg.ParallelPolicy)),
	)

	results := make([]any, len(s.Branches))
	for i, b := range s.Branches {
		g.Go(func() error {
			out, err := x.runBranch(branchCtx, s.ID, b, input)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}

	// Wait returns the first error any branch reported.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	outputs := make(map[string]any, len(s.Branches))
	for i, b := range s.Branches {
		if err := x.vars.Set(b.ID, results[i]); err != nil {
			return nil, err
		}
		outputs[b.ID] = results[i]
	}
	if err := x.vars.Set(s.ID, outputs); err != nil {
		return nil, err
	}
	return outputs, nil
}

func (x *execution) runBranch(ctx context.Context, parallelID string, b Branch, input any) (any, error) {
	ctx, span := x.engine.tracer.Start(ctx, "workflow.branch",
		trace.WithAttributes(
			attribute.String("step.id", b.ID),
			attribute.String("step.kind", string(StepKindBranch)),
			attribute.String("step.parent_id", parallelID),
			attribute.String("agent.id", b.AgentID),
		),
	)
	defer span.End()

	x.emit(Event{Type: EventStepStart, StepID: b.ID, Kind: StepKindBranch})
	out, err := x.runLeaf(ctx, leafCall{
		stepID:   b.ID,
		parentID: parallelID,
		kind:     StepKindBranch,
		agentID:  b.AgentID,
	}, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		x.emit(Event{Type: EventStepError, StepID: b.ID, Kind: StepKindBranch, Error: err})
		return nil, err
	}
	x.emit(Event{Type: EventStepComplete, StepID: b.ID, Kind: StepKindBranch, Data: out})
	return out, nil
}

type leafCall struct {
	stepID   string
	parentID string
	kind     StepKind
	agentID  string
	retries  int
	timeout  time.Duration
}

// runLeaf resolves the agent, runs the attempt sequence and records exactly
// one history entry.
func (x *execution) runLeaf(ctx context.Context, c leafCall, input any) (any, error) {
	entry := HistoryEntry{
		StepID:    c.stepID,
		ParentID:  c.parentID,
		Kind:      c.kind,
		StartTime: time.Now(),
	}

	agent, err := x.engine.catalog.Agent(c.agentID)
	if err != nil {
		x.history.record(failedEntry(entry, err))
		return nil, err
	}

	// 步骤超时优先，其次 Agent 超时，最后是引擎默认值
	timeout := c.timeout
	if timeout <= 0 && agent.Model.Timeout <= 0 {
		timeout = x.engine.cfg.DefaultStepTimeout
	}

	outcome, err := x.engine.resolver.Resolve(ctxkeys.WithStepID(ctx, c.stepID), retry.Call{
		StepID:       c.stepID,
		AgentID:      agent.ID,
		Spec:         agent.Model,
		SystemPrompt: agent.SystemPrompt,
		Input:        input,
		Retries:      c.retries,
		Timeout:      timeout,
		OnAttempt:    x.onAttempt(c.stepID, c.kind),
	})

	entry.DurationMs = durationMs(time.Since(entry.StartTime))
	if outcome != nil {
		entry.Attempts = len(outcome.Attempts)
		entry.TokensUsed = outcome.TokensUsed()
		entry.ModelUsed = outcome.Model
		if entry.ModelUsed == "" {
			entry.ModelUsed = outcome.LastModel()
		}
	}

	if err != nil {
		x.history.record(failedEntry(entry, err))
		return nil, err
	}

	entry.Success = true
	x.history.record(entry)
	return outcome.Response.Text, nil
}

func (x *execution) onAttempt(stepID string, kind StepKind) func(retry.AttemptRecord) {
	return func(rec retry.AttemptRecord) {
		x.engine.metrics.RecordAttempt(rec.Model, rec.Fallback, rec.Err == nil,
			string(types.GetErrorCode(rec.Err)), rec.Duration, rec.Tokens)

		if rec.Fallback && rec.Try == 1 {
			x.emit(Event{Type: EventFallback, StepID: stepID, Kind: kind, Model: rec.Model, Attempt: rec.Try})
		}
		if rec.Err != nil {
			x.emit(Event{
				Type:    EventAttemptFailed,
				StepID:  stepID,
				Kind:    kind,
				Model:   rec.Model,
				Attempt: rec.Try,
				Error:   rec.Err,
			})
		}
	}
}
