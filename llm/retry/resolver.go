package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/llm"
	"github.com/BaSui01/flowcore/types"
)

// Call describes one leaf step invocation to resolve.
type Call struct {
	StepID       string
	AgentID      string
	Spec         types.ModelSpec
	SystemPrompt string
	Input        any
	// Retries is the number of extra attempts on the primary model.
	Retries int
	// Timeout bounds each attempt; zero falls back to Spec.Timeout.
	Timeout time.Duration
	// OnAttempt, when set, observes every finished attempt in order.
	OnAttempt func(AttemptRecord)
}

// AttemptRecord is the outcome of one model call.
type AttemptRecord struct {
	Model    string
	Try      int
	Fallback bool
	Duration time.Duration
	Tokens   int
	Err      error
}

// Outcome is what Resolve knows after the attempt sequence ended.
type Outcome struct {
	Response *llm.Response
	Model    string
	Attempts []AttemptRecord
}

// TokensUsed sums the tokens reported across attempts.
func (o *Outcome) TokensUsed() int {
	total := 0
	for _, a := range o.Attempts {
		total += a.Tokens
	}
	return total
}

// LastModel is the model tried last.
func (o *Outcome) LastModel() string {
	if len(o.Attempts) == 0 {
		return o.Model
	}
	return o.Attempts[len(o.Attempts)-1].Model
}

// ExhaustedError carries the per-attempt errors of a failed sequence.
type ExhaustedError struct {
	Attempts []AttemptRecord
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s#%d: %v", a.Model, a.Try, a.Err))
	}
	return strings.Join(parts, "; ")
}

// Last returns the error of the final attempt.
func (e *ExhaustedError) Last() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// advanceCodes end the current model's remaining tries immediately.
// Only an open breaker qualifies; provider errors (auth included) use every try.
var advanceCodes = map[types.ErrorCode]bool{
	types.ErrCircuitOpen: true,
}

// MaxAttempts is the number of calls for retries r and n fallbacks: (r+1)+n.
func MaxAttempts(retries, fallbacks int) int {
	if retries < 0 {
		retries = 0
	}
	return retries + 1 + fallbacks
}

// FallbackResolver 围绕 ModelInvoker 执行重试与降级：
// 主模型尝试 retries+1 次，随后每个降级模型各尝试一次，首次成功即返回。
type FallbackResolver struct {
	invoker llm.Invoker
	policy  *RetryPolicy
	logger  *zap.Logger
}

// NewFallbackResolver creates a resolver. A nil policy means immediate retries.
func NewFallbackResolver(invoker llm.Invoker, policy *RetryPolicy, logger *zap.Logger) *FallbackResolver {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	policy.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackResolver{
		invoker: invoker,
		policy:  policy,
		logger:  logger.With(zap.String("component", "fallback_resolver")),
	}
}

// Resolve runs the attempt sequence. On exhaustion it returns the outcome and an
// ALL_MODELS_EXHAUSTED error whose cause is *ExhaustedError. When ctx ends first
// it returns ctx's error wrapped, without starting further attempts.
func (r *FallbackResolver) Resolve(ctx context.Context, call Call) (*Outcome, error) {
	timeout := call.Timeout
	if timeout <= 0 {
		timeout = call.Spec.Timeout
	}
	retries := call.Retries
	if retries < 0 {
		retries = 0
	}

	out := &Outcome{}
	models := call.Spec.Models()

	for mi, model := range models {
		tries := 1
		if mi == 0 {
			tries = retries + 1
		}

		for try := 1; try <= tries; try++ {
			if try > 1 {
				if err := sleep(ctx, r.policy.Delay(try-1)); err != nil {
					return out, fmt.Errorf("resolve aborted before %s#%d: %w", model, try, err)
				}
			}
			if err := ctx.Err(); err != nil {
				return out, fmt.Errorf("resolve aborted before %s#%d: %w", model, try, err)
			}

			rec, resp := r.attempt(ctx, call, model, try, timeout)
			rec.Fallback = mi > 0
			out.Attempts = append(out.Attempts, rec)
			if call.OnAttempt != nil {
				call.OnAttempt(rec)
			}

			if rec.Err == nil {
				out.Response = resp
				out.Model = model
				return out, nil
			}

			// 父上下文结束（工作流截止时间或取消）不计为可恢复失败
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, fmt.Errorf("resolve aborted during %s#%d: %w", model, try, ctxErr)
			}

			r.logger.Debug("attempt failed",
				zap.String("step_id", call.StepID),
				zap.String("model", model),
				zap.Int("try", try),
				zap.Bool("fallback", mi > 0),
				zap.Error(rec.Err),
			)

			if advanceCodes[types.GetErrorCode(rec.Err)] {
				break
			}
		}
	}

	out.Model = out.LastModel()
	exhausted := &ExhaustedError{Attempts: out.Attempts}
	r.logger.Warn("all models exhausted",
		zap.String("step_id", call.StepID),
		zap.String("agent_id", call.AgentID),
		zap.Int("attempts", len(out.Attempts)),
		zap.Error(exhausted.Last()),
	)
	return out, types.Errorf(types.ErrAllModelsExhausted,
		"agent %q: %d attempts failed", call.AgentID, len(out.Attempts)).
		WithModel(out.Model).
		WithCause(exhausted)
}

type attemptResult struct {
	resp *llm.Response
	err  error
}

// attempt makes one bounded call. The bound holds even if the invoker ignores ctx.
func (r *FallbackResolver) attempt(ctx context.Context, call Call, model string, try int, timeout time.Duration) (AttemptRecord, *llm.Response) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := &llm.Request{
		Model:        model,
		SystemPrompt: call.SystemPrompt,
		Input:        call.Input,
		Temperature:  call.Spec.Temperature,
		MaxTokens:    call.Spec.MaxTokens,
		Timeout:      timeout,
	}

	start := time.Now()
	resultCh := make(chan attemptResult, 1)
	go func() {
		resp, err := r.invoker.Invoke(attemptCtx, req)
		resultCh <- attemptResult{resp: resp, err: err}
	}()

	rec := AttemptRecord{Model: model, Try: try}
	select {
	case <-attemptCtx.Done():
		rec.Duration = time.Since(start)
		rec.Err = r.contextError(ctx, attemptCtx, model, timeout)
		return rec, nil

	case res := <-resultCh:
		rec.Duration = time.Since(start)
		if res.err != nil {
			if attemptCtx.Err() != nil {
				rec.Err = r.contextError(ctx, attemptCtx, model, timeout)
			} else {
				rec.Err = normalize(model, res.err)
			}
			return rec, nil
		}
		if res.resp == nil {
			rec.Err = types.NewProviderError(model, "invoker returned no response")
			return rec, nil
		}
		rec.Tokens = res.resp.TokensUsed
		resp := *res.resp
		if resp.Model == "" {
			resp.Model = model
		}
		return rec, &resp
	}
}

func (r *FallbackResolver) contextError(parent, attemptCtx context.Context, model string, timeout time.Duration) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	return types.NewTimeoutError(model, fmt.Sprintf("attempt exceeded %s", timeout)).WithCause(attemptCtx.Err())
}

// normalize gives uncoded invoker errors the PROVIDER_ERROR code.
func normalize(model string, err error) error {
	if _, ok := types.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewTimeoutError(model, "invoker deadline exceeded").WithCause(err)
	}
	return types.NewProviderError(model, "invoke failed").WithCause(err)
}
