package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/flowcore/llm"
	"github.com/BaSui01/flowcore/testutil/mocks"
	"github.com/BaSui01/flowcore/types"
)

func spec(fallbacks ...string) types.ModelSpec {
	return types.ModelSpec{
		Provider:       "test",
		PrimaryModel:   "primary",
		FallbackModels: fallbacks,
		Temperature:    0.3,
		MaxTokens:      64,
		Timeout:        time.Second,
	}
}

func TestResolver_PrimarySucceeds(t *testing.T) {
	inv := mocks.NewMockInvoker().WithModelResponse("primary", "hello").WithTokens(7)
	r := NewFallbackResolver(inv, nil, zap.NewNop())

	out, err := r.Resolve(context.Background(), Call{StepID: "s1", Spec: spec("fb"), SystemPrompt: "sys", Input: "x", Retries: 2})
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Response.Text)
	assert.Equal(t, "primary", out.Model)
	assert.Equal(t, 7, out.TokensUsed())
	require.Len(t, out.Attempts, 1)

	call := inv.Calls()[0].Request
	assert.Equal(t, "sys", call.SystemPrompt)
	assert.Equal(t, "x", call.Input)
	assert.Equal(t, 0.3, call.Temperature)
	assert.Equal(t, 64, call.MaxTokens)
}

func TestResolver_AttemptOrder(t *testing.T) {
	fail := types.NewProviderError("", "boom")
	inv := mocks.NewMockInvoker().
		WithModelError("primary", fail).
		WithModelError("fb-1", fail).
		WithModelResponse("fb-2", "rescued")
	r := NewFallbackResolver(inv, nil, zap.NewNop())

	var observed []AttemptRecord
	out, err := r.Resolve(context.Background(), Call{
		Spec:      spec("fb-1", "fb-2", "fb-3"),
		Retries:   2,
		OnAttempt: func(rec AttemptRecord) { observed = append(observed, rec) },
	})
	require.NoError(t, err)
	assert.Equal(t, "rescued", out.Response.Text)
	assert.Equal(t, "fb-2", out.Model)
	assert.Equal(t, []string{"primary", "primary", "primary", "fb-1", "fb-2"}, inv.ModelsCalled())

	require.Len(t, observed, 5)
	assert.Equal(t, 3, observed[2].Try)
	assert.False(t, observed[2].Fallback)
	assert.True(t, observed[3].Fallback)
	assert.Equal(t, 1, observed[3].Try)
	assert.NoError(t, observed[4].Err)
}

func TestResolver_Exhausted(t *testing.T) {
	inv := mocks.NewMockInvoker().WithError(errors.New("provider down"))
	r := NewFallbackResolver(inv, nil, zap.NewNop())

	out, err := r.Resolve(context.Background(), Call{AgentID: "a1", Spec: spec("fb-1"), Retries: 1})
	require.Error(t, err)
	assert.Equal(t, types.ErrAllModelsExhausted, types.GetErrorCode(err))
	assert.Equal(t, 3, inv.CallCount())
	assert.Equal(t, "fb-1", out.Model)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	require.Len(t, exhausted.Attempts, 3)
	for _, a := range exhausted.Attempts {
		assert.Equal(t, types.ErrProviderError, types.GetErrorCode(a.Err))
	}
	assert.Contains(t, exhausted.Error(), "fb-1#1")
}

func TestResolver_TimeoutBoundsNonCooperativeInvoker(t *testing.T) {
	inv := mocks.NewMockInvoker().WithDelay(500*time.Millisecond, true)
	r := NewFallbackResolver(inv, nil, zap.NewNop())

	s := spec()
	s.Timeout = 20 * time.Millisecond

	start := time.Now()
	_, err := r.Resolve(context.Background(), Call{Spec: s, Retries: 1})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, 300*time.Millisecond)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	require.Len(t, exhausted.Attempts, 2)
	assert.Equal(t, types.ErrTimeout, types.GetErrorCode(exhausted.Last()))
}

func TestResolver_StepTimeoutOverridesAgentTimeout(t *testing.T) {
	inv := mocks.NewMockInvoker().WithDelay(100*time.Millisecond, false)
	r := NewFallbackResolver(inv, nil, zap.NewNop())

	s := spec()
	s.Timeout = 10 * time.Millisecond

	out, err := r.Resolve(context.Background(), Call{Spec: s, Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, time.Second, inv.Calls()[0].Request.Timeout)
	assert.Equal(t, "primary", out.Model)
}

func TestResolver_AuthErrorUsesEveryAttempt(t *testing.T) {
	inv := mocks.NewMockInvoker().
		WithModelError("primary", types.NewAuthError("primary", "bad key")).
		WithModelError("fb", types.NewAuthError("fb", "bad key"))
	r := NewFallbackResolver(inv, nil, zap.NewNop())

	out, err := r.Resolve(context.Background(), Call{Spec: spec("fb"), Retries: 2})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrAllModelsExhausted))
	assert.Equal(t, []string{"primary", "primary", "primary", "fb"}, inv.ModelsCalled())
	assert.Len(t, out.Attempts, MaxAttempts(2, 1))
}

func TestResolver_AuthErrorThenFallbackSucceeds(t *testing.T) {
	inv := mocks.NewMockInvoker().
		WithModelError("primary", types.NewAuthError("primary", "bad key")).
		WithModelResponse("fb", "ok")
	r := NewFallbackResolver(inv, nil, zap.NewNop())

	out, err := r.Resolve(context.Background(), Call{Spec: spec("fb"), Retries: 3})
	require.NoError(t, err)
	assert.Equal(t, "fb", out.Model)
	assert.Equal(t, []string{"primary", "primary", "primary", "primary", "fb"}, inv.ModelsCalled())
}

func TestResolver_CircuitOpenAdvancesToFallback(t *testing.T) {
	inv := mocks.NewMockInvoker().
		WithModelError("primary", types.NewError(types.ErrCircuitOpen, "open").WithModel("primary")).
		WithModelResponse("fb", "ok")
	r := NewFallbackResolver(inv, nil, zap.NewNop())

	out, err := r.Resolve(context.Background(), Call{Spec: spec("fb"), Retries: 3})
	require.NoError(t, err)
	assert.Equal(t, "fb", out.Model)
	assert.Equal(t, []string{"primary", "fb"}, inv.ModelsCalled())
}

func TestResolver_ParentContextStopsSequence(t *testing.T) {
	inv := mocks.NewMockInvoker().WithDelay(200*time.Millisecond, false)
	r := NewFallbackResolver(inv, nil, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	out, err := r.Resolve(ctx, Call{Spec: spec("fb-1", "fb-2"), Retries: 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, types.IsCode(err, types.ErrAllModelsExhausted))
	assert.Len(t, out.Attempts, 1)
}

func TestResolver_BackoffBetweenPrimaryRetries(t *testing.T) {
	inv := mocks.NewMockInvoker().WithScript("primary", errors.New("e1"), errors.New("e2"), nil)
	policy := &RetryPolicy{InitialDelay: 20 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	r := NewFallbackResolver(inv, policy, zap.NewNop())

	start := time.Now()
	out, err := r.Resolve(context.Background(), Call{Spec: spec(), Retries: 2})
	require.NoError(t, err)
	assert.Len(t, out.Attempts, 3)
	// 20ms + 40ms
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestResolver_NilResponseIsFailure(t *testing.T) {
	inv := llm.InvokerFunc(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		return nil, nil
	})
	r := NewFallbackResolver(inv, nil, nil)

	_, err := r.Resolve(context.Background(), Call{Spec: spec()})
	require.Error(t, err)
	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, types.ErrProviderError, types.GetErrorCode(exhausted.Last()))
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := &RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 300*time.Millisecond, p.Delay(3))

	assert.Equal(t, time.Duration(0), DefaultRetryPolicy().Delay(3))

	jittered := &RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: true}
	for i := 0; i < 20; i++ {
		d := jittered.Delay(2)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}

// For any retries r and n fallbacks, an always-failing invoker is called exactly (r+1)+n times.
func TestProperty_AttemptBound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		retries := rapid.IntRange(0, 5).Draw(rt, "retries")
		n := rapid.IntRange(0, 4).Draw(rt, "fallbacks")

		fallbacks := make([]string, n)
		for i := range fallbacks {
			fallbacks[i] = fmt.Sprintf("fb-%d", i)
		}

		var calls atomic.Int32
		inv := llm.InvokerFunc(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
			calls.Add(1)
			return nil, types.NewTimeoutError(req.Model, "always")
		})

		r := NewFallbackResolver(inv, nil, zap.NewNop())
		_, err := r.Resolve(context.Background(), Call{Spec: spec(fallbacks...), Retries: retries})
		if !types.IsCode(err, types.ErrAllModelsExhausted) {
			rt.Fatalf("expected exhaustion, got %v", err)
		}
		if got, want := int(calls.Load()), MaxAttempts(retries, n); got != want {
			rt.Fatalf("calls = %d, want %d", got, want)
		}
	})
}

// The sequence stops at the first success.
func TestProperty_StopsAtFirstSuccess(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		retries := rapid.IntRange(0, 4).Draw(rt, "retries")
		n := rapid.IntRange(0, 3).Draw(rt, "fallbacks")
		total := MaxAttempts(retries, n)
		successAt := rapid.IntRange(1, total).Draw(rt, "successAt")

		fallbacks := make([]string, n)
		for i := range fallbacks {
			fallbacks[i] = fmt.Sprintf("fb-%d", i)
		}

		var calls atomic.Int32
		inv := llm.InvokerFunc(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
			if int(calls.Add(1)) == successAt {
				return &llm.Response{Text: "ok"}, nil
			}
			return nil, errors.New("nope")
		})

		r := NewFallbackResolver(inv, nil, zap.NewNop())
		out, err := r.Resolve(context.Background(), Call{Spec: spec(fallbacks...), Retries: retries})
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if int(calls.Load()) != successAt || len(out.Attempts) != successAt {
			rt.Fatalf("calls = %d, attempts = %d, want %d", calls.Load(), len(out.Attempts), successAt)
		}
	})
}
