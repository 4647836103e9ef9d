package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/config"
	"github.com/BaSui01/flowcore/llm"
	"github.com/BaSui01/flowcore/testutil/fixtures"
	"github.com/BaSui01/flowcore/testutil/mocks"
	"github.com/BaSui01/flowcore/types"
	"github.com/BaSui01/flowcore/workflow"
)

func newTestOrchestrator(t *testing.T, inv llm.Invoker, modify func(*config.Config), opts ...Option) (*Orchestrator, *prometheus.Registry) {
	t.Helper()
	cfg := config.DefaultConfig()
	if modify != nil {
		modify(cfg)
	}
	reg := prometheus.NewRegistry()
	opts = append([]Option{WithConfig(cfg), WithLogger(zap.NewNop()), WithRegisterer(reg)}, opts...)
	orc, err := New(inv, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = orc.Shutdown(context.Background()) })
	return orc, reg
}

// metricValue sums every series of a counter family.
func metricValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func singleStep(id, stepID, agentID string) *workflow.Workflow {
	return &workflow.Workflow{
		ID:    id,
		Steps: []workflow.Step{&workflow.AgentStep{ID: stepID, AgentID: agentID}},
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.True(t, types.IsCode(err, types.ErrInvalidConfig))

	cfg := config.DefaultConfig()
	cfg.Engine.ParallelPolicy = "eventually"
	_, err = New(mocks.NewMockInvoker(), WithConfig(cfg))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "parallel_policy")
}

func TestOrchestrator_TimeoutExhaustsSingleModel(t *testing.T) {
	inv := mocks.NewMockInvoker().WithDelay(time.Second, false)
	orc, _ := newTestOrchestrator(t, inv, nil)

	require.NoError(t, orc.RegisterAgent(fixtures.MinimalAgent("A1", 100*time.Millisecond)))
	require.NoError(t, orc.RegisterWorkflow(singleStep("W1", "A1step", "A1")))

	res, err := orc.Execute(context.Background(), "W1", "x")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Empty(t, res.Variables)
	require.Len(t, res.History, 1)
	assert.Equal(t, "A1step", res.History[0].StepID)
	assert.False(t, res.History[0].Success)
	assert.Equal(t, types.ErrAllModelsExhausted, res.History[0].ErrorCode)
	assert.Equal(t, 1, inv.CallCount())
}

func TestOrchestrator_ConditionTakesFalseBranch(t *testing.T) {
	inv := mocks.NewMockInvoker().WithModelResponse("s1-model", "short")
	orc, _ := newTestOrchestrator(t, inv, nil)

	for _, id := range []string{"s1", "long", "brief"} {
		require.NoError(t, orc.RegisterAgent(fixtures.MinimalAgent(id, time.Second)))
	}
	wf := &workflow.Workflow{
		ID: "route",
		Steps: []workflow.Step{
			&workflow.AgentStep{ID: "step1", AgentID: "s1"},
			&workflow.ConditionStep{
				ID:         "check",
				Condition:  "length(variables.step1) > 100",
				TrueSteps:  []workflow.Step{&workflow.AgentStep{ID: "summarize", AgentID: "long"}},
				FalseSteps: []workflow.Step{&workflow.AgentStep{ID: "expand", AgentID: "brief"}},
			},
		},
	}
	require.NoError(t, orc.RegisterWorkflow(wf))

	res, err := orc.Execute(context.Background(), "route", "topic")
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)

	assert.Contains(t, res.Variables, "expand")
	assert.NotContains(t, res.Variables, "summarize")
	for _, h := range res.History {
		assert.NotEqual(t, "summarize", h.StepID)
	}
	assert.Equal(t, "brief-model:short", res.Output())
}

func TestOrchestrator_SequentialFailFast(t *testing.T) {
	inv := mocks.NewMockInvoker().WithError(types.NewProviderError("", "down"))
	inv.WithModelResponse("one-primary", "first")
	orc, _ := newTestOrchestrator(t, inv, nil)

	for _, id := range []string{"one", "two", "three"} {
		require.NoError(t, orc.RegisterAgent(fixtures.DefaultAgent(id)))
	}
	require.NoError(t, orc.RegisterWorkflow(&workflow.Workflow{
		ID: "seq",
		Steps: []workflow.Step{
			&workflow.AgentStep{ID: "step1", AgentID: "one"},
			&workflow.AgentStep{ID: "step2", AgentID: "two"},
			&workflow.AgentStep{ID: "step3", AgentID: "three"},
		},
	}))

	res, err := orc.Execute(context.Background(), "seq", "in")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, map[string]any{"step1": "first"}, res.Variables)
	require.Len(t, res.History, 2)
	assert.True(t, res.History[0].Success)
	assert.False(t, res.History[1].Success)
	assert.Equal(t, "step2", res.History[1].StepID)
	assert.Equal(t, types.ErrAllModelsExhausted, res.History[1].ErrorCode)
}

func TestOrchestrator_NotFoundLeavesRegistryUntouched(t *testing.T) {
	orc, _ := newTestOrchestrator(t, mocks.NewMockInvoker(), nil)
	require.NoError(t, orc.RegisterAgent(fixtures.MinimalAgent("a", time.Second)))

	res, err := orc.Execute(context.Background(), "missing", nil)
	assert.Nil(t, res)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
	assert.Equal(t, []string{"a"}, orc.Registry().AgentIDs())
	assert.Empty(t, orc.Registry().WorkflowIDs())
}

func TestOrchestrator_RegistrationErrors(t *testing.T) {
	orc, _ := newTestOrchestrator(t, mocks.NewMockInvoker(), nil)
	require.NoError(t, orc.RegisterAgent(fixtures.MinimalAgent("a", time.Second)))

	err := orc.RegisterAgent(fixtures.MinimalAgent("a", time.Second))
	assert.True(t, types.IsCode(err, types.ErrDuplicateID))

	err = orc.RegisterWorkflow(singleStep("w", "s", "ghost"))
	assert.True(t, types.IsCode(err, types.ErrUnknownAgent))
}

func TestOrchestrator_ExecutionTimeoutFromConfig(t *testing.T) {
	inv := mocks.NewMockInvoker().WithDelay(200*time.Millisecond, false)
	orc, _ := newTestOrchestrator(t, inv, func(c *config.Config) {
		c.Engine.ExecutionTimeout = 50 * time.Millisecond
	})
	require.NoError(t, orc.RegisterAgent(fixtures.MinimalAgent("slow", time.Second)))
	require.NoError(t, orc.RegisterWorkflow(singleStep("w", "s", "slow")))

	res, err := orc.Execute(context.Background(), "w", "x")
	require.NotNil(t, res)
	assert.True(t, types.IsCode(err, types.ErrWorkflowTimeout))
	assert.False(t, res.Success)
}

func TestOrchestrator_ResponseCache(t *testing.T) {
	mr := miniredis.RunT(t)
	inv := mocks.NewMockInvoker()
	orc, reg := newTestOrchestrator(t, inv, func(c *config.Config) {
		c.Cache.Enabled = true
		c.Cache.Redis.Addr = mr.Addr()
	})

	require.NoError(t, orc.RegisterAgent(fixtures.MinimalAgent("a", time.Second)))
	require.NoError(t, orc.RegisterWorkflow(singleStep("w", "s", "a")))

	first, err := orc.Execute(context.Background(), "w", "same")
	require.NoError(t, err)
	second, err := orc.Execute(context.Background(), "w", "same")
	require.NoError(t, err)

	assert.Equal(t, first.Variables, second.Variables)
	assert.Equal(t, 1, inv.CallCount(), "second run is served from redis")
	assert.Equal(t, 0, second.TokensUsed())
	assert.Equal(t, 1.0, metricValue(t, reg, "flowcore_cache_hits_total"))
	assert.Equal(t, 1.0, metricValue(t, reg, "flowcore_cache_misses_total"))
	assert.NotEmpty(t, mr.Keys())
}

func TestOrchestrator_CircuitBreakerSkipsOpenModel(t *testing.T) {
	inv := mocks.NewMockInvoker().WithModelError("a-primary", types.NewProviderError("a-primary", "boom"))
	orc, reg := newTestOrchestrator(t, inv, func(c *config.Config) {
		c.Invoker.Breaker.Enabled = true
		c.Invoker.Breaker.Threshold = 1
		c.Invoker.Breaker.ResetTimeout = time.Hour
	})

	agent := fixtures.DefaultAgent("a")
	agent.Model.FallbackModels = []string{"a-backup"}
	require.NoError(t, orc.RegisterAgent(agent))
	require.NoError(t, orc.RegisterWorkflow(singleStep("w", "s", "a")))

	for i := 0; i < 2; i++ {
		res, err := orc.Execute(context.Background(), "w", i)
		require.NoError(t, err)
		require.True(t, res.Success)
		assert.Equal(t, "a-backup", res.History[0].ModelUsed)
	}

	// 第二次执行时主模型熔断，不再调用底层 Invoker
	assert.Equal(t, []string{"a-primary", "a-backup", "a-backup"}, inv.ModelsCalled())
	assert.Equal(t, 1.0, metricValue(t, reg, "flowcore_circuit_breaker_transitions_total"))
}

func TestOrchestrator_RateLimitAndMiddleware(t *testing.T) {
	var seen []string
	var mu sync.Mutex
	tag := func(next llm.Invoker) llm.Invoker {
		return llm.InvokerFunc(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
			mu.Lock()
			seen = append(seen, req.Model)
			mu.Unlock()
			return next.Invoke(ctx, req)
		})
	}

	inv := mocks.NewMockInvoker()
	orc, _ := newTestOrchestrator(t, inv, func(c *config.Config) {
		c.Invoker.RateLimit.RPS = 1000
		c.Invoker.RateLimit.Burst = 2
	}, WithMiddleware(tag))

	require.NoError(t, orc.RegisterAgent(fixtures.MinimalAgent("a", time.Second)))
	require.NoError(t, orc.RegisterWorkflow(singleStep("w", "s", "a")))

	for i := 0; i < 3; i++ {
		res, err := orc.Execute(context.Background(), "w", i)
		require.NoError(t, err)
		assert.True(t, res.Success)
	}
	assert.Equal(t, []string{"a-model", "a-model", "a-model"}, seen)
}

func TestOrchestrator_Metrics(t *testing.T) {
	inv := mocks.NewMockInvoker().WithTokens(7)
	orc, reg := newTestOrchestrator(t, inv, nil)

	require.NoError(t, orc.RegisterAgent(fixtures.MinimalAgent("a", time.Second)))
	require.NoError(t, orc.RegisterWorkflow(singleStep("w", "s", "a")))

	_, err := orc.Execute(context.Background(), "w", "x")
	require.NoError(t, err)

	assert.Equal(t, 1.0, metricValue(t, reg, "flowcore_workflow_executions_total"))
	assert.Equal(t, 1.0, metricValue(t, reg, "flowcore_workflow_steps_total"))
	assert.Equal(t, 1.0, metricValue(t, reg, "flowcore_llm_attempts_total"))
	assert.Equal(t, 7.0, metricValue(t, reg, "flowcore_llm_tokens_used_total"))
}

func TestNew_TwiceWithDefaultRegisterer(t *testing.T) {
	var first, second *Orchestrator
	require.NotPanics(t, func() {
		var err error
		first, err = New(mocks.NewMockInvoker())
		require.NoError(t, err)
		second, err = New(mocks.NewMockInvoker())
		require.NoError(t, err)
	})
	t.Cleanup(func() {
		for _, orc := range []*Orchestrator{first, second} {
			if orc != nil {
				_ = orc.Shutdown(context.Background())
			}
		}
	})

	for _, orc := range []*Orchestrator{first, second} {
		require.NoError(t, orc.RegisterAgent(fixtures.MinimalAgent("a", time.Second)))
		require.NoError(t, orc.RegisterWorkflow(singleStep("w", "s", "a")))
		result, err := orc.Execute(context.Background(), "w", "x")
		require.NoError(t, err)
		assert.True(t, result.Success)
	}
}

func TestOrchestrator_SharedRegistryAccumulates(t *testing.T) {
	reg := prometheus.NewRegistry()
	for i := 0; i < 2; i++ {
		orc, err := New(mocks.NewMockInvoker(), WithRegisterer(reg))
		require.NoError(t, err)
		t.Cleanup(func() { _ = orc.Shutdown(context.Background()) })

		require.NoError(t, orc.RegisterAgent(fixtures.MinimalAgent("a", time.Second)))
		require.NoError(t, orc.RegisterWorkflow(singleStep("w", "s", "a")))
		_, err = orc.Execute(context.Background(), "w", "x")
		require.NoError(t, err)
	}
	assert.Equal(t, 2.0, metricValue(t, reg, "flowcore_workflow_executions_total"))
}

func TestOrchestrator_AgentWithoutTimeoutUsesEngineDefault(t *testing.T) {
	inv := mocks.NewMockInvoker()
	orc, _ := newTestOrchestrator(t, inv, func(c *config.Config) {
		c.Engine.DefaultStepTimeout = 250 * time.Millisecond
	})

	require.NoError(t, orc.RegisterAgent(fixtures.MinimalAgent("a", 0)))
	require.NoError(t, orc.RegisterWorkflow(singleStep("w", "s", "a")))

	result, err := orc.Execute(context.Background(), "w", "x")
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, inv.Calls(), 1)
	assert.Equal(t, 250*time.Millisecond, inv.Calls()[0].Request.Timeout)
}

func TestOrchestrator_MetricsDisabled(t *testing.T) {
	orc, reg := newTestOrchestrator(t, mocks.NewMockInvoker(), func(c *config.Config) {
		c.Metrics.Enabled = false
	})
	assert.Nil(t, orc.collector)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestOrchestrator_Shutdown(t *testing.T) {
	inv := mocks.NewMockInvoker()
	var closerCalls int
	orc, _ := newTestOrchestrator(t, inv, nil, WithCloser(func(context.Context) error {
		closerCalls++
		return nil
	}))

	// 未执行过任何工作流也可以关闭
	require.NoError(t, orc.Shutdown(context.Background()))
	require.NoError(t, orc.Shutdown(context.Background()))

	assert.Equal(t, 1, inv.CloseCount())
	assert.Equal(t, 1, closerCalls)

	_, err := orc.Execute(context.Background(), "w", nil)
	assert.True(t, types.IsCode(err, types.ErrOrchestratorClosed))
	err = orc.RegisterAgent(fixtures.MinimalAgent("late", time.Second))
	assert.True(t, types.IsCode(err, types.ErrOrchestratorClosed))
	err = orc.RegisterWorkflow(singleStep("w", "s", "late"))
	assert.True(t, types.IsCode(err, types.ErrOrchestratorClosed))
}

func TestOrchestrator_ShutdownReportsCloserErrors(t *testing.T) {
	boom := errors.New("flush failed")
	orc, _ := newTestOrchestrator(t, mocks.NewMockInvoker(), nil,
		WithCloser(func(context.Context) error { return boom }))

	err := orc.Shutdown(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, orc.Shutdown(context.Background()), boom, "later calls report the same result")
}

func TestOrchestrator_ShutdownClosesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	orc, _ := newTestOrchestrator(t, mocks.NewMockInvoker(), func(c *config.Config) {
		c.Cache.Enabled = true
		c.Cache.Redis.Addr = mr.Addr()
	})
	require.NoError(t, orc.RegisterAgent(fixtures.MinimalAgent("a", time.Second)))
	require.NoError(t, orc.RegisterWorkflow(singleStep("w", "s", "a")))
	_, err := orc.Execute(context.Background(), "w", "x")
	require.NoError(t, err)

	require.NoError(t, orc.Shutdown(context.Background()))
	assert.Eventually(t, func() bool { return mr.CurrentConnectionCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestOrchestrator_ConcurrentExecute(t *testing.T) {
	orc, _ := newTestOrchestrator(t, mocks.NewMockInvoker(), nil)
	require.NoError(t, orc.RegisterAgent(fixtures.MinimalAgent("a", time.Second)))
	require.NoError(t, orc.RegisterWorkflow(singleStep("w", "s", "a")))

	var wg sync.WaitGroup
	outputs := make([]any, 20)
	for i := range outputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := orc.Execute(context.Background(), "w", i)
			if err == nil && res.Success {
				outputs[i] = res.Output()
			}
		}(i)
	}
	wg.Wait()

	for i, out := range outputs {
		s, ok := out.(string)
		require.True(t, ok, "execution %d failed", i)
		assert.True(t, strings.HasPrefix(s, "a-model:"))
	}
}

func TestRedisOptions(t *testing.T) {
	c := config.DefaultCacheConfig().Redis
	opts := redisOptions(c)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 10, opts.PoolSize)
	assert.Nil(t, opts.TLSConfig)

	c.Addr = "cache.internal:6380"
	c.TLS = true
	opts = redisOptions(c)
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, "cache.internal", opts.TLSConfig.ServerName)
}
