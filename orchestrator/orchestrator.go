package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/config"
	"github.com/BaSui01/flowcore/internal/metrics"
	"github.com/BaSui01/flowcore/internal/telemetry"
	"github.com/BaSui01/flowcore/internal/tlsutil"
	"github.com/BaSui01/flowcore/llm"
	"github.com/BaSui01/flowcore/llm/cache"
	"github.com/BaSui01/flowcore/llm/circuitbreaker"
	"github.com/BaSui01/flowcore/llm/retry"
	"github.com/BaSui01/flowcore/registry"
	"github.com/BaSui01/flowcore/types"
	"github.com/BaSui01/flowcore/workflow"
	"github.com/BaSui01/flowcore/workflow/expr"
)

const instrumentationName = "github.com/BaSui01/flowcore"

// Orchestrator composes the registry and the workflow engine behind one API.
// It is safe for concurrent use.
type Orchestrator struct {
	registry *registry.Registry
	engine   *workflow.Engine
	invoker  llm.Invoker
	cfg      *config.Config
	logger   *zap.Logger

	collector *metrics.Collector
	closers   []func(context.Context) error

	closed       atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds an orchestrator around invoker.
func New(invoker llm.Invoker, opts ...Option) (*Orchestrator, error) {
	if invoker == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "invoker is required")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg == nil {
		o.cfg = config.DefaultConfig()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, types.NewError(types.ErrInvalidConfig, "invalid configuration").WithCause(err)
	}

	cfg := o.cfg
	logger := o.logger.With(zap.String("component", "orchestrator"))

	orc := &Orchestrator{
		cfg:    cfg,
		logger: logger,
	}

	var recorders metrics.Fanout
	if cfg.Metrics.Enabled {
		reg := o.registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		orc.collector = metrics.NewCollector(cfg.Metrics.Namespace, reg, o.logger)
		recorders = append(recorders, orc.collector)
	}
	if o.telemetry.Enabled() {
		otelMetrics, err := telemetry.NewWorkflowMetrics(o.telemetry.Meter(instrumentationName))
		if err != nil {
			return nil, fmt.Errorf("create otel metrics: %w", err)
		}
		recorders = append(recorders, otelMetrics)
	}
	if o.metrics != nil {
		recorders = append(recorders, o.metrics)
	}

	chain, err := orc.buildChain(o)
	if err != nil {
		return nil, err
	}
	orc.invoker = chain.Then(invoker)

	resolver := retry.NewFallbackResolver(orc.invoker, &retry.RetryPolicy{
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.Multiplier,
		Jitter:       cfg.Retry.Jitter,
	}, o.logger)

	evaluator := expr.NewEvaluator()
	orc.registry = registry.New(evaluator, o.logger)

	engineOpts := []workflow.EngineOption{
		workflow.WithLogger(o.logger),
		workflow.WithEvaluator(evaluator),
		workflow.WithEngineConfig(engineConfig(cfg.Engine)),
	}
	switch {
	case o.tracer != nil:
		engineOpts = append(engineOpts, workflow.WithTracer(o.tracer))
	case o.telemetry.Enabled():
		engineOpts = append(engineOpts, workflow.WithTracer(o.telemetry.Tracer(instrumentationName)))
	}
	if len(recorders) > 0 {
		engineOpts = append(engineOpts, workflow.WithMetrics(recorders))
	}
	orc.engine = workflow.NewEngine(orc.registry, resolver, engineOpts...)

	orc.closers = append(orc.closers, o.closers...)
	if o.telemetry != nil {
		orc.closers = append(orc.closers, o.telemetry.Shutdown)
	}

	logger.Info("orchestrator initialized",
		zap.String("parallel_policy", cfg.Engine.ParallelPolicy),
		zap.Bool("cache", cfg.Cache.Enabled),
		zap.Bool("breaker", cfg.Invoker.Breaker.Enabled),
		zap.Float64("rps", cfg.Invoker.RateLimit.RPS),
	)
	return orc, nil
}

// buildChain assembles the invoker middleware, outermost first.
func (orc *Orchestrator) buildChain(o *options) (*llm.Chain, error) {
	cfg := o.cfg
	chain := llm.NewChain(llm.LoggingMiddleware(o.logger))

	if cfg.Cache.Enabled {
		rdb := o.redis
		if rdb == nil {
			rdb = redis.NewClient(redisOptions(cfg.Cache.Redis))
		}
		cacheCfg := &cache.Config{
			TTL:       cfg.Cache.TTL,
			KeyPrefix: cfg.Cache.KeyPrefix,
		}
		if orc.collector != nil {
			cacheCfg.OnLookup = orc.collector.RecordCacheLookup
		}
		chain.Use(cache.Middleware(rdb, cacheCfg, o.logger))
	} else if o.redis != nil {
		// 未启用缓存时仍需释放调用方交来的客户端
		rdb := o.redis
		o.closers = append(o.closers, func(context.Context) error { return rdb.Close() })
	}

	if cfg.Invoker.Breaker.Enabled {
		cbCfg := &circuitbreaker.Config{
			Threshold:        cfg.Invoker.Breaker.Threshold,
			ResetTimeout:     cfg.Invoker.Breaker.ResetTimeout,
			HalfOpenMaxCalls: cfg.Invoker.Breaker.HalfOpenMaxCalls,
		}
		if orc.collector != nil {
			collector := orc.collector
			cbCfg.OnStateChange = func(model string, from, to circuitbreaker.State) {
				collector.RecordBreakerTransition(model, from.String(), to.String())
			}
		}
		chain.Use(circuitbreaker.Middleware(cbCfg, o.logger))
	}

	if cfg.Invoker.RateLimit.RPS > 0 {
		chain.Use(llm.RateLimitMiddleware(cfg.Invoker.RateLimit.RPS, cfg.Invoker.RateLimit.Burst, o.logger))
	}

	for _, m := range o.middlewares {
		chain.Use(m)
	}
	return chain, nil
}

func redisOptions(c config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
	if c.TLS {
		opts.TLSConfig = tlsutil.ClientConfig(c.Addr, c.TLSServerName)
	}
	return opts
}

func engineConfig(c config.EngineConfig) workflow.EngineConfig {
	return workflow.EngineConfig{
		ExecutionTimeout:    c.ExecutionTimeout,
		ParallelPolicy:      workflow.ParallelPolicy(c.ParallelPolicy),
		MaxParallelBranches: c.MaxParallelBranches,
		DefaultStepTimeout:  c.DefaultStepTimeout,
	}
}

func closedError() error {
	return types.NewError(types.ErrOrchestratorClosed, "orchestrator is shut down")
}

// RegisterAgent adds an agent definition.
func (orc *Orchestrator) RegisterAgent(agent types.Agent) error {
	if orc.closed.Load() {
		return closedError()
	}
	return orc.registry.RegisterAgent(agent)
}

// RegisterWorkflow adds a workflow definition. Every agent it references
// must already be registered.
func (orc *Orchestrator) RegisterWorkflow(wf *workflow.Workflow) error {
	if orc.closed.Load() {
		return closedError()
	}
	return orc.registry.RegisterWorkflow(wf)
}

// Execute runs workflowID with input. See workflow.Engine.Execute for the
// result and error contract.
func (orc *Orchestrator) Execute(ctx context.Context, workflowID string, input any) (*workflow.ExecutionResult, error) {
	if orc.closed.Load() {
		return nil, closedError()
	}
	return orc.engine.Execute(ctx, workflowID, input)
}

// Registry exposes the registry for read access.
func (orc *Orchestrator) Registry() *registry.Registry { return orc.registry }

// Engine exposes the underlying engine.
func (orc *Orchestrator) Engine() *workflow.Engine { return orc.engine }

// Config returns the configuration the orchestrator was built with.
func (orc *Orchestrator) Config() config.Config { return *orc.cfg }

// Shutdown releases the invoker chain and runs registered closers. It is
// idempotent; later calls return the first call's error.
func (orc *Orchestrator) Shutdown(ctx context.Context) error {
	orc.shutdownOnce.Do(func() {
		orc.closed.Store(true)

		var errs []error
		if err := llm.Close(orc.invoker); err != nil {
			errs = append(errs, fmt.Errorf("close invoker: %w", err))
		}
		for _, fn := range orc.closers {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		orc.shutdownErr = errors.Join(errs...)

		if orc.shutdownErr != nil {
			orc.logger.Warn("orchestrator shutdown finished with errors", zap.Error(orc.shutdownErr))
		} else {
			orc.logger.Info("orchestrator shut down")
		}
	})
	return orc.shutdownErr
}
