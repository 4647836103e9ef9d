package circuitbreaker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/llm"
)

// Invoker keeps one breaker per model in front of the wrapped invoker.
// An open breaker fails the attempt fast with CIRCUIT_OPEN so the
// fallback resolver moves on to the next model.
type Invoker struct {
	next   llm.Invoker
	config Config
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*breaker
}

// NewInvoker wraps next with per-model circuit breakers.
func NewInvoker(next llm.Invoker, config *Config, logger *zap.Logger) *Invoker {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{
		next:     next,
		config:   *config,
		logger:   logger.With(zap.String("component", "circuit_breaker")),
		breakers: make(map[string]*breaker),
	}
}

// Middleware returns a llm.Middleware form of NewInvoker.
func Middleware(config *Config, logger *zap.Logger) llm.Middleware {
	return func(next llm.Invoker) llm.Invoker {
		return NewInvoker(next, config, logger)
	}
}

// Invoke calls through the breaker of req.Model.
func (i *Invoker) Invoke(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	cb := i.breakerFor(req.Model)
	return CallWithResultTyped[*llm.Response](cb, ctx, func() (*llm.Response, error) {
		return i.next.Invoke(ctx, req)
	})
}

// State reports the breaker state of model; unknown models are Closed.
func (i *Invoker) State(model string) State {
	i.mu.Lock()
	cb, ok := i.breakers[model]
	i.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return cb.State()
}

// Close forwards to the wrapped invoker.
func (i *Invoker) Close() error { return llm.Close(i.next) }

func (i *Invoker) breakerFor(model string) *breaker {
	i.mu.Lock()
	defer i.mu.Unlock()

	cb, ok := i.breakers[model]
	if !ok {
		cfg := i.config
		cb = newBreaker(model, &cfg, i.logger)
		i.breakers[model] = cb
	}
	return cb
}
