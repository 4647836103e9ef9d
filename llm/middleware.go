package llm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/internal/ctxkeys"
)

// Middleware wraps an invoker with additional functionality.
type Middleware func(next Invoker) Invoker

// Chain represents a middleware chain.
type Chain struct {
	middlewares []Middleware
	mu          sync.RWMutex
}

// NewChain creates a new middleware chain.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use adds middleware to the chain.
func (c *Chain) Use(m Middleware) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, m)
	return c
}

// Then wraps an invoker with all middleware; the first middleware is outermost.
func (c *Chain) Then(inv Invoker) Invoker {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.middlewares) - 1; i >= 0; i-- {
		inv = c.middlewares[i](inv)
	}
	return inv
}

// Len returns the number of middleware.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.middlewares)
}

// loggingInvoker logs every invocation at debug level.
type loggingInvoker struct {
	next   Invoker
	logger *zap.Logger
}

// LoggingMiddleware logs request/response details.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "invoker"))
	return func(next Invoker) Invoker {
		return &loggingInvoker{next: next, logger: logger}
	}
}

func (l *loggingInvoker) Invoke(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	resp, err := l.next.Invoke(ctx, req)

	fields := append(ctxkeys.LogFields(ctx),
		zap.String("model", req.Model),
		zap.Duration("duration", time.Since(start)),
	)
	if err != nil {
		l.logger.Debug("invoke failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	l.logger.Debug("invoke completed", append(fields, zap.Int("tokens", resp.TokensUsed))...)
	return resp, nil
}

func (l *loggingInvoker) Close() error { return Close(l.next) }
