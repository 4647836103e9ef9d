package llm

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/flowcore/types"
)

// RateLimitedInvoker throttles calls with a shared token bucket.
type RateLimitedInvoker struct {
	next    Invoker
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRateLimitedInvoker allows rps calls per second with the given burst.
// rps <= 0 disables limiting.
func NewRateLimitedInvoker(next Invoker, rps float64, burst int, logger *zap.Logger) *RateLimitedInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedInvoker{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With(zap.String("component", "rate_limiter")),
	}
}

// RateLimitMiddleware returns a Middleware form of NewRateLimitedInvoker.
func RateLimitMiddleware(rps float64, burst int, logger *zap.Logger) Middleware {
	return func(next Invoker) Invoker {
		return NewRateLimitedInvoker(next, rps, burst, logger)
	}
}

// Invoke waits for a token, bounded by ctx, then calls through.
func (r *RateLimitedInvoker) Invoke(ctx context.Context, req *Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		r.logger.Debug("rate limiter wait aborted", zap.String("model", req.Model), zap.Error(err))
		return nil, types.NewRateLimitError(req.Model, "local rate limit wait aborted").WithCause(err)
	}
	return r.next.Invoke(ctx, req)
}

// Close forwards to the wrapped invoker.
func (r *RateLimitedInvoker) Close() error { return Close(r.next) }
