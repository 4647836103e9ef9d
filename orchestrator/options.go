package orchestrator

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/config"
	"github.com/BaSui01/flowcore/internal/telemetry"
	"github.com/BaSui01/flowcore/llm"
	"github.com/BaSui01/flowcore/workflow"
)

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	cfg         *config.Config
	logger      *zap.Logger
	registerer  prometheus.Registerer
	metrics     workflow.Metrics
	tracer      trace.Tracer
	telemetry   *telemetry.Providers
	redis       *redis.Client
	middlewares []llm.Middleware
	closers     []func(context.Context) error
}

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers the Prometheus collector on reg instead of the
// default registerer. Ignored when metrics are disabled in the config.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithMetrics adds a metrics recorder next to the Prometheus collector.
func WithMetrics(m workflow.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer sets the tracer for execution spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithTelemetry uses p for spans and OTel metrics, and shuts it down with
// the orchestrator.
func WithTelemetry(p *telemetry.Providers) Option {
	return func(o *options) { o.telemetry = p }
}

// WithRedisClient supplies the client used by the response cache. The
// orchestrator takes ownership and closes it on Shutdown.
func WithRedisClient(rdb *redis.Client) Option {
	return func(o *options) { o.redis = rdb }
}

// WithMiddleware appends invoker middleware inside the built-in chain.
func WithMiddleware(m ...llm.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, m...) }
}

// WithCloser registers a cleanup function run by Shutdown.
func WithCloser(fn func(context.Context) error) Option {
	return func(o *options) {
		if fn != nil {
			o.closers = append(o.closers, fn)
		}
	}
}
