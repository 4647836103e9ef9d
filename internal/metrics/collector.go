// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/workflow"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 工作流指标
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	stepsTotal        *prometheus.CounterVec
	stepDuration      *prometheus.HistogramVec

	// 模型调用指标
	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	tokensUsed      *prometheus.CounterVec
	fallbacksTotal  *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 熔断器指标
	breakerTransitions *prometheus.CounterVec

	logger *zap.Logger
}

var _ workflow.Metrics = (*Collector)(nil)

// NewCollector 创建指标收集器并注册到 reg；reg 为 nil 时使用默认 Registerer。
// 同一 reg 上已注册的同名指标会被复用，多个 Collector 共享同一组序列。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 工作流指标
	c.executionsTotal = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_executions_total",
			Help:      "Total number of workflow executions",
		},
		[]string{"workflow_id", "status", "code"},
	), c.logger)

	c.executionDuration = register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_execution_duration_seconds",
			Help:      "Workflow execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"workflow_id"},
	), c.logger)

	c.stepsTotal = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Total number of executed workflow steps",
		},
		[]string{"workflow_id", "kind", "status"},
	), c.logger)

	c.stepDuration = register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_step_duration_seconds",
			Help:      "Workflow step duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"workflow_id", "kind"},
	), c.logger)

	// 模型调用指标
	c.attemptsTotal = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_attempts_total",
			Help:      "Total number of model invocation attempts",
		},
		[]string{"model", "status", "code"},
	), c.logger)

	c.attemptDuration = register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_attempt_duration_seconds",
			Help:      "Model invocation attempt duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	), c.logger)

	c.tokensUsed = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"model"},
	), c.logger)

	c.fallbacksTotal = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_fallback_attempts_total",
			Help:      "Total number of attempts made against fallback models",
		},
		[]string{"model", "status"},
	), c.logger)

	// 缓存指标
	c.cacheHits = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of response cache hits",
		},
		[]string{"model"},
	), c.logger)

	c.cacheMisses = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of response cache misses",
		},
		[]string{"model"},
	), c.logger)

	c.breakerTransitions = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"model", "from_state", "to_state"},
	), c.logger)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🔀 工作流指标记录
// =============================================================================

// RecordExecution 记录一次工作流执行
func (c *Collector) RecordExecution(workflowID string, success bool, code string, d time.Duration) {
	c.executionsTotal.WithLabelValues(workflowID, status(success), code).Inc()
	c.executionDuration.WithLabelValues(workflowID).Observe(d.Seconds())
}

// RecordStep 记录一个步骤
func (c *Collector) RecordStep(workflowID, kind string, success bool, d time.Duration) {
	c.stepsTotal.WithLabelValues(workflowID, kind, status(success)).Inc()
	c.stepDuration.WithLabelValues(workflowID, kind).Observe(d.Seconds())
}

// =============================================================================
// 🤖 模型调用指标记录
// =============================================================================

// RecordAttempt 记录一次模型调用尝试
func (c *Collector) RecordAttempt(model string, fallback, success bool, code string, d time.Duration, tokens int) {
	c.attemptsTotal.WithLabelValues(model, status(success), code).Inc()
	c.attemptDuration.WithLabelValues(model).Observe(d.Seconds())
	if tokens > 0 {
		c.tokensUsed.WithLabelValues(model).Add(float64(tokens))
	}
	if fallback {
		c.fallbacksTotal.WithLabelValues(model, status(success)).Inc()
	}
}

// =============================================================================
// 💾 缓存与熔断指标记录
// =============================================================================

// RecordCacheLookup 记录缓存查询结果，签名与 cache.Config.OnLookup 一致
func (c *Collector) RecordCacheLookup(model string, hit bool) {
	if hit {
		c.cacheHits.WithLabelValues(model).Inc()
		return
	}
	c.cacheMisses.WithLabelValues(model).Inc()
}

// RecordBreakerTransition 记录熔断器状态变更
func (c *Collector) RecordBreakerTransition(model, from, to string) {
	c.breakerTransitions.WithLabelValues(model, from, to).Inc()
	c.logger.Info("circuit breaker state changed",
		zap.String("model", model),
		zap.String("from", from),
		zap.String("to", to),
	)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// register 注册 col；遇到 AlreadyRegisteredError 时返回已注册的同类指标
func register[T prometheus.Collector](reg prometheus.Registerer, col T, logger *zap.Logger) T {
	err := reg.Register(col)
	if err == nil {
		return col
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	// 描述冲突时仍返回未注册的指标，记录不受影响，只是不会被导出
	logger.Warn("metric registration failed", zap.Error(err))
	return col
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Fanout 把同一组观测转发给多个 workflow.Metrics
type Fanout []workflow.Metrics

var _ workflow.Metrics = Fanout(nil)

func (f Fanout) RecordExecution(workflowID string, success bool, code string, d time.Duration) {
	for _, m := range f {
		m.RecordExecution(workflowID, success, code, d)
	}
}

func (f Fanout) RecordStep(workflowID, kind string, success bool, d time.Duration) {
	for _, m := range f {
		m.RecordStep(workflowID, kind, success, d)
	}
}

func (f Fanout) RecordAttempt(model string, fallback, success bool, code string, d time.Duration, tokens int) {
	for _, m := range f {
		m.RecordAttempt(model, fallback, success, code, d, tokens)
	}
}
