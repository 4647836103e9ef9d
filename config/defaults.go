// =============================================================================
// 📦 FlowCore 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Engine:    DefaultEngineConfig(),
		Retry:     DefaultRetryConfig(),
		Invoker:   DefaultInvokerConfig(),
		Cache:     DefaultCacheConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultEngineConfig 返回默认引擎配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ExecutionTimeout:    0,
		DefaultStepTimeout:  30 * time.Second,
		ParallelPolicy:      "wait_all",
		MaxParallelBranches: 0,
	}
}

// DefaultRetryConfig 返回默认退避配置（立即重试）
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay: 0,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

// DefaultInvokerConfig 返回默认调用装饰器配置
func DefaultInvokerConfig() InvokerConfig {
	return InvokerConfig{
		RateLimit: RateLimitConfig{
			RPS:   0,
			Burst: 1,
		},
		Breaker: BreakerConfig{
			Enabled:          false,
			Threshold:        5,
			ResetTimeout:     60 * time.Second,
			HalfOpenMaxCalls: 3,
		},
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: false,
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			Password:     "",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
		},
		TTL:       time.Hour,
		KeyPrefix: "flowcore:llm:",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "flowcore",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "flowcore",
	}
}
