package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/llm"
)

// Config configures the response cache.
type Config struct {
	TTL       time.Duration `json:"ttl"`
	KeyPrefix string        `json:"key_prefix"`
	// CacheNonDeterministic also caches requests with temperature > 0.
	CacheNonDeterministic bool `json:"cache_non_deterministic"`
	// OnLookup 每次缓存查询后回调
	OnLookup func(model string, hit bool) `json:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TTL:       time.Hour,
		KeyPrefix: "flowcore:llm:",
	}
}

// Entry represents a cached response.
type Entry struct {
	Response  *llm.Response `json:"response"`
	CreatedAt time.Time     `json:"created_at"`
}

// Invoker serves repeated requests from Redis.
type Invoker struct {
	next   llm.Invoker
	rdb    *redis.Client
	config *Config
	logger *zap.Logger
}

// NewInvoker wraps next. The invoker owns rdb and closes it on Close.
func NewInvoker(next llm.Invoker, rdb *redis.Client, config *Config, logger *zap.Logger) *Invoker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{
		next:   next,
		rdb:    rdb,
		config: config,
		logger: logger.With(zap.String("component", "response_cache")),
	}
}

// Middleware returns a llm.Middleware form of NewInvoker.
func Middleware(rdb *redis.Client, config *Config, logger *zap.Logger) llm.Middleware {
	return func(next llm.Invoker) llm.Invoker {
		return NewInvoker(next, rdb, config, logger)
	}
}

// IsCacheable checks if request is cacheable.
func (c *Invoker) IsCacheable(req *llm.Request) bool {
	return c.config.CacheNonDeterministic || req.Temperature == 0
}

// Invoke returns a cached response when present, otherwise calls through and stores the result.
func (c *Invoker) Invoke(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if !c.IsCacheable(req) {
		return c.next.Invoke(ctx, req)
	}

	key := GenerateKey(c.config.KeyPrefix, req)
	resp, ok := c.get(ctx, key)
	if c.config.OnLookup != nil {
		c.config.OnLookup(req.Model, ok)
	}
	if ok {
		c.logger.Debug("cache hit", zap.String("model", req.Model))
		return resp, nil
	}

	resp, err := c.next.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, resp)
	return resp, nil
}

func (c *Invoker) get(ctx context.Context, key string) (*llm.Response, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Response == nil {
		c.logger.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	resp := *entry.Response
	// 命中缓存不消耗 Token
	resp.TokensUsed = 0
	return &resp, true
}

func (c *Invoker) set(ctx context.Context, key string, resp *llm.Response) {
	data, err := json.Marshal(Entry{Response: resp, CreatedAt: time.Now()})
	if err != nil {
		c.logger.Warn("cache entry encode failed", zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.Error(err))
	}
}

// Close releases the Redis pool and the wrapped invoker.
func (c *Invoker) Close() error {
	return errors.Join(c.rdb.Close(), llm.Close(c.next))
}
