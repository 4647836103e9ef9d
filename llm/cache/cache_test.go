package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/llm"
	"github.com/BaSui01/flowcore/testutil/mocks"
	"github.com/BaSui01/flowcore/types"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, rdb
}

func TestInvoker_CachesDeterministicRequests(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	inv := mocks.NewMockInvoker().WithResponse("answer").WithTokens(12)
	c := NewInvoker(inv, rdb, DefaultConfig(), zap.NewNop())
	ctx := context.Background()
	req := &llm.Request{Model: "m", SystemPrompt: "s", Input: "q", Temperature: 0, MaxTokens: 10}

	first, err := c.Invoke(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 12, first.TokensUsed)

	second, err := c.Invoke(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "answer", second.Text)
	assert.Equal(t, 0, second.TokensUsed)
	assert.Equal(t, 1, inv.CallCount())

	key := GenerateKey(DefaultConfig().KeyPrefix, req)
	assert.True(t, mr.Exists(key))
	ttl := mr.TTL(key)
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestInvoker_SkipsNonDeterministic(t *testing.T) {
	_, rdb := setupTestRedis(t)
	inv := mocks.NewMockInvoker()
	c := NewInvoker(inv, rdb, nil, nil)
	req := &llm.Request{Model: "m", Input: "q", Temperature: 0.7}

	for i := 0; i < 2; i++ {
		_, err := c.Invoke(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, inv.CallCount())
}

func TestInvoker_DoesNotCacheFailures(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	inv := mocks.NewMockInvoker().WithScript("m", types.NewProviderError("m", "down"), nil)
	c := NewInvoker(inv, rdb, DefaultConfig(), zap.NewNop())
	req := &llm.Request{Model: "m", Input: "q"}

	_, err := c.Invoke(context.Background(), req)
	require.Error(t, err)
	assert.Empty(t, mr.Keys())

	_, err = c.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, mr.Keys(), 1)
}

func TestInvoker_RedisDownFallsThrough(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	mr.Close()

	inv := mocks.NewMockInvoker().WithResponse("direct")
	c := NewInvoker(inv, rdb, DefaultConfig(), zap.NewNop())

	resp, err := c.Invoke(context.Background(), &llm.Request{Model: "m", Input: "q"})
	require.NoError(t, err)
	assert.Equal(t, "direct", resp.Text)
}

func TestInvoker_CloseReleasesPoolAndInner(t *testing.T) {
	_, rdb := setupTestRedis(t)
	inv := mocks.NewMockInvoker()
	c := NewInvoker(inv, rdb, DefaultConfig(), zap.NewNop())

	require.NoError(t, c.Close())
	assert.Equal(t, 1, inv.CloseCount())
	assert.Error(t, rdb.Ping(context.Background()).Err())
}

func TestGenerateKey(t *testing.T) {
	a := &llm.Request{Model: "m", Input: map[string]any{"k": 1}}
	b := &llm.Request{Model: "m", Input: map[string]any{"k": 1}}
	c := &llm.Request{Model: "m", Input: map[string]any{"k": 2}}

	assert.Equal(t, GenerateKey("p:", a), GenerateKey("p:", b))
	assert.NotEqual(t, GenerateKey("p:", a), GenerateKey("p:", c))
	assert.Contains(t, GenerateKey("p:", a), "p:")
}

func TestInvoker_OnLookup(t *testing.T) {
	_, rdb := setupTestRedis(t)
	var hits, misses int
	cfg := DefaultConfig()
	cfg.OnLookup = func(model string, hit bool) {
		assert.Equal(t, "m", model)
		if hit {
			hits++
		} else {
			misses++
		}
	}
	c := NewInvoker(mocks.NewMockInvoker(), rdb, cfg, nil)
	req := &llm.Request{Model: "m", Input: "q"}

	for i := 0; i < 3; i++ {
		_, err := c.Invoke(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, hits)
	assert.Equal(t, 1, misses)
}
