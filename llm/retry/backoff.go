package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy 定义同一模型重试之间的退避策略
// 降级模型只尝试一次，不适用退避
type RetryPolicy struct {
	InitialDelay time.Duration // 初始延迟时间（0 表示立即重试）
	MaxDelay     time.Duration // 最大延迟时间
	Multiplier   float64       // 延迟时间倍增因子（指数退避）
	Jitter       bool          // 是否添加随机抖动（±25%）
}

// DefaultRetryPolicy 返回默认的重试策略：立即重试
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		InitialDelay: 0,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

func (p *RetryPolicy) normalize() {
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
}

// Delay 计算第 retry 次重试（从 1 开始）前的等待时间
// delay = initial * multiplier^(retry-1)，受 MaxDelay 限制
func (p *RetryPolicy) Delay(retry int) time.Duration {
	if p == nil || p.InitialDelay <= 0 || retry <= 0 {
		return 0
	}

	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(retry-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}

	if delay < float64(p.InitialDelay) {
		delay = float64(p.InitialDelay)
	}
	return time.Duration(delay)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
