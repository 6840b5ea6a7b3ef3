// Package retry 按指数退避重复执行操作。
package retry

import (
	"context"
	"math"
	"time"
)

// Config 重试参数
type Config struct {
	// MaxAttempts 含首次在内的最大尝试次数，小于 1 按 1 处理
	MaxAttempts  int
	InitialDelay time.Duration
	// BackoffFactor 每次失败后延迟的倍数，小于 1 按 1 处理
	BackoffFactor float64
	MaxDelay      time.Duration
	// Retryable 返回 false 的错误立即结束重试；为空时所有错误都重试
	Retryable func(err error) bool
}

// DefaultConfig 3 次尝试，50ms 起步翻倍，上限 1s
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  50 * time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      time.Second,
	}
}

// Delay 第 attempt 次失败后的等待时间（attempt 从 1 开始）
func (c Config) Delay(attempt int) time.Duration {
	factor := max(c.BackoffFactor, 1)
	d := time.Duration(float64(c.InitialDelay) * math.Pow(factor, float64(attempt-1)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// Do 执行 op 直到成功、错误不可重试、次数用尽或 ctx 结束；返回最后一次的错误
func Do(ctx context.Context, cfg Config, op func(ctx context.Context, attempt int) error) error {
	attempts := max(cfg.MaxAttempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}
		if err = op(ctx, attempt); err == nil {
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(cfg.Delay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return err
		}
	}
	return err
}
