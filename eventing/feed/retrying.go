package feed

import (
	"context"

	"arcompat/logging"
	"arcompat/patterns/retry"
)

// RetryingPublisher 发布失败时按退避策略重试
type RetryingPublisher struct {
	next Publisher
	cfg  retry.Config
}

// WithRetry 包装 p；cfg 为零值时使用 retry.DefaultConfig
func WithRetry(p Publisher, cfg retry.Config) *RetryingPublisher {
	if cfg.MaxAttempts == 0 {
		cfg = retry.DefaultConfig()
	}
	return &RetryingPublisher{next: p, cfg: cfg}
}

func (p *RetryingPublisher) Publish(ctx context.Context, event ChangeEvent) error {
	return retry.Do(ctx, p.cfg, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			logging.GetLogger().Debug(ctx, "重试发布变更事件",
				logging.Component("feed"), logging.String("event", event.ID), logging.Int("attempt", attempt))
		}
		return p.next.Publish(ctx, event)
	})
}

func (p *RetryingPublisher) Close() error { return p.next.Close() }
