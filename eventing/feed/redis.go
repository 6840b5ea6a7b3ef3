package feed

import (
	"context"

	"github.com/redis/go-redis/v9"

	"arcompat/errors"
	"arcompat/logging"
)

// streamClient 用到的 go-redis 命令子集，便于测试替换
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisConfig Redis Streams 发布配置
type RedisConfig struct {
	// Client 已建立的客户端；为空时按 Addr 等参数创建并在 Close 时关闭
	Client   redis.UniversalClient
	Addr     string
	Username string
	Password string
	DB       int
	// StreamPrefix 流名前缀，流名为 <prefix><table>
	StreamPrefix string
	// MaxLen 大于 0 时按近似长度裁剪流
	MaxLen int64
}

// RedisStreamPublisher 每张表一个流，事件以 XADD 追加
type RedisStreamPublisher struct {
	cfg       RedisConfig
	client    streamClient
	ownClient bool
	logger    logging.Logger
}

// NewRedisStreamPublisher 创建发布者
func NewRedisStreamPublisher(cfg RedisConfig) *RedisStreamPublisher {
	var cl streamClient = cfg.Client
	own := false
	if cfg.Client == nil {
		cl = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		own = true
	}
	return newRedisStreamPublisher(cfg, cl, own)
}

func newRedisStreamPublisher(cfg RedisConfig, cl streamClient, own bool) *RedisStreamPublisher {
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "arcompat:changes:"
	}
	return &RedisStreamPublisher{
		cfg:       cfg,
		client:    cl,
		ownClient: own,
		logger:    logging.GetLogger().WithFields(logging.Component("feed.redis")),
	}
}

// Stream 事件写入的流名
func (p *RedisStreamPublisher) Stream(event ChangeEvent) string {
	return p.cfg.StreamPrefix + event.Table
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, event ChangeEvent) error {
	values, err := streamValues(event)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodePublish, "编码变更事件失败")
	}
	args := &redis.XAddArgs{Stream: p.Stream(event), Values: values}
	if p.cfg.MaxLen > 0 {
		args.MaxLen = p.cfg.MaxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		p.logger.Warn(ctx, "发布变更事件失败", logging.String("stream", args.Stream), logging.Error(err))
		return errors.WrapError(err, errors.ErrCodePublish, "发布变更事件失败").
			WithContext("stream", args.Stream)
	}
	return nil
}

func (p *RedisStreamPublisher) Close() error {
	if p.ownClient {
		return p.client.Close()
	}
	return nil
}

func streamValues(event ChangeEvent) (map[string]any, error) {
	body, err := encode(event)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          event.ID,
		"type":        string(event.Type),
		"table":       event.Table,
		"occurred_at": event.OccurredAt.UnixNano(),
		"event":       string(body),
	}, nil
}
