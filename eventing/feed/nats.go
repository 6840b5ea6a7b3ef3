package feed

import (
	"context"
	stdErrors "errors"
	"strings"

	"github.com/nats-io/nats.go"

	"arcompat/errors"
	"arcompat/logging"
)

// NATSConfig NATS 发布配置
type NATSConfig struct {
	URL string
	// Conn 已建立的连接；为空时按 URL 连接并在 Close 时关闭
	Conn          *nats.Conn
	SubjectPrefix string
	// JetStream 为 true 时经 JetStream 发布，并确保 Stream 存在
	JetStream bool
	Stream    string
}

// NATSPublisher 将事件发布到 <prefix><table>.<type> 主题
type NATSPublisher struct {
	cfg      NATSConfig
	conn     *nats.Conn
	ownsConn bool
	publish  func(subject string, data []byte) error
	logger   logging.Logger
}

// NewNATSPublisher 建立连接并创建发布者
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "arcompat.changes."
	}
	if cfg.Stream == "" {
		cfg.Stream = "ARCOMPAT_CHANGES"
	}

	p := &NATSPublisher{
		cfg:    cfg,
		conn:   cfg.Conn,
		logger: logging.GetLogger().WithFields(logging.Component("feed.nats")),
	}
	if p.conn == nil {
		url := cfg.URL
		if url == "" {
			url = nats.DefaultURL
		}
		conn, err := nats.Connect(url)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeConfiguration, "连接 NATS 失败").
				WithContext("url", url)
		}
		p.conn = conn
		p.ownsConn = true
	}

	if !cfg.JetStream {
		p.publish = p.conn.Publish
		return p, nil
	}

	js, err := p.conn.JetStream()
	if err != nil {
		p.closeOwned()
		return nil, errors.WrapError(err, errors.ErrCodeConfiguration, "初始化 JetStream 失败")
	}
	if err := ensureStream(js, cfg.Stream, cfg.SubjectPrefix); err != nil {
		p.closeOwned()
		return nil, errors.WrapError(err, errors.ErrCodeConfiguration, "创建 JetStream 流失败").
			WithContext("stream", cfg.Stream)
	}
	p.publish = func(subject string, data []byte) error {
		_, err := js.Publish(subject, data)
		return err
	}
	return p, nil
}

func ensureStream(js nats.JetStreamContext, stream, prefix string) error {
	_, err := js.StreamInfo(stream)
	if err == nil {
		return nil
	}
	if !stdErrors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      stream,
		Subjects:  []string{prefix + ">"},
		Retention: nats.LimitsPolicy,
	})
	return err
}

// Subject 事件对应的主题
func (p *NATSPublisher) Subject(event ChangeEvent) string {
	return p.cfg.SubjectPrefix + event.Topic()
}

func (p *NATSPublisher) Publish(ctx context.Context, event ChangeEvent) error {
	data, err := encode(event)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodePublish, "编码变更事件失败")
	}
	subject := p.Subject(event)
	if err := p.publish(subject, data); err != nil {
		p.logger.Warn(ctx, "发布变更事件失败", logging.String("subject", subject), logging.Error(err))
		return errors.WrapError(err, errors.ErrCodePublish, "发布变更事件失败").
			WithContext("subject", subject)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	p.closeOwned()
	return nil
}

func (p *NATSPublisher) closeOwned() {
	if p.ownsConn && p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}
