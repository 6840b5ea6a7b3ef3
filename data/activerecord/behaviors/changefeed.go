package behaviors

import (
	"context"

	"arcompat/data/activerecord"
	"arcompat/eventing/feed"
	"arcompat/logging"
)

// ChangeFeed 在插入、更新、删除完成后发布变更事件
type ChangeFeed struct {
	activerecord.BaseBehavior

	Publisher feed.Publisher
	// Strict 为 true 时发布失败作为错误返回给 Save/Delete 的调用方，否则仅记录日志
	Strict bool
}

// NewChangeFeed 经 p 发布
func NewChangeFeed(p feed.Publisher) *ChangeFeed {
	return &ChangeFeed{Publisher: p}
}

func (c *ChangeFeed) Bindings() []activerecord.Binding {
	return []activerecord.Binding{
		{Event: activerecord.EventAfterInsert, Handler: c.publish(feed.ChangeInsert)},
		{Event: activerecord.EventAfterUpdate, Handler: c.publish(feed.ChangeUpdate)},
		{Event: activerecord.EventAfterDelete, Handler: c.publish(feed.ChangeDelete)},
	}
}

func (c *ChangeFeed) publish(typ feed.ChangeType) activerecord.Handler {
	return func(ctx context.Context, e *activerecord.Event) (activerecord.Result, error) {
		if c.Publisher == nil {
			return activerecord.Continue, nil
		}
		r := e.Sender
		event := feed.NewChangeEvent(typ, r.Model().TableName(), r.PrimaryKey())
		switch typ {
		case feed.ChangeInsert:
			event.Attributes = r.Attributes()
		case feed.ChangeUpdate:
			event.Attributes = r.Attributes()
			event.Changed = e.Dirty()
		}

		if err := c.Publisher.Publish(ctx, event); err != nil {
			if c.Strict {
				return activerecord.Continue, err
			}
			logging.GetLogger().Warn(ctx, "变更事件发布失败",
				logging.Component("activerecord.changefeed"),
				logging.String("table", event.Table),
				logging.String("type", string(typ)),
				logging.Error(err))
		}
		return activerecord.Continue, nil
	}
}
