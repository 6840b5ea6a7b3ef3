// Package feed 将记录的增删改以变更事件的形式发布到外部消息系统。
package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChangeType 变更类型
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// ChangeEvent 一次记录变更
type ChangeEvent struct {
	ID         string         `json:"id"`
	Type       ChangeType     `json:"type"`
	Table      string         `json:"table"`
	Key        any            `json:"key"`
	Attributes map[string]any `json:"attributes,omitempty"`
	// Changed 更新事件中被修改的列
	Changed    map[string]any `json:"changed,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewChangeEvent 生成带随机 ID 与当前时间的事件
func NewChangeEvent(typ ChangeType, table string, key any) ChangeEvent {
	return ChangeEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		Table:      table,
		Key:        key,
		OccurredAt: time.Now().UTC(),
	}
}

// Topic 事件主题名：<table>.<type>
func (e ChangeEvent) Topic() string {
	return e.Table + "." + string(e.Type)
}

// Publisher 变更事件发布者
type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
	Close() error
}

func encode(event ChangeEvent) ([]byte, error) {
	return json.Marshal(event)
}

// Decode 解析 JSON 编码的事件
func Decode(data []byte) (ChangeEvent, error) {
	var e ChangeEvent
	err := json.Unmarshal(data, &e)
	return e, err
}
