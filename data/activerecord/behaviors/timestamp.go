package behaviors

import (
	"context"
	"strings"
	"time"

	"arcompat/data/activerecord"
	"arcompat/validation"
)

// Timestamp 在插入/更新前写入时间戳属性
type Timestamp struct {
	activerecord.BaseBehavior

	// Attributes 事件到属性列表的映射，默认插入写 created_at/updated_at，更新写 updated_at
	Attributes map[activerecord.EventName][]string
	// Format 非空时写入格式化字符串，支持 Y-m-d H:i:s 风格或 Go 布局
	Format string
	// Value 自定义取值，优先于 Format
	Value func(ctx context.Context, e *activerecord.Event) any
	// TouchOnClean 为 true 时没有修改的更新也刷新时间戳
	TouchOnClean bool
	// Now 时钟，测试时替换
	Now func() time.Time
}

// NewTimestamp 写 Unix 秒的默认配置
func NewTimestamp() *Timestamp {
	return &Timestamp{}
}

// NewDatetime 以 format 写入日期时间字符串
func NewDatetime(format string) *Timestamp {
	if format == "" {
		format = "Y-m-d H:i:s"
	}
	return &Timestamp{Format: format}
}

func (t *Timestamp) attributes() map[activerecord.EventName][]string {
	if t.Attributes != nil {
		return t.Attributes
	}
	return map[activerecord.EventName][]string{
		activerecord.EventBeforeInsert: {"created_at", "updated_at"},
		activerecord.EventBeforeUpdate: {"updated_at"},
	}
}

func (t *Timestamp) Bindings() []activerecord.Binding {
	attrs := t.attributes()
	bindings := make([]activerecord.Binding, 0, len(attrs))
	for _, ev := range sortedEvents(attrs) {
		bindings = append(bindings, activerecord.Binding{Event: ev, Handler: t.touch})
	}
	return bindings
}

func (t *Timestamp) touch(ctx context.Context, e *activerecord.Event) (activerecord.Result, error) {
	names := t.attributes()[e.Name]
	if len(names) == 0 {
		return activerecord.Continue, nil
	}
	if e.Name == activerecord.EventBeforeUpdate && !t.TouchOnClean && len(e.Dirty()) == 0 {
		return activerecord.Continue, nil
	}

	// 同一事件内所有属性使用同一个值
	value := t.value(ctx, e)
	for _, name := range names {
		if hasColumn(e.Sender, name) {
			e.Sender.Set(name, value)
		}
	}
	return activerecord.Continue, nil
}

func (t *Timestamp) value(ctx context.Context, e *activerecord.Event) any {
	if t.Value != nil {
		return t.Value(ctx, e)
	}
	now := time.Now()
	if t.Now != nil {
		now = t.Now()
	}
	if t.Format == "" {
		return now.Unix()
	}
	return now.Format(layout(t.Format))
}

// layout 含 2006 的格式视为 Go 布局
func layout(format string) string {
	if strings.Contains(format, "2006") {
		return format
	}
	return validation.ConvertDateFormat(format)
}

func sortedEvents(m map[activerecord.EventName][]string) []activerecord.EventName {
	order := []activerecord.EventName{
		activerecord.EventBeforeValidate, activerecord.EventAfterValidate,
		activerecord.EventBeforeSave, activerecord.EventAfterSave,
		activerecord.EventBeforeInsert, activerecord.EventAfterInsert,
		activerecord.EventBeforeUpdate, activerecord.EventAfterUpdate,
		activerecord.EventBeforeDelete, activerecord.EventAfterDelete,
	}
	var out []activerecord.EventName
	for _, ev := range order {
		if _, ok := m[ev]; ok {
			out = append(out, ev)
		}
	}
	return out
}
