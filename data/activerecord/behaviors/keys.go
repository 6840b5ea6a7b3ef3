package behaviors

import (
	"context"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"arcompat/data/activerecord"
)

// UUID 插入前为空属性填充随机 UUID
type UUID struct {
	activerecord.BaseBehavior

	// Attribute 默认 uuid
	Attribute string
}

// NewUUID 填充 attribute 列
func NewUUID(attribute string) *UUID {
	return &UUID{Attribute: attribute}
}

func (u *UUID) Bindings() []activerecord.Binding {
	return []activerecord.Binding{{
		Event:   activerecord.EventBeforeInsert,
		Handler: fillKey(defaultName(u.Attribute, "uuid"), uuid.NewString),
	}}
}

// ULID 插入前为空属性填充 ULID，同一进程内按时间有序
type ULID struct {
	activerecord.BaseBehavior

	// Attribute 默认 ulid
	Attribute string
}

// NewULID 填充 attribute 列
func NewULID(attribute string) *ULID {
	return &ULID{Attribute: attribute}
}

func (u *ULID) Bindings() []activerecord.Binding {
	return []activerecord.Binding{{
		Event:   activerecord.EventBeforeInsert,
		Handler: fillKey(defaultName(u.Attribute, "ulid"), func() string { return ulid.Make().String() }),
	}}
}

func fillKey(attribute string, gen func() string) activerecord.Handler {
	return func(_ context.Context, e *activerecord.Event) (activerecord.Result, error) {
		if v, ok := e.Sender.Get(attribute); !ok || v == nil || v == "" {
			e.Sender.Set(attribute, gen())
		}
		return activerecord.Continue, nil
	}
}

func defaultName(name, def string) string {
	if name == "" {
		return def
	}
	return name
}
