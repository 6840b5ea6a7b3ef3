package behaviors

import (
	"context"
	"time"

	"arcompat/data/activerecord"
	"arcompat/data/query"
)

// SoftDelete 将删除改写为写入删除标记并保存
type SoftDelete struct {
	activerecord.BaseBehavior

	// Attribute 删除标记列，默认 deleted_at
	Attribute string
	// Value 删除标记值，默认当前 Unix 秒
	Value func() any
	// NotDeleted 未删除时的标记值，默认 nil
	NotDeleted any
}

// NewSoftDelete 使用 deleted_at 列
func NewSoftDelete() *SoftDelete {
	return &SoftDelete{}
}

func (s *SoftDelete) attribute() string {
	if s.Attribute == "" {
		return "deleted_at"
	}
	return s.Attribute
}

func (s *SoftDelete) Bindings() []activerecord.Binding {
	return []activerecord.Binding{{Event: activerecord.EventBeforeDelete, Handler: s.softDelete}}
}

func (s *SoftDelete) softDelete(ctx context.Context, e *activerecord.Event) (activerecord.Result, error) {
	var value any = time.Now().Unix()
	if s.Value != nil {
		value = s.Value()
	}
	e.Sender.Set(s.attribute(), value)
	if _, err := e.Sender.SaveWithoutValidation(ctx); err != nil {
		return activerecord.Cancel, err
	}
	// 取消物理删除
	return activerecord.Cancel, nil
}

// Restore 清除删除标记并保存
func (s *SoftDelete) Restore(ctx context.Context) (bool, error) {
	owner, err := ownerOf(s)
	if err != nil {
		return false, err
	}
	owner.Set(s.attribute(), s.NotDeleted)
	return owner.SaveWithoutValidation(ctx)
}

// ForceDelete 临时卸载本行为后执行物理删除
func (s *SoftDelete) ForceDelete(ctx context.Context) (bool, error) {
	owner, err := ownerOf(s)
	if err != nil {
		return false, err
	}
	name := s.Name()
	owner.DetachBehavior(name)
	defer owner.AttachBehavior(name, s)
	return owner.Delete(ctx)
}

// IsDeleted 删除标记是否已设置
func (s *SoftDelete) IsDeleted() bool {
	owner := s.Owner()
	if owner == nil {
		return false
	}
	v := owner.GetAttribute(s.attribute())
	return v != nil && !activerecord.ValuesEqual(v, s.NotDeleted)
}

// NotDeletedCondition 过滤未删除行的条件
func (s *SoftDelete) NotDeletedCondition() query.Condition {
	if s.NotDeleted == nil {
		return query.IsNull(s.attribute())
	}
	return query.Equals(s.attribute(), s.NotDeleted)
}
