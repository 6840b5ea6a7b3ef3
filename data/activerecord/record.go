package activerecord

import (
	"context"
	"slices"
	"sort"

	"arcompat/validation"
)

// Record 一行数据在内存中的表示
type Record struct {
	model *Model

	attrs   *Attributes
	old     *Attributes
	isNew   bool
	deleted bool
	errors  map[string][]string

	events    events
	behaviors []*attachedBehavior
	related   map[string]any
}

// Model 返回记录所属模型
func (r *Record) Model() *Model { return r.model }

// Get 读取属性；不存在时 ok 为 false
func (r *Record) Get(name string) (any, bool) {
	return r.attrs.Get(name)
}

// GetAttribute 读取属性；不存在时为 nil
func (r *Record) GetAttribute(name string) any {
	v, _ := r.attrs.Get(name)
	return v
}

// Set 写入属性
func (r *Record) Set(name string, value any) {
	r.attrs.Set(name, value)
}

// SetAttributes 批量写入；safeOnly 为 true 时按 Fillable/Guarded 过滤
func (r *Record) SetAttributes(values map[string]any, safeOnly bool) {
	for _, k := range orderedKeys(values, r.model.meta.Columns) {
		if safeOnly && !r.isSafeAttribute(k) {
			continue
		}
		r.attrs.Set(k, values[k])
	}
}

func (r *Record) isSafeAttribute(name string) bool {
	meta := r.model.meta
	if len(meta.Fillable) > 0 {
		return slices.Contains(meta.Fillable, name)
	}
	if len(meta.Guarded) > 0 {
		return !slices.Contains(meta.Guarded, name)
	}
	return true
}

// HasAttribute 属性是否存在
func (r *Record) HasAttribute(name string) bool {
	return r.attrs.Has(name)
}

// Attributes 当前属性的拷贝
func (r *Record) Attributes() map[string]any { return r.attrs.Map() }

// AttributeNames 按顺序返回属性名
func (r *Record) AttributeNames() []string { return r.attrs.Keys() }

// OldAttributes 最近一次加载或保存时的属性快照；新记录为空
func (r *Record) OldAttributes() map[string]any {
	if r.old == nil {
		return map[string]any{}
	}
	return r.old.Map()
}

// DirtyAttributes 与快照不同的属性（快照中不存在的属性也算）
func (r *Record) DirtyAttributes() map[string]any {
	dirty := map[string]any{}
	for _, k := range r.attrs.Keys() {
		v, _ := r.attrs.Get(k)
		if r.old == nil {
			dirty[k] = v
			continue
		}
		if ov, ok := r.old.Get(k); !ok || !ValuesEqual(ov, v) {
			dirty[k] = v
		}
	}
	return dirty
}

// IsDirty 未传参数时判断是否有任何脏属性，否则判断指定属性
func (r *Record) IsDirty(names ...string) bool {
	dirty := r.DirtyAttributes()
	if len(names) == 0 {
		return len(dirty) > 0
	}
	for _, n := range names {
		if _, ok := dirty[n]; ok {
			return true
		}
	}
	return false
}

// PrimaryKey 主键值；新记录插入前可能为 nil
func (r *Record) PrimaryKey() any {
	return r.GetAttribute(r.model.meta.PrimaryKey)
}

// IsNewRecord 是否尚未插入
func (r *Record) IsNewRecord() bool { return r.isNew }

// IsDeleted 是否已被 Delete 删除
func (r *Record) IsDeleted() bool { return r.deleted }

// ToArray 当前属性的拷贝
func (r *Record) ToArray() map[string]any { return r.attrs.Map() }

// ToJSON 按属性顺序序列化
func (r *Record) ToJSON() ([]byte, error) { return r.attrs.MarshalJSON() }

// Validate 按模型规则校验当前属性，错误保存在 Errors 中。
// beforeValidate 被取消时返回 false 且不执行校验。
func (r *Record) Validate(ctx context.Context) (bool, error) {
	r.errors = nil

	ok, err := r.Trigger(ctx, EventBeforeValidate, nil)
	if err != nil || !ok {
		return false, err
	}

	if rules := r.model.meta.Rules; len(rules) > 0 {
		v := validation.New(r.attrs.Map(), rules, r.model.meta.Messages)
		if !v.Passes() {
			r.errors = v.Errors()
		}
	}

	// afterValidate 处理器可通过 AddError 追加错误
	if _, err := r.Trigger(ctx, EventAfterValidate, nil); err != nil {
		return false, err
	}
	return !r.HasErrors(), nil
}

// Errors 最近一次 Validate 的错误
func (r *Record) Errors() map[string][]string {
	out := make(map[string][]string, len(r.errors))
	for k, v := range r.errors {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// HasErrors 最近一次 Validate 是否有错误
func (r *Record) HasErrors() bool { return len(r.errors) > 0 }

// AddError 手动追加错误，常用于 afterValidate 处理器
func (r *Record) AddError(attribute, message string) {
	if r.errors == nil {
		r.errors = map[string][]string{}
	}
	r.errors[attribute] = append(r.errors[attribute], message)
}

// FirstError 指定属性（未指定时为按名称排序的第一个出错属性）的第一条错误
func (r *Record) FirstError(attribute ...string) string {
	if len(attribute) > 0 {
		if msgs := r.errors[attribute[0]]; len(msgs) > 0 {
			return msgs[0]
		}
		return ""
	}
	keys := make([]string, 0, len(r.errors))
	for k := range r.errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(r.errors[k]) > 0 {
			return r.errors[k][0]
		}
	}
	return ""
}
