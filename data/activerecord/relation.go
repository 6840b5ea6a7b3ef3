package activerecord

import (
	"context"

	"arcompat/data/query"
	"arcompat/errors"
	"arcompat/logging"
)

// RelationKind 关联类型
type RelationKind string

const (
	RelationHasOne    RelationKind = "has_one"
	RelationHasMany   RelationKind = "has_many"
	RelationBelongsTo RelationKind = "belongs_to"
)

// Relation 关联声明。
//
// HasOne/HasMany：Target.ForeignKey = 本记录.LocalKey（默认本模型主键）。
// BelongsTo：本记录.ForeignKey = Target.OwnerKey（默认目标模型主键）。
type Relation struct {
	Kind       RelationKind
	Target     *Model
	ForeignKey string
	LocalKey   string
	OwnerKey   string
}

// HasOne 声明一对一关联
func HasOne(target *Model, foreignKey string, localKey ...string) Relation {
	return Relation{Kind: RelationHasOne, Target: target, ForeignKey: foreignKey, LocalKey: first(localKey)}
}

// HasMany 声明一对多关联
func HasMany(target *Model, foreignKey string, localKey ...string) Relation {
	return Relation{Kind: RelationHasMany, Target: target, ForeignKey: foreignKey, LocalKey: first(localKey)}
}

// BelongsTo 声明从属关联
func BelongsTo(target *Model, foreignKey string, ownerKey ...string) Relation {
	return Relation{Kind: RelationBelongsTo, Target: target, ForeignKey: foreignKey, OwnerKey: first(ownerKey)}
}

func first(s []string) string {
	if len(s) > 0 {
		return s[0]
	}
	return ""
}

// sourceKey 本记录上用于匹配的列
func (rel Relation) sourceKey(owner *Model) string {
	if rel.Kind == RelationBelongsTo {
		return rel.ForeignKey
	}
	if rel.LocalKey != "" {
		return rel.LocalKey
	}
	return owner.meta.PrimaryKey
}

// targetKey 目标模型上用于匹配的列
func (rel Relation) targetKey() string {
	if rel.Kind != RelationBelongsTo {
		return rel.ForeignKey
	}
	if rel.OwnerKey != "" {
		return rel.OwnerKey
	}
	return rel.Target.meta.PrimaryKey
}

func (rel Relation) check(name string) error {
	if rel.Target == nil {
		return errors.Errorf(errors.ErrCodeConfiguration, "关联 %s 缺少目标模型", name)
	}
	if rel.ForeignKey == "" {
		return errors.Errorf(errors.ErrCodeConfiguration, "关联 %s 缺少外键", name)
	}
	return nil
}

// HasOne 查找 target 中 foreignKey 等于本记录 localKey（默认主键）的第一条；本地值为空时返回 nil
func (r *Record) HasOne(ctx context.Context, target *Model, foreignKey string, localKey ...string) (*Record, error) {
	rel := HasOne(target, foreignKey, localKey...)
	v := r.GetAttribute(rel.sourceKey(r.model))
	if isEmptyValue(v) {
		return nil, nil
	}
	return target.Find().WhereEq(foreignKey, v).One(ctx)
}

// HasMany 查找 target 中 foreignKey 等于本记录 localKey（默认主键）的全部记录
func (r *Record) HasMany(ctx context.Context, target *Model, foreignKey string, localKey ...string) ([]*Record, error) {
	rel := HasMany(target, foreignKey, localKey...)
	v := r.GetAttribute(rel.sourceKey(r.model))
	if isEmptyValue(v) {
		return []*Record{}, nil
	}
	return target.Find().WhereEq(foreignKey, v).All(ctx)
}

// BelongsTo 查找 target 中 ownerKey（默认目标主键）等于本记录 foreignKey 的记录
func (r *Record) BelongsTo(ctx context.Context, target *Model, foreignKey string, ownerKey ...string) (*Record, error) {
	rel := BelongsTo(target, foreignKey, ownerKey...)
	v := r.GetAttribute(foreignKey)
	if isEmptyValue(v) {
		return nil, nil
	}
	return target.Find().WhereEq(rel.targetKey(), v).One(ctx)
}

// Related 返回已声明关联的结果：预加载过的直接返回，否则单独查询一次（不缓存）。
// HasMany 返回 []*Record，HasOne/BelongsTo 返回 *Record（可能为 nil）。
func (r *Record) Related(ctx context.Context, name string) (any, error) {
	if v, ok := r.related[name]; ok {
		return v, nil
	}
	rel, ok := r.model.Relation(name)
	if !ok {
		return nil, errors.Errorf(errors.ErrCodeConfiguration, "模型 %s 未声明关联 %s", r.model.meta.Table, name)
	}
	if err := rel.check(name); err != nil {
		return nil, err
	}
	switch rel.Kind {
	case RelationHasMany:
		return r.HasMany(ctx, rel.Target, rel.ForeignKey, rel.sourceKey(r.model))
	case RelationHasOne:
		return r.HasOne(ctx, rel.Target, rel.ForeignKey, rel.sourceKey(r.model))
	default:
		return r.BelongsTo(ctx, rel.Target, rel.ForeignKey, rel.targetKey())
	}
}

// RelatedOne Related 的单记录形式
func (r *Record) RelatedOne(ctx context.Context, name string) (*Record, error) {
	v, err := r.Related(ctx, name)
	if err != nil {
		return nil, err
	}
	rec, _ := v.(*Record)
	return rec, nil
}

// RelatedMany Related 的多记录形式
func (r *Record) RelatedMany(ctx context.Context, name string) ([]*Record, error) {
	v, err := r.Related(ctx, name)
	if err != nil {
		return nil, err
	}
	recs, _ := v.([]*Record)
	return recs, nil
}

// IsRelationPopulated 关联是否已预加载
func (r *Record) IsRelationPopulated(name string) bool {
	_, ok := r.related[name]
	return ok
}

func (r *Record) populate(name string, v any) {
	if r.related == nil {
		r.related = map[string]any{}
	}
	r.related[name] = v
}

// eagerLoad 为 records 预加载 name 关联，每个关联只发起一次 IN 查询
func eagerLoad(ctx context.Context, owner *Model, records []*Record, name string) error {
	rel, ok := owner.Relation(name)
	if !ok {
		owner.log().Warn(ctx, "忽略未声明的预加载关联", logging.String("relation", name))
		return nil
	}
	if err := rel.check(name); err != nil {
		return err
	}

	srcKey := rel.sourceKey(owner)
	var keys []any
	seen := map[string]bool{}
	for _, rec := range records {
		v := rec.GetAttribute(srcKey)
		if isEmptyValue(v) {
			continue
		}
		if k := query.KeyString(v); !seen[k] {
			seen[k] = true
			keys = append(keys, v)
		}
	}

	grouped := map[string][]*Record{}
	if len(keys) > 0 {
		children, err := rel.Target.Find().WhereIn(rel.targetKey(), keys...).All(ctx)
		if err != nil {
			return err
		}
		for _, child := range children {
			k := query.KeyString(child.GetAttribute(rel.targetKey()))
			grouped[k] = append(grouped[k], child)
		}
	}

	for _, rec := range records {
		matched := grouped[query.KeyString(rec.GetAttribute(srcKey))]
		if isEmptyValue(rec.GetAttribute(srcKey)) {
			matched = nil
		}
		if rel.Kind == RelationHasMany {
			if matched == nil {
				matched = []*Record{}
			}
			rec.populate(name, matched)
			continue
		}
		var one *Record
		if len(matched) > 0 {
			one = matched[0]
		}
		rec.populate(name, one)
	}
	return nil
}
