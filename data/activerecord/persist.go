package activerecord

import (
	"context"

	dbsql "arcompat/data/db/sql"
	"arcompat/errors"
	"arcompat/logging"
)

// Save 校验后保存，新记录插入、已持久化记录更新。
//
// 校验失败、事件被取消、已删除的记录均返回 false, nil；
// 执行故障返回 error，此时属性快照保持不变，可以安全重试。
func (r *Record) Save(ctx context.Context) (bool, error) {
	return r.save(ctx, true)
}

// SaveWithoutValidation 跳过校验直接保存
func (r *Record) SaveWithoutValidation(ctx context.Context) (bool, error) {
	return r.save(ctx, false)
}

func (r *Record) save(ctx context.Context, validate bool) (bool, error) {
	if r.deleted {
		r.model.log().Warn(ctx, "记录已删除，忽略保存", logging.Any("pk", r.PrimaryKey()))
		return false, nil
	}
	if validate {
		if ok, err := r.Validate(ctx); err != nil || !ok {
			return false, err
		}
	}

	ok, err := r.Trigger(ctx, EventBeforeSave, nil)
	if err != nil || !ok {
		return false, err
	}

	if r.isNew {
		ok, err = r.insert(ctx)
	} else {
		ok, err = r.update(ctx)
	}
	// after 事件失败时行已写入，ok 为 true
	if err != nil || !ok {
		return ok, err
	}

	if _, err := r.Trigger(ctx, EventAfterSave, nil); err != nil {
		return true, err
	}
	return true, nil
}

func (r *Record) insert(ctx context.Context) (bool, error) {
	ok, err := r.Trigger(ctx, EventBeforeInsert, nil)
	if err != nil || !ok {
		return false, err
	}

	pk := r.model.meta.PrimaryKey
	var cols []string
	var vals []any
	for _, k := range r.attrs.Keys() {
		v, _ := r.attrs.Get(k)
		// 空主键交给数据库生成
		if k == pk && isEmptyValue(v) {
			continue
		}
		cols = append(cols, k)
		vals = append(vals, v)
	}

	db, err := r.model.DB(ctx)
	if err != nil {
		return false, err
	}
	id, err := dbsql.New(db).InsertInto(r.model.resolvedTable()).
		Columns(cols...).Values(vals...).
		ExecGetID(ctx, pk)
	if err != nil {
		return false, r.wrap(ctx, err, "activerecord.insert")
	}

	// 行已写入，驱动未返回生成主键时同样标记为已持久化
	if current := r.PrimaryKey(); isEmptyValue(current) {
		if isEmptyValue(id) {
			r.model.log().Warn(ctx, "插入成功但未获得生成的主键", logging.String("table", r.model.meta.Table))
		} else {
			r.attrs.Set(pk, id)
		}
	}
	r.isNew = false
	r.old = r.attrs.Clone()

	if _, err := r.Trigger(ctx, EventAfterInsert, nil); err != nil {
		return true, err
	}
	return true, nil
}

func (r *Record) update(ctx context.Context) (bool, error) {
	ok, err := r.Trigger(ctx, EventBeforeUpdate, r.DirtyAttributes())
	if err != nil || !ok {
		return false, err
	}

	pk := r.model.meta.PrimaryKey
	// 主键本身被修改时按原值定位
	pkValue := r.PrimaryKey()
	if r.old != nil {
		if v, ok := r.old.Get(pk); ok {
			pkValue = v
		}
	}
	if isEmptyValue(pkValue) {
		return false, nil
	}

	// beforeUpdate 处理器可能修改了属性，重新计算
	dirty := r.DirtyAttributes()
	if len(dirty) == 0 {
		return true, nil
	}

	db, err := r.model.DB(ctx)
	if err != nil {
		return false, err
	}
	s := dbsql.New(db)
	_, err = s.Update(r.model.resolvedTable()).
		SetMap(dirty).
		Where(s.Dialect().QuoteIdentifier(pk)+" = ?", pkValue).
		Exec(ctx)
	if err != nil {
		return false, r.wrap(ctx, err, "activerecord.update")
	}

	r.old = r.attrs.Clone()

	if _, err := r.Trigger(ctx, EventAfterUpdate, dirty); err != nil {
		return true, err
	}
	return true, nil
}

// Delete 按主键删除。
//
// 主键为空或记录未插入时不访问数据库直接返回 false；
// beforeDelete 被取消（如软删除行为）时返回 false，行保留。
func (r *Record) Delete(ctx context.Context) (bool, error) {
	pkValue := r.PrimaryKey()
	if r.isNew || isEmptyValue(pkValue) {
		return false, nil
	}

	ok, err := r.Trigger(ctx, EventBeforeDelete, nil)
	if err != nil || !ok {
		return false, err
	}

	db, err := r.model.DB(ctx)
	if err != nil {
		return false, err
	}
	s := dbsql.New(db)
	res, err := s.DeleteFrom(r.model.resolvedTable()).
		Where(s.Dialect().QuoteIdentifier(r.model.meta.PrimaryKey)+" = ?", pkValue).
		Exec(ctx)
	if err != nil {
		return false, r.wrap(ctx, err, "activerecord.delete")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, r.wrap(ctx, err, "activerecord.delete")
	}
	if affected == 0 {
		return false, nil
	}

	r.deleted = true
	if _, err := r.Trigger(ctx, EventAfterDelete, nil); err != nil {
		return true, err
	}
	return true, nil
}

// Refresh 按主键重新加载，替换当前与原始两份属性；主键为空或行已不存在时返回 false
func (r *Record) Refresh(ctx context.Context) (bool, error) {
	pkValue := r.PrimaryKey()
	if isEmptyValue(pkValue) {
		return false, nil
	}
	fresh, err := r.model.FindOne(ctx, pkValue)
	if err != nil || fresh == nil {
		return false, err
	}
	r.attrs = fresh.attrs
	r.old = fresh.old
	r.isNew = false
	r.related = nil
	return true, nil
}

func (r *Record) wrap(ctx context.Context, err error, op string) error {
	return errors.WrapDatabaseError(ctx, err, op,
		logging.Component("activerecord"),
		logging.String("table", r.model.meta.Table),
		logging.Any("pk", r.PrimaryKey()))
}
