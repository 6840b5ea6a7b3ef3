// Package behaviors 提供可挂载到 activerecord.Record 的内置行为：
// 时间戳、软删除、UUID/ULID 主键填充、slug 生成以及变更事件发布。
//
// 行为通过 Meta.Behaviors 按记录实例创建，每条记录持有独立的行为对象。
package behaviors

import (
	"slices"

	"arcompat/data/activerecord"
	"arcompat/errors"
)

// hasColumn 记录已有该属性，或模型声明了该列
func hasColumn(r *activerecord.Record, name string) bool {
	if r.HasAttribute(name) {
		return true
	}
	return slices.Contains(r.Model().Meta().Columns, name)
}

func ownerOf(b activerecord.Behavior) (*activerecord.Record, error) {
	if owner := b.Owner(); owner != nil {
		return owner, nil
	}
	return nil, errors.NewError(errors.ErrCodeConfiguration, "行为未挂载到记录")
}
