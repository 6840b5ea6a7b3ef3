package activerecord

import (
	"context"
	"sort"

	dbsql "arcompat/data/db/sql"
	"arcompat/data/query"
	"arcompat/errors"
	"arcompat/logging"
)

// UpdateAll 按条件批量更新，不触发记录事件；返回影响行数
func (m *Model) UpdateAll(ctx context.Context, values map[string]any, cond query.Condition) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	where, args, err := cond.Build()
	if err != nil {
		return 0, err
	}
	db, err := m.DB(ctx)
	if err != nil {
		return 0, err
	}
	res, err := dbsql.New(db).Update(m.resolvedTable()).SetMap(values).Where(where, args...).Exec(ctx)
	return m.affected(ctx, res, err, "activerecord.update_all")
}

// UpdateAllCounters 按条件对计数列做增量更新，如 {"views": 1, "stock": -2}
func (m *Model) UpdateAllCounters(ctx context.Context, counters map[string]int64, cond query.Condition) (int64, error) {
	if len(counters) == 0 {
		return 0, nil
	}
	where, args, err := cond.Build()
	if err != nil {
		return 0, err
	}
	db, err := m.DB(ctx)
	if err != nil {
		return 0, err
	}

	s := dbsql.New(db)
	b := s.Update(m.resolvedTable())
	cols := make([]string, 0, len(counters))
	for col := range counters {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		if err := dbsql.CheckIdentifier("计数列", col); err != nil {
			return 0, err
		}
		q := s.Dialect().QuoteIdentifier(col)
		b.SetExpr(q+" = "+q+" + ?", counters[col])
	}
	res, err := b.Where(where, args...).Exec(ctx)
	return m.affected(ctx, res, err, "activerecord.update_counters")
}

// DeleteAll 按条件批量删除，不触发记录事件；空条件删除整表
func (m *Model) DeleteAll(ctx context.Context, cond query.Condition) (int64, error) {
	where, args, err := cond.Build()
	if err != nil {
		return 0, err
	}
	db, err := m.DB(ctx)
	if err != nil {
		return 0, err
	}
	res, err := dbsql.New(db).DeleteFrom(m.resolvedTable()).Where(where, args...).Exec(ctx)
	return m.affected(ctx, res, err, "activerecord.delete_all")
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func (m *Model) affected(ctx context.Context, res rowsAffecter, err error, op string) (int64, error) {
	if err == nil {
		var n int64
		if n, err = res.RowsAffected(); err == nil {
			return n, nil
		}
	}
	return 0, errors.WrapDatabaseError(ctx, err, op,
		logging.Component("activerecord"),
		logging.String("table", m.meta.Table))
}
