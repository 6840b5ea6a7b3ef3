package query

import (
	"context"
	"fmt"
	"strconv"

	core "arcompat/data/db"
	"arcompat/data/db/dialect"
	dbsql "arcompat/data/db/sql"
	"arcompat/errors"
	"arcompat/logging"
)

// Handle 解析查询所用的数据库句柄（ctx 中的事务优先）
func (q *Query) Handle(ctx context.Context) (core.IDatabase, error) {
	return q.Resolver().Resolve(ctx, q.conn)
}

func (q *Query) render(ctx context.Context) (core.IDatabase, string, []any, error) {
	db, err := q.Handle(ctx)
	if err != nil {
		return nil, "", nil, err
	}
	sql, args, err := q.Build(dialect.FromDatabase(db), q.Resolver().TablePrefix(q.conn))
	if err != nil {
		return nil, "", nil, err
	}
	return db, sql, args, nil
}

func wrapErr(ctx context.Context, err error, op, sql string) error {
	return errors.WrapDatabaseError(ctx, err, op,
		logging.Component("query"),
		logging.String("sql", sql))
}

// Rows 执行查询，返回列顺序与全部行
func (q *Query) Rows(ctx context.Context) ([]string, []Row, error) {
	db, sql, args, err := q.render(ctx)
	if err != nil {
		return nil, nil, err
	}
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, nil, wrapErr(ctx, err, "query.all", sql)
	}
	cols, out, err := core.ScanMaps(rows)
	if err != nil {
		return nil, nil, wrapErr(ctx, err, "query.all", sql)
	}
	return cols, out, nil
}

// All 返回全部行；无结果时返回空切片
func (q *Query) All(ctx context.Context) ([]Row, error) {
	_, rows, err := q.Rows(ctx)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}

// One 返回第一行；无结果时返回 nil, nil
func (q *Query) One(ctx context.Context) (Row, error) {
	rows, err := q.Clone().Limit(1).All(ctx)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// scalar 执行查询并返回第一行第一列，无结果时为 nil
func (q *Query) scalar(ctx context.Context, op string) (any, error) {
	db, sql, args, err := q.render(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapErr(ctx, err, op, sql)
	}
	col, err := core.ScanColumn(rows)
	if err != nil {
		return nil, wrapErr(ctx, err, op, sql)
	}
	if len(col) == 0 {
		return nil, nil
	}
	return col[0], nil
}

// aggregate 去掉排序与分页后以 expr 作为唯一选择列；
// 存在 GROUP BY / DISTINCT 时包一层子查询以保证结果为单行
func (q *Query) aggregate(ctx context.Context, op, expr string) (any, error) {
	c := q.Clone()
	c.orders = nil
	c.limit, c.offset = 0, 0

	if len(c.groupBy) == 0 && !c.distinct {
		return c.Select(expr).scalar(ctx, op)
	}

	db, inner, args, err := c.render(ctx)
	if err != nil {
		return nil, err
	}
	sql := "SELECT " + expr + " FROM (" + inner + ") arcompat_sub"
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapErr(ctx, err, op, sql)
	}
	col, err := core.ScanColumn(rows)
	if err != nil {
		return nil, wrapErr(ctx, err, op, sql)
	}
	if len(col) == 0 {
		return nil, nil
	}
	return col[0], nil
}

// Count 统计满足条件的行数（忽略排序与分页）
func (q *Query) Count(ctx context.Context) (int64, error) {
	v, err := q.aggregate(ctx, "query.count", "COUNT(*)")
	if err != nil {
		return 0, err
	}
	return toInt64(v)
}

// Exists 使用 SELECT 1 ... LIMIT 1 探测是否存在满足条件的行
func (q *Query) Exists(ctx context.Context) (bool, error) {
	c := q.Clone()
	c.orders = nil
	v, err := c.Select("1").Limit(1).scalar(ctx, "query.exists")
	return v != nil, err
}

// Sum 求和，无数据时为 0
func (q *Query) Sum(ctx context.Context, column string) (float64, error) {
	return q.numericAggregate(ctx, "SUM", column)
}

// Avg 平均值，无数据时为 0
func (q *Query) Avg(ctx context.Context, column string) (float64, error) {
	return q.numericAggregate(ctx, "AVG", column)
}

// Max 最大值，无数据时为 nil
func (q *Query) Max(ctx context.Context, column string) (any, error) {
	if err := dbsql.CheckIdentifier("列名", column); err != nil {
		return nil, err
	}
	return q.aggregate(ctx, "query.max", "MAX("+column+")")
}

// Min 最小值，无数据时为 nil
func (q *Query) Min(ctx context.Context, column string) (any, error) {
	if err := dbsql.CheckIdentifier("列名", column); err != nil {
		return nil, err
	}
	return q.aggregate(ctx, "query.min", "MIN("+column+")")
}

func (q *Query) numericAggregate(ctx context.Context, fn, column string) (float64, error) {
	if err := dbsql.CheckIdentifier("列名", column); err != nil {
		return 0, err
	}
	v, err := q.aggregate(ctx, "query."+fn, fn+"("+column+")")
	if err != nil || v == nil {
		return 0, err
	}
	return toFloat64(v)
}

// Pluck 返回指定列的值列表
func (q *Query) Pluck(ctx context.Context, column string) ([]any, error) {
	if err := dbsql.CheckIdentifier("列名", column); err != nil {
		return nil, err
	}
	return q.Clone().Select(column).Column(ctx)
}

// PluckKeyed 返回 key 列→value 列的映射，重复 key 以后出现的行为准
func (q *Query) PluckKeyed(ctx context.Context, valueColumn, keyColumn string) (map[string]any, error) {
	rows, err := q.Clone().Select(valueColumn, keyColumn).All(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(rows))
	for _, r := range rows {
		out[KeyString(r[columnKey(keyColumn)])] = r[columnKey(valueColumn)]
	}
	return out, nil
}

// Value 返回第一行指定列的值；无结果时为 nil
func (q *Query) Value(ctx context.Context, column string) (any, error) {
	if err := dbsql.CheckIdentifier("列名", column); err != nil {
		return nil, err
	}
	return q.Clone().Select(column).Limit(1).scalar(ctx, "query.value")
}

// Column 返回每行第一列
func (q *Query) Column(ctx context.Context) ([]any, error) {
	db, sql, args, err := q.render(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapErr(ctx, err, "query.column", sql)
	}
	out, err := core.ScanColumn(rows)
	if err != nil {
		return nil, wrapErr(ctx, err, "query.column", sql)
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

// Scalar 返回第一行第一列；无结果时为 nil
func (q *Query) Scalar(ctx context.Context) (any, error) {
	return q.Clone().Limit(1).scalar(ctx, "query.scalar")
}

// columnKey 结果集中 "t.col" 的列名为 "col"
func columnKey(column string) string {
	for i := len(column) - 1; i >= 0; i-- {
		if column[i] == '.' {
			return column[i+1:]
		}
	}
	return column
}

// KeyString 将任意值转换为可用作映射键的字符串
func KeyString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	}
	return fmt.Sprint(v)
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	}
	return 0, errors.Errorf(errors.ErrCodeInternal, "无法转换为整数: %T", v)
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(x, 64)
	}
	return 0, errors.Errorf(errors.ErrCodeInternal, "无法转换为数值: %T", v)
}
