package activerecord

import (
	"context"
	"iter"

	"arcompat/data/query"
)

// ActiveQuery 以模型为目标的查询，结果水合为 Record（或 AsArray 时为原始行）
type ActiveQuery struct {
	model *Model
	q     *query.Query

	with        []string
	asArray     bool
	indexBy     string
	indexByFunc func(row map[string]any) string
}

func newActiveQuery(m *Model) *ActiveQuery {
	return &ActiveQuery{model: m, q: m.query()}
}

// Query 返回底层查询规格
func (aq *ActiveQuery) Query() *query.Query { return aq.q }

// Model 返回目标模型
func (aq *ActiveQuery) Model() *Model { return aq.model }

// Clone 深拷贝
func (aq *ActiveQuery) Clone() *ActiveQuery {
	c := *aq
	c.q = aq.q.Clone()
	c.with = append([]string(nil), aq.with...)
	return &c
}

func (aq *ActiveQuery) Select(columns ...string) *ActiveQuery    { aq.q.Select(columns...); return aq }
func (aq *ActiveQuery) AddSelect(columns ...string) *ActiveQuery { aq.q.AddSelect(columns...); return aq }
func (aq *ActiveQuery) Distinct(on bool) *ActiveQuery            { aq.q.Distinct(on); return aq }
func (aq *ActiveQuery) From(table string) *ActiveQuery           { aq.q.From(table); return aq }

func (aq *ActiveQuery) Where(c query.Condition) *ActiveQuery    { aq.q.Where(c); return aq }
func (aq *ActiveQuery) AndWhere(c query.Condition) *ActiveQuery { aq.q.AndWhere(c); return aq }
func (aq *ActiveQuery) OrWhere(c query.Condition) *ActiveQuery  { aq.q.OrWhere(c); return aq }

func (aq *ActiveQuery) WhereEq(column string, value any) *ActiveQuery {
	aq.q.WhereEq(column, value)
	return aq
}

func (aq *ActiveQuery) WhereMap(m map[string]any) *ActiveQuery {
	aq.q.WhereMap(m)
	return aq
}

func (aq *ActiveQuery) WhereRaw(sql string, args ...any) *ActiveQuery {
	aq.q.WhereRaw(sql, args...)
	return aq
}

func (aq *ActiveQuery) WhereOp(op, column string, values ...any) *ActiveQuery {
	aq.q.WhereOp(op, column, values...)
	return aq
}

func (aq *ActiveQuery) WhereIn(column string, values ...any) *ActiveQuery {
	aq.q.WhereIn(column, values...)
	return aq
}

func (aq *ActiveQuery) WhereNotIn(column string, values ...any) *ActiveQuery {
	aq.q.WhereNotIn(column, values...)
	return aq
}

func (aq *ActiveQuery) WhereBetween(column string, from, to any) *ActiveQuery {
	aq.q.WhereBetween(column, from, to)
	return aq
}

func (aq *ActiveQuery) WhereLike(column, pattern string) *ActiveQuery {
	aq.q.WhereLike(column, pattern)
	return aq
}

func (aq *ActiveQuery) WhereNull(column string) *ActiveQuery    { aq.q.WhereNull(column); return aq }
func (aq *ActiveQuery) WhereNotNull(column string) *ActiveQuery { aq.q.WhereNotNull(column); return aq }

func (aq *ActiveQuery) Join(kind, table, on string, args ...any) *ActiveQuery {
	aq.q.Join(kind, table, on, args...)
	return aq
}

func (aq *ActiveQuery) InnerJoin(table, on string, args ...any) *ActiveQuery {
	aq.q.InnerJoin(table, on, args...)
	return aq
}

func (aq *ActiveQuery) LeftJoin(table, on string, args ...any) *ActiveQuery {
	aq.q.LeftJoin(table, on, args...)
	return aq
}

func (aq *ActiveQuery) RightJoin(table, on string, args ...any) *ActiveQuery {
	aq.q.RightJoin(table, on, args...)
	return aq
}

func (aq *ActiveQuery) GroupBy(columns ...string) *ActiveQuery  { aq.q.GroupBy(columns...); return aq }
func (aq *ActiveQuery) Having(c query.Condition) *ActiveQuery   { aq.q.Having(c); return aq }
func (aq *ActiveQuery) OrHaving(c query.Condition) *ActiveQuery { aq.q.OrHaving(c); return aq }

// OrderBy 替换排序，如 "age DESC, name"
func (aq *ActiveQuery) OrderBy(spec string) *ActiveQuery { aq.q.OrderBy(spec); return aq }

func (aq *ActiveQuery) AddOrderBy(column, dir string) *ActiveQuery {
	aq.q.AddOrderBy(column, dir)
	return aq
}

func (aq *ActiveQuery) OrderByColumns(orders ...query.Order) *ActiveQuery {
	aq.q.OrderByColumns(orders...)
	return aq
}

func (aq *ActiveQuery) Limit(n int) *ActiveQuery          { aq.q.Limit(n); return aq }
func (aq *ActiveQuery) Offset(n int) *ActiveQuery         { aq.q.Offset(n); return aq }
func (aq *ActiveQuery) Page(page, perPage int) *ActiveQuery { aq.q.Page(page, perPage); return aq }

// With 声明要预加载的关联；All/One/Batch 在水合后为每个关联发起一次额外查询。
// 未在模型中声明的关联名会被忽略并记录警告。
func (aq *ActiveQuery) With(relations ...string) *ActiveQuery {
	aq.with = append(aq.with, relations...)
	return aq
}

// AsArray 结果以原始行返回（影响 Fetch）
func (aq *ActiveQuery) AsArray(on bool) *ActiveQuery {
	aq.asArray = on
	return aq
}

// IndexBy 结果按列值建立索引；同键的后一行覆盖前一行
func (aq *ActiveQuery) IndexBy(column string) *ActiveQuery {
	aq.indexBy = column
	aq.indexByFunc = nil
	return aq
}

// IndexByFunc 结果按计算出的键建立索引；同键的后一行覆盖前一行
func (aq *ActiveQuery) IndexByFunc(fn func(row map[string]any) string) *ActiveQuery {
	aq.indexByFunc = fn
	aq.indexBy = ""
	return aq
}

func (aq *ActiveQuery) indexed() bool { return aq.indexBy != "" || aq.indexByFunc != nil }

func (aq *ActiveQuery) key(row map[string]any) string {
	if aq.indexByFunc != nil {
		return aq.indexByFunc(row)
	}
	return query.KeyString(row[aq.indexBy])
}

// All 返回全部记录；无结果时返回空切片
func (aq *ActiveQuery) All(ctx context.Context) ([]*Record, error) {
	cols, rows, err := aq.q.Rows(ctx)
	if err != nil {
		return nil, err
	}
	return aq.populate(ctx, cols, rows)
}

func (aq *ActiveQuery) populate(ctx context.Context, cols []string, rows []query.Row) ([]*Record, error) {
	records := make([]*Record, len(rows))
	for i, row := range rows {
		records[i] = aq.model.hydrate(cols, row)
	}
	if len(records) == 0 {
		return records, nil
	}
	for _, name := range aq.with {
		if err := eagerLoad(ctx, aq.model, records, name); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// One 返回第一条记录；无结果时返回 nil, nil
func (aq *ActiveQuery) One(ctx context.Context) (*Record, error) {
	c := aq.Clone()
	c.q.Limit(1)
	records, err := c.All(ctx)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// AllArray 以原始行返回全部结果
func (aq *ActiveQuery) AllArray(ctx context.Context) ([]query.Row, error) {
	return aq.q.All(ctx)
}

// OneArray 以原始行返回第一条；无结果时为 nil
func (aq *ActiveQuery) OneArray(ctx context.Context) (query.Row, error) {
	return aq.q.One(ctx)
}

// Indexed 按 IndexBy/IndexByFunc 建立索引的记录
func (aq *ActiveQuery) Indexed(ctx context.Context) (map[string]*Record, error) {
	records, err := aq.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Record, len(records))
	for _, rec := range records {
		out[aq.key(rec.attrs.values)] = rec
	}
	return out, nil
}

// IndexedArray 按 IndexBy/IndexByFunc 建立索引的原始行
func (aq *ActiveQuery) IndexedArray(ctx context.Context) (map[string]query.Row, error) {
	rows, err := aq.AllArray(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]query.Row, len(rows))
	for _, row := range rows {
		out[aq.key(row)] = row
	}
	return out, nil
}

// Fetch 按 AsArray 与 IndexBy 设置返回结果：
// []*Record、map[string]*Record、[]query.Row 或 map[string]query.Row
func (aq *ActiveQuery) Fetch(ctx context.Context) (any, error) {
	switch {
	case aq.asArray && aq.indexed():
		return aq.IndexedArray(ctx)
	case aq.asArray:
		return aq.AllArray(ctx)
	case aq.indexed():
		return aq.Indexed(ctx)
	}
	return aq.All(ctx)
}

func (aq *ActiveQuery) Count(ctx context.Context) (int64, error) { return aq.q.Count(ctx) }
func (aq *ActiveQuery) Exists(ctx context.Context) (bool, error) { return aq.q.Exists(ctx) }
func (aq *ActiveQuery) Scalar(ctx context.Context) (any, error)  { return aq.q.Scalar(ctx) }
func (aq *ActiveQuery) Column(ctx context.Context) ([]any, error) { return aq.q.Column(ctx) }

func (aq *ActiveQuery) Sum(ctx context.Context, column string) (float64, error) {
	return aq.q.Sum(ctx, column)
}

func (aq *ActiveQuery) Avg(ctx context.Context, column string) (float64, error) {
	return aq.q.Avg(ctx, column)
}

func (aq *ActiveQuery) Max(ctx context.Context, column string) (any, error) {
	return aq.q.Max(ctx, column)
}

func (aq *ActiveQuery) Min(ctx context.Context, column string) (any, error) {
	return aq.q.Min(ctx, column)
}

func (aq *ActiveQuery) Pluck(ctx context.Context, column string) ([]any, error) {
	return aq.q.Pluck(ctx, column)
}

// Batch 按页水合记录，每页各自预加载关联；语义同 query.Query.Batch
func (aq *ActiveQuery) Batch(ctx context.Context, size int) iter.Seq2[[]*Record, error] {
	return func(yield func([]*Record, error) bool) {
		for page, err := range aq.q.Pages(ctx, size) {
			if err != nil {
				yield(nil, err)
				return
			}
			records, err := aq.populate(ctx, page.Columns, page.Rows)
			if !yield(records, err) || err != nil {
				return
			}
		}
	}
}

// Each 逐条迭代记录，底层按 size 分页
func (aq *ActiveQuery) Each(ctx context.Context, size int) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		for page, err := range aq.Batch(ctx, size) {
			if err != nil {
				yield(nil, err)
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

// BatchArray 按页返回原始行
func (aq *ActiveQuery) BatchArray(ctx context.Context, size int) iter.Seq2[[]query.Row, error] {
	return aq.q.Batch(ctx, size)
}
