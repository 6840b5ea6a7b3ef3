package query

import (
	"strings"

	"arcompat/data/db/connection"
	"arcompat/data/db/dialect"
	dbsql "arcompat/data/db/sql"
	"arcompat/errors"
)

// Row 一行结果，列名→值
type Row = map[string]any

// Order 排序项
type Order struct {
	Column string
	Desc   bool
	// Raw 为 true 时 Column 作为表达式原样输出（如 "LENGTH(name)"）
	Raw bool
}

// Asc 升序排序项
func Asc(column string) Order { return Order{Column: column} }

// Desc 降序排序项
func Desc(column string) Order { return Order{Column: column, Desc: true} }

type join struct {
	kind  string
	table string
	on    string
	args  []any
}

// Query 查询规格。
//
// 构建方法原地修改并返回自身以便链式调用；需要保留原规格时先 Clone。
// 终结操作每次调用各发起一次数据库往返，不做缓存。
type Query struct {
	resolver connection.Resolver
	conn     string

	from     string
	selects  []string
	distinct bool
	joins    []join
	where    Condition
	groupBy  []string
	having   Condition
	orders   []Order
	tieBreak []string
	limit    int
	offset   int
}

// New 创建空查询
func New() *Query {
	return &Query{}
}

// Table 创建以 table 为数据源的查询
func Table(table string) *Query {
	return New().From(table)
}

// Using 指定连接解析器，nil 表示进程级连接表
func (q *Query) Using(r connection.Resolver) *Query {
	q.resolver = r
	return q
}

// On 指定连接名，"" 表示默认连接
func (q *Query) On(conn string) *Query {
	q.conn = conn
	return q
}

// ConnectionName 返回连接名
func (q *Query) ConnectionName() string { return q.conn }

// Resolver 返回连接解析器
func (q *Query) Resolver() connection.Resolver {
	if q.resolver == nil {
		return connection.Default()
	}
	return q.resolver
}

// From 数据源表，可带别名："users u"、"users AS u"、"{{%users}}"
func (q *Query) From(table string) *Query {
	q.from = strings.TrimSpace(table)
	return q
}

// TableName 返回数据源表
func (q *Query) TableName() string { return q.from }

// Select 替换选择列
func (q *Query) Select(columns ...string) *Query {
	q.selects = append([]string(nil), columns...)
	return q
}

// AddSelect 追加选择列
func (q *Query) AddSelect(columns ...string) *Query {
	q.selects = append(q.selects, columns...)
	return q
}

// Distinct SELECT DISTINCT
func (q *Query) Distinct(on bool) *Query {
	q.distinct = on
	return q
}

// Where 以 AND 追加条件
func (q *Query) Where(c Condition) *Query {
	q.where = and(q.where, c)
	return q
}

// AndWhere 同 Where
func (q *Query) AndWhere(c Condition) *Query {
	return q.Where(c)
}

// OrWhere 将已累积的条件整体与 c 做 OR
func (q *Query) OrWhere(c Condition) *Query {
	q.where = or(q.where, c)
	return q
}

func (q *Query) WhereEq(column string, value any) *Query { return q.Where(Equals(column, value)) }
func (q *Query) WhereMap(m map[string]any) *Query        { return q.Where(Hash(m)) }
func (q *Query) WhereRaw(sql string, args ...any) *Query { return q.Where(Raw(sql, args...)) }
func (q *Query) WhereOp(op, column string, values ...any) *Query {
	return q.Where(Op(op, column, values...))
}
func (q *Query) WhereIn(column string, values ...any) *Query {
	return q.Where(In(column, values...))
}
func (q *Query) WhereNotIn(column string, values ...any) *Query {
	return q.Where(NotIn(column, values...))
}
func (q *Query) WhereBetween(column string, from, to any) *Query {
	return q.Where(Between(column, from, to))
}
func (q *Query) WhereLike(column, pattern string) *Query { return q.Where(Like(column, pattern)) }
func (q *Query) WhereNull(column string) *Query          { return q.Where(IsNull(column)) }
func (q *Query) WhereNotNull(column string) *Query       { return q.Where(IsNotNull(column)) }

// WhereCondition 返回当前累积的根条件
func (q *Query) WhereCondition() Condition { return q.where }

// Join 追加连接；kind 为 INNER/LEFT/RIGHT/CROSS，on 为原始片段
func (q *Query) Join(kind, table, on string, args ...any) *Query {
	q.joins = append(q.joins, join{kind: kind, table: table, on: on, args: args})
	return q
}

func (q *Query) InnerJoin(table, on string, args ...any) *Query {
	return q.Join("INNER", table, on, args...)
}
func (q *Query) LeftJoin(table, on string, args ...any) *Query {
	return q.Join("LEFT", table, on, args...)
}
func (q *Query) RightJoin(table, on string, args ...any) *Query {
	return q.Join("RIGHT", table, on, args...)
}

// GroupBy 追加分组列
func (q *Query) GroupBy(columns ...string) *Query {
	q.groupBy = append(q.groupBy, columns...)
	return q
}

// Having 以 AND 追加 HAVING 条件
func (q *Query) Having(c Condition) *Query {
	q.having = and(q.having, c)
	return q
}

// OrHaving 以 OR 追加 HAVING 条件
func (q *Query) OrHaving(c Condition) *Query {
	q.having = or(q.having, c)
	return q
}

// OrderBy 解析 "col1 ASC, col2 DESC" 并替换现有排序；未知方向按升序处理
func (q *Query) OrderBy(spec string) *Query {
	q.orders = ParseOrder(spec)
	return q
}

// AddOrderBy 追加一个排序项，dir 为 asc/desc（大小写不敏感），其它值按升序
func (q *Query) AddOrderBy(column, dir string) *Query {
	q.orders = append(q.orders, Order{Column: column, Desc: strings.EqualFold(strings.TrimSpace(dir), "desc")})
	return q
}

// OrderByColumns 以有序的排序项替换现有排序
func (q *Query) OrderByColumns(orders ...Order) *Query {
	q.orders = append([]Order(nil), orders...)
	return q
}

// TieBreaker 设置排序并列时追加的升序列（通常为主键）。
// 仅在已有排序、未含该列且没有 GROUP BY/DISTINCT 时生效，使并列行按插入顺序稳定返回。
func (q *Query) TieBreaker(columns ...string) *Query {
	q.tieBreak = append([]string(nil), columns...)
	return q
}

// Orders 返回排序项副本
func (q *Query) Orders() []Order {
	return append([]Order(nil), q.orders...)
}

// Limit 设置 LIMIT，n <= 0 表示不限制
func (q *Query) Limit(n int) *Query {
	q.limit = max(n, 0)
	return q
}

// Offset 设置 OFFSET，n <= 0 表示从头开始
func (q *Query) Offset(n int) *Query {
	q.offset = max(n, 0)
	return q
}

// Page 按页码（从 1 开始）设置 LIMIT/OFFSET
func (q *Query) Page(page, perPage int) *Query {
	if page < 1 {
		page = 1
	}
	return q.Limit(perPage).Offset((page - 1) * perPage)
}

func (q *Query) GetLimit() int  { return q.limit }
func (q *Query) GetOffset() int { return q.offset }

// Clone 深拷贝查询规格
func (q *Query) Clone() *Query {
	c := *q
	c.selects = append([]string(nil), q.selects...)
	c.joins = append([]join(nil), q.joins...)
	c.groupBy = append([]string(nil), q.groupBy...)
	c.orders = append([]Order(nil), q.orders...)
	c.tieBreak = append([]string(nil), q.tieBreak...)
	return &c
}

// ParseOrder 解析排序字符串
func ParseOrder(spec string) []Order {
	var out []Order
	for _, part := range strings.Split(spec, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		o := Order{}
		last := strings.ToLower(fields[len(fields)-1])
		if len(fields) > 1 && (last == "asc" || last == "desc") {
			o.Desc = last == "desc"
			fields = fields[:len(fields)-1]
		} else if len(fields) == 2 && dbsql.IsSafeIdentifier(fields[0]) {
			// "col sideways" 之类的未知方向
			fields = fields[:1]
		}
		o.Column = strings.Join(fields, " ")
		o.Raw = !dbsql.IsSafeIdentifier(o.Column)
		out = append(out, o)
	}
	return out
}

func and(root, c Condition) Condition {
	switch {
	case c.IsEmpty():
		return root
	case root.IsEmpty():
		return c
	case root.kind == kindAnd:
		children := append(append([]Condition(nil), root.children...), c)
		return Condition{kind: kindAnd, children: children}
	}
	return And(root, c)
}

func or(root, c Condition) Condition {
	switch {
	case c.IsEmpty():
		return root
	case root.IsEmpty():
		return c
	}
	return Or(root, c)
}

// Build 按方言渲染完整 SELECT
func (q *Query) Build(d dialect.Dialect, prefix string) (string, []any, error) {
	from, err := expandTable(q.from, prefix)
	if err != nil {
		return "", nil, err
	}

	cols := q.selects
	if len(cols) == 0 {
		cols = []string{"*"}
	}
	b := dbsql.NewWithDialect(nil, d).Select(cols...).From(from).Distinct(q.distinct)

	for _, j := range q.joins {
		table, err := expandTable(j.table, prefix)
		if err != nil {
			return "", nil, err
		}
		b.Join(j.kind, table, j.on, j.args...)
	}

	where, args, err := q.where.Build()
	if err != nil {
		return "", nil, err
	}
	b.Where(where, args...)

	b.GroupBy(q.groupBy...)

	having, hargs, err := q.having.Build()
	if err != nil {
		return "", nil, err
	}
	b.Having(having, hargs...)

	orderBy, err := renderOrders(q.stableOrders(from))
	if err != nil {
		return "", nil, err
	}
	b.OrderBy(orderBy).Limit(q.limit).Offset(q.offset)
	return b.Build()
}

// ToSQL 以通用方言渲染，便于调试与测试
func (q *Query) ToSQL() (string, []any, error) {
	return q.Build(dialect.New("unknown"), "")
}

// stableOrders 在排序末尾补上尚未出现的并列列
func (q *Query) stableOrders(from string) []Order {
	if len(q.orders) == 0 || len(q.tieBreak) == 0 || len(q.groupBy) > 0 || q.distinct {
		return q.orders
	}
	fields := strings.Fields(from)
	qualifier := fields[len(fields)-1]

	orders := append([]Order(nil), q.orders...)
	for _, col := range q.tieBreak {
		if hasOrder(orders, col, qualifier) {
			continue
		}
		if len(q.joins) > 0 && !strings.Contains(col, ".") {
			col = qualifier + "." + col
		}
		orders = append(orders, Asc(col))
	}
	return orders
}

func hasOrder(orders []Order, col, qualifier string) bool {
	bare := col[strings.LastIndex(col, ".")+1:]
	for _, o := range orders {
		if o.Raw {
			continue
		}
		c := strings.ToLower(o.Column)
		if c == strings.ToLower(col) || c == strings.ToLower(bare) || c == strings.ToLower(qualifier+"."+bare) {
			return true
		}
	}
	return false
}

func renderOrders(orders []Order) (string, error) {
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		if !o.Raw {
			if err := dbsql.CheckIdentifier("排序列", o.Column); err != nil {
				return "", err
			}
		}
		dir := " ASC"
		if o.Desc {
			dir = " DESC"
		}
		parts = append(parts, o.Column+dir)
	}
	return strings.Join(parts, ", "), nil
}

// expandTable 校验表名与别名，并展开 {{%name}} 前缀
func expandTable(table, prefix string) (string, error) {
	fields := strings.Fields(table)
	if len(fields) == 0 {
		return "", errors.NewError(errors.ErrCodeConfiguration, "查询缺少数据源表")
	}
	name := fields[0]
	if strings.HasPrefix(name, "{{") && strings.HasSuffix(name, "}}") {
		name = strings.TrimSuffix(strings.TrimPrefix(name, "{{"), "}}")
		if strings.HasPrefix(name, "%") {
			name = prefix + name[1:]
		}
	}
	if err := dbsql.CheckIdentifier("表名", name); err != nil {
		return "", err
	}

	alias := fields[1:]
	if len(alias) == 2 && strings.EqualFold(alias[0], "as") {
		alias = alias[1:]
	}
	switch len(alias) {
	case 0:
		return name, nil
	case 1:
		if err := dbsql.CheckIdentifier("表别名", alias[0]); err != nil {
			return "", err
		}
		return name + " " + alias[0], nil
	}
	return "", errors.Errorf(errors.ErrCodeConfiguration, "非法的表名: %q", table)
}
