package sql

import (
	"context"
	"strings"

	core "arcompat/data/db"
	"arcompat/data/db/dialect"
)

type joinClause struct {
	kind  string
	table string
	on    string
	args  []any
}

type selectBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	cols     []string
	distinct bool
	table    string
	joins    []joinClause
	where    []string
	args     []any
	groupBy  []string
	having   []string
	havArgs  []any
	orderBy  string
	limit    int
	offset   int
	locking  string
}

func (b *selectBuilder) From(table string) ISelectBuilder {
	b.table = table
	return b
}

func (b *selectBuilder) Distinct(on bool) ISelectBuilder {
	b.distinct = on
	return b
}

// Join kind 为 INNER / LEFT / RIGHT / CROSS；table 可带别名，原样输出
func (b *selectBuilder) Join(kind, table, on string, args ...any) ISelectBuilder {
	if table == "" {
		return b
	}
	kind = strings.ToUpper(strings.TrimSpace(kind))
	if kind == "" {
		kind = "INNER"
	}
	b.joins = append(b.joins, joinClause{kind: kind, table: table, on: on, args: args})
	return b
}

func (b *selectBuilder) Where(cond string, args ...any) ISelectBuilder {
	if cond != "" {
		b.where = append(b.where, cond)
		b.args = append(b.args, args...)
	}
	return b
}

func (b *selectBuilder) And(cond string, args ...any) ISelectBuilder {
	return b.Where(cond, args...)
}

func (b *selectBuilder) Or(cond string, args ...any) ISelectBuilder {
	if cond == "" {
		return b
	}
	if len(b.where) == 0 {
		return b.Where(cond, args...)
	}
	b.where = []string{"(" + strings.Join(b.where, " AND ") + ") OR (" + cond + ")"}
	b.args = append(b.args, args...)
	return b
}

func (b *selectBuilder) GroupBy(cols ...string) ISelectBuilder {
	b.groupBy = append(b.groupBy, cols...)
	return b
}

func (b *selectBuilder) Having(cond string, args ...any) ISelectBuilder {
	if cond != "" {
		b.having = append(b.having, cond)
		b.havArgs = append(b.havArgs, args...)
	}
	return b
}

func (b *selectBuilder) OrderBy(expr string) ISelectBuilder {
	b.orderBy = expr
	return b
}

func (b *selectBuilder) Limit(n int) ISelectBuilder {
	b.limit = n
	return b
}

func (b *selectBuilder) Offset(n int) ISelectBuilder {
	b.offset = n
	return b
}

// ForUpdate 不支持行锁的方言（sqlite）忽略该设置
func (b *selectBuilder) ForUpdate() ISelectBuilder {
	if b.dialect.SupportsLocking() {
		b.locking = " FOR UPDATE"
	}
	return b
}

func (b *selectBuilder) Build() (string, []any, error) {
	if b.table == "" {
		return "", nil, CheckIdentifier("表名", b.table)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if b.distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(strings.Join(b.cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)

	// 局部 args，避免多次 Build 之间污染 builder 状态
	args := make([]any, 0, len(b.args)+len(b.havArgs)+2)

	for _, j := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(j.kind)
		sb.WriteString(" JOIN ")
		sb.WriteString(j.table)
		if j.on != "" {
			sb.WriteString(" ON ")
			sb.WriteString(j.on)
			args = append(args, j.args...)
		}
	}

	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
		args = append(args, b.args...)
	}
	if len(b.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groupBy, ", "))
	}
	if len(b.having) > 0 {
		sb.WriteString(" HAVING ")
		sb.WriteString(strings.Join(b.having, " AND "))
		args = append(args, b.havArgs...)
	}
	if b.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.orderBy)
	}

	switch {
	case b.limit > 0:
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	case b.offset > 0:
		// mysql/sqlite 的 OFFSET 必须跟在 LIMIT 之后
		switch b.dialect.Name() {
		case dialect.NameMySQL:
			sb.WriteString(" LIMIT 18446744073709551615")
		case dialect.NamePostgres:
		default:
			sb.WriteString(" LIMIT -1")
		}
	}
	if b.offset > 0 {
		sb.WriteString(" OFFSET ?")
		args = append(args, b.offset)
	}
	sb.WriteString(b.locking)
	return sb.String(), args, nil
}

func (b *selectBuilder) Query(ctx context.Context) (core.IRows, error) {
	q, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	return b.db.Query(ctx, q, args...)
}

func (b *selectBuilder) QueryRow(ctx context.Context) core.IRow {
	q, args, err := b.Build()
	if err != nil {
		return errRow{err: err}
	}
	return b.db.QueryRow(ctx, q, args...)
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
func (r errRow) Err() error        { return r.err }
