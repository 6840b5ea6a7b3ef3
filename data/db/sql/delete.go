package sql

import (
	"context"
	"database/sql"
	"strings"

	core "arcompat/data/db"
	"arcompat/data/db/dialect"
)

type deleteBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table string
	where []string
	args  []any
	limit int
}

func (b *deleteBuilder) Where(cond string, args ...any) IDeleteBuilder {
	if cond != "" {
		b.where = append(b.where, cond)
		b.args = append(b.args, args...)
	}
	return b
}

// Limit 仅在方言支持 DELETE ... LIMIT 时生效
func (b *deleteBuilder) Limit(n int) IDeleteBuilder {
	b.limit = n
	return b
}

func (b *deleteBuilder) Build() (string, []any, error) {
	if err := CheckIdentifier("表名", b.table); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	args := make([]any, len(b.args), len(b.args)+1)
	copy(args, b.args)

	sb.WriteString("DELETE FROM ")
	sb.WriteString(b.dialect.QuoteIdentifier(b.table))
	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
	if b.limit > 0 && b.dialect.SupportsDeleteLimit() {
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}
	return sb.String(), args, nil
}

func (b *deleteBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	return b.db.Exec(ctx, q, args...)
}
