package sql

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	core "arcompat/data/db"
	"arcompat/data/db/dialect"
	"arcompat/errors"
)

type updateBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table     string
	setCols   []string
	setArgs   []any
	exprSet   []string
	exprArgs  []any
	whereExpr []string
	whereArgs []any
}

func (b *updateBuilder) Set(col string, val any) IUpdateBuilder {
	if col != "" {
		b.setCols = append(b.setCols, col)
		b.setArgs = append(b.setArgs, val)
	}
	return b
}

func (b *updateBuilder) SetMap(values map[string]any) IUpdateBuilder {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.Set(k, values[k])
	}
	return b
}

func (b *updateBuilder) SetExpr(expr string, args ...any) IUpdateBuilder {
	if expr != "" {
		b.exprSet = append(b.exprSet, expr)
		b.exprArgs = append(b.exprArgs, args...)
	}
	return b
}

func (b *updateBuilder) Where(cond string, args ...any) IUpdateBuilder {
	if cond != "" {
		b.whereExpr = append(b.whereExpr, cond)
		b.whereArgs = append(b.whereArgs, args...)
	}
	return b
}

func (b *updateBuilder) Build() (string, []any, error) {
	if err := CheckIdentifier("表名", b.table); err != nil {
		return "", nil, err
	}
	if len(b.setCols) == 0 && len(b.exprSet) == 0 {
		return "", nil, errors.NewError(errors.ErrCodeInvalidInput, "update 没有需要更新的列")
	}

	sets := make([]string, 0, len(b.setCols)+len(b.exprSet))
	for _, col := range b.setCols {
		if err := CheckIdentifier("列名", col); err != nil {
			return "", nil, err
		}
		sets = append(sets, b.dialect.QuoteIdentifier(col)+" = ?")
	}
	sets = append(sets, b.exprSet...)

	args := make([]any, 0, len(b.setArgs)+len(b.exprArgs)+len(b.whereArgs))
	args = append(args, b.setArgs...)
	args = append(args, b.exprArgs...)

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(b.dialect.QuoteIdentifier(b.table))
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(sets, ", "))

	if len(b.whereExpr) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.whereExpr, " AND "))
		args = append(args, b.whereArgs...)
	}
	return sb.String(), args, nil
}

func (b *updateBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	return b.db.Exec(ctx, q, args...)
}
