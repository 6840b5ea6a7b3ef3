package sql

import (
	"context"
	"database/sql"
	"strings"

	core "arcompat/data/db"
	"arcompat/data/db/dialect"
	"arcompat/errors"
)

type insertBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table   string
	columns []string
	rows    [][]any
}

func (b *insertBuilder) Columns(cols ...string) IInsertBuilder {
	b.columns = cols
	return b
}

func (b *insertBuilder) Values(vals ...any) IInsertBuilder {
	if len(vals) > 0 {
		b.rows = append(b.rows, vals)
	}
	return b
}

func (b *insertBuilder) Build() (string, []any, error) {
	return b.build("")
}

func (b *insertBuilder) build(returning string) (string, []any, error) {
	if err := CheckIdentifier("表名", b.table); err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(b.dialect.QuoteIdentifier(b.table))

	// 无列插入（全部使用默认值），常见于只有自增主键的表；MySQL 不支持 DEFAULT VALUES
	if len(b.columns) == 0 {
		if b.dialect.Name() == dialect.NameMySQL {
			sb.WriteString(" () VALUES ()")
		} else {
			sb.WriteString(" DEFAULT VALUES")
		}
		if returning != "" {
			sb.WriteString(" RETURNING " + b.dialect.QuoteIdentifier(returning))
		}
		return sb.String(), nil, nil
	}
	if len(b.rows) == 0 {
		return "", nil, errors.NewError(errors.ErrCodeInvalidInput, "insert 至少需要一行数据")
	}

	quoted := make([]string, len(b.columns))
	for i, col := range b.columns {
		if err := CheckIdentifier("列名", col); err != nil {
			return "", nil, err
		}
		quoted[i] = b.dialect.QuoteIdentifier(col)
	}
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(") VALUES ")

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(b.columns)), ", ") + ")"
	args := make([]any, 0, len(b.rows)*len(b.columns))
	for i, row := range b.rows {
		if len(row) != len(b.columns) {
			return "", nil, errors.Errorf(errors.ErrCodeInvalidInput,
				"第 %d 行的值数量(%d)与列数量(%d)不一致", i+1, len(row), len(b.columns))
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(placeholder)
		args = append(args, row...)
	}

	if returning != "" {
		sb.WriteString(" RETURNING ")
		sb.WriteString(b.dialect.QuoteIdentifier(returning))
	}
	return sb.String(), args, nil
}

func (b *insertBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	return b.db.Exec(ctx, q, args...)
}

func (b *insertBuilder) ExecGetID(ctx context.Context, pk string) (any, error) {
	if b.dialect.SupportsReturning() && pk != "" {
		if err := CheckIdentifier("主键", pk); err != nil {
			return nil, err
		}
		q, args, err := b.build(pk)
		if err != nil {
			return nil, err
		}
		var id any
		if err := b.db.QueryRow(ctx, q, args...).Scan(&id); err != nil {
			return nil, err
		}
		return core.NormalizeValue(id), nil
	}

	res, err := b.Exec(ctx)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		// 驱动不支持时返回 nil，由调用方决定是否使用自带主键
		return nil, nil
	}
	return id, nil
}
