package basic

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	core "arcompat/data/db"
	"arcompat/data/db/dialect"
)

// Tx 委托给 *sql.Tx，同时实现 core.IDatabase，事务内的查询可透传给任何需要 DB 的组件
type Tx struct {
	db      *sql.DB
	tx      *sql.Tx
	dialect dialect.Dialect
}

var _ core.ITransaction = (*Tx)(nil)

func (t *Tx) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	start := time.Now()
	q := t.dialect.Rebind(query)
	rows, err := t.tx.QueryContext(ctx, q, args...)
	trace(ctx, "query", q, args, start, err)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	start := time.Now()
	q := t.dialect.Rebind(query)
	row := t.tx.QueryRowContext(ctx, q, args...)
	trace(ctx, "query_row", q, args, start, row.Err())
	return &Row{row: row}
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	q := t.dialect.Rebind(query)
	res, err := t.tx.ExecContext(ctx, q, args...)
	trace(ctx, "exec", q, args, start, err)
	return res, err
}

// 不支持嵌套事务，由调用方协调事务边界
func (t *Tx) Begin(ctx context.Context) (core.ITransaction, error) {
	return nil, fmt.Errorf("basic.Tx: nested transactions are not supported")
}

func (t *Tx) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.ITransaction, error) {
	return nil, fmt.Errorf("basic.Tx: nested transactions are not supported")
}

func (t *Tx) Ping(ctx context.Context) error { return t.db.PingContext(ctx) }
func (t *Tx) Close() error                   { return nil }
func (t *Tx) Raw() any                       { return t.tx }

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

func (t *Tx) GetDialectName() string { return string(t.dialect.Name()) }
