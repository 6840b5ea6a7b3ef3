// Package sql 提供面向单表的 SELECT/INSERT/UPDATE/DELETE 语句构建与执行。
//
// 条件片段使用 ? 占位符，由 IDatabase 实现按方言 Rebind。
// 表名与列名在 Build 时校验，非法标识符返回 CONFIGURATION_ERROR 而非拼接进 SQL。
package sql

import (
	"context"
	"database/sql"

	core "arcompat/data/db"
	"arcompat/data/db/dialect"
)

// ISql 统一的 SQL 构建入口
type ISql interface {
	Select(columns ...string) ISelectBuilder
	InsertInto(table string) IInsertBuilder
	Update(table string) IUpdateBuilder
	DeleteFrom(table string) IDeleteBuilder

	Dialect() dialect.Dialect
	GetDB() core.IDatabase
}

// ISelectBuilder 构建 SELECT 语句
type ISelectBuilder interface {
	From(table string) ISelectBuilder
	Distinct(on bool) ISelectBuilder
	Join(kind, table, on string, args ...any) ISelectBuilder
	Where(cond string, args ...any) ISelectBuilder
	And(cond string, args ...any) ISelectBuilder
	Or(cond string, args ...any) ISelectBuilder
	GroupBy(cols ...string) ISelectBuilder
	Having(cond string, args ...any) ISelectBuilder
	OrderBy(expr string) ISelectBuilder
	Limit(n int) ISelectBuilder
	Offset(n int) ISelectBuilder
	ForUpdate() ISelectBuilder
	Build() (query string, args []any, err error)
	Query(ctx context.Context) (core.IRows, error)
	QueryRow(ctx context.Context) core.IRow
}

// IInsertBuilder 构建 INSERT 语句
type IInsertBuilder interface {
	Columns(cols ...string) IInsertBuilder
	Values(vals ...any) IInsertBuilder
	Build() (query string, args []any, err error)
	Exec(ctx context.Context) (sql.Result, error)
	// ExecGetID 执行单行插入并返回生成的主键；postgres 使用 RETURNING，其余使用 LastInsertId
	ExecGetID(ctx context.Context, pk string) (any, error)
}

// IUpdateBuilder 构建 UPDATE 语句
type IUpdateBuilder interface {
	Set(column string, val any) IUpdateBuilder
	// SetMap 按列名排序后追加，保证生成的 SQL 稳定
	SetMap(values map[string]any) IUpdateBuilder
	// SetExpr 追加原始 SET 片段，如 "hits = hits + ?"
	SetExpr(expr string, args ...any) IUpdateBuilder
	Where(cond string, args ...any) IUpdateBuilder
	Build() (query string, args []any, err error)
	Exec(ctx context.Context) (sql.Result, error)
}

// IDeleteBuilder 构建 DELETE 语句
type IDeleteBuilder interface {
	Where(cond string, args ...any) IDeleteBuilder
	Limit(n int) IDeleteBuilder
	Build() (query string, args []any, err error)
	Exec(ctx context.Context) (sql.Result, error)
}

type sqlImpl struct {
	db      core.IDatabase
	dialect dialect.Dialect
}

// New 创建 ISql；db 可为 nil（仅用于生成 SQL）
func New(db core.IDatabase) ISql {
	return &sqlImpl{db: db, dialect: dialect.FromDatabase(db)}
}

// NewWithDialect 指定方言创建 ISql
func NewWithDialect(db core.IDatabase, d dialect.Dialect) ISql {
	return &sqlImpl{db: db, dialect: d}
}

func (s *sqlImpl) Select(columns ...string) ISelectBuilder {
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	return &selectBuilder{db: s.db, dialect: s.dialect, cols: columns}
}

func (s *sqlImpl) InsertInto(table string) IInsertBuilder {
	return &insertBuilder{db: s.db, dialect: s.dialect, table: table}
}

func (s *sqlImpl) Update(table string) IUpdateBuilder {
	return &updateBuilder{db: s.db, dialect: s.dialect, table: table}
}

func (s *sqlImpl) DeleteFrom(table string) IDeleteBuilder {
	return &deleteBuilder{db: s.db, dialect: s.dialect, table: table}
}

func (s *sqlImpl) Dialect() dialect.Dialect { return s.dialect }
func (s *sqlImpl) GetDB() core.IDatabase    { return s.db }
