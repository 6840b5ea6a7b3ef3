// Package db 定义数据访问层所依赖的执行引擎抽象。
//
// 上层（connection / command / query / activerecord）只面向这里的接口编程，
// 具体实现位于 data/db/basic，基于 database/sql。
package db

import (
	"context"
	"database/sql"
)

// IDatabase 通用数据库接口
type IDatabase interface {
	Query(ctx context.Context, query string, args ...any) (IRows, error)
	QueryRow(ctx context.Context, query string, args ...any) IRow
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)

	Begin(ctx context.Context) (ITransaction, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (ITransaction, error)

	Ping(ctx context.Context) error
	Close() error

	// Raw 返回底层连接（*sql.DB 或 *sql.Tx）
	Raw() any
}

// IDialectNameProvider 可选接口：提供底层数据库方言名称
//
// 返回 "mysql"、"sqlite"、"postgres" 等，供 dialect.FromDatabase 推断方言能力。
type IDialectNameProvider interface {
	GetDialectName() string
}

// ITransaction 事务接口
type ITransaction interface {
	IDatabase

	Commit() error
	Rollback() error
}

// IRows 查询结果集接口
type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error

	Columns() ([]string, error)
	ColumnTypes() ([]*sql.ColumnType, error)
}

// IRow 单行结果接口
type IRow interface {
	Scan(dest ...any) error
	Err() error
}

// NewDatabaseFunc 根据连接描述符打开数据库（由 basic.New 提供）
type NewDatabaseFunc func(cfg ConnectionConfig) (IDatabase, error)
