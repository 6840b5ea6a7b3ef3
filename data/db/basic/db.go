// Package basic 基于 database/sql 实现 db.IDatabase。
//
// 已内置注册三种驱动：mysql（go-sql-driver/mysql）、postgres（pgx stdlib）、
// sqlite（modernc.org/sqlite）。
package basic

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	core "arcompat/data/db"
	"arcompat/data/db/dialect"
	"arcompat/errors"
)

// DB 基于 *sql.DB 的 IDatabase 实现
type DB struct {
	db      *sql.DB
	driver  string
	dialect dialect.Dialect
}

var _ core.IDatabase = (*DB)(nil)

// New 根据连接描述符打开数据库并做一次可用性检查
func New(cfg core.ConnectionConfig) (core.IDatabase, error) {
	cfg, err := cfg.WithDefaults()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sqlDB, err := open(cfg)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfiguration, "打开数据库失败").
			WithContext("driver", cfg.Driver)
	}

	configurePool(sqlDB, cfg)

	timeout := cfg.Options.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "数据库连接检查失败").
			WithContext("driver", cfg.Driver)
	}

	return Wrap(sqlDB, cfg.Driver), nil
}

// Wrap 包装已打开的 *sql.DB
func Wrap(sqlDB *sql.DB, driver string) *DB {
	driver = core.NormalizeDriver(driver)
	return &DB{db: sqlDB, driver: driver, dialect: dialect.New(driver)}
}

func open(cfg core.ConnectionConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case core.DriverMySQL:
		return sql.Open("mysql", MySQLDSN(cfg))
	case core.DriverPostgres:
		pgCfg, err := pgx.ParseConfig(PostgresDSN(cfg))
		if err != nil {
			return nil, err
		}
		return stdlib.OpenDB(*pgCfg), nil
	case core.DriverSQLite:
		return sql.Open("sqlite", SQLiteDSN(cfg))
	}
	return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
}

func configurePool(sqlDB *sql.DB, cfg core.ConnectionConfig) {
	// 内存库的数据随连接存在，必须固定为单连接
	if cfg.Driver == core.DriverSQLite && isMemorySQLite(cfg.Database) {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
		return
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func isMemorySQLite(database string) bool {
	return database == ":memory:" || strings.Contains(database, "mode=memory")
}

func (d *DB) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	start := time.Now()
	q := d.dialect.Rebind(query)
	rows, err := d.db.QueryContext(ctx, q, args...)
	trace(ctx, "query", q, args, start, err)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (d *DB) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	start := time.Now()
	q := d.dialect.Rebind(query)
	row := d.db.QueryRowContext(ctx, q, args...)
	trace(ctx, "query_row", q, args, start, row.Err())
	return &Row{row: row}
}

func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	q := d.dialect.Rebind(query)
	res, err := d.db.ExecContext(ctx, q, args...)
	trace(ctx, "exec", q, args, start, err)
	return res, err
}

func (d *DB) Begin(ctx context.Context) (core.ITransaction, error) {
	return d.BeginTx(ctx, nil)
}

func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.ITransaction, error) {
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{db: d.db, tx: tx, dialect: d.dialect}, nil
}

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }
func (d *DB) Close() error                   { return d.db.Close() }
func (d *DB) Raw() any                       { return d.db }

// GetDialectName 实现 core.IDialectNameProvider
func (d *DB) GetDialectName() string { return d.driver }
