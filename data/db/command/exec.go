package command

import (
	"context"
	"strings"

	core "arcompat/data/db"
	"arcompat/data/db/dialect"
	"arcompat/errors"
	"arcompat/logging"
)

func (c *Command) prepare(ctx context.Context) (core.IDatabase, string, []any, error) {
	if c.err != nil {
		return nil, "", nil, c.err
	}
	db, err := c.handle(ctx)
	if err != nil {
		return nil, "", nil, err
	}
	q, args, err := c.compile(dialect.FromDatabase(db))
	if err != nil {
		return nil, "", nil, err
	}
	return db, q, args, nil
}

func (c *Command) fail(ctx context.Context, err error, op, query string) error {
	return errors.WrapDatabaseError(ctx, err, op,
		logging.Component("command"),
		logging.String("sql", query))
}

// QueryAll 返回全部行
func (c *Command) QueryAll(ctx context.Context) ([]map[string]any, error) {
	db, q, args, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, q, args...)
	if err != nil {
		return nil, c.fail(ctx, err, "command.queryAll", q)
	}
	_, out, err := core.ScanMaps(rows)
	if err != nil {
		return nil, c.fail(ctx, err, "command.queryAll", q)
	}
	if out == nil {
		out = []map[string]any{}
	}
	return out, nil
}

// QueryOne 返回第一行；无结果时返回 nil, nil
func (c *Command) QueryOne(ctx context.Context) (map[string]any, error) {
	rows, err := c.QueryAll(ctx)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// QueryColumn 返回每行第一列
func (c *Command) QueryColumn(ctx context.Context) ([]any, error) {
	db, q, args, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, q, args...)
	if err != nil {
		return nil, c.fail(ctx, err, "command.queryColumn", q)
	}
	out, err := core.ScanColumn(rows)
	if err != nil {
		return nil, c.fail(ctx, err, "command.queryColumn", q)
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

// QueryScalar 返回第一行第一列；无结果时返回 nil, nil
func (c *Command) QueryScalar(ctx context.Context) (any, error) {
	col, err := c.QueryColumn(ctx)
	if err != nil || len(col) == 0 {
		return nil, err
	}
	return col[0], nil
}

// Execute 按首个关键字推断语句类型后执行，见 ExecuteAs
func (c *Command) Execute(ctx context.Context) (int64, error) {
	return c.ExecuteAs(ctx, Sniff(c.sql))
}

// ExecuteAs 以指定语句类型执行：
//   - KindInsert 返回生成的主键（驱动不支持时返回受影响行数）；
//   - KindUpdate / KindDelete 返回受影响行数；
//   - KindOther 成功时返回 1。
func (c *Command) ExecuteAs(ctx context.Context, kind Kind) (int64, error) {
	db, q, args, err := c.prepare(ctx)
	if err != nil {
		return 0, err
	}
	res, err := db.Exec(ctx, q, args...)
	if err != nil {
		return 0, c.fail(ctx, err, "command.execute", q)
	}

	switch kind {
	case KindInsert:
		if id, err := res.LastInsertId(); err == nil {
			c.lastInsertID = id
			return id, nil
		}
		n, _ := res.RowsAffected()
		return n, nil
	case KindUpdate, KindDelete:
		n, err := res.RowsAffected()
		if err != nil {
			return 0, c.fail(ctx, err, "command.rowsAffected", q)
		}
		return n, nil
	default:
		return 1, nil
	}
}

// InsertGetID 执行 INSERT 并返回生成的主键；postgres 追加 RETURNING 子句
func (c *Command) InsertGetID(ctx context.Context, pk string) (any, error) {
	db, q, args, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	d := dialect.FromDatabase(db)
	if !d.SupportsReturning() || pk == "" {
		if _, err := c.ExecuteAs(ctx, KindInsert); err != nil {
			return nil, err
		}
		return c.lastInsertID, nil
	}

	q = strings.TrimRight(q, "; \n") + " RETURNING " + d.QuoteIdentifier(pk)
	var id any
	if err := db.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		return nil, c.fail(ctx, err, "command.insert", q)
	}
	c.lastInsertID = core.NormalizeValue(id)
	return c.lastInsertID, nil
}
