// Package modelgen 读取表结构并生成 activerecord.Define 声明。
package modelgen

import (
	"context"
	"fmt"
	"strings"

	core "arcompat/data/db"
	"arcompat/data/db/command"
	"arcompat/data/db/dialect"
	dbsql "arcompat/data/db/sql"
	"arcompat/errors"
)

// Column 列结构
type Column struct {
	Name     string
	Type     string
	Nullable bool
	// HasDefault 列声明了默认值（含自增）
	HasDefault bool
	Comment    string
}

// Table 表结构
type Table struct {
	Name       string
	PrimaryKey string
	Columns    []Column
}

// ColumnNames 按表中顺序返回列名
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

const mysqlColumns = `SELECT column_name AS name, column_type AS type, is_nullable AS nullable,
	column_default AS dflt, extra AS extra, column_comment AS comment, column_key AS col_key
FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ?
ORDER BY ordinal_position`

const postgresColumns = `SELECT column_name AS name, data_type AS type, is_nullable AS nullable,
	column_default AS dflt, is_identity AS extra
FROM information_schema.columns
WHERE table_schema = CURRENT_SCHEMA() AND table_name = ?
ORDER BY ordinal_position`

const postgresPrimaryKey = `SELECT kcu.column_name AS name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
	ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = CURRENT_SCHEMA() AND tc.table_name = ?
ORDER BY kcu.ordinal_position`

// Inspect 读取表的列与主键。
//
// 复合主键取第一列；没有主键时使用 "id"。表不存在时返回 NOT_FOUND。
func Inspect(ctx context.Context, db core.IDatabase, table string) (Table, error) {
	if err := dbsql.CheckIdentifier("表名", table); err != nil {
		return Table{}, err
	}

	var (
		t   Table
		err error
	)
	switch d := dialect.FromDatabase(db); d.Name() {
	case dialect.NameSQLite:
		t, err = inspectSQLite(ctx, db, table)
	case dialect.NameMySQL:
		t, err = inspectMySQL(ctx, db, table)
	case dialect.NamePostgres:
		t, err = inspectPostgres(ctx, db, table)
	default:
		return Table{}, errors.Errorf(errors.ErrCodeConfiguration, "不支持读取 %q 方言的表结构", d.Name())
	}
	if err != nil {
		return Table{}, err
	}
	if len(t.Columns) == 0 {
		return Table{}, errors.Errorf(errors.ErrCodeNotFound, "表 %s 不存在或没有列", table)
	}
	if t.PrimaryKey == "" {
		t.PrimaryKey = "id"
	}
	return t, nil
}

func inspectSQLite(ctx context.Context, db core.IDatabase, table string) (Table, error) {
	// PRAGMA 不接受绑定参数，表名已通过标识符校验
	rows, err := command.New(db, fmt.Sprintf("PRAGMA table_info(%q)", table)).QueryAll(ctx)
	if err != nil {
		return Table{}, err
	}
	t := Table{Name: table}
	pkPos, pkCount, pkIndex := int64(0), 0, -1
	for i, row := range rows {
		t.Columns = append(t.Columns, Column{
			Name:       text(row["name"]),
			Type:       text(row["type"]),
			Nullable:   number(row["notnull"]) == 0,
			HasDefault: row["dflt_value"] != nil,
		})
		// pk 为列在主键中的序号（从 1 开始），0 表示不属于主键
		pos := number(row["pk"])
		if pos == 0 {
			continue
		}
		pkCount++
		if pkPos == 0 || pos < pkPos {
			pkPos, pkIndex = pos, i
			t.PrimaryKey = t.Columns[i].Name
		}
	}
	// 单列 INTEGER PRIMARY KEY 为 rowid 别名，由数据库生成
	if pkCount == 1 && strings.EqualFold(t.Columns[pkIndex].Type, "integer") {
		t.Columns[pkIndex].HasDefault = true
	}
	return t, nil
}

func inspectMySQL(ctx context.Context, db core.IDatabase, table string) (Table, error) {
	rows, err := command.New(db, mysqlColumns, table).QueryAll(ctx)
	if err != nil {
		return Table{}, err
	}
	t := Table{Name: table}
	for _, row := range rows {
		extra := strings.ToLower(text(row["extra"]))
		col := Column{
			Name:       text(row["name"]),
			Type:       text(row["type"]),
			Nullable:   strings.EqualFold(text(row["nullable"]), "YES"),
			HasDefault: row["dflt"] != nil || strings.Contains(extra, "auto_increment"),
			Comment:    text(row["comment"]),
		}
		if t.PrimaryKey == "" && strings.EqualFold(text(row["col_key"]), "PRI") {
			t.PrimaryKey = col.Name
		}
		t.Columns = append(t.Columns, col)
	}
	return t, nil
}

func inspectPostgres(ctx context.Context, db core.IDatabase, table string) (Table, error) {
	rows, err := command.New(db, postgresColumns, table).QueryAll(ctx)
	if err != nil {
		return Table{}, err
	}
	t := Table{Name: table}
	for _, row := range rows {
		t.Columns = append(t.Columns, Column{
			Name:       text(row["name"]),
			Type:       text(row["type"]),
			Nullable:   strings.EqualFold(text(row["nullable"]), "YES"),
			HasDefault: row["dflt"] != nil || strings.EqualFold(text(row["extra"]), "YES"),
		})
	}

	pk, err := command.New(db, postgresPrimaryKey, table).QueryScalar(ctx)
	if err != nil {
		return Table{}, err
	}
	t.PrimaryKey = text(pk)
	return t, nil
}

func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}

func number(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case bool:
		if n {
			return 1
		}
	case string:
		var out int64
		_, _ = fmt.Sscan(n, &out)
		return out
	}
	return 0
}
