// Package dialect 描述各数据库方言在 SQL 生成上的差异。
package dialect

import (
	stdErrors "errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	core "arcompat/data/db"
)

// Name 标准化的数据库方言名称
type Name string

const (
	NameMySQL    Name = "mysql"
	NameSQLite   Name = "sqlite"
	NamePostgres Name = "postgres"
	NameUnknown  Name = ""
)

// Dialect 当前数据库的方言能力
type Dialect struct {
	name Name
}

// New 根据驱动名构造方言（大小写不敏感，支持别名）
func New(name string) Dialect {
	switch core.NormalizeDriver(name) {
	case core.DriverMySQL:
		return Dialect{name: NameMySQL}
	case core.DriverSQLite:
		if strings.TrimSpace(name) == "" {
			return Dialect{name: NameUnknown}
		}
		return Dialect{name: NameSQLite}
	case core.DriverPostgres:
		return Dialect{name: NamePostgres}
	default:
		return Dialect{name: NameUnknown}
	}
}

// FromDatabase 从 IDatabase 推断方言，未实现 IDialectNameProvider 时返回 Unknown
func FromDatabase(db core.IDatabase) Dialect {
	if p, ok := db.(core.IDialectNameProvider); ok && db != nil {
		return New(p.GetDialectName())
	}
	return Dialect{name: NameUnknown}
}

func (d Dialect) Name() Name { return d.name }

// QuoteIdentifier 按方言为标识符加引号，带点限定名逐段处理。
// "*" 段与未知方言保持原样。
func (d Dialect) QuoteIdentifier(name string) string {
	if name == "" || d.name == NameUnknown {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "" || p == "*" {
			continue
		}
		if d.name == NameMySQL {
			parts[i] = "`" + p + "`"
		} else {
			parts[i] = `"` + p + `"`
		}
	}
	return strings.Join(parts, ".")
}

// Rebind 将 ? 占位符转换为方言形式（仅 postgres 需要 $n）。
// 单引号字符串字面量中的 ? 不会被替换。
func (d Dialect) Rebind(query string) string {
	if d.name != NamePostgres || !strings.Contains(query, "?") {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 1
	inString := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inString = !inString
			sb.WriteByte(ch)
		case ch == '?' && !inString:
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			n++
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}

// SupportsDeleteLimit 是否支持 DELETE ... LIMIT
func (d Dialect) SupportsDeleteLimit() bool {
	return d.name == NameMySQL
}

// SupportsReturning 是否支持 INSERT ... RETURNING 获取生成主键
func (d Dialect) SupportsReturning() bool {
	return d.name == NamePostgres
}

// SupportsLocking 是否支持 SELECT ... FOR UPDATE
func (d Dialect) SupportsLocking() bool {
	return d.name == NameMySQL || d.name == NamePostgres
}

// IsUniqueViolation 判断唯一键/主键冲突：先识别驱动错误类型，再按错误消息兜底
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if stdErrors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if stdErrors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	switch d.name {
	case NameMySQL:
		return strings.Contains(msg, "duplicate entry")
	case NameSQLite:
		return strings.Contains(msg, "unique constraint failed")
	default:
		return strings.Contains(msg, "duplicate key") ||
			strings.Contains(msg, "unique constraint")
	}
}
