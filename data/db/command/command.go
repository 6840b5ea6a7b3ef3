// Package command 执行原始参数化 SQL，独立于 query 构建器。
//
// 绑定参数支持位置占位符 ? 与命名占位符 :name，两者不可混用；
// 命名参数按包含前导冒号的键精确匹配。
//
// Execute 通过语句首个关键字判断返回值：INSERT 返回新生成的主键，
// UPDATE/DELETE 返回受影响行数，其它语句返回 1。多语句或以注释、CTE 开头的 SQL
// 可能被误判，需要确定语义时使用 ExecuteAs。
package command

import (
	"context"
	"database/sql/driver"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"

	"arcompat/cache"
	core "arcompat/data/db"
	"arcompat/data/db/connection"
	"arcompat/data/db/dialect"
	"arcompat/errors"
)

// Kind 语句类型
type Kind int

const (
	KindOther Kind = iota
	KindInsert
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	}
	return "OTHER"
}

// Sniff 根据首个关键字判断语句类型
func Sniff(query string) Kind {
	q := strings.TrimLeft(query, " \t\r\n(")
	end := strings.IndexFunc(q, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end >= 0 {
		q = q[:end]
	}
	switch strings.ToUpper(q) {
	case "INSERT":
		return KindInsert
	case "UPDATE":
		return KindUpdate
	case "DELETE":
		return KindDelete
	}
	return KindOther
}

// Command 一条待执行的原始 SQL 及其绑定参数
type Command struct {
	db       core.IDatabase
	resolver connection.Resolver
	conn     string
	prefix   *string

	sql        string
	positional []any
	named      map[string]any

	lastInsertID any
	err          error
}

// New 基于已解析的句柄创建命令
func New(db core.IDatabase, sql string, args ...any) *Command {
	return &Command{db: db, sql: sql, positional: args}
}

// For 创建按连接名延迟解析的命令；resolver 为 nil 时使用进程级连接表
func For(resolver connection.Resolver, name, sql string, args ...any) *Command {
	return &Command{resolver: resolver, conn: name, sql: sql, positional: args}
}

// On 切换到指定连接名，执行时经 resolver 解析（可感知 ctx 中的事务）
func (c *Command) On(name string) *Command {
	c.conn = name
	c.db = nil
	return c
}

// WithPrefix 显式指定 {{%table}} 展开时的表名前缀
func (c *Command) WithPrefix(prefix string) *Command {
	c.prefix = &prefix
	return c
}

// SetSQL 替换 SQL 并清空已绑定参数
func (c *Command) SetSQL(sql string) *Command {
	c.sql = sql
	c.positional = nil
	c.named = nil
	c.err = nil
	return c
}

// BindValue 绑定一个命名参数，name 可带或不带前导冒号
func (c *Command) BindValue(name string, value any) *Command {
	if c.named == nil {
		c.named = make(map[string]any)
	}
	if !strings.HasPrefix(name, ":") {
		name = ":" + name
	}
	c.named[name] = value
	return c
}

// BindValues 批量绑定命名参数
func (c *Command) BindValues(values map[string]any) *Command {
	for k, v := range values {
		c.BindValue(k, v)
	}
	return c
}

// Params 返回已绑定的命名参数副本
func (c *Command) Params() map[string]any {
	out := make(map[string]any, len(c.named))
	for k, v := range c.named {
		out[k] = v
	}
	return out
}

// GetLastInsertID 返回本命令最近一次 INSERT 生成的主键；未执行过 INSERT 时为 nil
func (c *Command) GetLastInsertID() any {
	return c.lastInsertID
}

func (c *Command) handle(ctx context.Context) (core.IDatabase, error) {
	if c.db != nil {
		return c.db, nil
	}
	r := c.resolver
	if r == nil {
		r = connection.Default()
	}
	return r.Resolve(ctx, c.conn)
}

func (c *Command) tablePrefix() string {
	if c.prefix != nil {
		return *c.prefix
	}
	if c.db != nil && c.resolver == nil {
		return ""
	}
	r := c.resolver
	if r == nil {
		r = connection.Default()
	}
	return r.TablePrefix(c.conn)
}

var (
	tablePattern  = regexp.MustCompile(`\{\{(%?)([\w.\-]+?)\}\}`)
	columnPattern = regexp.MustCompile(`\[\[([\w.\-]+?)\]\]`)
)

type expandKey struct {
	query, prefix string
	dialect       dialect.Name
}

var expanded = cache.New[expandKey, string]("command.expand", 512)

// expand 展开 {{%table}}、{{table}} 与 [[column]]，按方言加引号；结果按方言缓存
func expand(query, prefix string, d dialect.Dialect) string {
	if !strings.Contains(query, "{{") && !strings.Contains(query, "[[") {
		return query
	}
	key := expandKey{query: query, prefix: prefix, dialect: d.Name()}
	if out, ok := expanded.Get(key); ok {
		return out
	}
	out := expandPlaceholders(query, prefix, d)
	expanded.Set(key, out)
	return out
}

func expandPlaceholders(query, prefix string, d dialect.Dialect) string {
	query = tablePattern.ReplaceAllStringFunc(query, func(m string) string {
		sub := tablePattern.FindStringSubmatch(m)
		name := sub[2]
		if sub[1] == "%" {
			name = prefix + name
		}
		return d.QuoteIdentifier(name)
	})
	return columnPattern.ReplaceAllStringFunc(query, func(m string) string {
		return d.QuoteIdentifier(columnPattern.FindStringSubmatch(m)[1])
	})
}

// compile 返回最终 SQL（? 占位符）与参数
func (c *Command) compile(d dialect.Dialect) (string, []any, error) {
	if c.err != nil {
		return "", nil, c.err
	}
	query := expand(c.sql, c.tablePrefix(), d)
	args := c.positional

	if len(c.named) > 0 {
		if len(c.positional) > 0 {
			return "", nil, errors.NewError(errors.ErrCodeInvalidInput, "不能同时使用位置参数与命名参数")
		}
		params := make(map[string]any, len(c.named))
		for k, v := range c.named {
			params[strings.TrimPrefix(k, ":")] = v
		}
		q, a, err := sqlx.Named(query, params)
		if err != nil {
			return "", nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "绑定命名参数失败")
		}
		query, args = q, a
	}

	if hasSliceArg(args) {
		q, a, err := sqlx.In(query, args...)
		if err != nil {
			return "", nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "展开切片参数失败")
		}
		query, args = q, a
	}
	return query, args, nil
}

// hasSliceArg 是否存在需要展开为 IN 列表的切片参数；[]byte 与 driver.Valuer 按单值处理
func hasSliceArg(args []any) bool {
	for _, a := range args {
		switch a.(type) {
		case nil, []byte, driver.Valuer:
			continue
		}
		if reflect.TypeOf(a).Kind() == reflect.Slice {
			return true
		}
	}
	return false
}

// SQL 返回展开并编译后的 SQL（未连接时按未知方言展开）
func (c *Command) SQL() string {
	q, _, err := c.compile(c.dialect())
	if err != nil {
		return c.sql
	}
	return q
}

// RawSQL 返回参数内联后的 SQL，仅用于日志与调试
func (c *Command) RawSQL() string {
	q, args, err := c.compile(c.dialect())
	if err != nil {
		return c.sql
	}
	var sb strings.Builder
	n := 0
	inString := false
	for i := 0; i < len(q); i++ {
		ch := q[i]
		if ch == '\'' {
			inString = !inString
		}
		if ch == '?' && !inString && n < len(args) {
			sb.WriteString(literal(args[n]))
			n++
			continue
		}
		sb.WriteByte(ch)
	}
	return sb.String()
}

func (c *Command) dialect() dialect.Dialect {
	if c.db != nil {
		return dialect.FromDatabase(c.db)
	}
	return dialect.New("unknown")
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case []byte:
		return "'" + strings.ReplaceAll(string(x), "'", "''") + "'"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case fmt.Stringer:
		return "'" + strings.ReplaceAll(x.String(), "'", "''") + "'"
	}
	return fmt.Sprint(v)
}
