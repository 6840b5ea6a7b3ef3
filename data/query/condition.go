// Package query 提供条件树与查询规格的构建，并在终结操作时经连接表执行。
package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	dbsql "arcompat/data/db/sql"
	"arcompat/errors"
)

type condKind int

const (
	kindNone condKind = iota
	kindEquals
	kindOp
	kindRaw
	kindAnd
	kindOr
	kindNot
)

// 支持的操作符（小写规范形式）
const (
	OpEq         = "="
	OpGt         = ">"
	OpLt         = "<"
	OpGte        = ">="
	OpLte        = "<="
	OpNeq        = "<>"
	OpLike       = "like"
	OpNotLike    = "not like"
	OpIn         = "in"
	OpNotIn      = "not in"
	OpBetween    = "between"
	OpNotBetween = "not between"
	OpIsNull     = "is null"
	OpIsNotNull  = "is not null"
)

// Condition 条件节点：等值、操作符、原始片段或逻辑组合。
// 零值表示“无条件”。
type Condition struct {
	kind     condKind
	column   string
	op       string
	values   []any
	raw      string
	named    map[string]any
	children []Condition
}

// Equals column = value；value 为 nil 时渲染为 IS NULL
func Equals(column string, value any) Condition {
	return Condition{kind: kindEquals, column: column, values: []any{value}}
}

// Op 操作符条件，如 Op(">", "age", 18)、Op("between", "age", 18, 30)
func Op(op, column string, values ...any) Condition {
	op = strings.Join(strings.Fields(strings.ToLower(op)), " ")
	if op == "!=" {
		op = OpNeq
	}
	return Condition{kind: kindOp, column: column, op: op, values: values}
}

// Raw 原始 SQL 片段，使用 ? 位置参数；切片参数会展开为多个占位符。
// 片段原样传给数据库，安全性由调用方负责。
func Raw(sql string, args ...any) Condition {
	return Condition{kind: kindRaw, raw: sql, values: args}
}

// RawNamed 原始 SQL 片段，使用 :name 命名参数；键可带或不带前导冒号
func RawNamed(sql string, params map[string]any) Condition {
	named := make(map[string]any, len(params))
	for k, v := range params {
		named[strings.TrimPrefix(k, ":")] = v
	}
	return Condition{kind: kindRaw, raw: sql, named: named}
}

// And 逻辑与，忽略空条件
func And(conds ...Condition) Condition {
	return Condition{kind: kindAnd, children: compact(conds)}
}

// Or 逻辑或，忽略空条件
func Or(conds ...Condition) Condition {
	return Condition{kind: kindOr, children: compact(conds)}
}

// Not 逻辑非
func Not(c Condition) Condition {
	if c.IsEmpty() {
		return c
	}
	return Condition{kind: kindNot, children: []Condition{c}}
}

// Hash 列名→值映射，按列名排序后 AND 组合；切片值转为 IN，nil 转为 IS NULL
func Hash(m map[string]any) Condition {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]Condition, 0, len(keys))
	for _, k := range keys {
		if isList(m[k]) {
			conds = append(conds, In(k, m[k]))
		} else {
			conds = append(conds, Equals(k, m[k]))
		}
	}
	return And(conds...)
}

func In(column string, values ...any) Condition    { return Op(OpIn, column, values...) }
func NotIn(column string, values ...any) Condition { return Op(OpNotIn, column, values...) }
func Between(column string, from, to any) Condition {
	return Op(OpBetween, column, from, to)
}
func NotBetween(column string, from, to any) Condition {
	return Op(OpNotBetween, column, from, to)
}
func Like(column, pattern string) Condition    { return Op(OpLike, column, pattern) }
func NotLike(column, pattern string) Condition { return Op(OpNotLike, column, pattern) }
func IsNull(column string) Condition           { return Op(OpIsNull, column) }
func IsNotNull(column string) Condition        { return Op(OpIsNotNull, column) }

// IsEmpty 是否为空条件（包括没有子条件的组合）
func (c Condition) IsEmpty() bool {
	switch c.kind {
	case kindNone:
		return true
	case kindAnd, kindOr, kindNot:
		return len(c.children) == 0
	case kindRaw:
		return strings.TrimSpace(c.raw) == ""
	}
	return false
}

func compact(conds []Condition) []Condition {
	out := make([]Condition, 0, len(conds))
	for _, c := range conds {
		if c.IsEmpty() {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Build 渲染为带 ? 占位符的 SQL 片段
func (c Condition) Build() (string, []any, error) {
	switch c.kind {
	case kindNone:
		return "", nil, nil
	case kindEquals:
		if err := dbsql.CheckIdentifier("列名", c.column); err != nil {
			return "", nil, err
		}
		if c.values[0] == nil {
			return c.column + " IS NULL", nil, nil
		}
		return c.column + " = ?", []any{c.values[0]}, nil
	case kindOp:
		return c.buildOp()
	case kindRaw:
		return c.buildRaw()
	case kindAnd, kindOr:
		return c.buildGroup()
	case kindNot:
		inner, args, err := c.children[0].Build()
		if err != nil || inner == "" {
			return inner, args, err
		}
		return "NOT (" + inner + ")", args, nil
	}
	return "", nil, errors.Errorf(errors.ErrCodeInternal, "unknown condition kind %d", c.kind)
}

func (c Condition) buildOp() (string, []any, error) {
	if err := dbsql.CheckIdentifier("列名", c.column); err != nil {
		return "", nil, err
	}

	switch c.op {
	case OpEq, OpGt, OpLt, OpGte, OpLte, OpNeq, OpLike, OpNotLike:
		if len(c.values) != 1 {
			return "", nil, c.arity(1)
		}
		if c.values[0] == nil {
			switch c.op {
			case OpEq:
				return c.column + " IS NULL", nil, nil
			case OpNeq:
				return c.column + " IS NOT NULL", nil, nil
			}
		}
		return c.column + " " + strings.ToUpper(c.op) + " ?", []any{c.values[0]}, nil

	case OpIn, OpNotIn:
		values := flatten(c.values)
		if len(values) == 0 {
			// 空集合：IN 恒假，NOT IN 恒真
			if c.op == OpIn {
				return "1=0", nil, nil
			}
			return "1=1", nil, nil
		}
		holders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		return c.column + " " + strings.ToUpper(c.op) + " (" + holders + ")", values, nil

	case OpBetween, OpNotBetween:
		values := flatten(c.values)
		if len(values) != 2 {
			return "", nil, c.arity(2)
		}
		return c.column + " " + strings.ToUpper(c.op) + " ? AND ?", values, nil

	case OpIsNull, OpIsNotNull:
		return c.column + " " + strings.ToUpper(c.op), nil, nil
	}

	return "", nil, errors.Errorf(errors.ErrCodeInvalidInput, "不支持的操作符: %q", c.op)
}

func (c Condition) arity(n int) error {
	return errors.Errorf(errors.ErrCodeInvalidInput,
		"操作符 %q 需要 %d 个值，实际 %d 个", c.op, n, len(c.values))
}

func (c Condition) buildRaw() (string, []any, error) {
	query, args := c.raw, c.values
	if c.named != nil {
		q, a, err := sqlx.Named(query, c.named)
		if err != nil {
			return "", nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "绑定命名参数失败")
		}
		query, args = q, a
	}
	for _, a := range args {
		if isList(a) {
			q, expanded, err := sqlx.In(query, args...)
			if err != nil {
				return "", nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "展开切片参数失败")
			}
			return q, expanded, nil
		}
	}
	return query, args, nil
}

func (c Condition) buildGroup() (string, []any, error) {
	sep := " AND "
	if c.kind == kindOr {
		sep = " OR "
	}

	parts := make([]string, 0, len(c.children))
	var args []any
	for _, child := range c.children {
		s, a, err := child.Build()
		if err != nil {
			return "", nil, err
		}
		if s == "" {
			continue
		}
		if len(c.children) > 1 && child.needsParens() {
			s = "(" + s + ")"
		}
		parts = append(parts, s)
		args = append(args, a...)
	}
	return strings.Join(parts, sep), args, nil
}

func (c Condition) needsParens() bool {
	switch c.kind {
	case kindRaw:
		return true
	case kindAnd, kindOr:
		return len(c.children) > 1
	}
	return false
}

// String 便于调试
func (c Condition) String() string {
	s, args, err := c.Build()
	if err != nil {
		return "<invalid: " + err.Error() + ">"
	}
	return fmt.Sprintf("%s %v", s, args)
}

// isList 判断是否为需要展开的列表值（[]byte 除外）
func isList(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func flatten(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if !isList(v) {
			out = append(out, v)
			continue
		}
		rv := reflect.ValueOf(v)
		for i := 0; i < rv.Len(); i++ {
			out = append(out, rv.Index(i).Interface())
		}
	}
	return out
}
