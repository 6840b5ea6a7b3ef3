package activerecord

import (
	"bytes"
	"encoding/json"
	"math"
	"math/big"
	"reflect"
	"sort"
	"time"
)

// Attributes 有序的列名→值容器
type Attributes struct {
	keys   []string
	values map[string]any
}

// NewAttributes 创建空容器
func NewAttributes() *Attributes {
	return &Attributes{values: map[string]any{}}
}

// AttributesOf 按 order 中出现的列优先、其余按名称排序构造容器
func AttributesOf(m map[string]any, order ...string) *Attributes {
	a := NewAttributes()
	for _, k := range orderedKeys(m, order) {
		a.Set(k, m[k])
	}
	return a
}

// Get 读取属性；不存在时 ok 为 false
func (a *Attributes) Get(name string) (any, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Has 属性是否存在（值可以为 nil）
func (a *Attributes) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

// Set 写入属性；新属性追加到末尾
func (a *Attributes) Set(name string, value any) {
	if _, ok := a.values[name]; !ok {
		a.keys = append(a.keys, name)
	}
	a.values[name] = value
}

// Delete 移除属性
func (a *Attributes) Delete(name string) {
	if _, ok := a.values[name]; !ok {
		return
	}
	delete(a.values, name)
	for i, k := range a.keys {
		if k == name {
			a.keys = append(a.keys[:i:i], a.keys[i+1:]...)
			break
		}
	}
}

// Keys 按插入顺序返回属性名
func (a *Attributes) Keys() []string {
	return append([]string(nil), a.keys...)
}

// Len 属性个数
func (a *Attributes) Len() int { return len(a.keys) }

// Map 返回浅拷贝
func (a *Attributes) Map() map[string]any {
	out := make(map[string]any, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

// Clone 复制容器
func (a *Attributes) Clone() *Attributes {
	return &Attributes{keys: a.Keys(), values: a.Map()}
}

// MarshalJSON 按属性顺序输出对象
func (a *Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(a.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func orderedKeys(m map[string]any, order []string) []string {
	keys := make([]string, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, k := range order {
		if _, ok := m[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(m)-len(keys))
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// ValuesEqual 判断两个属性值是否相同。
//
// 整数与浮点按数值比较（int 1 与 int64 1 视为相同），[]byte 与 string 按内容比较，
// 数字与字符串之间不做转换。
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := numeric(a); ok {
		if y, ok := numeric(b); ok {
			return x.Cmp(y) == 0
		}
		return false
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if s, ok := textual(a); ok {
		t, ok := textual(b)
		return ok && s == t
	}
	return reflect.DeepEqual(a, b)
}

func textual(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	return "", false
}

func numeric(v any) (*big.Float, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return new(big.Float).SetInt64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Float).SetUint64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) {
			return nil, false
		}
		return big.NewFloat(f), true
	}
	return nil, false
}

// isEmptyValue nil、空字符串、数值 0、false 与空集合视为空
func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
