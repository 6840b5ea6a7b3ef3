package validation

import (
	"fmt"
	"math"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"arcompat/cache"
)

// Context 规则执行时可见的信息
type Context struct {
	Attribute string
	Value     any
	Params    []string
	Data      map[string]any
	// Numeric 属性同时声明了 numeric/integer 规则，min/max/between 按数值比较
	Numeric bool
}

// Param 第 i 个参数，不存在时返回空串
func (c *Context) Param(i int) string {
	if i < len(c.Params) {
		return strings.TrimSpace(c.Params[i])
	}
	return ""
}

// Rule 校验规则
type Rule interface {
	Passes(ctx *Context) bool
}

// RuleFunc 函数形式的规则
type RuleFunc func(ctx *Context) bool

func (f RuleFunc) Passes(ctx *Context) bool { return f(ctx) }

type ruleDef struct {
	rule    Rule
	message string
	params  []string
}

// Registry 规则注册表
type Registry struct {
	mu    sync.RWMutex
	rules map[string]ruleDef
}

// NewRegistry 创建包含全部内置规则的注册表
func NewRegistry() *Registry {
	r := &Registry{rules: map[string]ruleDef{}}
	registerBuiltins(r)
	return r
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry 进程级注册表
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

// Register 注册（或替换）规则；message 支持 :attribute 与 paramNames 中各参数的占位符
func (r *Registry) Register(name string, rule Rule, message string, paramNames ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[name] = ruleDef{rule: rule, message: message, params: paramNames}
}

// Has 规则是否已注册
func (r *Registry) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

func (r *Registry) lookup(name string) (ruleDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.rules[name]
	return def, ok
}

// RegisterRule 在进程级注册表中注册规则
func RegisterRule(name string, rule Rule, message string, paramNames ...string) {
	DefaultRegistry().Register(name, rule, message, paramNames...)
}

func registerBuiltins(r *Registry) {
	r.Register("required", RuleFunc(func(c *Context) bool { return !IsEmpty(trimmed(c.Value)) }), ":attribute 不能为空")
	r.Register("string", RuleFunc(func(c *Context) bool { _, ok := c.Value.(string); return ok }), ":attribute 必须是字符串")
	r.Register("integer", RuleFunc(func(c *Context) bool { return isInteger(c.Value) }), ":attribute 必须是整数")
	r.Register("numeric", RuleFunc(func(c *Context) bool { _, ok := toNumber(c.Value); return ok }), ":attribute 必须是数字")
	r.Register("email", RuleFunc(func(c *Context) bool { return ValidateEmail(fmt.Sprint(c.Value)) == nil }), ":attribute 必须是有效的邮箱地址")
	r.Register("url", RuleFunc(urlRule), ":attribute 必须是有效的URL")
	r.Register("min", RuleFunc(minRule), ":attribute 不能小于 :min", "min")
	r.Register("max", RuleFunc(maxRule), ":attribute 不能大于 :max", "max")
	r.Register("between", RuleFunc(betweenRule), ":attribute 必须在 :min 和 :max 之间", "min", "max")
	r.Register("in", RuleFunc(func(c *Context) bool { return inList(c) }), ":attribute 的值无效")
	r.Register("not_in", RuleFunc(func(c *Context) bool { return !inList(c) }), ":attribute 的值无效")
	r.Register("regex", RuleFunc(regexRule), ":attribute 格式不正确")
	r.Register("confirmed", RuleFunc(func(c *Context) bool {
		return sameValue(c.Value, c.Data[c.Attribute+"_confirmation"])
	}), ":attribute 两次输入不一致")
	r.Register("same", RuleFunc(func(c *Context) bool { return sameValue(c.Value, c.Data[c.Param(0)]) }), ":attribute 必须与 :other 相同", "other")
	r.Register("different", RuleFunc(func(c *Context) bool { return !sameValue(c.Value, c.Data[c.Param(0)]) }), ":attribute 必须与 :other 不同", "other")
	r.Register("date", RuleFunc(dateRule), ":attribute 必须是有效的日期")
	r.Register("date_format", RuleFunc(dateFormatRule), ":attribute 格式必须为 :format", "format")
	r.Register("mobile", RuleFunc(func(c *Context) bool { return mobileRegex.MatchString(fmt.Sprint(c.Value)) }), ":attribute 必须是有效的手机号码")
	r.Register("id_card", RuleFunc(func(c *Context) bool { return ValidateIDCard(fmt.Sprint(c.Value)) }), ":attribute 必须是有效的身份证号码")
}

func trimmed(v any) any {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return v
}

func isInteger(v any) bool {
	switch x := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return float64(x) == math.Trunc(float64(x))
	case float64:
		return x == math.Trunc(x)
	case string:
		_, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return err == nil
	}
	return false
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// size 数值按值，字符串按字符数，切片/映射按长度
func size(c *Context) (float64, bool) {
	if c.Numeric {
		if n, ok := toNumber(c.Value); ok {
			return n, true
		}
	}
	switch x := c.Value.(type) {
	case string:
		return float64(utf8.RuneCountInString(x)), true
	case nil:
		return 0, false
	}
	if n, ok := toNumber(c.Value); ok {
		return n, true
	}
	rv := reflect.ValueOf(c.Value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return float64(rv.Len()), true
	}
	return 0, false
}

func paramNumber(c *Context, i int) (float64, bool) {
	f, err := strconv.ParseFloat(c.Param(i), 64)
	return f, err == nil
}

func minRule(c *Context) bool {
	n, ok := size(c)
	limit, ok2 := paramNumber(c, 0)
	return ok && ok2 && n >= limit
}

func maxRule(c *Context) bool {
	n, ok := size(c)
	limit, ok2 := paramNumber(c, 0)
	return ok && ok2 && n <= limit
}

func betweenRule(c *Context) bool {
	n, ok := size(c)
	lo, ok2 := paramNumber(c, 0)
	hi, ok3 := paramNumber(c, 1)
	return ok && ok2 && ok3 && n >= lo && n <= hi
}

func inList(c *Context) bool {
	s := fmt.Sprint(c.Value)
	for _, p := range c.Params {
		if strings.TrimSpace(p) == s {
			return true
		}
	}
	return false
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func urlRule(c *Context) bool {
	s, ok := c.Value.(string)
	if !ok {
		return false
	}
	u, err := url.ParseRequestURI(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

var regexCache = cache.New[string, *regexp.Regexp]("validation.regex", 256)

func regexRule(c *Context) bool {
	pattern := c.Param(0)
	// 兼容 /pattern/flags 写法
	if len(pattern) >= 2 && pattern[0] == '/' {
		if end := strings.LastIndex(pattern, "/"); end > 0 {
			flags := pattern[end+1:]
			pattern = pattern[1:end]
			if strings.Contains(flags, "i") {
				pattern = "(?i)" + pattern
			}
		}
	}

	re, err := regexCache.GetOrCompute(pattern, func() (*regexp.Regexp, error) {
		return regexp.Compile(pattern)
	})
	if err != nil {
		return false
	}
	return re.MatchString(fmt.Sprint(c.Value))
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"02-Jan-2006",
	"Jan 2, 2006",
	"2 January 2006",
}

func dateRule(c *Context) bool {
	if _, ok := c.Value.(time.Time); ok {
		return true
	}
	s := strings.TrimSpace(fmt.Sprint(c.Value))
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func dateFormatRule(c *Context) bool {
	layout := ConvertDateFormat(c.Param(0))
	s := fmt.Sprint(c.Value)
	t, err := time.Parse(layout, s)
	if err != nil {
		return false
	}
	// 严格匹配：格式化回去必须一致
	return t.Format(layout) == s
}

var dateFormatTokens = map[byte]string{
	'Y': "2006", 'y': "06",
	'm': "01", 'n': "1", 'M': "Jan", 'F': "January",
	'd': "02", 'j': "2", 'D': "Mon", 'l': "Monday",
	'H': "15", 'h': "03", 'g': "3", 'G': "15",
	'i': "04", 's': "05", 'A': "PM", 'a': "pm",
	'T': "MST", 'P': "-07:00", 'O': "-0700",
}

// ConvertDateFormat 将 "Y-m-d H:i:s" 风格的格式串转换为 Go 的时间布局；未知字符原样保留
func ConvertDateFormat(format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch == '\\' && i+1 < len(format) {
			i++
			b.WriteByte(format[i])
			continue
		}
		if tok, ok := dateFormatTokens[ch]; ok {
			b.WriteString(tok)
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}
