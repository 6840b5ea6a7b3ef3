// Package validation 提供基于规则注册表的数据校验。
//
// 规则以 "required|min:3|in:a,b" 形式声明，按属性名排序依次执行；
// 某属性的第一条失败规则之后不再执行该属性的其余规则。
// 非 required 规则遇到空值（nil、""、空切片/映射）时跳过。
// 校验失败是正常结果，通过 Passes/Errors 获取，不返回 error。
package validation

import (
	"reflect"
	"sort"
	"strings"
)

// Validator 一次校验的数据、规则与错误
type Validator struct {
	data     map[string]any
	rules    map[string][]string
	messages map[string]string
	registry *Registry
	errors   map[string][]string
}

// New 创建校验器；rules 的值为以 | 分隔的规则串
func New(data map[string]any, rules map[string]string, messages map[string]string) *Validator {
	return NewFromList(data, ParseRules(rules), messages)
}

// NewFromList 创建校验器；规则已拆分为列表（适用于正则中包含 | 的情况）
func NewFromList(data map[string]any, rules map[string][]string, messages map[string]string) *Validator {
	if data == nil {
		data = map[string]any{}
	}
	return &Validator{
		data:     data,
		rules:    rules,
		messages: messages,
		registry: DefaultRegistry(),
		errors:   map[string][]string{},
	}
}

// WithRegistry 使用指定的规则注册表
func (v *Validator) WithRegistry(r *Registry) *Validator {
	if r != nil {
		v.registry = r
	}
	return v
}

// ParseRules 将 "required|min:3" 拆分为规则列表
func ParseRules(rules map[string]string) map[string][]string {
	out := make(map[string][]string, len(rules))
	for attr, spec := range rules {
		var list []string
		for _, r := range strings.Split(spec, "|") {
			if r = strings.TrimSpace(r); r != "" {
				list = append(list, r)
			}
		}
		out[attr] = list
	}
	return out
}

// Validate 执行校验，返回是否通过
func (v *Validator) Validate() bool {
	v.errors = map[string][]string{}

	for _, attr := range v.attributes() {
		rules := v.rules[attr]
		numeric := hasRule(rules, "numeric", "integer")
		for _, spec := range rules {
			if !v.check(attr, spec, numeric) {
				break
			}
		}
	}
	return len(v.errors) == 0
}

func (v *Validator) attributes() []string {
	attrs := make([]string, 0, len(v.rules))
	for a := range v.rules {
		attrs = append(attrs, a)
	}
	sort.Strings(attrs)
	return attrs
}

func (v *Validator) check(attr, spec string, numeric bool) bool {
	name, params := splitRule(spec)
	value := v.data[attr]

	if name != "required" && IsEmpty(value) {
		return true
	}

	def, ok := v.registry.lookup(name)
	if !ok {
		// 未注册的规则视为通过
		return true
	}

	ctx := &Context{Attribute: attr, Value: value, Params: params, Data: v.data, Numeric: numeric}
	if def.rule.Passes(ctx) {
		return true
	}
	v.addError(attr, name, def, params)
	return false
}

func (v *Validator) addError(attr, rule string, def ruleDef, params []string) {
	msg, ok := v.messages[attr+"."+rule]
	if !ok {
		msg, ok = v.messages[rule]
	}
	if !ok {
		msg = def.message
	}
	if msg == "" {
		msg = ":attribute 验证失败"
	}

	pairs := []string{":attribute", attr}
	for i, name := range def.params {
		if i < len(params) {
			pairs = append(pairs, ":"+name, params[i])
		}
	}
	if rule == "in" || rule == "not_in" {
		pairs = append(pairs, ":values", strings.Join(params, ","))
	}
	v.errors[attr] = append(v.errors[attr], strings.NewReplacer(pairs...).Replace(msg))
}

// Passes 校验通过返回 true
func (v *Validator) Passes() bool { return v.Validate() }

// Fails 校验失败返回 true
func (v *Validator) Fails() bool { return !v.Validate() }

// Errors 最近一次校验的错误，属性名→消息列表
func (v *Validator) Errors() map[string][]string {
	out := make(map[string][]string, len(v.errors))
	for k, msgs := range v.errors {
		out[k] = append([]string(nil), msgs...)
	}
	return out
}

// FirstError 返回指定属性（未指定时为按名称排序的第一个出错属性）的第一条错误
func (v *Validator) FirstError(attribute ...string) string {
	if len(attribute) > 0 {
		if msgs := v.errors[attribute[0]]; len(msgs) > 0 {
			return msgs[0]
		}
		return ""
	}
	keys := make([]string, 0, len(v.errors))
	for k := range v.errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(v.errors[k]) > 0 {
			return v.errors[k][0]
		}
	}
	return ""
}

func splitRule(spec string) (string, []string) {
	name, rest, found := strings.Cut(spec, ":")
	name = strings.TrimSpace(name)
	if !found {
		return name, nil
	}
	// regex 的参数可能包含逗号，整体作为一个参数
	if name == "regex" || name == "date_format" {
		return name, []string{rest}
	}
	return name, strings.Split(rest, ",")
}

func hasRule(rules []string, names ...string) bool {
	for _, r := range rules {
		n, _ := splitRule(r)
		for _, want := range names {
			if n == want {
				return true
			}
		}
	}
	return false
}

// IsEmpty nil、空字符串、空切片与空映射视为空
func IsEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer:
		return rv.IsNil()
	}
	return false
}
