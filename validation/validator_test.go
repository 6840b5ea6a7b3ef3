package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcompat/errors"
)

func TestValidator_Scenario(t *testing.T) {
	rules := map[string]string{"username": "min:3", "email": "email"}

	v := New(map[string]any{"username": "ab", "email": "bad"}, rules, nil)
	assert.True(t, v.Fails())
	errs := v.Errors()
	assert.Contains(t, errs, "username")
	assert.Contains(t, errs, "email")
	assert.Equal(t, "username 不能小于 3", errs["username"][0])

	v = New(map[string]any{"username": "abcd", "email": "a@b.com"}, rules, nil)
	assert.True(t, v.Passes())
	assert.Empty(t, v.Errors())
	assert.Equal(t, "", v.FirstError())
}

func TestValidator_Rules(t *testing.T) {
	tests := []struct {
		name  string
		data  map[string]any
		rules map[string]string
		pass  bool
	}{
		{"必填-缺失", map[string]any{}, map[string]string{"a": "required"}, false},
		{"必填-空白", map[string]any{"a": "   "}, map[string]string{"a": "required"}, false},
		{"必填-存在", map[string]any{"a": "x"}, map[string]string{"a": "required"}, true},
		{"非必填空值跳过", map[string]any{"a": ""}, map[string]string{"a": "email|min:10"}, true},
		{"字符串", map[string]any{"a": 1}, map[string]string{"a": "string"}, false},
		{"整数-字符串", map[string]any{"a": "42"}, map[string]string{"a": "integer"}, true},
		{"整数-小数", map[string]any{"a": "4.2"}, map[string]string{"a": "integer"}, false},
		{"数字", map[string]any{"a": "4.2"}, map[string]string{"a": "numeric"}, true},
		{"数字-非法", map[string]any{"a": "abc"}, map[string]string{"a": "numeric"}, false},
		{"数值最小值", map[string]any{"a": "5"}, map[string]string{"a": "numeric|min:10"}, false},
		{"数值最大值", map[string]any{"a": 50}, map[string]string{"a": "integer|max:100"}, true},
		{"字符串长度按字符", map[string]any{"a": "中文字"}, map[string]string{"a": "max:3"}, true},
		{"区间", map[string]any{"a": 7}, map[string]string{"a": "integer|between:1,5"}, false},
		{"in", map[string]any{"a": "red"}, map[string]string{"a": "in:red,blue"}, true},
		{"not_in", map[string]any{"a": "red"}, map[string]string{"a": "not_in:red,blue"}, false},
		{"url", map[string]any{"a": "https://example.com/x"}, map[string]string{"a": "url"}, true},
		{"url-非法", map[string]any{"a": "example"}, map[string]string{"a": "url"}, false},
		{"正则", map[string]any{"a": "ABC"}, map[string]string{"a": "regex:/^[a-z]+$/i"}, true},
		{"确认", map[string]any{"p": "x", "p_confirmation": "y"}, map[string]string{"p": "confirmed"}, false},
		{"相同", map[string]any{"a": "1", "b": 1}, map[string]string{"a": "same:b"}, true},
		{"不同", map[string]any{"a": "1", "b": "1"}, map[string]string{"a": "different:b"}, false},
		{"日期", map[string]any{"a": "2024-02-29"}, map[string]string{"a": "date"}, true},
		{"日期-非法", map[string]any{"a": "2023-02-29"}, map[string]string{"a": "date"}, false},
		{"日期格式", map[string]any{"a": "2024-01-05 10:20:30"}, map[string]string{"a": "date_format:Y-m-d H:i:s"}, true},
		{"日期格式-不符", map[string]any{"a": "2024/01/05"}, map[string]string{"a": "date_format:Y-m-d"}, false},
		{"手机号", map[string]any{"a": "13800138000"}, map[string]string{"a": "mobile"}, true},
		{"手机号-非法", map[string]any{"a": "12800138000"}, map[string]string{"a": "mobile"}, false},
		{"身份证", map[string]any{"a": "11010519491231002X"}, map[string]string{"a": "id_card"}, true},
		{"身份证-校验码错误", map[string]any{"a": "110105194912310021"}, map[string]string{"a": "id_card"}, false},
		{"未知规则视为通过", map[string]any{"a": "x"}, map[string]string{"a": "no_such_rule"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(tt.data, tt.rules, nil)
			assert.Equal(t, tt.pass, v.Passes(), "errors: %v", v.Errors())
		})
	}
}

func TestValidator_FirstFailureStopsAttribute(t *testing.T) {
	v := New(map[string]any{"a": ""}, map[string]string{"a": "required|min:3|email"}, nil)
	require.True(t, v.Fails())
	assert.Len(t, v.Errors()["a"], 1)
	assert.Equal(t, "a 不能为空", v.FirstError("a"))
}

func TestValidator_CustomMessages(t *testing.T) {
	data := map[string]any{"name": "", "age": 3}
	rules := map[string]string{"name": "required", "age": "integer|min:18"}
	messages := map[string]string{
		"name.required": "请填写姓名",
		"min":           ":attribute 至少 :min",
	}

	v := New(data, rules, messages)
	require.True(t, v.Fails())
	assert.Equal(t, "请填写姓名", v.FirstError("name"))
	assert.Equal(t, "age 至少 18", v.FirstError("age"))
	// 无参数时按属性名排序取第一个
	assert.Equal(t, "age 至少 18", v.FirstError())
}

func TestValidator_RuleList(t *testing.T) {
	v := NewFromList(
		map[string]any{"code": "a|b"},
		map[string][]string{"code": {"required", "regex:^a\\|b$"}},
		nil,
	)
	assert.True(t, v.Passes())
}

func TestRegistry_Custom(t *testing.T) {
	r := NewRegistry()
	r.Register("even", RuleFunc(func(c *Context) bool {
		n, ok := toNumber(c.Value)
		return ok && int64(n)%2 == 0
	}), ":attribute 必须是偶数")
	assert.True(t, r.Has("even"))
	assert.False(t, DefaultRegistry().Has("even"))

	v := New(map[string]any{"n": 3}, map[string]string{"n": "even"}, nil).WithRegistry(r)
	require.True(t, v.Fails())
	assert.Equal(t, "n 必须是偶数", v.FirstError("n"))
}

func TestConvertDateFormat(t *testing.T) {
	assert.Equal(t, "2006-01-02 15:04:05", ConvertDateFormat("Y-m-d H:i:s"))
	assert.Equal(t, "02/01/06", ConvertDateFormat("d/m/y"))
	assert.Equal(t, "2006T", ConvertDateFormat("Y\\T"))
}

func TestValidateStringLength(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		min     int
		max     int
		wantErr bool
	}{
		{"有效长度", "hello", 1, 10, false},
		{"最小长度", "a", 1, 10, false},
		{"太短", "", 1, 10, true},
		{"太长", "hello world", 1, 5, true},
		{"中文字符", "你好世界", 1, 10, false},
		{"不限上限", "hello world", 1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStringLength(tt.value, "field", tt.min, tt.max)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsErrorCode(err, errors.ErrCodeValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRequired(t *testing.T) {
	assert.NoError(t, ValidateRequired("x", "名称"))
	err := ValidateRequired("  ", "名称")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidation, errors.GetErrorCode(err))
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"有效邮箱", "user@example.com", false},
		{"带加号", "user+tag@example.co", false},
		{"空邮箱", "", true},
		{"缺少@", "userexample.com", true},
		{"缺少域名", "user@", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEnum(t *testing.T) {
	valid := []string{"table", "json"}
	assert.NoError(t, ValidateEnum("json", "format", valid))
	assert.Error(t, ValidateEnum("xml", "format", valid))
}

func TestValidateIDCard(t *testing.T) {
	assert.True(t, ValidateIDCard("11010519491231002X"))
	assert.True(t, ValidateIDCard("11010519491231002x"))
	assert.True(t, ValidateIDCard("110105491231002"))
	assert.False(t, ValidateIDCard("11010549123100A"))
	assert.False(t, ValidateIDCard("1101051949"))
}

func BenchmarkValidator(b *testing.B) {
	data := map[string]any{"username": "alice", "email": "alice@example.com", "age": "30"}
	rules := map[string]string{"username": "required|min:3|max:20", "email": "required|email", "age": "integer|between:18,120"}
	for i := 0; i < b.N; i++ {
		New(data, rules, nil).Passes()
	}
}
