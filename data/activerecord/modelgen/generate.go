package modelgen

import (
	"bytes"
	"go/format"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"arcompat/errors"
)

// Options 生成参数
type Options struct {
	// Package 生成文件的包名，默认 models
	Package string
	// VarName 模型变量名，默认由表名推导（app_user_profiles → UserProfiles）
	VarName string
	// StripPrefix 推导变量名前去掉的表前缀，如 "app_"
	StripPrefix string
}

type column struct {
	Name    string
	GoType  string
	Comment string
}

type rule struct {
	Attribute string
	Spec      string
}

type model struct {
	Package    string
	Var        string
	Table      string
	PrimaryKey string
	Columns    []column
	Names      []string
	Fillable   []string
	Rules      []rule
}

var modelTemplate = template.Must(template.New("model").Parse(`// Code generated by arctl gen-model. DO NOT EDIT.

package {{.Package}}

import "arcompat/data/activerecord"

// {{.Var}} 对应表 {{.Table}}
//
{{- range .Columns}}
//	{{.Name}} {{.GoType}}{{if .Comment}} {{.Comment}}{{end}}
{{- end}}
var {{.Var}} = activerecord.Define(activerecord.Meta{
	Table:      {{printf "%q" .Table}},
	PrimaryKey: {{printf "%q" .PrimaryKey}},
	Columns:    []string{ {{- range $i, $c := .Names}}{{if $i}}, {{end}}{{printf "%q" $c}}{{end -}} },
	Fillable:   []string{ {{- range $i, $c := .Fillable}}{{if $i}}, {{end}}{{printf "%q" $c}}{{end -}} },
	Rules: map[string]string{
{{- range .Rules}}
		{{printf "%q" .Attribute}}: {{printf "%q" .Spec}},
{{- end}}
	},
})
`))

// Generate 渲染表对应的模型声明并格式化为 Go 源码。
//
// 非空、无默认值的非主键列生成 required 规则；整数列追加 integer，小数列追加 numeric。
func Generate(t Table, opts Options) ([]byte, error) {
	if len(t.Columns) == 0 {
		return nil, errors.Errorf(errors.ErrCodeInvalidInput, "表 %s 没有列", t.Name)
	}
	m := model{
		Package:    opts.Package,
		Var:        opts.VarName,
		Table:      t.Name,
		PrimaryKey: t.PrimaryKey,
	}
	if m.Package == "" {
		m.Package = "models"
	}
	if m.Var == "" {
		m.Var = VarName(t.Name, opts.StripPrefix)
	}
	if m.PrimaryKey == "" {
		m.PrimaryKey = "id"
	}

	for _, c := range t.Columns {
		goType := GoType(c.Type)
		m.Columns = append(m.Columns, column{Name: c.Name, GoType: goType, Comment: oneLine(c.Comment)})
		m.Names = append(m.Names, c.Name)
		if c.Name == m.PrimaryKey {
			continue
		}
		m.Fillable = append(m.Fillable, c.Name)

		var specs []string
		if !c.Nullable && !c.HasDefault {
			specs = append(specs, "required")
		}
		switch goType {
		case "int64":
			specs = append(specs, "integer")
		case "float64":
			specs = append(specs, "numeric")
		}
		if len(specs) > 0 {
			m.Rules = append(m.Rules, rule{Attribute: c.Name, Spec: strings.Join(specs, "|")})
		}
	}
	sort.Slice(m.Rules, func(i, j int) bool { return m.Rules[i].Attribute < m.Rules[j].Attribute })

	var buf bytes.Buffer
	if err := modelTemplate.Execute(&buf, m); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeInternal, "渲染模型失败")
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeInternal, "格式化模型失败").WithContext("table", t.Name)
	}
	return src, nil
}

var typeName = regexp.MustCompile(`^[a-z ]+`)

// GoType 将列类型映射为扫描后的 Go 类型，未知类型按 string 处理
func GoType(dbType string) string {
	base := strings.TrimSpace(typeName.FindString(strings.ToLower(strings.TrimSpace(dbType))))
	if t := goType(base); t != "" {
		return t
	}
	// "bigint unsigned" 之类带修饰的类型按首个单词匹配
	if fields := strings.Fields(base); len(fields) > 1 {
		if t := goType(fields[0]); t != "" {
			return t
		}
	}
	return "string"
}

func goType(base string) string {
	switch base {
	case "int", "integer", "bigint", "smallint", "tinyint", "mediumint", "serial", "bigserial":
		return "int64"
	case "decimal", "numeric", "float", "double", "double precision", "real":
		return "float64"
	case "bool", "boolean":
		return "bool"
	case "date", "datetime", "timestamp", "timestamp with time zone", "timestamp without time zone", "time":
		return "time.Time"
	case "json", "jsonb":
		return "map[string]any"
	case "blob", "bytea", "binary", "varbinary":
		return "[]byte"
	case "char", "varchar", "text", "character varying", "character":
		return "string"
	}
	return ""
}

// VarName 由表名推导导出变量名：去掉前缀后按下划线转为驼峰
func VarName(table, prefix string) string {
	name := strings.TrimPrefix(table, prefix)
	var sb strings.Builder
	for _, part := range strings.Split(name, "_") {
		if part == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(part[:1]))
		sb.WriteString(part[1:])
	}
	if sb.Len() == 0 {
		return "Model"
	}
	return sb.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
