package behaviors

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"arcompat/data/activerecord"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug 由源属性生成 URL 片段
type Slug struct {
	activerecord.BaseBehavior

	// Attribute 目标列，默认 slug
	Attribute string
	// Source 源列，默认 title
	Source string
	// OnUpdate 更新时也重新生成
	OnUpdate bool
}

// NewSlug 以 source 生成 attribute
func NewSlug(source, attribute string) *Slug {
	return &Slug{Source: source, Attribute: attribute}
}

func (s *Slug) Bindings() []activerecord.Binding {
	bindings := []activerecord.Binding{{Event: activerecord.EventBeforeInsert, Handler: s.generate}}
	if s.OnUpdate {
		bindings = append(bindings, activerecord.Binding{Event: activerecord.EventBeforeUpdate, Handler: s.generate})
	}
	return bindings
}

func (s *Slug) generate(_ context.Context, e *activerecord.Event) (activerecord.Result, error) {
	v, ok := e.Sender.Get(defaultName(s.Source, "title"))
	if !ok || v == nil {
		return activerecord.Continue, nil
	}
	if slug := Slugify(fmt.Sprint(v)); slug != "" {
		e.Sender.Set(defaultName(s.Attribute, "slug"), slug)
	}
	return activerecord.Continue, nil
}

// Slugify 小写化，非 [a-z0-9] 的连续字符替换为 -，去掉首尾 -
func Slugify(text string) string {
	text = nonSlug.ReplaceAllString(strings.ToLower(text), "-")
	return strings.Trim(text, "-")
}
