package provider

import (
	"net/url"
	"slices"
	"strings"

	"arcompat/data/query"
)

// 排序方向
const (
	Asc  = "asc"
	Desc = "desc"
)

// Sort 解析 "sort=-age,name" 形式的排序参数，只接受 Attributes 中声明的列
type Sort struct {
	Attributes   []string
	DefaultOrder []query.Order
	SortParam    string
	Route        string
	Params       url.Values

	orders []query.Order
}

// SortLink 单列的排序链接
type SortLink struct {
	Asc     string `json:"asc"`
	Desc    string `json:"desc"`
	Current string `json:"current,omitempty"`
}

// NewSort 允许按 attributes 排序
func NewSort(attributes ...string) *Sort {
	return &Sort{Attributes: attributes}
}

func (s *Sort) param() string {
	if s.SortParam == "" {
		return "sort"
	}
	return s.SortParam
}

// HasAttribute 是否允许按该列排序
func (s *Sort) HasAttribute(attribute string) bool {
	return slices.Contains(s.Attributes, attribute)
}

// LoadFromValues 读取排序参数；没有有效排序项时使用 DefaultOrder
func (s *Sort) LoadFromValues(v url.Values) *Sort {
	s.orders = s.parse(v.Get(s.param()))
	return s
}

func (s *Sort) parse(spec string) []query.Order {
	var orders []query.Order
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		o := query.Asc(part)
		if rest, ok := strings.CutPrefix(part, "-"); ok {
			o = query.Desc(rest)
		}
		if !s.HasAttribute(o.Column) {
			continue
		}
		// 重复的列保留首次出现的位置，方向以最后一次为准
		if i := slices.IndexFunc(orders, func(x query.Order) bool { return x.Column == o.Column }); i >= 0 {
			orders[i] = o
			continue
		}
		orders = append(orders, o)
	}
	return orders
}

// Orders 当前排序项
func (s *Sort) Orders() []query.Order {
	if len(s.orders) == 0 {
		return append([]query.Order(nil), s.DefaultOrder...)
	}
	return append([]query.Order(nil), s.orders...)
}

// AttributeOrder 列的当前方向，未排序时为空串
func (s *Sort) AttributeOrder(attribute string) string {
	for _, o := range s.Orders() {
		if o.Column == attribute {
			return direction(o)
		}
	}
	return ""
}

func direction(o query.Order) string {
	if o.Desc {
		return Desc
	}
	return Asc
}

// CreateURL 设置 attribute 排序方向后的链接；dir 为空时在升降序间切换
func (s *Sort) CreateURL(attribute, dir string) string {
	orders := s.Orders()
	if dir == "" {
		dir = Asc
		if s.AttributeOrder(attribute) == Asc {
			dir = Desc
		}
	}
	o := query.Order{Column: attribute, Desc: dir == Desc}
	if i := slices.IndexFunc(orders, func(x query.Order) bool { return x.Column == attribute }); i >= 0 {
		orders[i] = o
	} else {
		orders = append(orders, o)
	}

	parts := make([]string, len(orders))
	for i, x := range orders {
		if x.Desc {
			parts[i] = "-" + x.Column
		} else {
			parts[i] = x.Column
		}
	}
	params := cloneValues(s.Params)
	params.Set(s.param(), strings.Join(parts, ","))
	return buildURL(s.Route, params)
}

// Links 每个可排序列的升降序链接
func (s *Sort) Links() map[string]SortLink {
	links := make(map[string]SortLink, len(s.Attributes))
	for _, attr := range s.Attributes {
		links[attr] = SortLink{
			Asc:     s.CreateURL(attr, Asc),
			Desc:    s.CreateURL(attr, Desc),
			Current: s.AttributeOrder(attr),
		}
	}
	return links
}
