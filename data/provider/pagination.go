// Package provider 为列表接口提供分页、排序与数据源封装。
package provider

import (
	"net/url"
	"strconv"

	"github.com/creasty/defaults"
)

// MaxPageSize 每页条数上限
const MaxPageSize = 100

// Pagination 分页状态，页码从 1 开始
type Pagination struct {
	Page          int    `default:"1"`
	PageSize      int    `default:"20"`
	TotalCount    int64
	PageParam     string `default:"page"`
	PageSizeParam string `default:"per_page"`
	// Route 生成链接时使用的路径
	Route string
	// Params 生成链接时附带的其它参数
	Params url.Values
}

// NewPagination 默认第 1 页、每页 20 条
func NewPagination() *Pagination {
	p := &Pagination{}
	_ = defaults.Set(p)
	return p
}

// LoadFromValues 读取页码与每页条数；页码至少为 1，每页条数限制在 1 到 MaxPageSize
func (p *Pagination) LoadFromValues(v url.Values) *Pagination {
	p.Page = max(1, atoi(v.Get(p.PageParam), 1))
	p.PageSize = min(MaxPageSize, max(1, atoi(v.Get(p.PageSizeParam), p.PageSize)))
	return p
}

func atoi(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func (p *Pagination) Offset() int { return (p.Page - 1) * p.PageSize }

func (p *Pagination) Limit() int { return p.PageSize }

// PageCount 总页数，无数据时为 0
func (p *Pagination) PageCount() int {
	if p.TotalCount <= 0 || p.PageSize <= 0 {
		return 0
	}
	size := int64(p.PageSize)
	return int((p.TotalCount + size - 1) / size)
}

func (p *Pagination) HasPrevPage() bool { return p.Page > 1 }

func (p *Pagination) HasNextPage() bool { return p.Page < p.PageCount() }

// PrevPage 上一页页码，不存在时 ok 为 false
func (p *Pagination) PrevPage() (page int, ok bool) {
	if !p.HasPrevPage() {
		return 0, false
	}
	return p.Page - 1, true
}

// NextPage 下一页页码，不存在时 ok 为 false
func (p *Pagination) NextPage() (page int, ok bool) {
	if !p.HasNextPage() {
		return 0, false
	}
	return p.Page + 1, true
}

// CreateURL 指向 page 的链接，保留 Params 并带上当前每页条数
func (p *Pagination) CreateURL(page int) string {
	params := cloneValues(p.Params)
	params.Set(p.PageParam, strconv.Itoa(page))
	params.Set(p.PageSizeParam, strconv.Itoa(p.PageSize))
	return buildURL(p.Route, params)
}

// Links first/prev/next/last 链接，仅包含存在的项
func (p *Pagination) Links() map[string]string {
	links := map[string]string{}
	count := p.PageCount()
	if p.Page > 1 {
		links["first"] = p.CreateURL(1)
	}
	if prev, ok := p.PrevPage(); ok {
		links["prev"] = p.CreateURL(prev)
	}
	if next, ok := p.NextPage(); ok {
		links["next"] = p.CreateURL(next)
	}
	if p.Page < count {
		links["last"] = p.CreateURL(count)
	}
	return links
}

// ToMap 序列化为接口响应中的分页信息
func (p *Pagination) ToMap() map[string]any {
	return map[string]any{
		"current_page": p.Page,
		"per_page":     p.PageSize,
		"total":        p.TotalCount,
		"last_page":    p.PageCount(),
		"has_prev":     p.HasPrevPage(),
		"has_next":     p.HasNextPage(),
		"links":        p.Links(),
	}
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func buildURL(route string, params url.Values) string {
	q := params.Encode()
	if q == "" {
		return route
	}
	return route + "?" + q
}
