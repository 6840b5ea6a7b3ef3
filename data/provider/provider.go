package provider

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/big"
	"slices"
	"time"

	"arcompat/data/activerecord"
	"arcompat/data/query"
)

// DataProvider 分页排序后的数据源；结果在 Refresh 前缓存
type DataProvider[T any] interface {
	Models(ctx context.Context) ([]T, error)
	Keys(ctx context.Context) ([]any, error)
	Count(ctx context.Context) (int, error)
	TotalCount(ctx context.Context) (int64, error)
	Pagination() *Pagination
	Sort() *Sort
	Refresh()
}

type cache[T any] struct {
	models []T
	keys   []any
	total  *int64
}

func (c *cache[T]) reset() { *c = cache[T]{} }

// ActiveDataProvider 以 ActiveQuery 为数据源
type ActiveDataProvider struct {
	Query *activerecord.ActiveQuery
	// Key 作为键的列；与 KeyFunc 都为空时使用结果下标
	Key     string
	KeyFunc func(r *activerecord.Record) any

	pagination *Pagination
	sort       *Sort
	cache      cache[*activerecord.Record]
}

var _ DataProvider[*activerecord.Record] = (*ActiveDataProvider)(nil)

// NewActiveDataProvider 使用默认分页与空排序
func NewActiveDataProvider(q *activerecord.ActiveQuery) *ActiveDataProvider {
	return &ActiveDataProvider{Query: q, pagination: NewPagination(), sort: NewSort()}
}

func (p *ActiveDataProvider) Pagination() *Pagination { return p.pagination }
func (p *ActiveDataProvider) Sort() *Sort             { return p.sort }

// SetPagination nil 表示不分页
func (p *ActiveDataProvider) SetPagination(pg *Pagination) *ActiveDataProvider {
	p.pagination = pg
	p.Refresh()
	return p
}

// SetSort nil 表示不排序
func (p *ActiveDataProvider) SetSort(s *Sort) *ActiveDataProvider {
	p.sort = s
	p.Refresh()
	return p
}

func (p *ActiveDataProvider) Refresh() { p.cache.reset() }

// Models 克隆查询，追加排序并按分页取当前页
func (p *ActiveDataProvider) Models(ctx context.Context) ([]*activerecord.Record, error) {
	if p.cache.models != nil {
		return p.cache.models, nil
	}
	if p.Query == nil {
		p.cache.models = []*activerecord.Record{}
		return p.cache.models, nil
	}

	q := p.Query.Clone()
	if p.sort != nil {
		for _, o := range p.sort.Orders() {
			q.AddOrderBy(o.Column, direction(o))
		}
	}
	if p.pagination != nil {
		if _, err := p.TotalCount(ctx); err != nil {
			return nil, err
		}
		q.Limit(p.pagination.Limit()).Offset(p.pagination.Offset())
	}

	models, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	if models == nil {
		models = []*activerecord.Record{}
	}
	p.cache.models = models
	return models, nil
}

func (p *ActiveDataProvider) Keys(ctx context.Context) ([]any, error) {
	if p.cache.keys != nil {
		return p.cache.keys, nil
	}
	models, err := p.Models(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]any, len(models))
	for i, r := range models {
		switch {
		case p.KeyFunc != nil:
			keys[i] = p.KeyFunc(r)
		case p.Key != "":
			keys[i] = r.GetAttribute(p.Key)
		default:
			keys[i] = i
		}
	}
	p.cache.keys = keys
	return keys, nil
}

// Count 当前页条数
func (p *ActiveDataProvider) Count(ctx context.Context) (int, error) {
	models, err := p.Models(ctx)
	return len(models), err
}

// TotalCount 满足条件的总行数，只统计一次并同步到分页
func (p *ActiveDataProvider) TotalCount(ctx context.Context) (int64, error) {
	if p.cache.total != nil {
		return *p.cache.total, nil
	}
	var n int64
	if p.Query != nil {
		var err error
		if n, err = p.Query.Clone().Count(ctx); err != nil {
			return 0, err
		}
	}
	p.cache.total = &n
	if p.pagination != nil {
		p.pagination.TotalCount = n
	}
	return n, nil
}

// ArrayDataProvider 以内存中的行为数据源
type ArrayDataProvider struct {
	Key     string
	KeyFunc func(row query.Row, index int) any

	all        []query.Row
	pagination *Pagination
	sort       *Sort
	cache      cache[query.Row]
}

var _ DataProvider[query.Row] = (*ArrayDataProvider)(nil)

// NewArrayDataProvider 使用默认分页与空排序
func NewArrayDataProvider(rows []query.Row) *ArrayDataProvider {
	return &ArrayDataProvider{all: rows, pagination: NewPagination(), sort: NewSort()}
}

func (p *ArrayDataProvider) Pagination() *Pagination { return p.pagination }
func (p *ArrayDataProvider) Sort() *Sort             { return p.sort }

func (p *ArrayDataProvider) SetPagination(pg *Pagination) *ArrayDataProvider {
	p.pagination = pg
	p.Refresh()
	return p
}

func (p *ArrayDataProvider) SetSort(s *Sort) *ArrayDataProvider {
	p.sort = s
	p.Refresh()
	return p
}

// SetAllModels 替换数据并清空缓存
func (p *ArrayDataProvider) SetAllModels(rows []query.Row) *ArrayDataProvider {
	p.all = rows
	p.Refresh()
	return p
}

func (p *ArrayDataProvider) Refresh() { p.cache.reset() }

// Models 稳定排序后截取当前页，不修改原始数据
func (p *ArrayDataProvider) Models(ctx context.Context) ([]query.Row, error) {
	if p.cache.models != nil {
		return p.cache.models, nil
	}
	rows := slices.Clone(p.all)
	if p.sort != nil {
		if orders := p.sort.Orders(); len(orders) > 0 {
			slices.SortStableFunc(rows, func(a, b query.Row) int {
				for _, o := range orders {
					c := compareValues(a[o.Column], b[o.Column])
					if c == 0 {
						continue
					}
					if o.Desc {
						return -c
					}
					return c
				}
				return 0
			})
		}
	}
	if p.pagination != nil {
		_, _ = p.TotalCount(ctx)
		lo := min(p.pagination.Offset(), len(rows))
		hi := min(lo+p.pagination.Limit(), len(rows))
		rows = rows[lo:hi]
	}
	if rows == nil {
		rows = []query.Row{}
	}
	p.cache.models = rows
	return rows, nil
}

func (p *ArrayDataProvider) Keys(ctx context.Context) ([]any, error) {
	if p.cache.keys != nil {
		return p.cache.keys, nil
	}
	rows, _ := p.Models(ctx)
	keys := make([]any, len(rows))
	for i, row := range rows {
		switch {
		case p.KeyFunc != nil:
			keys[i] = p.KeyFunc(row, i)
		case p.Key != "":
			if v, ok := row[p.Key]; ok {
				keys[i] = v
			} else {
				keys[i] = i
			}
		default:
			keys[i] = i
		}
	}
	p.cache.keys = keys
	return keys, nil
}

func (p *ArrayDataProvider) Count(ctx context.Context) (int, error) {
	rows, err := p.Models(ctx)
	return len(rows), err
}

func (p *ArrayDataProvider) TotalCount(context.Context) (int64, error) {
	n := int64(len(p.all))
	if p.pagination != nil {
		p.pagination.TotalCount = n
	}
	return n, nil
}

// compareValues 数值按大小、时间按先后、其它按字符串比较；缺失值视为空串
func compareValues(a, b any) int {
	if a == nil {
		a = ""
	}
	if b == nil {
		b = ""
	}
	if fa, ok := toBig(a); ok {
		if fb, ok := toBig(b); ok {
			return fa.Cmp(fb)
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toBig(v any) (*big.Float, bool) {
	switch n := v.(type) {
	case int:
		return new(big.Float).SetInt64(int64(n)), true
	case int8:
		return new(big.Float).SetInt64(int64(n)), true
	case int16:
		return new(big.Float).SetInt64(int64(n)), true
	case int32:
		return new(big.Float).SetInt64(int64(n)), true
	case int64:
		return new(big.Float).SetInt64(n), true
	case uint:
		return new(big.Float).SetUint64(uint64(n)), true
	case uint8:
		return new(big.Float).SetUint64(uint64(n)), true
	case uint16:
		return new(big.Float).SetUint64(uint64(n)), true
	case uint32:
		return new(big.Float).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Float).SetUint64(n), true
	case float32:
		return toBig(float64(n))
	case float64:
		if math.IsNaN(n) {
			return nil, false
		}
		return new(big.Float).SetFloat64(n), true
	}
	return nil, false
}
