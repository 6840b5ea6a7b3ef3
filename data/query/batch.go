package query

import (
	"context"
	"iter"
)

// DefaultBatchSize 未指定页大小时使用
const DefaultBatchSize = 100

// Page 一页结果及 SELECT 列顺序
type Page struct {
	Columns []string
	Rows    []Row
}

// Batch 按页返回行，语义同 Pages
func (q *Query) Batch(ctx context.Context, size int) iter.Seq2[[]Row, error] {
	return func(yield func([]Row, error) bool) {
		for page, err := range q.Pages(ctx, size) {
			if !yield(page.Rows, err) || err != nil {
				return
			}
		}
	}
}

// Pages 返回按页迭代的惰性序列。
//
// 每页克隆原查询并递增 OFFSET，原查询不受影响；某页行数小于 size 时结束，
// 不会产出空页。若原查询带 LIMIT/OFFSET，则在其范围内分页。
// 页与页之间没有快照隔离：迭代期间的并发写入可能导致行被跳过或重复。
// 序列可重复迭代，每次迭代都从第一页重新查询。
func (q *Query) Pages(ctx context.Context, size int) iter.Seq2[Page, error] {
	if size <= 0 {
		size = DefaultBatchSize
	}
	base := q.Clone()

	return func(yield func(Page, error) bool) {
		offset := base.offset
		remaining := base.limit // 0 表示不限
		for {
			want := size
			if base.limit > 0 {
				if remaining <= 0 {
					return
				}
				want = min(size, remaining)
			}

			cols, rows, err := base.Clone().Offset(offset).Limit(want).Rows(ctx)
			if err != nil {
				yield(Page{}, err)
				return
			}
			if len(rows) == 0 {
				return
			}
			if !yield(Page{Columns: cols, Rows: rows}, nil) {
				return
			}
			if len(rows) < want {
				return
			}
			offset += len(rows)
			remaining -= len(rows)
		}
	}
}

// Each 逐行迭代，内部按 size 分页
func (q *Query) Each(ctx context.Context, size int) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for page, err := range q.Batch(ctx, size) {
			if err != nil {
				yield(nil, err)
				return
			}
			for _, row := range page {
				if !yield(row, nil) {
					return
				}
			}
		}
	}
}

// Chunk 按页回调 fn；fn 返回 false 或 error 时停止
func (q *Query) Chunk(ctx context.Context, size int, fn func(page []Row) (bool, error)) error {
	for page, err := range q.Batch(ctx, size) {
		if err != nil {
			return err
		}
		cont, err := fn(page)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}
