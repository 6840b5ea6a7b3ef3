// Package cache 提供并发安全、容量受限的 LRU 缓存。
package cache

import (
	"container/list"
	"fmt"
	"sync"
)

// LRU 泛型 LRU 缓存，超过 MaxSize 时淘汰最久未使用的条目
type LRU[K comparable, V any] struct {
	name    string
	maxSize int

	mu    sync.Mutex
	items map[K]*list.Element
	order *list.List // 最近使用的在前
	stats Stats
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Stats 命中统计
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// New 创建缓存；maxSize <= 0 表示不限容量
func New[K comparable, V any](name string, maxSize int) *LRU[K, V] {
	return &LRU[K, V]{
		name:    name,
		maxSize: maxSize,
		items:   make(map[K]*list.Element),
		order:   list.New(),
	}
}

// Get 读取并标记为最近使用
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		c.stats.Hits++
		return el.Value.(*entry[K, V]).value, true
	}
	c.stats.Misses++
	var zero V
	return zero, false
}

// Set 写入或覆盖
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

func (c *LRU[K, V]) setLocked(key K, value V) {
	if el, ok := c.items[key]; ok {
		el.Value.(*entry[K, V]).value = value
		c.order.MoveToFront(el)
		return
	}
	if c.maxSize > 0 && len(c.items) >= c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry[K, V]).key)
			c.stats.Evictions++
		}
	}
	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
}

// GetOrCompute 未命中时调用 fn 计算并缓存；fn 返回错误时不缓存。
// fn 在锁外执行，并发未命中可能重复计算同一个 key。
func (c *LRU[K, V]) GetOrCompute(key K, fn func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete 删除条目，返回是否存在
func (c *LRU[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.items, key)
	return true
}

// Clear 清空条目，保留统计
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	c.items = make(map[K]*list.Element)
	c.order.Init()
	c.mu.Unlock()
}

func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats 统计副本
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.items)
	return s
}

func (c *LRU[K, V]) String() string {
	s := c.Stats()
	return fmt.Sprintf("LRU[%s]: size=%d/%d hits=%d misses=%d evictions=%d",
		c.name, s.Size, c.maxSize, s.Hits, s.Misses, s.Evictions)
}
