package feed

import (
	"context"
	"sync"
)

// MemoryPublisher 在内存中保存事件，用于测试与单进程场景
type MemoryPublisher struct {
	mu       sync.Mutex
	events   []ChangeEvent
	handlers []func(ChangeEvent)
}

// NewMemoryPublisher 创建内存发布者
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Subscribe 注册同步回调，Publish 时按注册顺序调用
func (p *MemoryPublisher) Subscribe(fn func(ChangeEvent)) {
	p.mu.Lock()
	p.handlers = append(p.handlers, fn)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Publish(_ context.Context, event ChangeEvent) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	handlers := append(([]func(ChangeEvent))(nil), p.handlers...)
	p.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

// Events 已发布事件的拷贝
func (p *MemoryPublisher) Events() []ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ChangeEvent(nil), p.events...)
}

// Reset 清空已发布事件
func (p *MemoryPublisher) Reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

func (p *MemoryPublisher) Close() error { return nil }
