package activerecord

import (
	"context"
	"slices"
)

// EventName 事件名
type EventName string

// 生命周期事件
const (
	EventBeforeValidate EventName = "beforeValidate"
	EventAfterValidate  EventName = "afterValidate"
	EventBeforeSave     EventName = "beforeSave"
	EventAfterSave      EventName = "afterSave"
	EventBeforeInsert   EventName = "beforeInsert"
	EventAfterInsert    EventName = "afterInsert"
	EventBeforeUpdate   EventName = "beforeUpdate"
	EventAfterUpdate    EventName = "afterUpdate"
	EventBeforeDelete   EventName = "beforeDelete"
	EventAfterDelete    EventName = "afterDelete"
)

// Result 事件处理结果
type Result int

const (
	// Continue 继续执行后续处理器与默认动作
	Continue Result = iota
	// Cancel 中止后续处理器，并取消默认动作
	Cancel
)

// Event 单次 Trigger 内共享的事件值
type Event struct {
	Name   EventName
	Sender *Record
	// Data 可选负载；beforeUpdate/afterUpdate 为本次更新的脏属性 map[string]any
	Data any
}

// Dirty 返回事件负载中的脏属性集合（非更新事件为 nil）
func (e *Event) Dirty() map[string]any {
	m, _ := e.Data.(map[string]any)
	return m
}

// Handler 事件处理器；返回 error 视为执行故障，同样中止后续处理器
type Handler func(ctx context.Context, e *Event) (Result, error)

// HandlerID On 返回的句柄，用于 Off
type HandlerID uint64

type subscription struct {
	id      HandlerID
	handler Handler
}

type events struct {
	nextID   HandlerID
	handlers map[EventName][]subscription
}

func (ev *events) on(name EventName, h Handler) HandlerID {
	if ev.handlers == nil {
		ev.handlers = map[EventName][]subscription{}
	}
	ev.nextID++
	ev.handlers[name] = append(ev.handlers[name], subscription{id: ev.nextID, handler: h})
	return ev.nextID
}

func (ev *events) off(name EventName, ids ...HandlerID) {
	if len(ids) == 0 {
		delete(ev.handlers, name)
		return
	}
	subs := slices.DeleteFunc(ev.handlers[name], func(s subscription) bool {
		return slices.Contains(ids, s.id)
	})
	if len(subs) == 0 {
		delete(ev.handlers, name)
		return
	}
	ev.handlers[name] = subs
}

func (ev *events) trigger(ctx context.Context, e *Event) (bool, error) {
	// 复制一份，处理器内部 On/Off 不影响本次分发
	subs := slices.Clone(ev.handlers[e.Name])
	for _, s := range subs {
		res, err := s.handler(ctx, e)
		if err != nil {
			return false, err
		}
		if res == Cancel {
			return false, nil
		}
	}
	return true, nil
}

// On 注册处理器，按注册顺序执行
func (r *Record) On(name EventName, h Handler) HandlerID {
	return r.events.on(name, h)
}

// Off 移除处理器；不传 id 时清空该事件的全部处理器
func (r *Record) Off(name EventName, ids ...HandlerID) {
	r.events.off(name, ids...)
}

// Trigger 依次调用处理器，任一处理器返回 Cancel 即停止并返回 false
func (r *Record) Trigger(ctx context.Context, name EventName, data any) (bool, error) {
	return r.events.trigger(ctx, &Event{Name: name, Sender: r, Data: data})
}

// HasEventHandlers 事件是否有处理器
func (r *Record) HasEventHandlers(name EventName) bool {
	return len(r.events.handlers[name]) > 0
}
