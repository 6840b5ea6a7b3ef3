package activerecord

// Binding 行为声明的事件订阅
type Binding struct {
	Event   EventName
	Handler Handler
}

// Behavior 可挂载到记录上的事件订阅者。
//
// 实现需嵌入 BaseBehavior。一个行为同一时刻只属于一条记录，
// 挂载到新记录时会先从原记录完整卸载。
type Behavior interface {
	// Bindings 返回挂载时要订阅的事件
	Bindings() []Binding
	// Owner 当前所属记录，未挂载时为 nil
	Owner() *Record
	// Name 挂载时使用的名称
	Name() string

	bind(owner *Record, name string)
	unbind()
}

// BaseBehavior 保存行为与所属记录的关联
type BaseBehavior struct {
	owner *Record
	name  string
}

func (b *BaseBehavior) Owner() *Record { return b.owner }
func (b *BaseBehavior) Name() string   { return b.name }

func (b *BaseBehavior) bind(owner *Record, name string) {
	b.owner = owner
	b.name = name
}

func (b *BaseBehavior) unbind() {
	b.owner = nil
}

// BehaviorSpec 模型声明的具名行为
type BehaviorSpec struct {
	Name     string
	Behavior Behavior
}

// Named 构造 BehaviorSpec
func Named(name string, b Behavior) BehaviorSpec {
	return BehaviorSpec{Name: name, Behavior: b}
}

type attachedBehavior struct {
	name     string
	behavior Behavior
	subs     map[EventName][]HandlerID
}

// AttachBehavior 以 name 挂载行为；同名行为先卸载，行为原属其他记录时先从原记录卸载
func (r *Record) AttachBehavior(name string, b Behavior) {
	if b == nil {
		return
	}
	r.DetachBehavior(name)
	if owner := b.Owner(); owner != nil {
		owner.DetachBehavior(b.Name())
	}

	ab := &attachedBehavior{name: name, behavior: b, subs: map[EventName][]HandlerID{}}
	b.bind(r, name)
	for _, bd := range b.Bindings() {
		if bd.Handler == nil {
			continue
		}
		ab.subs[bd.Event] = append(ab.subs[bd.Event], r.On(bd.Event, bd.Handler))
	}
	r.behaviors = append(r.behaviors, ab)
}

// DetachBehavior 卸载并返回行为；不存在时返回 nil
func (r *Record) DetachBehavior(name string) Behavior {
	for i, ab := range r.behaviors {
		if ab.name != name {
			continue
		}
		for ev, ids := range ab.subs {
			r.Off(ev, ids...)
		}
		ab.behavior.unbind()
		r.behaviors = append(r.behaviors[:i:i], r.behaviors[i+1:]...)
		return ab.behavior
	}
	return nil
}

// Behavior 按名称返回已挂载的行为
func (r *Record) Behavior(name string) Behavior {
	for _, ab := range r.behaviors {
		if ab.name == name {
			return ab.behavior
		}
	}
	return nil
}

// Behaviors 按挂载顺序返回行为名
func (r *Record) Behaviors() []string {
	names := make([]string, len(r.behaviors))
	for i, ab := range r.behaviors {
		names[i] = ab.name
	}
	return names
}
