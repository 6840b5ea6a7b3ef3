// Package activerecord 在 query/command 之上提供 ActiveRecord 风格的记录与查询。
//
// 模型由 Define(Meta) 声明一次，之后通过 Model 创建、查找记录。
// 记录维护当前与原始两份属性快照，更新时只发送脏属性；
// 生命周期事件可被行为取消，取消与校验失败都以 false 返回而不是 error。
package activerecord

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"unicode"

	core "arcompat/data/db"
	"arcompat/data/db/command"
	"arcompat/data/db/connection"
	"arcompat/data/query"
	"arcompat/logging"
)

// DefaultPrimaryKey 默认主键列
const DefaultPrimaryKey = "id"

// Meta 模型声明
type Meta struct {
	// Name 模型名；Table 为空时由其推导表名（UserProfile → user_profiles）
	Name string
	// Table 表名，支持 {{%name}} 形式的前缀占位
	Table      string
	PrimaryKey string
	// Connection 连接名，空表示默认连接
	Connection string
	// Columns 属性的规范顺序，仅影响属性排列与 ToJSON 输出
	Columns []string
	// Fillable 非空时 SetAttributes 只接受其中的属性
	Fillable []string
	// Guarded Fillable 为空时 SetAttributes 拒绝其中的属性
	Guarded []string
	// Rules 校验规则，属性名→"required|min:3"
	Rules    map[string]string
	Messages map[string]string
	// Behaviors 每条记录创建时调用一次，行为实例不在记录间共享
	Behaviors func() []BehaviorSpec
	Relations map[string]Relation
}

// Model 已声明的模型
type Model struct {
	meta Meta

	mu        sync.RWMutex
	conn      string
	registry  *connection.Registry
	relations map[string]Relation
}

// Define 声明模型
func Define(meta Meta) *Model {
	if meta.PrimaryKey == "" {
		meta.PrimaryKey = DefaultPrimaryKey
	}
	if meta.Table == "" && meta.Name != "" {
		meta.Table = TableNameFor(meta.Name)
	}
	m := &Model{meta: meta, conn: meta.Connection, relations: map[string]Relation{}}
	for name, rel := range meta.Relations {
		m.relations[name] = rel
	}
	return m
}

// TableNameFor 由模型名推导表名：驼峰转下划线并加 s
func TableNameFor(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String() + "s"
}

// Meta 返回模型声明
func (m *Model) Meta() Meta { return m.meta }

// TableName 返回声明的表名（未展开前缀）
func (m *Model) TableName() string { return m.meta.Table }

// PrimaryKey 返回主键列名
func (m *Model) PrimaryKey() string { return m.meta.PrimaryKey }

// Using 指定连接表，nil 表示进程级连接表
func (m *Model) Using(r *connection.Registry) *Model {
	m.mu.Lock()
	m.registry = r
	m.mu.Unlock()
	return m
}

// Registry 返回模型使用的连接表
func (m *Model) Registry() *connection.Registry {
	m.mu.RLock()
	r := m.registry
	m.mu.RUnlock()
	if r == nil {
		return connection.Default()
	}
	return r
}

// SetConnectionName 切换模型的连接名，影响之后创建的查询与记录操作
func (m *Model) SetConnectionName(name string) {
	m.mu.Lock()
	m.conn = name
	m.mu.Unlock()
}

// ConnectionName 返回连接名，空表示默认连接
func (m *Model) ConnectionName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

// Relate 声明关联；用于 Define 时目标模型尚未声明的场景
func (m *Model) Relate(name string, rel Relation) *Model {
	m.mu.Lock()
	m.relations[name] = rel
	m.mu.Unlock()
	return m
}

// Relation 返回已声明的关联
func (m *Model) Relation(name string) (Relation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rel, ok := m.relations[name]
	return rel, ok
}

func (m *Model) log() logging.Logger {
	return logging.GetLogger().WithFields(
		logging.Component("activerecord"),
		logging.String("table", m.meta.Table))
}

// New 创建新记录；attrs 按 Fillable/Guarded 过滤
func (m *Model) New(attrs map[string]any) *Record {
	r := m.newRecord()
	r.SetAttributes(attrs, true)
	return r
}

// FromArray 由一行数据水合出已持久化的记录
func (m *Model) FromArray(data map[string]any) *Record {
	return m.hydrate(nil, data)
}

func (m *Model) hydrate(cols []string, row map[string]any) *Record {
	r := m.newRecord()
	order := cols
	if len(m.meta.Columns) > 0 {
		order = append(append([]string(nil), m.meta.Columns...), cols...)
	}
	r.attrs = AttributesOf(row, order...)
	r.old = r.attrs.Clone()
	r.isNew = false
	return r
}

func (m *Model) newRecord() *Record {
	r := &Record{model: m, attrs: NewAttributes(), isNew: true}
	if m.meta.Behaviors != nil {
		for _, spec := range m.meta.Behaviors() {
			r.AttachBehavior(spec.Name, spec.Behavior)
		}
	}
	return r
}

// Find 创建以本模型为目标的查询
func (m *Model) Find() *ActiveQuery {
	return newActiveQuery(m)
}

// FindOne 按主键查找；不存在时返回 nil, nil
func (m *Model) FindOne(ctx context.Context, pk any) (*Record, error) {
	return m.Find().WhereEq(m.meta.PrimaryKey, pk).One(ctx)
}

// FindOneWhere 按列值相等查找第一条
func (m *Model) FindOneWhere(ctx context.Context, cond map[string]any) (*Record, error) {
	return m.Find().WhereMap(cond).One(ctx)
}

// FindAll 按列值相等查找全部；cond 为空时返回整表
func (m *Model) FindAll(ctx context.Context, cond map[string]any) ([]*Record, error) {
	return m.Find().WhereMap(cond).All(ctx)
}

// DB 解析模型连接的句柄（ctx 中的事务优先）
func (m *Model) DB(ctx context.Context) (core.IDatabase, error) {
	return m.Registry().Resolve(ctx, m.ConnectionName())
}

// Transaction 在模型连接的事务中执行 fn，fn 内经 ctx 的模型操作都落在该事务中
func (m *Model) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.Registry().Transaction(ctx, m.ConnectionName(), fn)
}

// Tx 手动管理的事务
type Tx struct {
	ctx context.Context
	tx  core.ITransaction
}

// Context 返回绑定了事务的 ctx
func (t *Tx) Context() context.Context { return t.ctx }

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// BeginTransaction 在模型连接上开启事务；之后的操作需使用 Tx.Context()
func (m *Model) BeginTransaction(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	reg := m.Registry()
	tx, err := reg.Begin(ctx, m.ConnectionName(), opts)
	if err != nil {
		return nil, err
	}
	return &Tx{ctx: reg.WithTx(ctx, m.ConnectionName(), tx), tx: tx}, nil
}

// Command 在模型连接上创建原始 SQL 命令
func (m *Model) Command(sql string, args ...any) *command.Command {
	return command.For(m.Registry(), m.ConnectionName(), sql, args...)
}

// query 创建绑定模型连接与表的基础查询
func (m *Model) query() *query.Query {
	return query.Table(m.meta.Table).Using(m.Registry()).On(m.ConnectionName()).TieBreaker(m.meta.PrimaryKey)
}

// resolvedTable 展开 {{%name}} 前缀后的表名
func (m *Model) resolvedTable() string {
	t := m.meta.Table
	if strings.HasPrefix(t, "{{") && strings.HasSuffix(t, "}}") {
		t = strings.TrimSuffix(strings.TrimPrefix(t, "{{"), "}}")
		if strings.HasPrefix(t, "%") {
			t = m.Registry().TablePrefix(m.ConnectionName()) + t[1:]
		}
	}
	return t
}
