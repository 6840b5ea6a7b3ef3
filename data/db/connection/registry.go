// Package connection 维护进程内的命名数据库连接表。
//
// 注册即建连；解析时若从未注册过任何连接，则使用兜底描述符
// （默认为共享内存 sqlite）自动初始化并设为默认连接。
// 事务按连接名隔离，不做跨连接协调。
package connection

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	core "arcompat/data/db"
	"arcompat/data/db/basic"
	"arcompat/errors"
	"arcompat/logging"
)

// FallbackConfig 内置兜底描述符
var FallbackConfig = core.ConnectionConfig{
	Driver:   core.DriverSQLite,
	Database: "file:arcompat?mode=memory&cache=shared",
}

// Resolver 按名称解析数据库句柄
type Resolver interface {
	// Resolve 解析连接名，"" 表示默认连接；ctx 中存在该连接的事务时返回事务句柄
	Resolve(ctx context.Context, name string) (core.IDatabase, error)
	// TablePrefix 返回连接的表名前缀
	TablePrefix(name string) string
}

type entry struct {
	cfg    core.ConnectionConfig
	db     core.IDatabase
	manual bool
}

// Registry 命名连接表，并发安全
type Registry struct {
	mu          sync.RWMutex
	opener      core.NewDatabaseFunc
	entries     map[string]*entry
	defaultName string

	fallbackOnce sync.Once
	fallbackErr  error
	fallback     core.ConnectionConfig

}

var _ Resolver = (*Registry)(nil)

// NewRegistry 创建连接表，opener 通常为 basic.New
func NewRegistry(opener core.NewDatabaseFunc) *Registry {
	return &Registry{
		opener:      opener,
		entries:     make(map[string]*entry),
		defaultName: core.DefaultConnectionName,
		fallback:    FallbackConfig,
	}
}

func (r *Registry) log() logging.Logger {
	return logging.GetLogger().WithFields(logging.Component("connection"))
}

// SetFallback 替换兜底描述符，需在首次解析前调用
func (r *Registry) SetFallback(cfg core.ConnectionConfig) {
	r.mu.Lock()
	r.fallback = cfg
	r.mu.Unlock()
}

// Register 校验描述符并立即建连。
//
// 同名且描述符一致时为空操作；描述符变化时先打开新句柄，再关闭该名称的旧句柄
// （RegisterHandle 注册的句柄归调用方所有，不会被关闭）。其他名称的句柄不受影响。
func (r *Registry) Register(ctx context.Context, name string, cfg core.ConnectionConfig) error {
	if name == "" {
		return errors.NewError(errors.ErrCodeConfiguration, "连接名不能为空")
	}
	cfg, err := cfg.WithDefaults()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.WrapError(err, errors.ErrCodeConfiguration, "连接描述符无效").WithContext("connection", name)
	}

	r.mu.RLock()
	existing, ok := r.entries[name]
	r.mu.RUnlock()
	if ok && !existing.manual && existing.cfg.Equal(cfg) {
		return nil
	}

	handle, err := r.opener(cfg)
	if err != nil {
		return errors.WrapError(err, errors.GetErrorCode(err), "建立连接失败").WithContext("connection", name)
	}

	r.mu.Lock()
	old := r.entries[name]
	r.entries[name] = &entry{cfg: cfg, db: handle}
	r.mu.Unlock()

	if old != nil && !old.manual && old.db != nil && old.db != handle {
		if err := old.db.Close(); err != nil {
			r.log().Warn(ctx, "关闭旧连接失败", logging.String("connection", name), logging.Error(err))
		}
	}

	r.log().Info(ctx, "注册数据库连接",
		logging.String("connection", name),
		logging.String("driver", cfg.Driver),
		logging.Bool("replaced", old != nil))
	return nil
}

// RegisterHandle 注册已打开的句柄（例如测试中的事务或外部创建的连接）；
// 句柄归调用方所有，替换与 Close 都不会关闭它
func (r *Registry) RegisterHandle(name string, handle core.IDatabase, cfg core.ConnectionConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{cfg: cfg, db: handle, manual: true}
}

// SetDefault 设置默认连接名
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		name = core.DefaultConnectionName
	}
	r.defaultName = name
}

// DefaultName 返回默认连接名
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// Resolve 见 Resolver
func (r *Registry) Resolve(ctx context.Context, name string) (core.IDatabase, error) {
	name = r.normalize(name)

	if tx := txFromContext(ctx, r, name); tx != nil {
		return tx, nil
	}

	r.mu.RLock()
	e, ok := r.entries[name]
	empty := len(r.entries) == 0
	r.mu.RUnlock()
	if ok {
		return e.db, nil
	}

	if empty {
		if err := r.initFallback(ctx); err != nil {
			return nil, err
		}
		r.mu.RLock()
		e, ok = r.entries[name]
		r.mu.RUnlock()
		if ok {
			return e.db, nil
		}
	}

	return nil, errors.Errorf(errors.ErrCodeConnectionNotFound, "连接不存在: %s", name).
		WithContext("connection", name)
}

// initFallback 只执行一次，即使并发首次解析
func (r *Registry) initFallback(ctx context.Context) error {
	r.fallbackOnce.Do(func() {
		r.mu.RLock()
		cfg, name := r.fallback, r.defaultName
		r.mu.RUnlock()

		r.log().Warn(ctx, "连接表未配置，使用兜底连接",
			logging.String("connection", name),
			logging.String("driver", cfg.Driver))
		r.fallbackErr = r.Register(ctx, name, cfg)
	})
	return r.fallbackErr
}

func (r *Registry) normalize(name string) string {
	if name != "" {
		return name
	}
	return r.DefaultName()
}

// Has 是否已注册
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[r.normalizeLocked(name)]
	return ok
}

func (r *Registry) normalizeLocked(name string) string {
	if name == "" {
		return r.defaultName
	}
	return name
}

// Names 已注册的连接名（排序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Config 返回连接描述符
func (r *Registry) Config(name string) (core.ConnectionConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[r.normalizeLocked(name)]
	if !ok {
		return core.ConnectionConfig{}, false
	}
	return e.cfg, true
}

// TablePrefix 见 Resolver
func (r *Registry) TablePrefix(name string) string {
	cfg, _ := r.Config(name)
	return cfg.Prefix
}

// Close 并发关闭自行建立的连接并清空连接表
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	var g errgroup.Group
	for name, e := range entries {
		if e.db == nil || e.manual {
			continue
		}
		g.Go(func() error {
			if err := e.db.Close(); err != nil {
				return errors.WrapError(err, errors.ErrCodeDatabase, "关闭连接失败").WithContext("connection", name)
			}
			return nil
		})
	}
	return g.Wait()
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default 返回进程级连接表，使用 basic.New 建连
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry(basic.New)
	})
	return defaultRegistry
}
