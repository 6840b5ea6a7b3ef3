package activerecord

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	core "arcompat/data/db"
	"arcompat/data/db/basic"
	"arcompat/data/db/connection"
)

type statement struct {
	sql  string
	args []any
}

// spyDB 记录经过的语句，用于断言往返次数与更新负载
type spyDB struct {
	core.IDatabase
	mu    sync.Mutex
	stmts []statement
}

func (s *spyDB) record(q string, args []any) {
	s.mu.Lock()
	s.stmts = append(s.stmts, statement{sql: q, args: args})
	s.mu.Unlock()
}

func (s *spyDB) Query(ctx context.Context, q string, args ...any) (core.IRows, error) {
	s.record(q, args)
	return s.IDatabase.Query(ctx, q, args...)
}

func (s *spyDB) QueryRow(ctx context.Context, q string, args ...any) core.IRow {
	s.record(q, args)
	return s.IDatabase.QueryRow(ctx, q, args...)
}

func (s *spyDB) Exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	s.record(q, args)
	return s.IDatabase.Exec(ctx, q, args...)
}

func (s *spyDB) GetDialectName() string {
	return s.IDatabase.(core.IDialectNameProvider).GetDialectName()
}

func (s *spyDB) Statements() []statement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]statement(nil), s.stmts...)
}

func (s *spyDB) Reset() {
	s.mu.Lock()
	s.stmts = nil
	s.mu.Unlock()
}

const schema = `
CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	email TEXT UNIQUE,
	age INTEGER NOT NULL DEFAULT 0,
	status INTEGER NOT NULL DEFAULT 1,
	views INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER,
	title TEXT NOT NULL
);
CREATE TABLE counters (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	n INTEGER NOT NULL DEFAULT 0
);`

// openSpy 打开临时 sqlite 库并以 name 注册到 r
func openSpy(t *testing.T, r *connection.Registry, name string) *spyDB {
	t.Helper()
	ctx := context.Background()

	cfg := core.ConnectionConfig{Driver: "sqlite", Database: filepath.Join(t.TempDir(), name+".db")}
	db, err := basic.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	spy := &spyDB{IDatabase: db}
	r.RegisterHandle(name, spy, cfg)
	return spy
}

type fixture struct {
	reg   *connection.Registry
	spy   *spyDB
	users *Model
	posts *Model
}

// setup 创建 5 个用户：年龄 [25,30,35,28,32]，状态 [1,1,0,1,1]；alice 与 bob 各有文章
func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	reg := connection.NewRegistry(basic.New)
	t.Cleanup(func() { _ = reg.Close() })
	spy := openSpy(t, reg, "default")

	users := Define(Meta{
		Table:   "users",
		Columns: []string{"id", "name", "email", "age", "status", "views"},
		Rules:   map[string]string{"name": "required|min:2", "email": "email"},
	}).Using(reg)
	posts := Define(Meta{Table: "posts"}).Using(reg)
	users.Relate("posts", HasMany(posts, "user_id"))
	posts.Relate("author", BelongsTo(users, "user_id"))

	seed := []map[string]any{
		{"name": "alice", "email": "alice@example.com", "age": 25, "status": 1},
		{"name": "bob", "email": "bob@example.com", "age": 30, "status": 1},
		{"name": "carol", "email": "carol@example.com", "age": 35, "status": 0},
		{"name": "dave", "email": "dave@example.com", "age": 28, "status": 1},
		{"name": "erin", "email": "erin@example.com", "age": 32, "status": 1},
	}
	for _, attrs := range seed {
		ok, err := users.New(attrs).Save(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}
	for _, p := range []map[string]any{
		{"user_id": 1, "title": "a1"},
		{"user_id": 1, "title": "a2"},
		{"user_id": 2, "title": "b1"},
	} {
		ok, err := posts.New(p).Save(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}
	spy.Reset()
	return &fixture{reg: reg, spy: spy, users: users, posts: posts}
}

func recordAges(records []*Record) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.GetAttribute("age").(int64)
	}
	return out
}

type noIDResult struct{ sql.Result }

func (noIDResult) LastInsertId() (int64, error) {
	return 0, stdErrors.New("LastInsertId 不受支持")
}

// noIDDB 模拟不返回生成主键的驱动
type noIDDB struct{ *spyDB }

func (d *noIDDB) Exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	res, err := d.spyDB.Exec(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return noIDResult{res}, nil
}
