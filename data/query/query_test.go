package query

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "arcompat/data/db"
	"arcompat/data/db/basic"
	"arcompat/data/db/connection"
	"arcompat/data/db/dialect"
	"arcompat/errors"
)

// setupUsers 创建 5 个用户：年龄 [25,30,35,28,32]，状态 [1,1,0,1,1]
func setupUsers(t *testing.T) *connection.Registry {
	t.Helper()
	ctx := context.Background()

	r := connection.NewRegistry(basic.New)
	t.Cleanup(func() { _ = r.Close() })
	require.NoError(t, r.Register(ctx, "default", core.ConnectionConfig{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "query.db"),
	}))

	db, err := r.Resolve(ctx, "")
	require.NoError(t, err)
	_, err = db.Exec(ctx, `CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		age INTEGER NOT NULL,
		status INTEGER NOT NULL,
		team TEXT
	)`)
	require.NoError(t, err)

	users := []struct {
		name   string
		age    int
		status int
		team   any
	}{
		{"alice", 25, 1, "red"},
		{"bob", 30, 1, "blue"},
		{"carol", 35, 0, "red"},
		{"dave", 28, 1, nil},
		{"erin", 32, 1, "blue"},
	}
	for _, u := range users {
		_, err := db.Exec(ctx, `INSERT INTO users (name, age, status, team) VALUES (?, ?, ?, ?)`,
			u.name, u.age, u.status, u.team)
		require.NoError(t, err)
	}
	return r
}

func ages(rows []Row) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r["age"].(int64)
	}
	return out
}

func TestConditionBuild(t *testing.T) {
	tests := []struct {
		name     string
		cond     Condition
		wantSQL  string
		wantArgs []any
	}{
		{name: "等值", cond: Equals("status", 1), wantSQL: "status = ?", wantArgs: []any{1}},
		{name: "等值nil", cond: Equals("deleted_at", nil), wantSQL: "deleted_at IS NULL"},
		{name: "比较", cond: Op(">=", "age", 18), wantSQL: "age >= ?", wantArgs: []any{18}},
		{name: "不等", cond: Op("!=", "age", 18), wantSQL: "age <> ?", wantArgs: []any{18}},
		{name: "like", cond: Op("LIKE", "name", "a%"), wantSQL: "name LIKE ?", wantArgs: []any{"a%"}},
		{name: "in切片", cond: In("id", []int{1, 2, 3}), wantSQL: "id IN (?, ?, ?)", wantArgs: []any{1, 2, 3}},
		{name: "in空", cond: In("id"), wantSQL: "1=0"},
		{name: "notin空", cond: NotIn("id", []int{}), wantSQL: "1=1"},
		{name: "between", cond: Between("age", 20, 30), wantSQL: "age BETWEEN ? AND ?", wantArgs: []any{20, 30}},
		{name: "not between", cond: Op("not  between", "age", 20, 30), wantSQL: "age NOT BETWEEN ? AND ?", wantArgs: []any{20, 30}},
		{name: "is null", cond: IsNull("team"), wantSQL: "team IS NULL"},
		{name: "hash排序", cond: Hash(map[string]any{"status": 1, "age": 25, "id": []int64{7, 8}}),
			wantSQL: "age = ? AND id IN (?, ?) AND status = ?", wantArgs: []any{25, int64(7), int64(8), 1}},
		{name: "raw", cond: Raw("age > ? AND id IN (?)", 3, []int{4, 5}), wantSQL: "age > ? AND id IN (?, ?)", wantArgs: []any{3, 4, 5}},
		{name: "raw命名", cond: RawNamed("age > :min AND name <> :name", map[string]any{":min": 3, "name": "x"}),
			wantSQL: "age > ? AND name <> ?", wantArgs: []any{3, "x"}},
		{name: "嵌套", cond: Or(Equals("a", 1), And(Equals("b", 2), Op("<", "c", 3))),
			wantSQL: "a = ? OR (b = ? AND c < ?)", wantArgs: []any{1, 2, 3}},
		{name: "not", cond: Not(Or(Equals("a", 1), Equals("b", 2))), wantSQL: "NOT (a = ? OR b = ?)", wantArgs: []any{1, 2}},
		{name: "空组合", cond: And(Condition{}, Or()), wantSQL: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.cond.Build()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			if diff := cmp.Diff(tt.wantArgs, args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConditionBuild_Errors(t *testing.T) {
	for _, c := range []Condition{
		Equals("name; DROP TABLE users", 1),
		Op("~", "name", 1),
		Op(">", "age", 1, 2),
		Op("between", "age", 1),
	} {
		_, _, err := c.Build()
		assert.Error(t, err, c.op)
	}
}

func TestWhereComposition(t *testing.T) {
	q := Table("users").
		WhereEq("status", 1).
		AndWhere(Op(">", "age", 20)).
		OrWhere(Equals("name", "root"))

	sql, args, err := q.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE (status = ? AND age > ?) OR name = ?", sql)
	assert.Equal(t, []any{1, 20, "root"}, args)
}

func TestOrderParsing(t *testing.T) {
	orders := ParseOrder("age DESC, name, score sideways, LENGTH(name) asc")
	assert.Equal(t, []Order{
		{Column: "age", Desc: true},
		{Column: "name"},
		{Column: "score"},
		{Column: "LENGTH(name)", Raw: true},
	}, orders)

	q := Table("users").OrderBy("age DESC").OrderBy("name").AddOrderBy("id", "DESC").AddOrderBy("x", "bogus")
	sql, _, err := q.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users ORDER BY name ASC, id DESC, x ASC", sql)
}

func TestLimitOffsetLastWins(t *testing.T) {
	sql, args, err := Table("users").Limit(5).Limit(2).Offset(10).Offset(4).ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users LIMIT ? OFFSET ?", sql)
	assert.Equal(t, []any{2, 4}, args)
}

func TestFromValidation(t *testing.T) {
	_, _, err := Table("users u").Select("u.id").ToSQL()
	assert.NoError(t, err)
	_, _, err = Table("users AS u").ToSQL()
	assert.NoError(t, err)
	_, _, err = Table("users; DROP").ToSQL()
	assert.True(t, errors.IsConfiguration(err))
	_, _, err = New().ToSQL()
	assert.True(t, errors.IsConfiguration(err))

	sql, _, err := Table("{{%users}}").Build(dialect.New("unknown"), "app_")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM app_users", sql)
}

func TestScenario_FilterAndOrder(t *testing.T) {
	ctx := context.Background()
	r := setupUsers(t)

	active, err := Table("users").Using(r).WhereMap(map[string]any{"status": 1}).All(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 4)

	sorted, err := Table("users").Using(r).WhereMap(map[string]any{"status": 1}).
		OrderByColumns(Desc("age")).All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{32, 30, 28, 25}, ages(sorted))
}

func TestPages_CarryColumns(t *testing.T) {
	ctx := context.Background()
	r := setupUsers(t)

	var count int
	for page, err := range Table("users").Using(r).Select("name", "id").OrderBy("id").Pages(ctx, 2) {
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "id"}, page.Columns)
		count += len(page.Rows)
	}
	assert.Equal(t, 5, count)
}

func TestTieBreaker_SQL(t *testing.T) {
	tests := []struct {
		name  string
		query *Query
		want  string
	}{
		{"追加主键", Table("users").TieBreaker("id").OrderBy("status DESC"),
			"SELECT * FROM users ORDER BY status DESC, id ASC"},
		{"已含主键", Table("users").TieBreaker("id").OrderBy("id DESC, status"),
			"SELECT * FROM users ORDER BY id DESC, status ASC"},
		{"无排序", Table("users").TieBreaker("id"), "SELECT * FROM users"},
		{"连接时限定", Table("users u").TieBreaker("id").InnerJoin("posts p", "p.user_id = u.id").OrderBy("p.title"),
			"SELECT * FROM users u INNER JOIN posts p ON p.user_id = u.id ORDER BY p.title ASC, u.id ASC"},
		{"分组时跳过", Table("users").TieBreaker("id").Select("team").GroupBy("team").OrderBy("team"),
			"SELECT team FROM users GROUP BY team ORDER BY team ASC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, _, err := tt.query.ToSQL()
			require.NoError(t, err)
			assert.Equal(t, tt.want, sql)
		})
	}
}

func TestScenario_TiedOrderKeepsInsertOrder(t *testing.T) {
	ctx := context.Background()
	r := setupUsers(t)
	db, err := r.Resolve(ctx, "")
	require.NoError(t, err)
	_, err = db.Exec(ctx, `CREATE INDEX idx_users_status ON users(status)`)
	require.NoError(t, err)

	rows, err := Table("users").Using(r).TieBreaker("id").OrderBy("status DESC").All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "dave", "erin", "carol"}, names(rows))
}

func TestMapAndChainedEquivalence(t *testing.T) {
	ctx := context.Background()
	r := setupUsers(t)

	a, err := Table("users").Using(r).WhereMap(map[string]any{"status": 1, "age": 25}).All(ctx)
	require.NoError(t, err)
	b, err := Table("users").Using(r).WhereEq("status", 1).AndWhere(Equals("age", 25)).All(ctx)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	require.Len(t, a, 1)
	assert.Equal(t, "alice", a[0]["name"])
}

func TestTerminals(t *testing.T) {
	ctx := context.Background()
	r := setupUsers(t)
	q := Table("users").Using(r)

	one, err := q.Clone().WhereEq("name", "bob").One(ctx)
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, int64(30), one["age"])

	none, err := q.Clone().WhereEq("name", "nobody").One(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	n, err := q.Clone().WhereEq("status", 1).OrderBy("age").Limit(1).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n, "Count 忽略排序与分页")

	groups, err := q.Clone().Select("team").Distinct(true).WhereNotNull("team").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), groups)

	ok, err := q.Clone().Where(Op(">", "age", 34)).Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = q.Clone().Where(Op(">", "age", 99)).Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	sum, err := q.Clone().WhereEq("status", 1).Sum(ctx, "age")
	require.NoError(t, err)
	assert.Equal(t, float64(115), sum)

	avg, err := q.Clone().WhereIn("name", "alice", "bob").Avg(ctx, "age")
	require.NoError(t, err)
	assert.InDelta(t, 27.5, avg, 0.001)

	mx, err := q.Clone().Max(ctx, "age")
	require.NoError(t, err)
	assert.Equal(t, int64(35), mx)

	mn, err := q.Clone().WhereEq("team", "blue").Min(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, "bob", mn)

	emptySum, err := q.Clone().Where(Op(">", "age", 99)).Sum(ctx, "age")
	require.NoError(t, err)
	assert.Zero(t, emptySum)

	names, err := q.Clone().OrderBy("age DESC").Limit(2).Pluck(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, []any{"carol", "erin"}, names)

	keyed, err := q.Clone().WhereNotNull("team").PluckKeyed(ctx, "team", "name")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"alice": "red", "bob": "blue", "carol": "red", "erin": "blue"}, keyed)

	v, err := q.Clone().WhereEq("name", "dave").Value(ctx, "team")
	require.NoError(t, err)
	assert.Nil(t, v)

	s, err := q.Clone().Select("COUNT(*)").Scalar(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), s)

	grouped, err := q.Clone().Select("team", "COUNT(*) AS n").WhereNotNull("team").
		GroupBy("team").Having(Raw("COUNT(*) > ?", 1)).OrderBy("team").All(ctx)
	require.NoError(t, err)
	assert.Len(t, grouped, 2)
}

func TestJoin(t *testing.T) {
	ctx := context.Background()
	r := setupUsers(t)
	db, err := r.Resolve(ctx, "")
	require.NoError(t, err)
	_, err = db.Exec(ctx, `CREATE TABLE posts (id INTEGER PRIMARY KEY, user_id INTEGER, title TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `INSERT INTO posts (user_id, title) VALUES (1, 'a'), (1, 'b'), (2, 'c')`)
	require.NoError(t, err)

	rows, err := Table("users u").Using(r).
		Select("u.name", "COUNT(p.id) AS posts").
		LeftJoin("posts p", "p.user_id = u.id").
		GroupBy("u.id", "u.name").
		OrderBy("u.id").
		Limit(3).
		All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(2), rows[0]["posts"])
	assert.Equal(t, int64(0), rows[2]["posts"])
}

func TestBatch(t *testing.T) {
	ctx := context.Background()
	r := setupUsers(t)

	tests := []struct {
		name      string
		query     *Query
		size      int
		wantPages []int
	}{
		{name: "余数页", query: Table("users").OrderBy("id"), size: 2, wantPages: []int{2, 2, 1}},
		{name: "整除", query: Table("users").OrderBy("id"), size: 5, wantPages: []int{5}},
		{name: "大页", query: Table("users").OrderBy("id"), size: 10, wantPages: []int{5}},
		{name: "带limit", query: Table("users").OrderBy("id").Offset(1).Limit(3), size: 2, wantPages: []int{2, 1}},
		{name: "空结果", query: Table("users").WhereEq("age", 0), size: 2, wantPages: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.query.Using(r)
			before, _, _ := q.ToSQL()

			var sizes []int
			var all []Row
			for page, err := range q.Batch(ctx, tt.size) {
				require.NoError(t, err)
				sizes = append(sizes, len(page))
				all = append(all, page...)
			}
			assert.Equal(t, tt.wantPages, sizes)

			after, _, _ := q.ToSQL()
			assert.Equal(t, before, after, "Batch 不应修改原查询")

			unpaged, err := q.All(ctx)
			require.NoError(t, err)
			if len(unpaged) == 0 {
				assert.Empty(t, all)
			} else {
				assert.Equal(t, unpaged, all)
			}
		})
	}
}

func TestBatch_RestartableAndEach(t *testing.T) {
	ctx := context.Background()
	r := setupUsers(t)
	seq := Table("users").Using(r).OrderBy("id").Batch(ctx, 3)

	count := func() int {
		n := 0
		for page, err := range seq {
			require.NoError(t, err)
			n += len(page)
		}
		return n
	}
	assert.Equal(t, 5, count())
	assert.Equal(t, 5, count(), "序列可重复迭代")

	var names []any
	for row, err := range Table("users").Using(r).OrderBy("id").Each(ctx, 2) {
		require.NoError(t, err)
		names = append(names, row["name"])
		if len(names) == 3 {
			break
		}
	}
	assert.Equal(t, []any{"alice", "bob", "carol"}, names)

	pages := 0
	err := Table("users").Using(r).Chunk(ctx, 2, func(page []Row) (bool, error) {
		pages++
		return pages < 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
}

func TestTransactionAwareResolution(t *testing.T) {
	ctx := context.Background()
	r := setupUsers(t)

	err := r.Transaction(ctx, "", func(ctx context.Context) error {
		db, err := r.Resolve(ctx, "")
		require.NoError(t, err)
		_, err = db.Exec(ctx, `DELETE FROM users WHERE status = 0`)
		require.NoError(t, err)

		n, err := Table("users").Using(r).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n, "事务内读取到未提交的删除")
		return errors.NewError(errors.ErrCodeInternal, "rollback")
	})
	require.Error(t, err)

	n, err := Table("users").Using(r).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestUnknownConnection(t *testing.T) {
	r := setupUsers(t)
	_, err := Table("users").Using(r).On("missing").All(context.Background())
	assert.True(t, errors.IsConnectionNotFound(err))
}

func names(rows []Row) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i], _ = row["name"].(string)
	}
	return out
}
