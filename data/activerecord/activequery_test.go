package activerecord

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcompat/data/db/basic"
	"arcompat/data/db/connection"
	"arcompat/data/query"
	"arcompat/errors"
	"arcompat/logging"
)

func TestActiveQuery_FilterAndOrder(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	active, err := f.users.Find().WhereMap(map[string]any{"status": 1}).All(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 4)

	ordered, err := f.users.Find().WhereMap(map[string]any{"status": 1}).
		OrderByColumns(query.Desc("age")).All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{32, 30, 28, 25}, recordAges(ordered))
	assert.False(t, ordered[0].IsNewRecord())
	assert.False(t, ordered[0].IsDirty())

	a, err := f.users.Find().WhereMap(map[string]any{"status": 1, "age": 25}).All(ctx)
	require.NoError(t, err)
	b, err := f.users.Find().WhereEq("status", 1).AndWhere(query.Equals("age", 25)).All(ctx)
	require.NoError(t, err)
	require.Len(t, a, 1)
	assert.Equal(t, a[0].ToArray(), b[0].ToArray())
}

func TestActiveQuery_TiedOrderKeepsPrimaryKeyOrder(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	db, err := f.reg.Resolve(ctx, "")
	require.NoError(t, err)
	_, err = db.Exec(ctx, `CREATE INDEX idx_users_status ON users(status)`)
	require.NoError(t, err)

	records, err := f.users.Find().OrderBy("status DESC").All(ctx)
	require.NoError(t, err)
	ids := make([]int64, len(records))
	for i, rec := range records {
		ids[i] = rec.GetAttribute("id").(int64)
	}
	assert.Equal(t, []int64{1, 2, 4, 5, 3}, ids)

	f.spy.Reset()
	_, err = f.users.Find().OrderBy("status DESC").All(ctx)
	require.NoError(t, err)
	stmts := f.spy.Statements()
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0].sql, "ORDER BY status DESC, id ASC")
}

func TestActiveQuery_OneAndFindHelpers(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	r, err := f.users.FindOneWhere(ctx, map[string]any{"name": "carol"})
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, int64(35), r.GetAttribute("age"))

	none, err := f.users.FindOne(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, none)

	all, err := f.users.FindAll(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	empty, err := f.users.Find().WhereEq("status", 9).All(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestActiveQuery_AsArrayAndIndexBy(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	rows, err := f.users.Find().AsArray(true).OrderBy("id").Fetch(ctx)
	require.NoError(t, err)
	require.IsType(t, []query.Row{}, rows)
	assert.Len(t, rows.([]query.Row), 5)

	byName, err := f.users.Find().IndexBy("name").Fetch(ctx)
	require.NoError(t, err)
	require.IsType(t, map[string]*Record{}, byName)
	assert.Equal(t, int64(30), byName.(map[string]*Record)["bob"].GetAttribute("age"))

	// 同键时后一行覆盖前一行
	byStatus, err := f.users.Find().OrderBy("id").AsArray(true).IndexBy("status").Fetch(ctx)
	require.NoError(t, err)
	idx := byStatus.(map[string]query.Row)
	assert.Len(t, idx, 2)
	assert.Equal(t, "erin", idx["1"]["name"])
	assert.Equal(t, "carol", idx["0"]["name"])

	custom, err := f.users.Find().IndexByFunc(func(row map[string]any) string {
		return row["name"].(string)[:1]
	}).Indexed(ctx)
	require.NoError(t, err)
	assert.Contains(t, custom, "a")
	assert.Contains(t, custom, "e")

	one, err := f.users.Find().WhereEq("name", "dave").OneArray(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(28), one["age"])
}

func TestActiveQuery_Terminals(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	n, err := f.users.Find().WhereEq("status", 1).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	ok, err := f.users.Find().WhereEq("name", "zoe").Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	names, err := f.users.Find().Select("name").OrderBy("age DESC").Limit(2).Column(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"carol", "erin"}, names)

	sum, err := f.users.Find().Sum(ctx, "age")
	require.NoError(t, err)
	assert.Equal(t, float64(150), sum)

	oldest, err := f.users.Find().Max(ctx, "age")
	require.NoError(t, err)
	assert.Equal(t, int64(35), oldest)
}

func TestActiveQuery_BatchKeepsSelectOrder(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	aq := f.posts.Find().Select("title", "user_id", "id").OrderBy("id")
	all, err := aq.All(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	want := []string{"title", "user_id", "id"}
	assert.Equal(t, want, all[0].AttributeNames())

	for page, err := range aq.Batch(ctx, 2) {
		require.NoError(t, err)
		for _, rec := range page {
			assert.Equal(t, want, rec.AttributeNames())
		}
	}
}

func TestActiveQuery_Batch(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	aq := f.users.Find().OrderBy("id")
	var sizes []int
	var ids []any
	for page, err := range aq.Batch(ctx, 2) {
		require.NoError(t, err)
		sizes = append(sizes, len(page))
		for _, r := range page {
			ids = append(ids, r.PrimaryKey())
		}
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, []any{int64(1), int64(2), int64(3), int64(4), int64(5)}, ids)
	assert.Equal(t, 0, aq.Query().GetLimit(), "原查询不受影响")

	count := 0
	for r, err := range aq.Each(ctx, 3) {
		require.NoError(t, err)
		require.NotNil(t, r)
		count++
		if count == 4 {
			break
		}
	}
	assert.Equal(t, 4, count)

	pages := 0
	for page, err := range aq.BatchArray(ctx, 5) {
		require.NoError(t, err)
		assert.Len(t, page, 5)
		pages++
	}
	assert.Equal(t, 1, pages)
}

func TestRelations_Lazy(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	alice, err := f.users.FindOne(ctx, 1)
	require.NoError(t, err)

	posts, err := alice.HasMany(ctx, f.posts, "user_id")
	require.NoError(t, err)
	assert.Len(t, posts, 2)

	viaName, err := alice.RelatedMany(ctx, "posts")
	require.NoError(t, err)
	assert.Len(t, viaName, 2)
	assert.False(t, alice.IsRelationPopulated("posts"), "懒加载结果不缓存")

	first, err := alice.HasOne(ctx, f.posts, "user_id")
	require.NoError(t, err)
	require.NotNil(t, first)

	author, err := posts[0].BelongsTo(ctx, f.users, "user_id")
	require.NoError(t, err)
	assert.Equal(t, "alice", author.GetAttribute("name"))

	carol, err := f.users.FindOne(ctx, 3)
	require.NoError(t, err)
	none, err := carol.RelatedMany(ctx, "posts")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = alice.Related(ctx, "comments")
	assert.True(t, errors.IsConfiguration(err))
}

func TestRelations_EagerLoading(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	users, err := f.users.Find().With("posts").OrderBy("id").All(ctx)
	require.NoError(t, err)
	assert.Len(t, f.spy.Statements(), 2, "主查询加一次关联查询")

	f.spy.Reset()
	alicePosts, err := users[0].RelatedMany(ctx, "posts")
	require.NoError(t, err)
	assert.Len(t, alicePosts, 2)
	bobPosts, err := users[1].RelatedMany(ctx, "posts")
	require.NoError(t, err)
	assert.Len(t, bobPosts, 1)
	carolPosts, err := users[2].RelatedMany(ctx, "posts")
	require.NoError(t, err)
	assert.NotNil(t, carolPosts)
	assert.Empty(t, carolPosts)
	assert.Empty(t, f.spy.Statements(), "已预加载的关联不再查询")

	posts, err := f.posts.Find().With("author").All(ctx)
	require.NoError(t, err)
	for _, p := range posts {
		author, err := p.RelatedOne(ctx, "author")
		require.NoError(t, err)
		require.NotNil(t, author)
		assert.Equal(t, p.GetAttribute("user_id"), author.PrimaryKey())
	}
}

func TestRelations_UnknownEagerLoadIgnored(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	prev := logging.GetLogger()
	rec := logging.NewRecordingLogger()
	logging.SetLogger(rec)
	t.Cleanup(func() { logging.SetLogger(prev) })

	users, err := f.users.Find().With("comments").All(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 5)
	assert.Len(t, f.spy.Statements(), 1)

	warns := rec.Filter(logging.WarnLevel)
	require.Len(t, warns, 1)
	v, _ := warns[0].Field("relation")
	assert.Equal(t, "comments", v)
}

func TestTransaction(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	err := f.users.Transaction(ctx, func(ctx context.Context) error {
		ok, err := f.users.New(map[string]any{"name": "tx", "email": "tx@example.com"}).Save(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		n, err := f.users.Find().Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(6), n)
		return errors.NewError(errors.ErrCodeInternal, "rollback")
	})
	require.Error(t, err)

	n, err := f.users.Find().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	tx, err := f.users.BeginTransaction(ctx, nil)
	require.NoError(t, err)
	r, err := f.users.FindOne(tx.Context(), 1)
	require.NoError(t, err)
	r.Set("age", 26)
	ok, err := r.Save(tx.Context())
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, tx.Commit())

	r, err = f.users.FindOne(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(26), r.GetAttribute("age"))
}

func TestConnectionRouting(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	archive := openSpy(t, f.reg, "archive")

	archived := Define(Meta{Table: "users", Connection: "archive"}).Using(f.reg)
	ok, err := archived.New(map[string]any{"name": "old", "email": "old@example.com"}).Save(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, archive.Statements(), 1)
	assert.Empty(t, f.spy.Statements())

	n, err := archived.Find().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	archived.SetConnectionName("")
	n, err = archived.Find().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	archived.SetConnectionName("missing")
	_, err = archived.Find().All(ctx)
	assert.True(t, errors.IsConnectionNotFound(err))
}

func TestFallbackConnection(t *testing.T) {
	ctx := context.Background()
	reg := connection.NewRegistry(basic.New)
	t.Cleanup(func() { _ = reg.Close() })

	m := Define(Meta{Table: "notes"}).Using(reg)
	_, err := m.Command("CREATE TABLE IF NOT EXISTS notes (id INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT)").Execute(ctx)
	require.NoError(t, err)

	r := m.New(map[string]any{"body": "hi"})
	ok, err := r.Save(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"default"}, reg.Names())
}
