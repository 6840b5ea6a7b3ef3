package activerecord

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "arcompat/data/db"
	"arcompat/data/query"
	"arcompat/errors"
)

func TestSave_InsertAssignsPrimaryKey(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	r := f.users.New(map[string]any{"name": "frank", "email": "frank@example.com", "age": 40})
	assert.True(t, r.IsNewRecord())
	assert.Nil(t, r.PrimaryKey())

	ok, err := r.Save(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, r.IsNewRecord())
	assert.Equal(t, int64(6), r.PrimaryKey())
	assert.False(t, r.IsDirty())
	assert.Len(t, f.spy.Statements(), 1)
}

func TestSave_InsertWithoutAttributesUsesDefaults(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	counters := Define(Meta{Table: "counters"}).Using(f.reg)

	for i, attrs := range []map[string]any{nil, {"id": nil}} {
		r := counters.New(attrs)
		ok, err := r.Save(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(i+1), r.PrimaryKey())
	}

	got, err := counters.FindOne(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(0), got.GetAttribute("n"))
}

func TestSave_InsertWithoutGeneratedIDIsPersisted(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.reg.RegisterHandle("noid", &noIDDB{spyDB: f.spy}, core.ConnectionConfig{Driver: "sqlite"})
	users := Define(Meta{Table: "users"}).Using(f.reg)
	users.SetConnectionName("noid")

	r := users.New(map[string]any{"name": "kim", "email": "kim@example.com"})
	ok, err := r.Save(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, r.IsNewRecord())

	// 重试不会再次插入
	_, err = r.Save(ctx)
	require.NoError(t, err)
	n, err := f.users.Find().WhereEq("email", "kim@example.com").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSave_AfterEventFailureReportsWrittenRow(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	boom := errors.NewError(errors.ErrCodeInternal, "boom")

	r := f.users.New(map[string]any{"name": "lena", "email": "lena@example.com"})
	r.On(EventAfterInsert, func(context.Context, *Event) (Result, error) { return Continue, boom })
	ok, err := r.Save(ctx)
	assert.ErrorIs(t, err, boom)
	assert.True(t, ok)
	assert.False(t, r.IsNewRecord())

	u, err := f.users.FindOne(ctx, 1)
	require.NoError(t, err)
	u.On(EventAfterUpdate, func(context.Context, *Event) (Result, error) { return Continue, boom })
	u.Set("age", 26)
	ok, err = u.Save(ctx)
	assert.ErrorIs(t, err, boom)
	assert.True(t, ok)
	assert.False(t, u.IsDirty())
}

func TestSave_NoChangesNoRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	r, err := f.users.FindOne(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, r)
	f.spy.Reset()

	// int 与 int64 的同值写入不算修改
	r.Set("age", 30)
	ok, err := r.Save(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.spy.Statements())
}

func TestSave_UpdateSendsOnlyDirtyColumns(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	r, err := f.users.FindOne(ctx, 2)
	require.NoError(t, err)
	f.spy.Reset()

	r.Set("age", 31)
	assert.Equal(t, map[string]any{"age": 31}, r.DirtyAttributes())

	ok, err := r.Save(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	stmts := f.spy.Statements()
	require.Len(t, stmts, 1)
	assert.Equal(t, `UPDATE "users" SET "age" = ? WHERE "id" = ?`, stmts[0].sql)
	assert.Equal(t, []any{31, int64(2)}, stmts[0].args)
	assert.False(t, r.IsDirty())

	fresh, err := f.users.FindOne(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(31), fresh.GetAttribute("age"))
	assert.Equal(t, "bob", fresh.GetAttribute("name"))
}

func TestSave_ValidationFailure(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	var fired []EventName
	r := f.users.New(map[string]any{"name": "x", "email": "bad"})
	for _, ev := range []EventName{EventBeforeValidate, EventAfterValidate, EventBeforeSave} {
		r.On(ev, func(_ context.Context, e *Event) (Result, error) {
			fired = append(fired, e.Name)
			return Continue, nil
		})
	}

	ok, err := r.Save(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, r.IsNewRecord())
	assert.True(t, r.HasErrors())
	assert.Contains(t, r.Errors(), "name")
	assert.Contains(t, r.Errors(), "email")
	assert.NotEmpty(t, r.FirstError("email"))
	assert.Equal(t, []EventName{EventBeforeValidate, EventAfterValidate}, fired)
	assert.Empty(t, f.spy.Statements())

	// 跳过校验可以保存
	ok, err = r.SaveWithoutValidation(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSave_EventOrder(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	var fired []EventName
	r := f.users.New(map[string]any{"name": "gina", "email": "gina@example.com"})
	for _, ev := range []EventName{
		EventBeforeValidate, EventAfterValidate, EventBeforeSave, EventAfterSave,
		EventBeforeInsert, EventAfterInsert, EventBeforeUpdate, EventAfterUpdate,
	} {
		r.On(ev, func(_ context.Context, e *Event) (Result, error) {
			fired = append(fired, e.Name)
			return Continue, nil
		})
	}

	_, err := r.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, []EventName{
		EventBeforeValidate, EventAfterValidate, EventBeforeSave,
		EventBeforeInsert, EventAfterInsert, EventAfterSave,
	}, fired)

	fired = nil
	r.Set("age", 50)
	_, err = r.SaveWithoutValidation(ctx)
	require.NoError(t, err)
	assert.Equal(t, []EventName{EventBeforeSave, EventBeforeUpdate, EventAfterUpdate, EventAfterSave}, fired)
}

func TestSave_UpdateEventsCarryDirtySet(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	r, err := f.users.FindOne(ctx, 1)
	require.NoError(t, err)

	var before, after map[string]any
	r.On(EventBeforeUpdate, func(_ context.Context, e *Event) (Result, error) {
		before = e.Dirty()
		return Continue, nil
	})
	r.On(EventAfterUpdate, func(_ context.Context, e *Event) (Result, error) {
		after = e.Dirty()
		return Continue, nil
	})

	r.Set("status", 0)
	_, err = r.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": 0}, before)
	assert.Equal(t, map[string]any{"status": 0}, after)
}

func TestSave_CancelledBeforeSave(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	r := f.users.New(map[string]any{"name": "henry", "email": "henry@example.com"})
	r.On(EventBeforeSave, func(context.Context, *Event) (Result, error) { return Cancel, nil })

	ok, err := r.Save(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, r.IsNewRecord())
	assert.Empty(t, f.spy.Statements())
}

func TestSave_HandlerErrorPropagates(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	boom := errors.NewError(errors.ErrCodeInternal, "boom")
	r := f.users.New(map[string]any{"name": "ivy", "email": "ivy@example.com"})
	r.On(EventBeforeInsert, func(context.Context, *Event) (Result, error) { return Continue, boom })

	ok, err := r.Save(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
	assert.True(t, r.IsNewRecord())
}

func TestSave_FailedInsertLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	r := f.users.New(map[string]any{"name": "dup", "email": "alice@example.com"})
	before := r.Attributes()

	ok, err := r.Save(ctx)
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDuplicate))
	assert.True(t, r.IsNewRecord())
	assert.Equal(t, before, r.Attributes())
	assert.Empty(t, r.OldAttributes())

	// 修正后重试成功
	r.Set("email", "dup@example.com")
	ok, err = r.Save(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSave_FailedUpdateLeavesSnapshot(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	r, err := f.users.FindOne(ctx, 2)
	require.NoError(t, err)
	r.Set("email", "alice@example.com")

	ok, err := r.Save(ctx)
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, r.IsDirty("email"))
	assert.Equal(t, "bob@example.com", r.OldAttributes()["email"])
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	r, err := f.users.FindOne(ctx, 3)
	require.NoError(t, err)

	ok, err := r.Delete(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, r.IsDeleted())

	gone, err := f.users.FindOne(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, gone)

	// 已删除的记录不能再保存
	r.Set("name", "again")
	ok, err = r.Save(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete_NewRecordNoRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	ok, err := f.users.New(map[string]any{"name": "zed"}).Delete(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.spy.Statements())
}

func TestDelete_Vetoed(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	r, err := f.users.FindOne(ctx, 1)
	require.NoError(t, err)
	r.On(EventBeforeDelete, func(context.Context, *Event) (Result, error) { return Cancel, nil })

	ok, err := r.Delete(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	still, err := f.users.FindOne(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, still)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	r, err := f.users.FindOne(ctx, 4)
	require.NoError(t, err)
	r.Set("name", "local")

	_, err = f.users.Command("UPDATE {{users}} SET [[age]] = :age WHERE [[id]] = :id").
		BindValues(map[string]any{":age": 99, ":id": 4}).Execute(ctx)
	require.NoError(t, err)

	ok, err := r.Refresh(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(99), r.GetAttribute("age"))
	assert.Equal(t, "dave", r.GetAttribute("name"))
	assert.False(t, r.IsDirty())

	ok, err = f.users.New(nil).Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFromArrayToArrayRoundTrip(t *testing.T) {
	m := Define(Meta{Name: "UserProfile", Columns: []string{"id", "name"}})
	assert.Equal(t, "user_profiles", m.TableName())

	data := map[string]any{"id": int64(7), "name": "kay", "tags": []string{"a"}, "score": nil}
	r := m.FromArray(data)
	assert.False(t, r.IsNewRecord())
	assert.Equal(t, data, r.ToArray())
	assert.False(t, r.IsDirty())
	assert.Equal(t, []string{"id", "name", "score", "tags"}, r.AttributeNames())

	out, err := r.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"name":"kay","score":null,"tags":["a"]}`, string(out))
	assert.Equal(t, `{"id":7,"name":"kay","score":null,"tags":["a"]}`, string(out))
}

func TestAttributeAccess(t *testing.T) {
	m := Define(Meta{Table: "users", Fillable: []string{"name", "email"}})
	r := m.New(map[string]any{"name": "lee", "email": "lee@example.com", "is_admin": true})

	_, ok := r.Get("is_admin")
	assert.False(t, ok, "不在 Fillable 中的属性被过滤")
	assert.Nil(t, r.GetAttribute("missing"))
	assert.False(t, r.HasAttribute("missing"))

	r.SetAttributes(map[string]any{"is_admin": true}, false)
	assert.True(t, r.HasAttribute("is_admin"))

	g := Define(Meta{Table: "users", Guarded: []string{"id"}})
	r = g.New(map[string]any{"id": 1, "name": "max"})
	assert.False(t, r.HasAttribute("id"))
	assert.True(t, r.HasAttribute("name"))
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	r := Define(Meta{Table: "users"}).New(nil)

	var calls []string
	id1 := r.On("custom", func(context.Context, *Event) (Result, error) {
		calls = append(calls, "h1")
		return Continue, nil
	})
	r.On("custom", func(context.Context, *Event) (Result, error) {
		calls = append(calls, "h2")
		return Cancel, nil
	})
	r.On("custom", func(context.Context, *Event) (Result, error) {
		calls = append(calls, "h3")
		return Continue, nil
	})

	ok, err := r.Trigger(ctx, "custom", nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"h1", "h2"}, calls, "取消后不再调用后续处理器")

	r.Off("custom", id1)
	calls = nil
	_, _ = r.Trigger(ctx, "custom", nil)
	assert.Equal(t, []string{"h2"}, calls)

	r.Off("custom")
	assert.False(t, r.HasEventHandlers("custom"))
	ok, err = r.Trigger(ctx, "custom", nil)
	require.NoError(t, err)
	assert.True(t, ok, "无处理器时视为通过")
}

type countingBehavior struct {
	BaseBehavior
	calls int
}

func (b *countingBehavior) Bindings() []Binding {
	return []Binding{{Event: "ping", Handler: func(context.Context, *Event) (Result, error) {
		b.calls++
		return Continue, nil
	}}}
}

func TestBehavior_ReplaceSemantics(t *testing.T) {
	ctx := context.Background()
	m := Define(Meta{Table: "users"})
	r1, r2 := m.New(nil), m.New(nil)

	b := &countingBehavior{}
	r1.AttachBehavior("counter", b)
	assert.Same(t, r1, b.Owner())
	assert.True(t, r1.HasEventHandlers("ping"))

	r2.AttachBehavior("counter", b)
	assert.Same(t, r2, b.Owner())
	assert.False(t, r1.HasEventHandlers("ping"), "挂载到新记录前先从原记录卸载")
	assert.Nil(t, r1.Behavior("counter"))
	assert.Equal(t, []string{"counter"}, r2.Behaviors())

	_, _ = r1.Trigger(ctx, "ping", nil)
	_, _ = r2.Trigger(ctx, "ping", nil)
	assert.Equal(t, 1, b.calls)

	assert.Same(t, b, r2.DetachBehavior("counter"))
	assert.Nil(t, b.Owner())
	assert.False(t, r2.HasEventHandlers("ping"))
	assert.Nil(t, r2.DetachBehavior("counter"))
}

func TestBehavior_DeclaredPerInstance(t *testing.T) {
	m := Define(Meta{Table: "users", Behaviors: func() []BehaviorSpec {
		return []BehaviorSpec{Named("counter", &countingBehavior{})}
	}})
	r1, r2 := m.New(nil), m.New(nil)
	assert.NotSame(t, r1.Behavior("counter"), r2.Behavior("counter"))
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"整数不同类型", 1, int64(1), true},
		{"整数与浮点", int64(2), 2.0, true},
		{"数字与字符串", 1, "1", false},
		{"字符串与字节", "a", []byte("a"), true},
		{"nil", nil, nil, true},
		{"nil 与零值", nil, 0, false},
		{"切片", []string{"a"}, []string{"a"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValuesEqual(tt.a, tt.b))
		})
	}
}

func TestBulkOperations(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	n, err := f.users.UpdateAll(ctx, map[string]any{"status": 2}, query.Equals("status", 1))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	n, err = f.users.UpdateAllCounters(ctx, map[string]int64{"views": 3}, query.In("id", 1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	views, err := f.users.Find().WhereEq("id", 1).Query().Value(ctx, "views")
	require.NoError(t, err)
	assert.Equal(t, int64(3), views)

	n, err = f.users.DeleteAll(ctx, query.Op(">", "age", 30))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := f.users.Find().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
