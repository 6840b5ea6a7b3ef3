package cache

import (
	stdErrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_GetSetDelete(t *testing.T) {
	c := New[string, int]("test", 10)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Set("a", 2)
	v, _ = c.Get("a")
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())

	_, ok = c.Get("missing")
	assert.False(t, ok)

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))

	s := c.Stats()
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, 0, s.Size)
}

func TestLRU_Eviction(t *testing.T) {
	c := New[int, string]("evict", 2)
	c.Set(1, "one")
	c.Set(2, "two")
	c.Get(1) // 1 变为最近使用
	c.Set(3, "three")

	_, ok := c.Get(2)
	assert.False(t, ok, "最久未使用的 2 被淘汰")
	_, ok = c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
	assert.Contains(t, c.String(), "size=2/2")
}

func TestLRU_GetOrCompute(t *testing.T) {
	c := New[string, int]("compute", 0)
	calls := 0
	fn := func() (int, error) { calls++; return 42, nil }

	v, err := c.GetOrCompute("k", fn)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	v, _ = c.GetOrCompute("k", fn)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)

	boom := stdErrors.New("boom")
	_, err = c.GetOrCompute("bad", func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get("bad")
	assert.False(t, ok, "错误结果不缓存")
}

func TestLRU_Concurrent(t *testing.T) {
	c := New[int, int]("race", 50)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Set(i%100, g)
				c.Get(i % 100)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}
