package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetAndGet(t *testing.T) {
	c := NewMemoryCache(16, 0, nil)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Minute)

	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_MissOnUnknownKey(t *testing.T) {
	c := NewMemoryCache(16, 0, nil)
	defer c.Close()

	_, ok := c.Get(context.Background(), "nope")
	assert.False(t, ok)
}

func TestMemoryCache_LazyExpiry(t *testing.T) {
	c := NewMemoryCache(16, 0, nil)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "short", []byte("v"), 20*time.Millisecond)

	_, ok := c.Get(ctx, "short")
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	// 过期条目在 Get 时被删除并按未命中处理
	_, ok = c.Get(ctx, "short")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_NoExpiryWhenTTLZero(t *testing.T) {
	c := NewMemoryCache(16, 0, nil)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "forever", []byte("v"), 0)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get(ctx, "forever")
	assert.True(t, ok)
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	c := NewMemoryCache(3, 0, nil)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Set(ctx, "b", []byte("2"), time.Minute)
	c.Set(ctx, "c", []byte("3"), time.Minute)

	// 访问 a，令 b 成为最久未使用
	_, ok := c.Get(ctx, "a")
	require.True(t, ok)

	c.Set(ctx, "d", []byte("4"), time.Minute)

	_, ok = c.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "d")
	assert.True(t, ok)
	assert.Equal(t, 3, c.Len())
}

func TestMemoryCache_UpdateExistingKey(t *testing.T) {
	c := NewMemoryCache(2, 0, nil)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("old"), time.Minute)
	c.Set(ctx, "k", []byte("new"), time.Minute)

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache(16, 0, nil)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Delete(ctx, "k")

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCache_CleanupLoop(t *testing.T) {
	c := NewMemoryCache(16, 10*time.Millisecond, nil)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "sweep-me", []byte("v"), 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return c.Len() == 0
	}, time.Second, 10*time.Millisecond, "cleanup loop should sweep expired entries")
}

func TestMemoryCache_Stats(t *testing.T) {
	c := NewMemoryCache(2, 0, nil)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Get(ctx, "a")
	c.Get(ctx, "missing")
	c.Set(ctx, "b", []byte("2"), time.Minute)
	c.Set(ctx, "c", []byte("3"), time.Minute) // 淘汰一条

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, 2, stats.Size)
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c := NewMemoryCache(128, 0, nil)
	defer c.Close()
	ctx := context.Background()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k-%d-%d", id, j%16)
				c.Set(ctx, key, []byte("v"), time.Minute)
				c.Get(ctx, key)
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
