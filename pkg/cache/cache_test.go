package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleCache_BasicOperations(t *testing.T) {
	c, err := NewSimple[string]()
	require.NoError(t, err)
	defer c.Close()

	created, err := c.Set("a", "alpha")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Set("a", "alpha2")
	require.NoError(t, err)
	assert.False(t, created, "overwrite should not report a new entry")

	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "alpha2", got)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	deleted, err := c.Delete("a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, 0, c.Size())
}

func TestSimpleCache_EmptyKeyRejected(t *testing.T) {
	c, err := NewSimple[int]()
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Set("", 1)
	assert.Error(t, err)

	_, err = c.Delete("")
	assert.Error(t, err)
}

func TestSimpleCache_StatsTrackHitsAndMisses(t *testing.T) {
	c, err := NewSimple[int]()
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Set("x", 1)
	require.NoError(t, err)

	c.Get("x")
	c.Get("x")
	c.Get("nope")

	stats := c.Stats()
	require.NotNil(t, stats)
	assert.Equal(t, int64(2), stats.Hits())
	assert.Equal(t, int64(1), stats.Misses())
	assert.Equal(t, int64(1), stats.Sets())
	assert.InDelta(t, 2.0/3.0, stats.HitRatio(), 0.001)
}

func TestSimpleCache_EvictionCallbackOnDelete(t *testing.T) {
	var mu sync.Mutex
	evicted := map[string]int{}

	c, err := NewSimple(WithEvictionCallback[int](func(key string, value int) {
		mu.Lock()
		evicted[key] = value
		mu.Unlock()
	}))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Set("k", 42)
	require.NoError(t, err)
	_, err = c.Delete("k")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 42, evicted["k"])
}

func TestSimpleCache_ConcurrentAccess(t *testing.T) {
	c, err := NewSimple[int]()
	require.NoError(t, err)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n))
			for j := 0; j < 100; j++ {
				_, _ = c.Set(key, j)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, c.Size())
}

func TestTTLCache_ExpiresEntries(t *testing.T) {
	c, err := NewTTL[string](context.Background(), 50*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Set("k", "v")
	require.NoError(t, err)

	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)

	time.Sleep(80 * time.Millisecond)

	_, ok = c.Get("k")
	assert.False(t, ok, "entry should expire after TTL")
}

func TestTTLCache_BackgroundCleanupFiresCallback(t *testing.T) {
	done := make(chan string, 1)
	c, err := NewTTL(context.Background(), 20*time.Millisecond, 10*time.Millisecond,
		WithEvictionCallback[string](func(key string, _ string) {
			select {
			case done <- key:
			default:
			}
		}))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Set("gone", "soon")
	require.NoError(t, err)

	select {
	case key := <-done:
		assert.Equal(t, "gone", key)
	case <-time.After(time.Second):
		t.Fatal("eviction callback never fired")
	}
}

func TestTTLCache_InvalidConfig(t *testing.T) {
	_, err := NewTTL[string](context.Background(), 0, time.Second)
	assert.Error(t, err)

	_, err = NewTTL[string](context.Background(), time.Second, 0)
	assert.Error(t, err)
}

func TestTTLCache_CloseIsIdempotent(t *testing.T) {
	c, err := NewTTL[int](context.Background(), time.Second, time.Second)
	require.NoError(t, err)

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestNoopCache(t *testing.T) {
	c := NewNoop[string]()

	created, err := c.Set("k", "v")
	assert.NoError(t, err)
	assert.False(t, created)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
	assert.Nil(t, c.Stats())
	assert.NoError(t, c.Close())
}
