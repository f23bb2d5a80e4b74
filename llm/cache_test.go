package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClock struct{ now time.Time }

func (c *stubClock) Now() time.Time { return c.now }

func newStubClock() *stubClock {
	return &stubClock{now: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	cache, err := NewMemoryCache(8, 0, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "missing")
	assert.False(t, ok)

	cache.Set(ctx, "k", &Decision{
		Tool:   "open_account",
		Params: map[string]any{"client_id": "c1", "account_type": "roth_ira"},
	})
	got, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "open_account", got.Tool)
	assert.Equal(t, "roth_ira", got.Params["account_type"])
}

func TestMemoryCacheCopiesEntries(t *testing.T) {
	cache, err := NewMemoryCache(8, 0, nil)
	require.NoError(t, err)
	ctx := context.Background()

	original := &Decision{Tool: "open_account", Params: map[string]any{"client_id": "c1"}}
	cache.Set(ctx, "k", original)
	original.Params["client_id"] = "mutated"

	first, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "c1", first.Params["client_id"], "writes after Set must not reach the cache")

	first.Params["client_id"] = "mutated again"
	second, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "c1", second.Params["client_id"], "hits must not alias each other")
}

func TestMemoryCacheTTL(t *testing.T) {
	clock := newStubClock()
	cache, err := NewMemoryCache(8, time.Minute, clock)
	require.NoError(t, err)
	ctx := context.Background()

	cache.Set(ctx, "k", &Decision{TaskStatus: "completed"})

	clock.now = clock.now.Add(59 * time.Second)
	_, ok := cache.Get(ctx, "k")
	assert.True(t, ok, "entry within ttl")

	clock.now = clock.now.Add(2 * time.Second)
	_, ok = cache.Get(ctx, "k")
	assert.False(t, ok, "entry past ttl")
}

func TestMemoryCacheEvictsOldest(t *testing.T) {
	cache, err := NewMemoryCache(1, 0, nil)
	require.NoError(t, err)
	ctx := context.Background()

	cache.Set(ctx, "a", &Decision{TaskStatus: "completed"})
	cache.Set(ctx, "b", &Decision{TaskStatus: "failed"})

	_, ok := cache.Get(ctx, "a")
	assert.False(t, ok)
	got, ok := cache.Get(ctx, "b")
	require.True(t, ok)
	assert.Equal(t, "failed", got.TaskStatus)
}
