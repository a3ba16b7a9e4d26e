package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type flowPath string

type lastRun struct {
	State       string
	Fingerprint string
}

func newRunCache() *InMemoryCacheManager[flowPath, lastRun] {
	return NewInMemoryCacheManager[flowPath, lastRun]("recent-runs", DefaultExpiration, DefaultCleanupInterval)
}

func TestInMemoryCacheManager_GetExistingValue(t *testing.T) {
	cache := newRunCache()
	run := lastRun{State: "created", Fingerprint: "abc"}
	cache.Set(context.Background(), "flows/demo.yml", run, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "flows/demo.yml")
	require.True(t, ok)
	require.Equal(t, run, got)
}

func TestInMemoryCacheManager_GetMissing(t *testing.T) {
	got, ok := newRunCache().Get(context.Background(), "flows/demo.yml")
	require.False(t, ok)
	require.Zero(t, got)
}

func TestInMemoryCacheManager_GetWrongType(t *testing.T) {
	cache := newRunCache()
	cache.cache.Set("flows/demo.yml", 123, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "flows/demo.yml")
	require.False(t, ok)
	require.Zero(t, got)
}

func TestInMemoryCacheManager_ItemsSkipsExpired(t *testing.T) {
	cache := newRunCache()
	ctx := context.Background()

	cache.Set(ctx, "keep.yml", lastRun{State: "created"}, NoExpiration)
	cache.Set(ctx, "gone.yml", lastRun{State: "failed"}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	require.Equal(t, map[flowPath]lastRun{"keep.yml": {State: "created"}}, cache.Items(ctx))
}

func TestInMemoryCacheManager_Delete(t *testing.T) {
	cache := newRunCache()
	ctx := context.Background()

	require.NoError(t, cache.Delete(ctx))

	cache.Set(ctx, "a.yml", lastRun{}, DefaultExpiration)
	cache.Set(ctx, "b.yml", lastRun{}, DefaultExpiration)
	require.NoError(t, cache.Delete(ctx, "a.yml"))
	_, ok := cache.Get(ctx, "a.yml")
	require.False(t, ok)

	require.NoError(t, cache.Delete(ctx, "b.yml", "never-set.yml"))
	require.Empty(t, cache.Items(ctx))
}
