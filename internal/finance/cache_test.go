package finance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheVersionAndBump(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	key, err := cache.BuildKey(ctx, "finance", "monthly")
	require.NoError(t, err)
	assert.Equal(t, "finance:monthly:v1", key)

	require.NoError(t, cache.Bump(ctx))
	got, err := mr.Get(cacheVersionKey)
	require.NoError(t, err)
	assert.Equal(t, "2", got)

	key, err = cache.BuildKey(ctx, "finance", "monthly")
	require.NoError(t, err)
	assert.Equal(t, "finance:monthly:v2", key)
}

func TestCacheFetchJSON(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"sessions": 2}, nil
	}

	var first map[string]int
	require.NoError(t, cache.FetchJSON(ctx, "k", &first, loader))
	var second map[string]int
	require.NoError(t, cache.FetchJSON(ctx, "k", &second, loader))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, second["sessions"])
	assert.True(t, mr.Exists("k"))
	assert.Greater(t, mr.TTL("k").Seconds(), 0.0)

	boom := errors.New("boom")
	err := cache.FetchJSON(ctx, "other", &first, func(context.Context) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("other"))
}

func TestNilCacheFallsThrough(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a:b", key)
	assert.NoError(t, cache.Bump(ctx))

	var out int
	require.NoError(t, cache.FetchJSON(ctx, key, &out, func(context.Context) (any, error) { return 7, nil }))
	assert.Equal(t, 7, out)
}

func TestMonthlySummaryCacheKey(t *testing.T) {
	assert.Equal(t, "finance:monthly:2024:03:true", keyMonthlySummary(MonthlySummaryQuery{Month: 3, Year: 2024, IncludeDetails: true}))
}
