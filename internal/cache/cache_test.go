package cache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leighmacdonald/tf-logs/internal/cache"
	"github.com/stretchr/testify/require"
)

func TestFilesystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	fsCache, err := cache.New(dir)
	require.NoError(t, err)

	_, errMiss := fsCache.Get(3456789, cache.CacheLogDetail)
	require.ErrorIs(t, errMiss, cache.ErrCacheMiss)

	require.NoError(t, fsCache.Set(3456789, cache.CacheLogDetail, []byte(`{"version":3}`)))

	body, errGet := fsCache.Get(3456789, cache.CacheLogDetail)
	require.NoError(t, errGet)
	require.Equal(t, `{"version":3}`, string(body))
}

func TestFilesystemExpired(t *testing.T) {
	dir := t.TempDir()
	fsCache, err := cache.New(dir)
	require.NoError(t, err)
	require.NoError(t, fsCache.Set(42, cache.CacheLogDetail, []byte(`{}`)))

	stale := time.Now().Add(-time.Hour * 24 * 365)
	entry := filepath.Join(dir, "42_0")
	require.NoError(t, os.Chtimes(entry, stale, stale))

	_, errGet := fsCache.Get(42, cache.CacheLogDetail)
	require.ErrorIs(t, errGet, cache.ErrCacheMiss)

	_, errStat := os.Stat(entry)
	require.ErrorIs(t, errStat, os.ErrNotExist)
}
