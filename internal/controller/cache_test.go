package controller

import (
	"context"
	"testing"

	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/pool"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCacheController(t *testing.T) (*CacheController, afero.Fs, *pool.Pool) {
	t.Helper()

	c, fsys := newTestFileController(t)
	p := pool.New(fsys, nil, pool.Config{Dir: "/tmp", Threshold: 4})

	return NewCacheController(c, p), fsys, p
}

// TestCacheController_Success_Write tests caching written content.
func TestCacheController_Success_Write(t *testing.T) {
	t.Parallel()

	c, fsys, p := newTestCacheController(t)
	ctx := context.Background()

	writeString(t, c.Output(ctx, "a.txt", options.Cache, nil), "cached content")
	assert.Equal(t, 1, c.Cached())

	require.NoError(t, fsys.Remove("/data/a.txt"))

	assert.Equal(t, "cached content", readString(t, c.Input(ctx, "a.txt", 0)))

	require.NoError(t, c.Sync(ctx, options.Default))
	assert.Equal(t, 1, c.Cached())

	require.NoError(t, c.Sync(ctx, options.Umount))
	assert.Equal(t, 0, c.Cached())
	assert.Equal(t, 0, p.Live())
}

// TestCacheController_Success_Read tests caching read content and evicting
// it when the entry changes.
func TestCacheController_Success_Read(t *testing.T) {
	t.Parallel()

	c, _, p := newTestCacheController(t)
	ctx := context.Background()

	writeString(t, c.Output(ctx, "a.txt", 0, nil), "first")
	assert.Equal(t, 0, c.Cached())

	assert.Equal(t, "first", readString(t, c.Input(ctx, "a.txt", options.Cache)))
	assert.Equal(t, 1, c.Cached())

	writeString(t, c.Output(ctx, "a.txt", 0, nil), "second")
	assert.Equal(t, 0, c.Cached())
	assert.Equal(t, "second", readString(t, c.Input(ctx, "a.txt", options.Cache)))
	assert.Equal(t, 1, c.Cached())

	require.NoError(t, c.Unlink(ctx, "a.txt", 0))
	assert.Equal(t, 0, c.Cached())
	assert.Equal(t, 0, p.Live())
}

// TestCacheController_Success_Append tests that appended content is not
// cached.
func TestCacheController_Success_Append(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCacheController(t)
	ctx := context.Background()

	writeString(t, c.Output(ctx, "a.txt", options.Cache, nil), "one")
	writeString(t, c.Output(ctx, "a.txt", options.Cache|options.Append, nil), "two")

	assert.Equal(t, 0, c.Cached())
	assert.Equal(t, "onetwo", readString(t, c.Input(ctx, "a.txt", 0)))
}

// TestCacheController_Success_Reset tests that discarding changes clears
// the cache.
func TestCacheController_Success_Reset(t *testing.T) {
	t.Parallel()

	c, _, p := newTestCacheController(t)
	ctx := context.Background()

	writeString(t, c.Output(ctx, "a.txt", options.Cache, nil), "content")
	writeString(t, c.Output(ctx, "b.txt", options.Cache, nil), "content")
	assert.Equal(t, 2, c.Cached())

	require.NoError(t, c.Sync(ctx, options.Reset))
	assert.Equal(t, 0, c.Cached())
	assert.Equal(t, 0, p.Live())
}
