package archive

import (
	"context"
	"io"
	"testing"

	"github.com/desertwitch/arcvfs/internal/controller"
	"github.com/desertwitch/arcvfs/internal/driver"
	"github.com/desertwitch/arcvfs/internal/driver/tardriver"
	"github.com/desertwitch/arcvfs/internal/driver/zipdriver"
	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/model"
	"github.com/desertwitch/arcvfs/internal/mount"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/pool"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	fs   afero.Fs
	pool *pool.Pool
	root *controller.FileController
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/data", 0o755))

	m, err := model.New(mount.Root(), nil)
	require.NoError(t, err)

	return &testEnv{
		fs:   fsys,
		pool: pool.New(fsys, nil, pool.Config{Dir: "/tmp", Threshold: 8}),
		root: controller.NewFileController(m, fsys, "/data"),
	}
}

// archive returns a new controller for the archive name in parent.
func (e *testEnv) archive(t *testing.T, parent controller.Controller, d driver.Driver, name string) *Controller {
	t.Helper()

	p, err := mount.New(d.Scheme(), parent.Model().Point(), name)
	require.NoError(t, err)

	m, err := model.New(p, parent.Model())
	require.NoError(t, err)

	return New(m, d, parent, e.pool)
}

func (e *testEnv) zip() driver.Driver {
	return zipdriver.New(e.pool)
}

func (e *testEnv) tgz() driver.Driver {
	return tardriver.New(tardriver.Gzip{}, e.pool, nil)
}

func write(t *testing.T, c controller.Controller, name string, opts options.Access, content string) {
	t.Helper()

	w, err := c.Output(context.Background(), name, opts, nil).Stream(nil)
	require.NoError(t, err)

	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func read(t *testing.T, c controller.Controller, name string) string {
	t.Helper()

	r, err := c.Input(context.Background(), name, 0).Stream(nil)
	require.NoError(t, err)
	defer r.Close()

	content, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(content)
}

// TestController_Success_RoundTrip tests writing, synchronizing and reading
// back archives of both families.
func TestController_Success_RoundTrip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	for _, d := range []driver.Driver{env.zip(), env.tgz()} {
		name := "archive." + d.Scheme()

		c := env.archive(t, env.root, d, name)

		write(t, c, "dir/a.txt", options.CreateParents, "alpha content spilling into a file")
		write(t, c, "b.txt", 0, "beta")
		require.NoError(t, c.Mknod(ctx, "empty", entry.Directory, 0, nil))

		assert.True(t, c.Model().Touched())
		assert.True(t, c.Model().Mounted())

		dir, err := c.Stat(ctx, "dir")
		require.NoError(t, err)
		require.NotNil(t, dir)
		assert.Equal(t, entry.Directory, dir.Type())
		assert.Equal(t, []string{"a.txt"}, dir.(entry.Members).Members())

		require.NoError(t, c.Sync(ctx, options.Default))
		assert.False(t, c.Model().Touched())
		assert.False(t, c.Model().Mounted())
		assert.Equal(t, 0, env.pool.Live())

		exists, err := afero.Exists(env.fs, "/data/"+name)
		require.NoError(t, err)
		require.True(t, exists, name)

		c = env.archive(t, env.root, d, name)

		assert.Equal(t, "alpha content spilling into a file", read(t, c, "dir/a.txt"))
		assert.Equal(t, "beta", read(t, c, "b.txt"))

		e, err := c.Stat(ctx, "b.txt")
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, int64(4), e.Size(entry.DataSize))

		e, err = c.Stat(ctx, "empty")
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, entry.Directory, e.Type())

		root, err := c.Stat(ctx, "")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"dir", "b.txt", "empty"}, root.(entry.Members).Members())

		assert.False(t, c.Model().Touched())
		require.NoError(t, c.Sync(ctx, options.Default))
		assert.Equal(t, 0, env.pool.Live())
	}
}

// TestController_Success_Update tests that unchanged entries are carried
// over into the new archive.
func TestController_Success_Update(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	c := env.archive(t, env.root, env.zip(), "a.zip")
	write(t, c, "keep.txt", options.CreateParents, "keep")
	write(t, c, "drop.txt", 0, "drop")
	write(t, c, "change.txt", 0, "old")
	require.NoError(t, c.Sync(ctx, options.Default))

	require.NoError(t, c.Unlink(ctx, "drop.txt", 0))
	write(t, c, "change.txt", 0, "new")
	write(t, c, "keep.txt", options.Append, "-more")
	require.NoError(t, c.Sync(ctx, options.Default))

	e, err := c.Stat(ctx, "drop.txt")
	require.NoError(t, err)
	assert.Nil(t, e)

	assert.Equal(t, "keep-more", read(t, c, "keep.txt"))
	assert.Equal(t, "new", read(t, c, "change.txt"))
	require.NoError(t, c.Sync(ctx, options.Default))
	assert.Equal(t, 0, env.pool.Live())
}

// TestController_Success_Nested tests an archive stored in another archive.
func TestController_Success_Nested(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	outer := env.archive(t, env.root, env.zip(), "outer.zip")
	inner := env.archive(t, outer, env.tgz(), "inner.tar.gz")

	write(t, outer, "readme.txt", options.CreateParents, "outer")
	write(t, inner, "deep/file.txt", options.CreateParents, "inner content")

	require.NoError(t, inner.Sync(ctx, options.Default))
	assert.True(t, outer.Model().Touched())

	e, err := outer.Stat(ctx, "inner.tar.gz")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, entry.File, e.Type())

	require.NoError(t, outer.Sync(ctx, options.Default))
	assert.Equal(t, 0, env.pool.Live())

	outer = env.archive(t, env.root, env.zip(), "outer.zip")
	inner = env.archive(t, outer, env.tgz(), "inner.tar.gz")

	assert.Equal(t, "inner content", read(t, inner, "deep/file.txt"))
	assert.Equal(t, "outer", read(t, outer, "readme.txt"))

	require.NoError(t, inner.Sync(ctx, options.Default))
	require.NoError(t, outer.Sync(ctx, options.Default))
	assert.Equal(t, 0, env.pool.Live())
}

// TestController_Fail_NeedsSync tests that written entries can be neither
// read nor changed before a synchronization.
func TestController_Fail_NeedsSync(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	c := env.archive(t, env.root, env.zip(), "a.zip")
	write(t, c, "a.txt", options.CreateParents, "content")

	_, err := c.Input(ctx, "a.txt", 0).Stream(nil)
	require.ErrorIs(t, err, fserr.ErrNeedsSync)

	_, err = c.Output(ctx, "a.txt", 0, nil).Stream(nil)
	require.ErrorIs(t, err, fserr.ErrNeedsSync)

	require.ErrorIs(t, c.Unlink(ctx, "a.txt", 0), fserr.ErrNeedsSync)

	_, err = c.SetTime(ctx, "a.txt", []entry.Access{entry.Write}, 0)
	require.ErrorIs(t, err, fserr.ErrNeedsSync)

	require.NoError(t, c.Sync(ctx, options.Default))
	assert.Equal(t, "content", read(t, c, "a.txt"))
}

// TestController_Fail_Output tests the failures of opening an output.
func TestController_Fail_Output(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	c := env.archive(t, env.root, env.zip(), "a.zip")

	_, err := c.Output(ctx, "missing/a.txt", 0, nil).Stream(nil)
	require.ErrorIs(t, err, ErrNoArchive)

	write(t, c, "a.txt", options.CreateParents, "content")

	_, err = c.Output(ctx, "missing/b.txt", 0, nil).Stream(nil)
	require.ErrorIs(t, err, fserr.ErrNotFound)

	_, err = c.Output(ctx, "a.txt/b.txt", 0, nil).Stream(nil)
	require.ErrorIs(t, err, fserr.ErrNotDirectory)

	_, err = c.Output(ctx, "", 0, nil).Stream(nil)
	require.ErrorIs(t, err, fserr.ErrIsDirectory)

	require.NoError(t, c.Sync(ctx, options.Default))

	_, err = c.Output(ctx, "a.txt", options.Exclusive, nil).Stream(nil)
	require.ErrorIs(t, err, fserr.ErrExists)

	require.NoError(t, c.Sync(ctx, options.Reset))
}

// TestController_Fail_ReadOnly tests that an archive which is not writable
// in its parent is mounted read-only.
func TestController_Fail_ReadOnly(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	c := env.archive(t, env.root, env.zip(), "a.zip")
	write(t, c, "a.txt", options.CreateParents, "content")
	require.NoError(t, c.Sync(ctx, options.Default))
	require.NoError(t, env.root.SetReadOnly(ctx, "a.zip"))

	_, err := c.Output(ctx, "b.txt", 0, nil).Stream(nil)
	require.ErrorIs(t, err, fserr.ErrReadOnly)

	require.ErrorIs(t, c.Mknod(ctx, "dir", entry.Directory, 0, nil), fserr.ErrReadOnly)
	require.ErrorIs(t, c.Unlink(ctx, "a.txt", 0), fserr.ErrReadOnly)

	ok, err := c.IsWritable(ctx, "a.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.IsReadable(ctx, "a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, "content", read(t, c, "a.txt"))
	assert.False(t, c.Model().Touched())
}

// TestController_Success_Reset tests discarding all changes.
func TestController_Success_Reset(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	c := env.archive(t, env.root, env.zip(), "a.zip")
	write(t, c, "a.txt", options.CreateParents, "content which is spooled")

	require.NoError(t, c.Sync(ctx, options.Reset))
	assert.False(t, c.Model().Touched())
	assert.False(t, c.Model().Mounted())
	assert.Equal(t, 0, env.pool.Live())

	infos, err := afero.ReadDir(env.fs, "/data")
	require.NoError(t, err)
	assert.Empty(t, infos)

	e, err := c.Stat(ctx, "a.txt")
	require.NoError(t, err)
	assert.Nil(t, e)
}

// TestController_Success_UnlinkArchive tests removing an archive by
// unlinking its root directory.
func TestController_Success_UnlinkArchive(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	c := env.archive(t, env.root, env.zip(), "a.zip")
	require.NoError(t, c.Mknod(ctx, "", entry.Directory, 0, nil))
	write(t, c, "a.txt", 0, "content")
	require.NoError(t, c.Sync(ctx, options.Default))

	require.ErrorIs(t, c.Mknod(ctx, "", entry.Directory, options.Exclusive, nil), fserr.ErrExists)
	require.ErrorIs(t, c.Unlink(ctx, "", 0), fserr.ErrDirNotEmpty)

	require.NoError(t, c.Unlink(ctx, "a.txt", 0))
	require.NoError(t, c.Unlink(ctx, "", 0))
	assert.False(t, c.Model().Touched())

	exists, err := afero.Exists(env.fs, "/data/a.zip")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, 0, env.pool.Live())
}

// TestController_Success_SetTime tests changing the times of an entry.
func TestController_Success_SetTime(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	c := env.archive(t, env.root, env.tgz(), "a.tar.gz")
	write(t, c, "a.txt", options.CreateParents, "content")
	require.NoError(t, c.Sync(ctx, options.Default))

	ok, err := c.SetTime(ctx, "a.txt", []entry.Access{entry.Write}, 1600000000000)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetTime(ctx, "a.txt", []entry.Access{entry.Create}, 1600000000000)
	require.NoError(t, err)
	assert.False(t, ok)

	require.ErrorIs(t, c.SetReadOnly(ctx, "a.txt"), controller.ErrUnsupported)

	require.NoError(t, c.Sync(ctx, options.Default))

	e, err := c.Stat(ctx, "a.txt")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, int64(1600000000000), e.Time(entry.Write))
	assert.Equal(t, "content", read(t, c, "a.txt"))
}

// TestController_Success_Missing tests an archive which does not exist.
func TestController_Success_Missing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	c := env.archive(t, env.root, env.zip(), "a.zip")

	e, err := c.Stat(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, e)

	_, err = c.Input(ctx, "a.txt", 0).Stream(nil)
	require.ErrorIs(t, err, ErrNoArchive)

	assert.False(t, c.Model().Mounted())
	require.NoError(t, c.Sync(ctx, options.Default))
}

// TestController_Fail_NotArchive tests a directory named like an archive.
func TestController_Fail_NotArchive(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.fs.Mkdir("/data/d.zip", 0o755))

	c := env.archive(t, env.root, env.zip(), "d.zip")

	_, err := c.Stat(ctx, "")
	require.ErrorIs(t, err, driver.ErrNotArchive)
}
