package controller

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/model"
	"github.com/desertwitch/arcvfs/internal/mount"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/socket"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileController(t *testing.T) (*FileController, afero.Fs) {
	t.Helper()

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/data", 0o755))

	m, err := model.New(mount.Root(), nil)
	require.NoError(t, err)

	return NewFileController(m, fsys, "/data"), fsys
}

func writeString(t *testing.T, out socket.OutputSocket, content string) {
	t.Helper()

	w, err := out.Stream(nil)
	require.NoError(t, err)

	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func readString(t *testing.T, in socket.InputSocket) string {
	t.Helper()

	r, err := in.Stream(nil)
	require.NoError(t, err)
	defer r.Close()

	content, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(content)
}

// TestFileController_Success_RoundTrip tests writing through a temporary
// file which replaces the destination on close.
func TestFileController_Success_RoundTrip(t *testing.T) {
	t.Parallel()

	c, fsys := newTestFileController(t)
	ctx := context.Background()

	modified := time.UnixMilli(1700000000000)
	template := entry.NewRecord("dir/a.txt", entry.File, nil)
	template.SetTime(entry.Write, entry.Millis(modified))

	w, err := c.Output(ctx, "dir/a.txt", options.CreateParents, template).Stream(nil)
	require.NoError(t, err)

	_, err = io.WriteString(w, "hello")
	require.NoError(t, err)

	exists, err := afero.Exists(fsys, "/data/dir/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	infos, err := afero.ReadDir(fsys, "/data/dir")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Contains(t, infos[0].Name(), ".a.txt.")

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	infos, err = afero.ReadDir(fsys, "/data/dir")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "a.txt", infos[0].Name())

	assert.Equal(t, "hello", readString(t, c.Input(ctx, "dir/a.txt", 0)))

	e, err := c.Stat(ctx, "dir/a.txt")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, entry.File, e.Type())
	assert.Equal(t, int64(5), e.Size(entry.DataSize))
	assert.Equal(t, modified.UnixMilli(), e.Time(entry.Write))

	dir, err := c.Stat(ctx, "dir")
	require.NoError(t, err)
	require.NotNil(t, dir)
	assert.Equal(t, entry.Directory, dir.Type())
	assert.Equal(t, []string{"a.txt"}, dir.(entry.Members).Members())

	missing, err := c.Stat(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// TestFileController_Success_Abort tests that aborting removes the
// temporary file and keeps the destination.
func TestFileController_Success_Abort(t *testing.T) {
	t.Parallel()

	c, fsys := newTestFileController(t)
	ctx := context.Background()

	writeString(t, c.Output(ctx, "a.txt", 0, nil), "old")

	w, err := c.Output(ctx, "a.txt", 0, nil).Stream(nil)
	require.NoError(t, err)

	_, err = io.WriteString(w, "new")
	require.NoError(t, err)

	a, ok := w.(socket.Aborter)
	require.True(t, ok)
	require.NoError(t, a.Abort())
	require.NoError(t, w.Close())

	infos, err := afero.ReadDir(fsys, "/data")
	require.NoError(t, err)
	require.Len(t, infos, 1)

	assert.Equal(t, "old", readString(t, c.Input(ctx, "a.txt", 0)))
}

// TestFileController_Success_Append tests appending to existing content.
func TestFileController_Success_Append(t *testing.T) {
	t.Parallel()

	c, _ := newTestFileController(t)
	ctx := context.Background()

	writeString(t, c.Output(ctx, "a.txt", 0, nil), "one")
	writeString(t, c.Output(ctx, "a.txt", options.Append, nil), "two")

	assert.Equal(t, "onetwo", readString(t, c.Input(ctx, "a.txt", 0)))
}

// TestFileController_Fail_Output tests the failures of opening an output.
func TestFileController_Fail_Output(t *testing.T) {
	t.Parallel()

	c, _ := newTestFileController(t)
	ctx := context.Background()

	writeString(t, c.Output(ctx, "a.txt", 0, nil), "one")
	require.NoError(t, c.Mknod(ctx, "dir", entry.Directory, 0, nil))

	_, err := c.Output(ctx, "a.txt", options.Exclusive, nil).Stream(nil)
	require.ErrorIs(t, err, fserr.ErrExists)

	_, err = c.Output(ctx, "dir", 0, nil).Stream(nil)
	require.ErrorIs(t, err, fserr.ErrIsDirectory)

	_, err = c.Input(ctx, "dir", 0).Stream(nil)
	require.ErrorIs(t, err, fserr.ErrIsDirectory)

	_, err = c.Input(ctx, "missing", 0).Stream(nil)
	require.ErrorIs(t, err, fserr.ErrNotFound)
}

// TestFileController_Success_Mknod tests creating entries without content.
func TestFileController_Success_Mknod(t *testing.T) {
	t.Parallel()

	c, _ := newTestFileController(t)
	ctx := context.Background()

	require.NoError(t, c.Mknod(ctx, "a/b", entry.Directory, options.CreateParents, nil))
	require.NoError(t, c.Mknod(ctx, "a/b/c.txt", entry.File, 0, nil))
	require.NoError(t, c.Mknod(ctx, "a/b/c.txt", entry.File, 0, nil))

	e, err := c.Stat(ctx, "a/b/c.txt")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, int64(0), e.Size(entry.DataSize))

	ok, err := c.IsWritable(ctx, "a/b/c.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.SetReadOnly(ctx, "a/b/c.txt"))

	ok, err = c.IsWritable(ctx, "a/b/c.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.IsReadable(ctx, "a/b/c.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IsReadable(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestFileController_Fail_Mknod tests the failures of creating entries.
func TestFileController_Fail_Mknod(t *testing.T) {
	t.Parallel()

	c, _ := newTestFileController(t)
	ctx := context.Background()

	require.NoError(t, c.Mknod(ctx, "a", entry.Directory, 0, nil))

	require.ErrorIs(t, c.Mknod(ctx, "a", entry.Directory, options.Exclusive, nil), fserr.ErrExists)
	require.ErrorIs(t, c.Mknod(ctx, "a", entry.File, 0, nil), fserr.ErrExists)
	require.ErrorIs(t, c.Mknod(ctx, "fifo", entry.Special, 0, nil), ErrUnsupported)
}

// TestFileController_Success_Unlink tests removing entries.
func TestFileController_Success_Unlink(t *testing.T) {
	t.Parallel()

	c, _ := newTestFileController(t)
	ctx := context.Background()

	writeString(t, c.Output(ctx, "a/b.txt", options.CreateParents, nil), "x")

	require.ErrorIs(t, c.Unlink(ctx, "a", 0), fserr.ErrDirNotEmpty)
	require.NoError(t, c.Unlink(ctx, "a/b.txt", 0))
	require.NoError(t, c.Unlink(ctx, "a", 0))
	require.ErrorIs(t, c.Unlink(ctx, "a", 0), fserr.ErrNotFound)
}

// TestFileController_Success_SetTime tests setting times.
func TestFileController_Success_SetTime(t *testing.T) {
	t.Parallel()

	c, _ := newTestFileController(t)
	ctx := context.Background()

	writeString(t, c.Output(ctx, "a.txt", 0, nil), "x")

	ok, err := c.SetTime(ctx, "a.txt", []entry.Access{entry.Write}, 1600000000000)
	require.NoError(t, err)
	assert.True(t, ok)

	e, err := c.Stat(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(1600000000000), e.Time(entry.Write))

	ok, err = c.SetTime(ctx, "a.txt", []entry.Access{entry.Create, entry.Write}, 1600000000000)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.SetTime(ctx, "missing", []entry.Access{entry.Write}, 0)
	require.Error(t, err)
}
