package zipdriver

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/model"
	"github.com/desertwitch/arcvfs/internal/mount"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/pool"
	"github.com/desertwitch/arcvfs/internal/service"
	"github.com/desertwitch/arcvfs/internal/socket"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	bytes.Buffer
	closed bool
}

func (s *memSink) Close() error {
	s.closed = true

	return nil
}

func (s *memSink) Target() (entry.Entry, error) {
	return entry.NewRecord("archive.zip", entry.File, nil), nil
}

func (s *memSink) Stream(_ socket.InputSocket) (io.WriteCloser, error) {
	return s, nil
}

func memSource(content []byte) socket.InputSocket {
	rec := entry.NewRecord("archive.zip", entry.File, nil)
	rec.SetSize(entry.DataSize, int64(len(content)))

	return socket.NewChannelInput(rec, func() (socket.Channel, error) {
		return socket.NewSectionChannel(bytes.NewReader(content), 0, int64(len(content)), nil), nil
	})
}

func newTestModel(t *testing.T) *model.Model {
	t.Helper()

	root, err := model.New(mount.Root(), nil)
	require.NoError(t, err)

	p, err := mount.New(Scheme, root.Point(), "archive.zip")
	require.NoError(t, err)

	m, err := model.New(p, root)
	require.NoError(t, err)

	return m
}

func writeEntry(t *testing.T, d *Driver, out service.OutputService, name string, typ entry.Type, content string, modified time.Time) {
	t.Helper()

	e, err := d.NewEntry(name, typ, 0, nil)
	require.NoError(t, err)
	e.SetTime(entry.Write, entry.Millis(modified))

	w, err := out.Output(e).Stream(nil)
	require.NoError(t, err)

	if content != "" {
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func readEntry(t *testing.T, in service.InputService, name string) string {
	t.Helper()

	r, err := in.Input(name).Stream(nil)
	require.NoError(t, err)
	defer r.Close()

	content, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(content)
}

// TestDriver_Success_RoundTrip tests writing and reading back an archive.
func TestDriver_Success_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := pool.New(afero.NewMemMapFs(), nil, pool.Config{Dir: "/tmp", Threshold: 16})
	d := New(p)
	m := newTestModel(t)
	modified := time.Unix(1700000000, 0)

	sink := &memSink{}
	out, err := d.NewOutputService(ctx, m, sink, nil)
	require.NoError(t, err)

	writeEntry(t, d, out, "dir", entry.Directory, "", modified)
	writeEntry(t, d, out, "dir/hello.txt", entry.File, "hello zip world, longer than threshold", modified)

	require.NoError(t, out.Close())
	assert.True(t, sink.closed)
	assert.Equal(t, 0, p.Live())

	in, err := d.NewInputService(ctx, m, memSource(sink.Bytes()))
	require.NoError(t, err)
	defer in.Close()

	require.Equal(t, 2, in.Size())
	assert.Equal(t, entry.Directory, in.Entry("dir").Type())

	e := in.Entry("dir/hello.txt")
	require.NotNil(t, e)
	assert.Equal(t, int64(38), e.Size(entry.DataSize))
	assert.Equal(t, modified.UnixMilli(), e.Time(entry.Write))
	assert.Equal(t, "hello zip world, longer than threshold", readEntry(t, in, "dir/hello.txt"))
}

// TestDriver_Success_RawCopy tests copying an entry without recompression
// while retaining preamble and comment of the source archive.
func TestDriver_Success_RawCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := pool.New(afero.NewMemMapFs(), nil, pool.Config{Dir: "/tmp", Threshold: 1024})
	d := New(p)
	m := newTestModel(t)

	var src bytes.Buffer
	src.WriteString("#!stub\n")
	zw := zip.NewWriter(&src)
	zw.SetOffset(7)
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: "a.txt", Method: zip.Deflate})
	require.NoError(t, err)
	_, err = fw.Write(bytes.Repeat([]byte("compressible "), 50))
	require.NoError(t, err)
	require.NoError(t, zw.SetComment("kept"))
	require.NoError(t, zw.Close())

	in, err := d.NewInputService(ctx, m, memSource(src.Bytes()))
	require.NoError(t, err)
	defer in.Close()

	srcEntry := in.Entry("a.txt")
	require.NotNil(t, srcEntry)

	sink := &memSink{}
	out, err := d.NewOutputService(ctx, m, sink, in)
	require.NoError(t, err)

	dst, err := d.NewEntry("a.txt", entry.File, 0, srcEntry)
	require.NoError(t, err)

	outSocket := out.Output(dst)
	inSocket := in.Input("a.txt")

	r, err := inSocket.Stream(outSocket)
	require.NoError(t, err)
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Len(t, raw, int(srcEntry.Size(entry.StorageSize)))

	_, err = socket.Copy(inSocket, outSocket)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	assert.True(t, bytes.HasPrefix(sink.Bytes(), []byte("#!stub\n")))

	copied, err := d.NewInputService(ctx, m, memSource(sink.Bytes()))
	require.NoError(t, err)
	defer copied.Close()

	assert.Equal(t, string(bytes.Repeat([]byte("compressible "), 50)), readEntry(t, copied, "a.txt"))
	assert.Equal(t, "kept", copied.(*inputService).reader.Comment) //nolint:forcetypeassert
}

// TestNewEntry_Success tests the method selection of new entries.
func TestNewEntry_Success(t *testing.T) {
	t.Parallel()

	d := New(nil)

	e, err := d.NewEntry("f", entry.File, options.Store, nil)
	require.NoError(t, err)
	assert.Equal(t, zip.Store, e.(*Entry).Method()) //nolint:forcetypeassert

	e, err = d.NewEntry("dir", entry.Directory, options.Compress, nil)
	require.NoError(t, err)
	assert.Equal(t, zip.Store, e.(*Entry).Method()) //nolint:forcetypeassert

	e, err = d.NewEntry("f", entry.File, 0, entry.NewRecord("x", entry.File, nil))
	require.NoError(t, err)
	assert.Equal(t, zip.Deflate, e.(*Entry).Method()) //nolint:forcetypeassert
	assert.Nil(t, e.(*Entry).origin)                  //nolint:forcetypeassert
}

// TestNewInputService_Fail tests mounting content which is not a ZIP archive.
func TestNewInputService_Fail(t *testing.T) {
	t.Parallel()

	d := New(nil)

	_, err := d.NewInputService(context.Background(), newTestModel(t), memSource([]byte("not a zip file at all")))
	require.Error(t, err)
}
