package pool

import (
	"bytes"
	"errors"
	"hash/crc32"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"
)

// TestBuffer_Success_Memory tests a buffer which stays below the threshold.
func TestBuffer_Success_Memory(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	p := New(fs, nil, Config{Dir: "/tmp", Threshold: 64})

	b := p.Allocate()
	_, err := b.Write([]byte("small"))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	assert.Empty(t, b.Path())
	assert.Equal(t, int64(5), b.Size())
	assert.Equal(t, crc32.ChecksumIEEE([]byte("small")), b.CRC32())

	r, err := b.Open()
	require.NoError(t, err)
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "small", string(content))

	assert.Equal(t, 1, p.Live())
	require.NoError(t, b.Release())
	assert.Equal(t, 0, p.Live())
}

// TestBuffer_Success_Spill tests spilling into a temporary file, its digests
// and that the file no longer exists once released.
func TestBuffer_Success_Spill(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	p := New(fs, nil, Config{Dir: "/tmp", Threshold: 8})

	content := []byte(strings.Repeat("0123456789", 10))

	b := p.Allocate()
	_, err := b.Write(content[:5])
	require.NoError(t, err)
	_, err = b.Write(content[5:])
	require.NoError(t, err)
	require.NoError(t, b.Close())

	path := b.Path()
	require.NotEmpty(t, path)

	exists, err := afero.Exists(fs, path)
	require.NoError(t, err)
	assert.True(t, exists)

	sum := blake3.Sum256(content)
	assert.Equal(t, sum[:], b.Sum())
	assert.Equal(t, crc32.ChecksumIEEE(content), b.CRC32())

	var out bytes.Buffer
	n, err := b.Replay(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)
	assert.Equal(t, content, out.Bytes())

	require.NoError(t, b.Release())
	require.NoError(t, b.Release())

	exists, err = afero.Exists(fs, path)
	require.NoError(t, err)
	assert.False(t, exists)
}

// TestBuffer_Fail_State tests the write-once life cycle.
func TestBuffer_Fail_State(t *testing.T) {
	t.Parallel()

	p := New(afero.NewMemMapFs(), nil, Config{Dir: "/tmp", Threshold: 8})
	b := p.Allocate()

	_, err := b.Open()
	require.ErrorIs(t, err, ErrNotClosed)

	require.NoError(t, b.Close())
	_, err = b.Write([]byte("x"))
	require.ErrorIs(t, err, ErrClosed)

	require.NoError(t, b.Release())
	_, err = b.Open()
	require.ErrorIs(t, err, ErrReleased)
}

// TestBuffer_Fail_Space tests the free space guard when spilling.
func TestBuffer_Fail_Space(t *testing.T) {
	t.Parallel()

	statfs := newMockStatfsProvider(t)
	statfs.expectFree("/tmp", 100).Once()

	p := New(afero.NewMemMapFs(), statfs, Config{Dir: "/tmp", Threshold: 4, MinFree: 90})

	b := p.Allocate()
	_, err := b.Write([]byte("1234"))
	require.NoError(t, err)

	_, err = b.Write([]byte(strings.Repeat("x", 20)))
	require.ErrorIs(t, err, ErrInsufficientSpace)

	require.NoError(t, b.Release())
}

// TestBuffer_Success_Space tests spilling with enough free space.
func TestBuffer_Success_Space(t *testing.T) {
	t.Parallel()

	statfs := newMockStatfsProvider(t)
	statfs.expectFree("/tmp", 1<<30).Once()

	p := New(afero.NewMemMapFs(), statfs, Config{Dir: "/tmp", Threshold: 4, MinFree: 90})

	b := p.Allocate()
	_, err := b.Write([]byte(strings.Repeat("x", 20)))
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.NotEmpty(t, b.Path())
	require.NoError(t, b.Release())
}

// TestBuffer_Fail_Statfs tests that statfs errors are propagated.
func TestBuffer_Fail_Statfs(t *testing.T) {
	t.Parallel()

	statErr := errors.New("statfs failed")
	statfs := newMockStatfsProvider(t)
	statfs.On("Statfs", "/tmp", &unix.Statfs_t{}).Return(statErr).Once()

	p := New(afero.NewMemMapFs(), statfs, Config{Dir: "/tmp", Threshold: 0, MinFree: 1})

	b := p.Allocate()
	_, err := b.Write([]byte("x"))
	require.ErrorIs(t, err, statErr)
	require.NoError(t, b.Release())
}
