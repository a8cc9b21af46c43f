package entry

import (
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClean_Success tests the normalization of entry names.
func TestClean_Success(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":            "",
		"/":           "",
		"a":           "a",
		"/a/b/":       "a/b",
		"a//b/./c":    "a/b/c",
		"a/b/../c":    "a/c",
		"../../etc":   "etc",
		"dir/file.gz": "dir/file.gz",
	}

	for in, want := range tests {
		assert.Equal(t, want, Clean(in), in)
	}
}

// TestParent_Success tests resolving parent names.
func TestParent_Success(t *testing.T) {
	t.Parallel()

	parent, ok := Parent("a/b/c")
	assert.True(t, ok)
	assert.Equal(t, "a/b", parent)

	parent, ok = Parent("a")
	assert.True(t, ok)
	assert.Empty(t, parent)

	_, ok = Parent("")
	assert.False(t, ok)

	assert.Equal(t, "c", Base("a/b/c"))
	assert.Equal(t, "a", Base("a"))
}

// TestNewRecord_Success tests the record factory with and without template.
func TestNewRecord_Success(t *testing.T) {
	t.Parallel()

	r := NewRecord("/dir/file/", File, nil)

	assert.Equal(t, "dir/file", r.Name())
	assert.Equal(t, File, r.Type())
	assert.Equal(t, Unknown, r.Size(DataSize))
	assert.Equal(t, Unknown, r.Size(StorageSize))
	assert.Equal(t, Unknown, r.Time(Write))
	assert.Nil(t, r.Permitted(Read, User))

	now := time.Now()
	r.SetSize(DataSize, 42)
	r.SetTime(Write, Millis(now))
	r.SetPermitted(Write, Other, Bool(false))

	c := NewRecord("copy", Directory, r)

	assert.Equal(t, "copy", c.Name())
	assert.Equal(t, Directory, c.Type())
	assert.Equal(t, int64(42), c.Size(DataSize))
	assert.Equal(t, now.UnixMilli(), c.Time(Write))
	require.NotNil(t, c.Permitted(Write, Other))
	assert.False(t, *c.Permitted(Write, Other))
}

// TestRecordMembers_Success tests member bookkeeping of directory records.
func TestRecordMembers_Success(t *testing.T) {
	t.Parallel()

	r := NewRecord("", Directory, nil)

	assert.True(t, r.AddMember("b"))
	assert.True(t, r.AddMember("a"))
	assert.False(t, r.AddMember("a"))
	assert.Equal(t, []string{"a", "b"}, r.Members())

	r.RemoveMember("a")
	assert.Equal(t, []string{"b"}, r.Members())
}

// TestMillis_Success tests the conversion between times and milliseconds.
func TestMillis_Success(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Unknown, Millis(time.Time{}))
	assert.True(t, FromMillis(Unknown).IsZero())

	ts := time.UnixMilli(1700000000123)
	assert.Equal(t, ts, FromMillis(Millis(ts)))
}

// TestMode_Success tests the conversion between permissions and mode bits.
func TestMode_Success(t *testing.T) {
	t.Parallel()

	r := NewRecord("f", File, nil)
	assert.Equal(t, fs.FileMode(0o644), Mode(r, 0o644))

	SetMode(r, 0o751)
	assert.Equal(t, fs.FileMode(0o751), Mode(r, 0o644))

	r.SetPermitted(Write, Other, nil)
	assert.Equal(t, fs.FileMode(0o753), Mode(r, 0o002))
}
