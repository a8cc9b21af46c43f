package mount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew_Success tests construction and rendering of nested mount points.
func TestNew_Success(t *testing.T) {
	t.Parallel()

	root := Root()
	a, err := New("zip", root, "/dir/a.zip")
	require.NoError(t, err)

	b, err := New("tar.gz", a, "b.tgz")
	require.NoError(t, err)

	assert.Equal(t, "file:/", root.String())
	assert.Equal(t, "file:/dir/a.zip!/", a.String())
	assert.Equal(t, "file:/dir/a.zip!/b.tgz!/", b.String())
	assert.Equal(t, "dir/a.zip", a.Name())
	assert.Equal(t, 2, b.Depth())
	assert.True(t, a.TopLevel())
	assert.False(t, b.TopLevel())
	assert.True(t, root.IsRoot())
	assert.Same(t, a, b.Parent())
}

// TestNew_Fail tests invalid nested mount points.
func TestNew_Fail(t *testing.T) {
	t.Parallel()

	_, err := New("zip", nil, "a.zip")
	require.ErrorIs(t, err, ErrNoParent)

	_, err = New("zip", Root(), "/")
	require.ErrorIs(t, err, ErrEmptyName)

	_, err = New("", Root(), "a.zip")
	require.ErrorIs(t, err, ErrEmptyScheme)
}

// TestRelated_Success tests the ancestry checks.
func TestRelated_Success(t *testing.T) {
	t.Parallel()

	root := Root()
	a, _ := New("zip", root, "a.zip")
	b, _ := New("zip", root, "b.zip")
	c, _ := New("zip", b, "c.zip")
	b2, _ := New("zip", root, "b.zip")
	bb, _ := New("zip", root, "b.zipx")

	assert.True(t, b.Equal(b2))
	assert.True(t, b.IsAncestorOf(c))
	assert.False(t, c.IsAncestorOf(b))
	assert.True(t, root.IsAncestorOf(c))
	assert.True(t, c.Related(b))
	assert.True(t, b.Related(c))
	assert.False(t, a.Related(c))
	assert.False(t, b.Related(bb))
}
