package service

import (
	"testing"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEntries_Success tests the first-write order of the container.
func TestEntries_Success(t *testing.T) {
	t.Parallel()

	c := NewEntries[*entry.Record]()

	c.Put(entry.NewRecord("b", entry.File, nil))
	c.Put(entry.NewRecord("a", entry.File, nil))
	c.Put(entry.NewRecord("c", entry.Directory, nil))

	replacement := entry.NewRecord("b", entry.File, nil)
	replacement.SetSize(entry.DataSize, 42)
	c.Put(replacement)

	require.Equal(t, 3, c.Size())

	names := []string{}
	for _, e := range c.Entries() {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"b", "a", "c"}, names)
	assert.Equal(t, int64(42), c.Entry("b").Size(entry.DataSize))

	c.Remove("a")
	c.Remove("missing")

	assert.Nil(t, c.Entry("a"))
	assert.Equal(t, 2, c.Size())
	assert.Equal(t, "c", c.Values()[1].Name())
}
