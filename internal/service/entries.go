package service

import (
	"sync"

	"github.com/desertwitch/arcvfs/internal/entry"
)

// Entries is a [Container] which keeps entries keyed by name in the order in
// which each name was first put.
type Entries[E entry.Entry] struct {
	sync.RWMutex
	order []string
	items map[string]E
}

// NewEntries returns a pointer to a new empty [Entries].
func NewEntries[E entry.Entry]() *Entries[E] {
	return &Entries[E]{
		items: make(map[string]E),
	}
}

// Put stores e. Replacing an entry keeps the position of its name.
func (c *Entries[E]) Put(e E) {
	c.Lock()
	defer c.Unlock()

	if _, exists := c.items[e.Name()]; !exists {
		c.order = append(c.order, e.Name())
	}
	c.items[e.Name()] = e
}

// Get returns the named entry.
func (c *Entries[E]) Get(name string) (E, bool) {
	c.RLock()
	defer c.RUnlock()

	e, ok := c.items[name]

	return e, ok
}

// Remove deletes the named entry.
func (c *Entries[E]) Remove(name string) {
	c.Lock()
	defer c.Unlock()

	if _, exists := c.items[name]; !exists {
		return
	}
	delete(c.items, name)

	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)

			break
		}
	}
}

// Values returns the entries in order.
func (c *Entries[E]) Values() []E {
	c.RLock()
	defer c.RUnlock()

	values := make([]E, 0, len(c.order))
	for _, n := range c.order {
		values = append(values, c.items[n])
	}

	return values
}

func (c *Entries[E]) Size() int {
	c.RLock()
	defer c.RUnlock()

	return len(c.order)
}

func (c *Entries[E]) Entries() []entry.Entry {
	values := c.Values()

	entries := make([]entry.Entry, 0, len(values))
	for _, v := range values {
		entries = append(entries, v)
	}

	return entries
}

func (c *Entries[E]) Entry(name string) entry.Entry {
	e, ok := c.Get(name)
	if !ok {
		return nil
	}

	return e
}
