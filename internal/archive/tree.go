package archive

import (
	"sort"

	"github.com/desertwitch/arcvfs/internal/entry"
)

// node is an entry of the virtual file system tree of a mounted archive.
type node struct {
	e entry.Entry

	// ghost is set for directories which have no entry of their own in the
	// archive but are implied by the names of their members.
	ghost bool

	// pending is set for entries created by mknod which have no content in
	// either the input or the output yet.
	pending bool

	members map[string]struct{}
}

// tree maps entry names to nodes. The root "" always exists.
type tree struct {
	nodes map[string]*node
}

func newTree() *tree {
	t := &tree{nodes: make(map[string]*node)}
	t.nodes[""] = &node{
		e:       entry.NewRecord("", entry.Directory, nil),
		ghost:   true,
		members: make(map[string]struct{}),
	}

	return t
}

func (t *tree) get(name string) *node {
	return t.nodes[name]
}

// put inserts or replaces the node of name and links it into its parent,
// creating ghost directories for missing parents.
func (t *tree) put(name string, n *node) {
	if old, ok := t.nodes[name]; ok && old.members != nil && n.e.Type() == entry.Directory {
		n.members = old.members
	}
	if n.members == nil && n.e.Type() == entry.Directory {
		n.members = make(map[string]struct{})
	}
	t.nodes[name] = n

	for name != "" {
		parent, _ := entry.Parent(name)

		p, ok := t.nodes[parent]
		if !ok {
			p = &node{
				e:       entry.NewRecord(parent, entry.Directory, nil),
				ghost:   true,
				members: make(map[string]struct{}),
			}
			t.nodes[parent] = p
		}
		if p.members == nil {
			// A file shadowed by a member of the same name becomes a
			// directory, as in any archive listing both.
			p = &node{
				e:       entry.NewRecord(parent, entry.Directory, p.e),
				ghost:   true,
				members: make(map[string]struct{}),
			}
			t.nodes[parent] = p
		}

		if _, exists := p.members[entry.Base(name)]; exists {
			return
		}
		p.members[entry.Base(name)] = struct{}{}
		name = parent
	}
}

// remove unlinks the node of name from its parent.
func (t *tree) remove(name string) {
	delete(t.nodes, name)

	if parent, ok := entry.Parent(name); ok {
		if p := t.nodes[parent]; p != nil {
			delete(p.members, entry.Base(name))
		}
	}
}

// names returns all entry names except the root in lexical order, so that
// every directory precedes its members.
func (t *tree) names() []string {
	names := make([]string, 0, len(t.nodes))
	for name := range t.nodes {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return names
}

// stat returns the entry of n. Directories are returned as a record listing
// their members.
func (n *node) stat(name string) entry.Entry {
	if n.members == nil {
		return n.e
	}

	r := entry.NewRecord(name, entry.Directory, n.e)
	for m := range n.members {
		r.AddMember(m)
	}

	return r
}
