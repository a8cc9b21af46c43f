// Package mount implements the hierarchical identifiers of federated file
// systems.
package mount

import (
	"fmt"
	"strings"

	"github.com/desertwitch/arcvfs/internal/entry"
)

const (
	// RootScheme is the scheme of the physical root file system.
	RootScheme = "file"

	// Boundary separates the mount point of a parent file system from the
	// entry name of a nested file system.
	Boundary = "!/"
)

// Point is the immutable identifier of a federated file system. A Point
// without a parent identifies the physical root file system; every other
// Point is stored as an entry in its parent.
type Point struct {
	scheme string
	parent *Point
	name   string
	repr   string
	depth  int
}

// Root returns a pointer to a new root [Point].
func Root() *Point {
	return &Point{
		scheme: RootScheme,
		repr:   RootScheme + ":/",
	}
}

// New returns a pointer to a new [Point] of the given scheme for the entry
// name inside the file system identified by parent.
func New(scheme string, parent *Point, name string) (*Point, error) {
	if parent == nil {
		return nil, fmt.Errorf("(mount-new) %w", ErrNoParent)
	}

	name = entry.Clean(name)
	if name == "" {
		return nil, fmt.Errorf("(mount-new) %w: %s", ErrEmptyName, parent)
	}

	if scheme == "" {
		return nil, fmt.Errorf("(mount-new) %w: %s", ErrEmptyScheme, name)
	}

	return &Point{
		scheme: scheme,
		parent: parent,
		name:   name,
		repr:   parent.repr + name + Boundary,
		depth:  parent.depth + 1,
	}, nil
}

func (p *Point) Scheme() string {
	return p.scheme
}

// Parent returns the mount point of the containing file system, nil for the
// root.
func (p *Point) Parent() *Point {
	return p.parent
}

// Name returns the entry name in the parent file system, "" for the root.
func (p *Point) Name() string {
	return p.name
}

// Depth returns the nesting level, zero for the root.
func (p *Point) Depth() int {
	return p.depth
}

func (p *Point) IsRoot() bool {
	return p.parent == nil
}

func (p *Point) String() string {
	return p.repr
}

func (p *Point) Equal(o *Point) bool {
	if p == nil || o == nil {
		return p == o
	}

	return p.repr == o.repr
}

// IsAncestorOf reports whether p strictly contains o.
func (p *Point) IsAncestorOf(o *Point) bool {
	if o == nil || o.depth <= p.depth {
		return false
	}

	return strings.HasPrefix(o.repr, p.repr)
}

// Related reports whether p and o are equal or one contains the other.
func (p *Point) Related(o *Point) bool {
	return p.Equal(o) || p.IsAncestorOf(o) || o.IsAncestorOf(p)
}

// TopLevel reports whether p is stored directly in the root file system.
func (p *Point) TopLevel() bool {
	return p.depth == 1
}
