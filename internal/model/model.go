// Package model implements the per mount point state of federated file
// systems.
package model

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/desertwitch/arcvfs/internal/mount"
)

// Model is the state of one file system: its mount point, the model of its
// parent file system and its touched and mounted flags.
type Model struct {
	sync.RWMutex
	point   *mount.Point
	parent  *Model
	touched bool
	mounted bool
}

// New returns a pointer to a new [Model]. The mount point of parent must be
// the parent of point, or both must be absent.
func New(point *mount.Point, parent *Model) (*Model, error) {
	if point == nil {
		return nil, fmt.Errorf("(model-new) %w", ErrNoPoint)
	}

	switch {
	case parent == nil && point.Parent() != nil:
		return nil, fmt.Errorf("(model-new) %w: %s has no parent model", ErrParentMismatch, point)
	case parent != nil && !parent.point.Equal(point.Parent()):
		return nil, fmt.Errorf("(model-new) %w: %s is not the parent of %s", ErrParentMismatch, parent.point, point)
	}

	return &Model{
		point:  point,
		parent: parent,
	}, nil
}

func (m *Model) Point() *mount.Point {
	return m.point
}

// Parent returns the model of the parent file system, nil for the root.
func (m *Model) Parent() *Model {
	return m.parent
}

// Federated reports whether the file system is stored in a parent.
func (m *Model) Federated() bool {
	return m.parent != nil
}

// Touched reports whether the file system has state which must not be
// discarded before the next successful synchronization.
func (m *Model) Touched() bool {
	m.RLock()
	defer m.RUnlock()

	return m.touched
}

// SetTouched updates the touched flag. The root file system cannot be
// touched.
func (m *Model) SetTouched(touched bool) error {
	if touched && m.parent == nil {
		return fmt.Errorf("(model-touch) %w: %s", ErrRootTouched, m.point)
	}

	m.Lock()
	changed := m.touched != touched
	m.touched = touched
	m.Unlock()

	if changed {
		slog.Debug("File system touched state changed.", "mount", m.point.String(), "touched", touched)
	}

	return nil
}

// Mounted reports whether the file system has been mounted.
func (m *Model) Mounted() bool {
	m.RLock()
	defer m.RUnlock()

	return m.mounted
}

func (m *Model) SetMounted(mounted bool) {
	m.Lock()
	defer m.Unlock()

	m.mounted = mounted
}

func (m *Model) String() string {
	return m.point.String()
}
