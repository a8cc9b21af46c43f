// Package archive implements the controller of a federated file system
// stored as an archive entry of its parent file system. The archive is
// mounted lazily on first access and written into a new archive which
// replaces the old one when the file system is synchronized.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/desertwitch/arcvfs/internal/controller"
	"github.com/desertwitch/arcvfs/internal/driver"
	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/model"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/pool"
	"github.com/desertwitch/arcvfs/internal/service"
)

var _ controller.Controller = (*Controller)(nil)

// Controller is the innermost [controller.Controller] of an archive file
// system.
type Controller struct {
	mu     sync.Mutex
	model  *model.Model
	driver driver.Driver
	parent controller.Controller
	pool   *pool.Pool
	fs     *fileSystem
}

// fileSystem is the state of a mounted archive.
type fileSystem struct {
	tree     *tree
	readOnly bool
	exists   bool
	input    service.InputService
	output   service.OutputService
	spool    *spoolSink
	written  map[string]struct{}
}

// New returns a pointer to a new [Controller] for the archive m, which is
// stored as an entry of the file system controlled by parent.
func New(m *model.Model, d driver.Driver, parent controller.Controller, p *pool.Pool) *Controller {
	return &Controller{
		model:  m,
		driver: d,
		parent: parent,
		pool:   p,
	}
}

func (c *Controller) Model() *model.Model {
	return c.model
}

// name returns the name of the archive entry in the parent file system.
func (c *Controller) name() string {
	return c.model.Point().Name()
}

// mount returns the mounted file system. If the archive does not exist, a
// new empty file system is created if create is set, otherwise
// [ErrNoArchive] is returned.
func (c *Controller) mount(ctx context.Context, create bool) (*fileSystem, error) {
	if c.fs != nil {
		return c.fs, nil
	}

	pe, err := c.parent.Stat(ctx, c.name())
	if err != nil {
		return nil, fmt.Errorf("(archive-mount) %w", err)
	}

	fs := &fileSystem{
		tree:    newTree(),
		written: make(map[string]struct{}),
	}

	if pe == nil {
		if !create {
			return nil, fmt.Errorf("(archive-mount) %w: %s", ErrNoArchive, c.model)
		}

		c.fs = fs
		c.model.SetMounted(true)
		if err := c.model.SetTouched(true); err != nil {
			return nil, fmt.Errorf("(archive-mount) %w", err)
		}

		slog.Debug("Created new archive.", "mount", c.model.String())

		return fs, nil
	}

	if pe.Type() != entry.File {
		return nil, fmt.Errorf("(archive-mount) %w: %s is a %s", driver.ErrNotArchive, c.model, pe.Type())
	}

	writable, err := c.parent.IsWritable(ctx, c.name())
	if err != nil {
		return nil, fmt.Errorf("(archive-mount) %w", err)
	}

	input, err := c.driver.NewInputService(ctx, c.model, c.parent.Input(ctx, c.name(), 0))
	if err != nil {
		return nil, fmt.Errorf("(archive-mount) %w", err)
	}

	fs.exists = true
	fs.readOnly = !writable
	fs.input = input

	for _, e := range input.Entries() {
		if e.Name() == "" {
			continue
		}
		fs.tree.put(e.Name(), &node{e: e})
	}

	c.fs = fs
	c.model.SetMounted(true)

	slog.Debug("Mounted archive.", "mount", c.model.String(), "entries", input.Size(), "readOnly", fs.readOnly)

	return fs, nil
}

// unmount releases the input of the file system and forgets it.
func (c *Controller) unmount() error {
	fs := c.fs
	c.fs = nil
	c.model.SetMounted(false)

	if fs == nil || fs.input == nil {
		return nil
	}

	if err := fs.input.Close(); err != nil {
		return fmt.Errorf("(archive-unmount) %w", err)
	}

	return nil
}

// lookup mounts the file system for reading. A missing archive yields a nil
// file system without error.
func (c *Controller) lookup(ctx context.Context) (*fileSystem, error) {
	fs, err := c.mount(ctx, false)
	if errors.Is(err, ErrNoArchive) {
		return nil, nil //nolint:nilnil
	}

	return fs, err
}

// mutable mounts the file system for writing.
func (c *Controller) mutable(ctx context.Context, name string, create bool) (*fileSystem, error) {
	fs, err := c.mount(ctx, create)
	if err != nil {
		return nil, err
	}

	if fs.readOnly {
		return nil, &fserr.ReadOnlyError{Mount: c.model.String(), Name: name}
	}

	return fs, nil
}

// touch marks the file system as changed.
func (c *Controller) touch() error {
	if err := c.model.SetTouched(true); err != nil {
		return fmt.Errorf("(archive-touch) %w", err)
	}

	return nil
}

func (c *Controller) Stat(ctx context.Context, name string) (entry.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fs, err := c.lookup(ctx)
	if err != nil || fs == nil {
		return nil, err
	}

	name = entry.Clean(name)

	n := fs.tree.get(name)
	if n == nil {
		return nil, nil //nolint:nilnil
	}

	return n.stat(name), nil
}

func (c *Controller) IsReadable(ctx context.Context, name string) (bool, error) {
	e, err := c.Stat(ctx, name)

	return e != nil, err
}

func (c *Controller) IsWritable(ctx context.Context, name string) (bool, error) {
	e, err := c.Stat(ctx, name)
	if err != nil || e == nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fs != nil && !c.fs.readOnly, nil
}

func (c *Controller) IsExecutable(ctx context.Context, name string) (bool, error) {
	return controller.Permitted(ctx, c, name, entry.Execute, false)
}

func (c *Controller) SetReadOnly(_ context.Context, name string) error {
	return fmt.Errorf("(archive-chmod) %w: %s!/%s", controller.ErrUnsupported, c.model, name)
}

// SetTime replaces the entry of name with a copy carrying the new times.
// Only write and read times are stored by archive formats.
func (c *Controller) SetTime(ctx context.Context, name string, accesses []entry.Access, millis int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name = entry.Clean(name)

	fs, err := c.mutable(ctx, name, false)
	if err != nil {
		return false, err
	}

	n := fs.tree.get(name)
	if n == nil {
		return false, fmt.Errorf("(archive-chtimes) %w: %q", fserr.ErrNotFound, name)
	}
	if _, ok := fs.written[name]; ok {
		return false, fmt.Errorf("(archive-chtimes) %w: %q", fserr.ErrNeedsSync, name)
	}
	if name == "" {
		return false, nil
	}

	e, err := c.driver.NewEntry(name, n.e.Type(), 0, n.e)
	if err != nil {
		return false, fmt.Errorf("(archive-chtimes) %w", err)
	}

	ok := true
	for _, a := range accesses {
		switch a {
		case entry.Write, entry.Read:
			e.SetTime(a, millis)
		default:
			ok = false
		}
	}

	fs.tree.put(name, &node{e: e, pending: n.pending})

	return ok, c.touch()
}

func (c *Controller) Mknod(ctx context.Context, name string, typ entry.Type, opts options.Access, template entry.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name = entry.Clean(name)
	root := name == "" && typ == entry.Directory

	if name == "" && !root {
		return fmt.Errorf("(archive-mknod) %w: %s", fserr.ErrIsDirectory, c.model)
	}

	existed := c.fs != nil
	if !existed {
		pe, err := c.parent.Stat(ctx, c.name())
		if err != nil {
			return fmt.Errorf("(archive-mknod) %w", err)
		}
		existed = pe != nil
	}

	fs, err := c.mutable(ctx, name, root || opts.Has(options.CreateParents))
	if err != nil {
		return err
	}

	if root {
		if existed && opts.Has(options.Exclusive) {
			return fmt.Errorf("(archive-mknod) %w: %s", fserr.ErrExists, c.model)
		}

		return nil
	}

	if n := fs.tree.get(name); n != nil {
		if opts.Has(options.Exclusive) || n.e.Type() != typ {
			return fmt.Errorf("(archive-mknod) %w: %q", fserr.ErrExists, name)
		}

		return nil
	}

	if err := checkParent(fs, name, opts); err != nil {
		return err
	}

	e, err := c.newEntry(name, typ, opts, template)
	if err != nil {
		return err
	}

	fs.tree.put(name, &node{e: e, pending: true})

	return c.touch()
}

func (c *Controller) Unlink(ctx context.Context, name string, opts options.Access) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name = entry.Clean(name)

	fs, err := c.mutable(ctx, name, false)
	if err != nil {
		return err
	}

	n := fs.tree.get(name)
	if n == nil {
		return fmt.Errorf("(archive-unlink) %w: %q", fserr.ErrNotFound, name)
	}
	if len(n.members) > 0 {
		return fmt.Errorf("(archive-unlink) %w: %q", fserr.ErrDirNotEmpty, name)
	}

	if name == "" {
		return c.unlinkArchive(ctx, fs, opts)
	}

	if _, ok := fs.written[name]; ok {
		return fmt.Errorf("(archive-unlink) %w: %q", fserr.ErrNeedsSync, name)
	}

	fs.tree.remove(name)

	return c.touch()
}

// unlinkArchive discards the empty file system and removes the archive from
// its parent.
func (c *Controller) unlinkArchive(ctx context.Context, fs *fileSystem, opts options.Access) error {
	err := c.abort(fs)
	err = fserr.Suppress(err, c.unmount())
	err = fserr.Suppress(err, c.model.SetTouched(false))

	if fs.exists {
		err = fserr.Suppress(c.parent.Unlink(ctx, c.name(), opts), err)
	}

	if err != nil {
		return fmt.Errorf("(archive-unlink) %w", err)
	}

	slog.Debug("Removed archive.", "mount", c.model.String())

	return nil
}

// checkParent verifies that the parent directory of name exists, creating
// it if opts requests so.
func checkParent(fs *fileSystem, name string, opts options.Access) error {
	parent, _ := entry.Parent(name)

	p := fs.tree.get(parent)
	if p == nil {
		if !opts.Has(options.CreateParents) {
			return fmt.Errorf("(archive-parent) %w: %q", fserr.ErrNotFound, parent)
		}

		return nil
	}

	if p.members == nil {
		return fmt.Errorf("(archive-parent) %w: %q", fserr.ErrNotDirectory, parent)
	}

	return nil
}

// newEntry creates a driver entry from a snapshot of template, so that no
// format specific state of template is carried over.
func (c *Controller) newEntry(name string, typ entry.Type, opts options.Access, template entry.Entry) (entry.Mutable, error) {
	var snapshot entry.Entry
	if template != nil {
		snapshot = entry.NewRecord(name, typ, template)
	}

	e, err := c.driver.NewEntry(name, typ, opts, snapshot)
	if err != nil {
		return nil, fmt.Errorf("(archive-entry) %w", err)
	}

	if e.Time(entry.Write) == entry.Unknown {
		e.SetTime(entry.Write, time.Now().UnixMilli())
	}

	return e, nil
}
