// Package vfs is the application facing file system. Paths are slash
// separated and relative to a root directory; every path element carrying a
// registered archive suffix is a federated file system, so archives nest in
// archives to any depth:
//
//	backup.zip/2024/photos.tar.gz/beach.jpg
//
// Changes to archives are buffered and committed when the file system is
// synchronized, at the latest on [FS.Close].
package vfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/desertwitch/arcvfs/internal/configuration"
	"github.com/desertwitch/arcvfs/internal/controller"
	"github.com/desertwitch/arcvfs/internal/driver"
	"github.com/desertwitch/arcvfs/internal/driver/tardriver"
	"github.com/desertwitch/arcvfs/internal/driver/zipdriver"
	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/keys"
	"github.com/desertwitch/arcvfs/internal/manager"
	"github.com/desertwitch/arcvfs/internal/model"
	"github.com/desertwitch/arcvfs/internal/mount"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/pace"
	"github.com/desertwitch/arcvfs/internal/pool"
	"github.com/desertwitch/arcvfs/internal/socket"
	"github.com/spf13/afero"
)

// FS is a federated file system rooted in a directory of an [afero.Fs].
type FS struct {
	registry *driver.Registry
	pool     *pool.Pool
	pace     *pace.Manager
	root     *mount.Point
}

// New returns a pointer to a new [FS] rooted in the directory root of fsys.
// Temporary buffers are kept on the same fsys.
func New(fsys afero.Fs, root string, config configuration.Config) (*FS, error) {
	p := pool.New(fsys, &pool.UnixStatfs{}, pool.Config{
		Dir:       config.TempDir,
		Threshold: config.SpoolThreshold,
		MinFree:   config.MinTempFree,
	})

	km := keys.NewManager(func(*mount.Point) keys.Provider {
		return keys.NewEnv(config.KeyEnv)
	})

	registry, err := newRegistry(p, km)
	if err != nil {
		return nil, fmt.Errorf("(vfs-new) %w", err)
	}

	rootModel, err := model.New(mount.Root(), nil)
	if err != nil {
		return nil, fmt.Errorf("(vfs-new) %w", err)
	}

	m := manager.New(registry, p, controller.NewFileController(rootModel, fsys, root), manager.Config{
		SyncTimeout: config.SyncTimeout,
	})

	slog.Debug("Created file system.", "root", root, "suffixes", registry.Suffixes(), "maxMounts", config.MaxMounts)

	return &FS{
		registry: registry,
		pool:     p,
		pace:     pace.New(m, config.MaxMounts, config.SyncTimeout),
		root:     rootModel.Point(),
	}, nil
}

// newRegistry registers the ZIP driver and one TAR driver per codec.
func newRegistry(p *pool.Pool, km *keys.Manager) (*driver.Registry, error) {
	registry := driver.NewRegistry()

	if err := registry.Register(zipdriver.New(p), ".zip", ".jar"); err != nil {
		return nil, err //nolint:wrapcheck
	}

	codecs := []tardriver.Codec{
		tardriver.Plain{},
		tardriver.Gzip{},
		tardriver.Zstd{},
		tardriver.LZ4{},
		tardriver.XZ{},
		tardriver.Age{},
	}

	for _, codec := range codecs {
		if err := registry.Register(tardriver.New(codec, p, km), codec.Suffixes()...); err != nil {
			return nil, err //nolint:wrapcheck
		}
	}

	return registry, nil
}

// WithOwner returns a copy of ctx identifying one caller. Streams opened with
// it are the caller's own: synchronizing with the same context does not wait
// for them. Operations stamp contexts without an owner with a new one.
func WithOwner(ctx context.Context) context.Context {
	return controller.WithOwner(ctx)
}

func owned(ctx context.Context) context.Context {
	if controller.OwnerOf(ctx) == controller.Anonymous {
		return controller.WithOwner(ctx)
	}

	return ctx
}

func pathError(op, name string, err error) error {
	return &fs.PathError{Op: op, Path: name, Err: err}
}

// IsArchive reports whether name carries a registered archive suffix.
func (f *FS) IsArchive(name string) bool {
	_, ok := f.registry.Detect(entry.Base(entry.Clean(name)))

	return ok
}

// Suffixes returns the registered archive suffixes.
func (f *FS) Suffixes() []string {
	return f.registry.Suffixes()
}

// Stat returns the named entry. An archive is reported as its root
// directory.
func (f *FS) Stat(ctx context.Context, name string) (entry.Entry, error) {
	ctx = owned(ctx)

	t, err := f.resolve(ctx, name)
	if err != nil {
		return nil, pathError("stat", name, err)
	}

	e, err := t.c.Stat(ctx, t.name)
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	if e == nil {
		return nil, pathError("stat", name, fserr.ErrNotFound)
	}

	return e, nil
}

// ReadDir returns the members of the named directory sorted by name.
func (f *FS) ReadDir(ctx context.Context, name string) ([]entry.Entry, error) {
	ctx = owned(ctx)

	t, err := f.resolve(ctx, name)
	if err != nil {
		return nil, pathError("readdir", name, err)
	}

	e, err := t.c.Stat(ctx, t.name)
	if err != nil {
		return nil, pathError("readdir", name, err)
	}
	if e == nil {
		return nil, pathError("readdir", name, fserr.ErrNotFound)
	}

	dir, ok := e.(entry.Members)
	if e.Type() != entry.Directory || !ok {
		return nil, pathError("readdir", name, fserr.ErrNotDirectory)
	}

	members := make([]entry.Entry, 0, len(dir.Members()))
	for _, member := range dir.Members() {
		me, err := t.c.Stat(ctx, entry.Join(t.name, member))
		if err != nil {
			return nil, pathError("readdir", name, err)
		}
		if me != nil {
			members = append(members, me)
		}
	}

	return members, nil
}

// Open opens the named file for reading.
func (f *FS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	ctx = owned(ctx)

	t, err := f.resolve(ctx, name)
	if err != nil {
		return nil, pathError("open", name, err)
	}

	r, err := t.c.Input(ctx, t.name, 0).Stream(nil)
	if err != nil {
		return nil, pathError("open", name, err)
	}

	return r, nil
}

// OpenChannel opens the named file for random access.
func (f *FS) OpenChannel(ctx context.Context, name string) (socket.Channel, error) {
	ctx = owned(ctx)

	t, err := f.resolve(ctx, name)
	if err != nil {
		return nil, pathError("open", name, err)
	}

	ch, err := t.c.Input(ctx, t.name, 0).Channel(nil)
	if err != nil {
		return nil, pathError("open", name, err)
	}

	return ch, nil
}

// Create opens the named file for writing. The content is committed when
// the writer is closed; writers implementing [socket.Aborter] discard it on
// Abort instead.
func (f *FS) Create(ctx context.Context, name string, opts options.Access) (io.WriteCloser, error) {
	ctx = owned(ctx)

	t, err := f.resolve(ctx, name)
	if err != nil {
		return nil, pathError("create", name, err)
	}

	w, err := t.c.Output(ctx, t.name, opts, nil).Stream(nil)
	if err != nil {
		return nil, pathError("create", name, err)
	}

	return w, nil
}

// ReadFile returns the content of the named file.
func (f *FS) ReadFile(ctx context.Context, name string) (content []byte, err error) {
	r, err := f.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = fserr.Suppress(err, r.Close())
	}()

	content, err = io.ReadAll(r)
	if err != nil {
		return nil, pathError("read", name, err)
	}

	return content, nil
}

// WriteFile writes content to the named file, creating missing parent
// directories.
func (f *FS) WriteFile(ctx context.Context, name string, content []byte, opts options.Access) error {
	w, err := f.Create(ctx, name, opts|options.CreateParents)
	if err != nil {
		return err
	}

	if _, err := w.Write(content); err != nil {
		err = pathError("write", name, err)
		if a, ok := w.(socket.Aborter); ok {
			return fserr.Suppress(err, a.Abort())
		}

		return fserr.Suppress(err, w.Close())
	}

	if err := w.Close(); err != nil {
		return pathError("write", name, err)
	}

	return nil
}

// Mkdir creates the named directory. Naming an archive creates a new empty
// archive.
func (f *FS) Mkdir(ctx context.Context, name string, opts options.Access) error {
	ctx = owned(ctx)

	t, err := f.resolve(ctx, name)
	if err != nil {
		return pathError("mkdir", name, err)
	}

	if err := t.c.Mknod(ctx, t.name, entry.Directory, opts, nil); err != nil {
		return pathError("mkdir", name, err)
	}

	return nil
}

// Remove removes the named file or empty directory. Naming an empty archive
// removes the archive.
func (f *FS) Remove(ctx context.Context, name string) error {
	ctx = owned(ctx)

	t, err := f.resolve(ctx, name)
	if err != nil {
		return pathError("remove", name, err)
	}

	if err := t.c.Unlink(ctx, t.name, 0); err != nil {
		return pathError("remove", name, err)
	}

	return nil
}

// Chtimes sets the modification time of the named entry. It returns false if
// the file system cannot represent the time.
func (f *FS) Chtimes(ctx context.Context, name string, mtime time.Time) (bool, error) {
	ctx = owned(ctx)

	t, err := f.resolve(ctx, name)
	if err != nil {
		return false, pathError("chtimes", name, err)
	}

	ok, err := t.c.SetTime(ctx, t.name, []entry.Access{entry.Write}, entry.Millis(mtime))
	if err != nil {
		return false, pathError("chtimes", name, err)
	}

	return ok, nil
}

// Copy copies the content and metadata of the file src to dst. Entries
// copied between archives of the same format are transferred without
// recompression where the format allows it.
func (f *FS) Copy(ctx context.Context, src, dst string, opts options.Access) (int64, error) {
	ctx = owned(ctx)

	st, err := f.resolve(ctx, src)
	if err != nil {
		return 0, pathError("copy", src, err)
	}

	dt, err := f.resolve(ctx, dst)
	if err != nil {
		return 0, pathError("copy", dst, err)
	}

	in := st.c.Input(ctx, st.name, 0)

	template, err := in.Target()
	if err != nil {
		return 0, pathError("copy", src, err)
	}
	if template.Type() != entry.File {
		return 0, pathError("copy", src, fserr.ErrIsDirectory)
	}

	n, err := socket.Copy(in, dt.c.Output(ctx, dt.name, opts, template))
	if err != nil {
		return n, pathError("copy", dst, err)
	}

	return n, nil
}

// Sync synchronizes all federated file systems, nested ones before the
// archives containing them.
func (f *FS) Sync(ctx context.Context, opts options.Sync) error {
	if err := f.pace.Sync(owned(ctx), opts); err != nil {
		return fmt.Errorf("(vfs-sync) %w", err)
	}

	return nil
}

// Close commits all pending changes and releases every resource. Streams
// which are still open are disconnected, reported as a warning.
func (f *FS) Close(ctx context.Context) error {
	err := f.Sync(ctx, options.Umount)
	if err != nil && !fserr.IsWarning(err) {
		return err
	}

	if live := f.pool.Live(); live > 0 {
		slog.Warn("Temporary buffers still allocated after closing.", "buffers", live)
	}

	return err
}

// Stats are the counters of a [FS].
type Stats struct {
	pace.Stats

	// Buffers is the number of allocated temporary buffers.
	Buffers int
}

// Stats returns the current counters.
func (f *FS) Stats() Stats {
	return Stats{
		Stats:   f.pace.Stats(),
		Buffers: f.pool.Live(),
	}
}

// Walk calls fn for the named entry and, if it is a directory, for all
// entries below it in lexical order. Archives are descended into.
func (f *FS) Walk(ctx context.Context, name string, fn func(name string, e entry.Entry) error) error {
	ctx = owned(ctx)

	e, err := f.Stat(ctx, name)
	if err != nil {
		return err
	}

	return f.walk(ctx, entry.Clean(name), e, fn)
}

func (f *FS) walk(ctx context.Context, name string, e entry.Entry, fn func(string, entry.Entry) error) error {
	if err := fn(name, e); err != nil {
		return err
	}

	if e.Type() != entry.Directory {
		if !f.IsArchive(name) {
			return nil
		}

		root, err := f.Stat(ctx, name)
		if errors.Is(err, fserr.ErrNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		if root.Type() != entry.Directory {
			return nil
		}
	}

	members, err := f.ReadDir(ctx, name)
	if err != nil {
		return err
	}

	for _, me := range members {
		if err := f.walk(ctx, entry.Join(name, entry.Base(me.Name())), me, fn); err != nil {
			return err
		}
	}

	return nil
}
