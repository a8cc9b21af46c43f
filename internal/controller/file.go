package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/model"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/socket"
	"github.com/spf13/afero"
)

const (
	filePerms = fs.FileMode(0o644)
	dirPerms  = fs.FileMode(0o755)

	tempPattern = ".*.arcvfs"
)

// FileController is the [Controller] of a file system which is not
// federated, i.e. plain storage below a root directory of an [afero.Fs].
type FileController struct {
	model *model.Model
	fs    afero.Fs
	root  string
}

// NewFileController returns a pointer to a new [FileController] for the
// directory root of fsys.
func NewFileController(m *model.Model, fsys afero.Fs, root string) *FileController {
	return &FileController{
		model: m,
		fs:    fsys,
		root:  root,
	}
}

func (c *FileController) Model() *model.Model {
	return c.model
}

func (c *FileController) path(name string) string {
	return path.Join(c.root, entry.Clean(name))
}

func (c *FileController) Stat(_ context.Context, name string) (entry.Entry, error) {
	info, err := c.fs.Stat(c.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil
	}
	if err != nil {
		return nil, fmt.Errorf("(file-stat) %w", err)
	}

	return c.record(name, info)
}

func (c *FileController) record(name string, info fs.FileInfo) (*entry.Record, error) {
	typ := entry.Special
	switch {
	case info.IsDir():
		typ = entry.Directory
	case info.Mode().IsRegular():
		typ = entry.File
	}

	r := entry.NewRecord(name, typ, nil)
	if typ == entry.File {
		r.SetSize(entry.DataSize, info.Size())
		r.SetSize(entry.StorageSize, info.Size())
	}
	r.SetTime(entry.Write, entry.Millis(info.ModTime()))
	entry.SetMode(r, info.Mode().Perm())

	if typ == entry.Directory {
		members, err := afero.ReadDir(c.fs, c.path(name))
		if err != nil {
			return nil, fmt.Errorf("(file-stat) failed to read directory: %w", err)
		}
		for _, m := range members {
			r.AddMember(m.Name())
		}
	}

	return r, nil
}

func (c *FileController) IsReadable(ctx context.Context, name string) (bool, error) {
	return Permitted(ctx, c, name, entry.Read, true)
}

func (c *FileController) IsWritable(ctx context.Context, name string) (bool, error) {
	return Permitted(ctx, c, name, entry.Write, true)
}

func (c *FileController) IsExecutable(ctx context.Context, name string) (bool, error) {
	return Permitted(ctx, c, name, entry.Execute, false)
}

func (c *FileController) SetReadOnly(_ context.Context, name string) error {
	info, err := c.fs.Stat(c.path(name))
	if err != nil {
		return fmt.Errorf("(file-chmod) %w", err)
	}

	if err := c.fs.Chmod(c.path(name), info.Mode().Perm()&^0o222); err != nil {
		return fmt.Errorf("(file-chmod) %w", err)
	}

	return nil
}

func (c *FileController) SetTime(_ context.Context, name string, accesses []entry.Access, millis int64) (bool, error) {
	info, err := c.fs.Stat(c.path(name))
	if err != nil {
		return false, fmt.Errorf("(file-chtimes) %w", err)
	}

	mtime := info.ModTime()
	atime := mtime
	ok := true

	for _, a := range accesses {
		switch a {
		case entry.Write:
			mtime = entry.FromMillis(millis)
		case entry.Read:
			atime = entry.FromMillis(millis)
		default:
			ok = false
		}
	}

	if err := c.fs.Chtimes(c.path(name), atime, mtime); err != nil {
		return false, fmt.Errorf("(file-chtimes) %w", err)
	}

	return ok, nil
}

func (c *FileController) Input(ctx context.Context, name string, _ options.Access) socket.InputSocket {
	return &fileInput{ctx: ctx, c: c, name: entry.Clean(name)}
}

func (c *FileController) Output(ctx context.Context, name string, opts options.Access, template entry.Entry) socket.OutputSocket {
	return &fileOutput{ctx: ctx, c: c, name: entry.Clean(name), opts: opts, template: template}
}

func (c *FileController) Mknod(ctx context.Context, name string, typ entry.Type, opts options.Access, template entry.Entry) error {
	p := c.path(name)

	existing, err := c.Stat(ctx, name)
	if err != nil {
		return err
	}
	if existing != nil {
		if opts.Has(options.Exclusive) || existing.Type() != typ {
			return fmt.Errorf("(file-mknod) %w: %q", fserr.ErrExists, name)
		}

		return nil
	}

	if opts.Has(options.CreateParents) {
		if err := c.fs.MkdirAll(path.Dir(p), dirPerms); err != nil {
			return fmt.Errorf("(file-mknod) failed to create parents: %w", err)
		}
	}

	switch typ {
	case entry.Directory:
		if err := c.fs.Mkdir(p, modeOf(template, dirPerms)); err != nil {
			return fmt.Errorf("(file-mknod) %w", err)
		}
	case entry.File:
		f, err := c.fs.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, modeOf(template, filePerms))
		if err != nil {
			return fmt.Errorf("(file-mknod) %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("(file-mknod) %w", err)
		}
	default:
		return fmt.Errorf("(file-mknod) %w: %s entries", ErrUnsupported, typ)
	}

	return c.applyTimes(p, template)
}

func (c *FileController) Unlink(ctx context.Context, name string, _ options.Access) error {
	e, err := c.Stat(ctx, name)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("(file-unlink) %w: %q", fserr.ErrNotFound, name)
	}

	if m, ok := e.(entry.Members); ok && e.Type() == entry.Directory && len(m.Members()) > 0 {
		return fmt.Errorf("(file-unlink) %w: %q", fserr.ErrDirNotEmpty, name)
	}

	if err := c.fs.Remove(c.path(name)); err != nil {
		return fmt.Errorf("(file-unlink) %w", err)
	}

	return nil
}

// Sync is a no-op, the content of plain storage is never buffered.
func (*FileController) Sync(context.Context, options.Sync) error {
	return nil
}

func (c *FileController) applyTimes(p string, template entry.Entry) error {
	if template == nil || template.Time(entry.Write) == entry.Unknown {
		return nil
	}

	mtime := entry.FromMillis(template.Time(entry.Write))
	atime := mtime
	if t := template.Time(entry.Read); t != entry.Unknown {
		atime = entry.FromMillis(t)
	}

	if err := c.fs.Chtimes(p, atime, mtime); err != nil {
		return fmt.Errorf("(file-chtimes) %w", err)
	}

	return nil
}

func modeOf(template entry.Entry, def fs.FileMode) fs.FileMode {
	if template == nil {
		return def
	}

	return entry.Mode(template, def)
}

type fileInput struct {
	ctx  context.Context //nolint:containedctx
	c    *FileController
	name string
}

func (s *fileInput) Target() (entry.Entry, error) {
	e, err := s.c.Stat(s.ctx, s.name)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("(file-input) %w: %q", fserr.ErrNotFound, s.name)
	}

	return e, nil
}

func (s *fileInput) Stream(peer socket.OutputSocket) (io.ReadCloser, error) {
	return s.Channel(peer)
}

func (s *fileInput) Channel(_ socket.OutputSocket) (socket.Channel, error) {
	e, err := s.Target()
	if err != nil {
		return nil, err
	}
	if e.Type() == entry.Directory {
		return nil, fmt.Errorf("(file-input) %w: %q", fserr.ErrIsDirectory, s.name)
	}

	f, err := s.c.fs.Open(s.c.path(s.name))
	if err != nil {
		return nil, fmt.Errorf("(file-input) %w", err)
	}

	return &fileChannel{File: f, size: e.Size(entry.DataSize)}, nil
}

type fileChannel struct {
	afero.File
	size int64
}

func (f *fileChannel) Size() int64 {
	return f.size
}

type fileOutput struct {
	ctx      context.Context //nolint:containedctx
	c        *FileController
	name     string
	opts     options.Access
	template entry.Entry
}

func (s *fileOutput) Target() (entry.Entry, error) {
	e, err := s.c.Stat(s.ctx, s.name)
	if err != nil {
		return nil, err
	}

	r := entry.NewRecord(s.name, entry.File, s.template)
	if e != nil && s.template == nil {
		r = entry.NewRecord(s.name, e.Type(), e)
	}

	return r, nil
}

func (s *fileOutput) Stream(_ socket.InputSocket) (io.WriteCloser, error) {
	p := s.c.path(s.name)

	existing, err := s.c.Stat(s.ctx, s.name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if s.opts.Has(options.Exclusive) {
			return nil, fmt.Errorf("(file-output) %w: %q", fserr.ErrExists, s.name)
		}
		if existing.Type() == entry.Directory {
			return nil, fmt.Errorf("(file-output) %w: %q", fserr.ErrIsDirectory, s.name)
		}
	}

	if s.opts.Has(options.CreateParents) {
		if err := s.c.fs.MkdirAll(path.Dir(p), dirPerms); err != nil {
			return nil, fmt.Errorf("(file-output) failed to create parents: %w", err)
		}
	}

	mode := modeOf(s.template, filePerms)
	if existing != nil && s.template == nil {
		mode = entry.Mode(existing, filePerms)
	}

	if s.opts.Has(options.Append) {
		f, err := s.c.fs.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, mode)
		if err != nil {
			return nil, fmt.Errorf("(file-output) %w", err)
		}

		return &fileWriter{File: f, c: s.c, path: p, template: s.template}, nil
	}

	tmp, err := afero.TempFile(s.c.fs, path.Dir(p), "."+path.Base(p)+tempPattern)
	if err != nil {
		return nil, fmt.Errorf("(file-output) failed to create temporary file: %w", err)
	}

	return &fileWriter{File: tmp, c: s.c, path: p, temp: tmp.Name(), mode: mode, template: s.template}, nil
}

// fileWriter writes either directly into the destination file or into a
// temporary file which replaces the destination on close.
type fileWriter struct {
	afero.File
	c        *FileController
	path     string
	temp     string
	mode     fs.FileMode
	template entry.Entry
	done     bool
}

func (w *fileWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true

	if err := w.File.Close(); err != nil {
		return fserr.Suppress(fmt.Errorf("(file-output) %w", err), w.removeTemp())
	}

	if w.temp != "" {
		if err := w.c.fs.Chmod(w.temp, w.mode); err != nil {
			return fserr.Suppress(fmt.Errorf("(file-output) %w", err), w.removeTemp())
		}
		if err := w.c.fs.Rename(w.temp, w.path); err != nil {
			return fserr.Suppress(fmt.Errorf("(file-output) failed to rename temporary file: %w", err), w.removeTemp())
		}
	}

	if err := w.c.applyTimes(w.path, w.template); err != nil {
		return err
	}

	slog.Debug("Wrote file.", "path", w.path)

	return nil
}

// Abort discards the content if it has been written into a temporary file.
func (w *fileWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true

	return fserr.Suppress(w.File.Close(), w.removeTemp())
}

func (w *fileWriter) removeTemp() error {
	if w.temp == "" {
		return nil
	}

	if err := w.c.fs.Remove(w.temp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("(file-output) failed to remove temporary file: %w", err)
	}

	return nil
}
