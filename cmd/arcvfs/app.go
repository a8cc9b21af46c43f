package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/desertwitch/arcvfs/internal/configuration"
	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/socket"
	"github.com/desertwitch/arcvfs/vfs"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
)

const usage = `  ls [-R] <path>        list a directory or archive
  cat <path>...         write files to standard output
  cp <src> <dst>        copy a file, creating missing parent directories
  put <local> <path>    copy a local file into the file system
  get <path> <local>    copy a file out of the file system
  mkdir <path>          create a directory or an empty archive
  rm <path>...          remove files, empty directories or empty archives
  sync                  commit all pending changes
  stats                 print the management counters
  suffixes              print the registered archive suffixes
  version               print the version
`

// App runs one command against a federated file system.
type App struct {
	fs     *vfs.FS
	local  afero.Fs
	out    io.Writer
	config configuration.Config
}

// NewApp returns a pointer to a new [App]. local is the file system put and
// get transfer from and to.
func NewApp(fs *vfs.FS, local afero.Fs, out io.Writer, config configuration.Config) *App {
	return &App{
		fs:     fs,
		local:  local,
		out:    out,
		config: config,
	}
}

// Launch runs the command in args and commits all pending changes
// afterwards, also if the command failed.
func (app *App) Launch(ctx context.Context, args []string) (err error) {
	if len(args) == 0 {
		return fmt.Errorf("(app) %w: no command", ErrUsage)
	}

	ctx = vfs.WithOwner(ctx)

	defer func() {
		err = fserr.Suppress(err, app.close(ctx))
	}()

	cmd, args := args[0], args[1:]

	switch cmd {
	case "ls":
		err = app.List(ctx, args)
	case "cat":
		err = app.Cat(ctx, args)
	case "cp":
		err = app.Copy(ctx, args)
	case "put":
		err = app.Put(ctx, args)
	case "get":
		err = app.Get(ctx, args)
	case "mkdir":
		err = app.Mkdir(ctx, args)
	case "rm":
		err = app.Remove(ctx, args)
	case "sync":
		err = app.Sync(ctx, args)
	case "stats":
		err = app.Stats(args)
	case "suffixes":
		_, err = fmt.Fprintln(app.out, strings.Join(app.fs.Suffixes(), " "))
	case "version":
		_, err = fmt.Fprintln(app.out, Version)
	default:
		return fmt.Errorf("(app) %w: %q", ErrUnknownCommand, cmd)
	}

	if err != nil {
		return fmt.Errorf("(app-%s) %w", cmd, err)
	}

	return nil
}

// close synchronizes with the configured timeout, disconnecting streams
// which are still open.
func (app *App) close(ctx context.Context) error {
	if app.config.SyncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, app.config.SyncTimeout)
		defer cancel()
	}

	if err := app.fs.Close(ctx); err != nil {
		if fserr.IsWarning(err) {
			slog.Warn("Closed with warnings.", "err", err)

			return nil
		}

		return fmt.Errorf("(app-close) %w", err)
	}

	return nil
}

func (app *App) List(ctx context.Context, args []string) error {
	recursive := len(args) > 0 && args[0] == "-R"
	if recursive {
		args = args[1:]
	}

	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	if len(args) > 1 {
		return fmt.Errorf("%w: ls takes one path", ErrUsage)
	}

	w := tabwriter.NewWriter(app.out, 0, 0, 2, ' ', 0) //nolint:mnd

	row := func(name string, e entry.Entry) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", app.kind(name, e), size(e), modified(e), name)
	}

	if recursive {
		if err := app.fs.Walk(ctx, name, func(name string, e entry.Entry) error {
			row(name, e)

			return nil
		}); err != nil {
			return err //nolint:wrapcheck
		}

		return w.Flush() //nolint:wrapcheck
	}

	members, err := app.fs.ReadDir(ctx, name)
	if err != nil {
		return err //nolint:wrapcheck
	}

	for _, e := range members {
		row(entry.Base(e.Name()), e)
	}

	return w.Flush() //nolint:wrapcheck
}

func (app *App) kind(name string, e entry.Entry) string {
	switch {
	case e.Type() == entry.Directory:
		return "dir"
	case app.fs.IsArchive(name):
		return "archive"
	case e.Type() == entry.File:
		return "file"
	default:
		return "special"
	}
}

func size(e entry.Entry) string {
	if e.Type() != entry.File {
		return "-"
	}

	n := e.Size(entry.DataSize)
	if n == entry.Unknown {
		return "?"
	}

	return humanize.Bytes(uint64(n)) //nolint:gosec
}

func modified(e entry.Entry) string {
	millis := e.Time(entry.Write)
	if millis == entry.Unknown {
		return "-"
	}

	return entry.FromMillis(millis).Local().Format(time.DateTime)
}

func (app *App) Cat(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: cat needs a path", ErrUsage)
	}

	for _, name := range args {
		if err := app.cat(ctx, name); err != nil {
			return err
		}
	}

	return nil
}

func (app *App) cat(ctx context.Context, name string) (err error) {
	r, err := app.fs.Open(ctx, name)
	if err != nil {
		return err //nolint:wrapcheck
	}
	defer func() {
		err = fserr.Suppress(err, r.Close())
	}()

	if _, err := io.Copy(app.out, r); err != nil {
		return fmt.Errorf("failed to read %q: %w", name, err)
	}

	return nil
}

func (app *App) Copy(ctx context.Context, args []string) error {
	if len(args) != 2 { //nolint:mnd
		return fmt.Errorf("%w: cp needs a source and a destination", ErrUsage)
	}

	n, err := app.fs.Copy(ctx, args[0], args[1], options.CreateParents)
	if err != nil {
		return err //nolint:wrapcheck
	}

	slog.Info("Copied.", "src", args[0], "dst", args[1], "size", humanize.Bytes(uint64(n))) //nolint:gosec

	return nil
}

func (app *App) Put(ctx context.Context, args []string) (err error) {
	if len(args) != 2 { //nolint:mnd
		return fmt.Errorf("%w: put needs a local file and a path", ErrUsage)
	}

	src, err := app.local.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer src.Close()

	w, err := app.fs.Create(ctx, args[1], options.CreateParents)
	if err != nil {
		return err //nolint:wrapcheck
	}

	n, err := io.Copy(w, src)
	if err != nil {
		return fserr.Suppress(fmt.Errorf("failed to write %q: %w", args[1], err), abort(w))
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to commit %q: %w", args[1], err)
	}

	slog.Info("Stored.", "path", args[1], "size", humanize.Bytes(uint64(n))) //nolint:gosec

	return nil
}

func (app *App) Get(ctx context.Context, args []string) (err error) {
	if len(args) != 2 { //nolint:mnd
		return fmt.Errorf("%w: get needs a path and a local file", ErrUsage)
	}

	r, err := app.fs.Open(ctx, args[0])
	if err != nil {
		return err //nolint:wrapcheck
	}
	defer func() {
		err = fserr.Suppress(err, r.Close())
	}()

	dst, err := app.local.Create(args[1])
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}

	if _, err := io.Copy(dst, r); err != nil {
		return fserr.Suppress(fmt.Errorf("failed to read %q: %w", args[0], err), dst.Close())
	}

	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close local file: %w", err)
	}

	return nil
}

func (app *App) Mkdir(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: mkdir needs a path", ErrUsage)
	}

	for _, name := range args {
		if err := app.fs.Mkdir(ctx, name, options.CreateParents); err != nil {
			return err //nolint:wrapcheck
		}
	}

	return nil
}

func (app *App) Remove(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: rm needs a path", ErrUsage)
	}

	for _, name := range args {
		if err := app.fs.Remove(ctx, name); err != nil {
			return err //nolint:wrapcheck
		}
	}

	return nil
}

func (app *App) Sync(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: sync takes no arguments", ErrUsage)
	}

	if err := app.fs.Sync(ctx, options.Default); err != nil {
		return err //nolint:wrapcheck
	}

	return nil
}

func (app *App) Stats(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: stats takes no arguments", ErrUsage)
	}

	s := app.fs.Stats()

	w := tabwriter.NewWriter(app.out, 0, 0, 1, ' ', 0)
	fmt.Fprintf(w, "file systems:\t%d\n", s.Total)
	fmt.Fprintf(w, "mounted:\t%d\n", s.Mounted)
	fmt.Fprintf(w, "top level:\t%d (%d mounted)\n", s.TopLevelTotal, s.TopLevelMounted)
	fmt.Fprintf(w, "touched:\t%d\n", s.Touched)
	fmt.Fprintf(w, "recently used:\t%d of %d\n", s.Recent, app.config.MaxMounts)
	fmt.Fprintf(w, "evictions:\t%d\n", s.Evictions)
	fmt.Fprintf(w, "buffers:\t%d\n", s.Buffers)
	fmt.Fprintf(w, "spool threshold:\t%s\n", humanize.IBytes(uint64(app.config.SpoolThreshold))) //nolint:gosec

	return w.Flush() //nolint:wrapcheck
}

func abort(w io.WriteCloser) error {
	if a, ok := w.(socket.Aborter); ok {
		return a.Abort() //nolint:wrapcheck
	}

	return w.Close() //nolint:wrapcheck
}
