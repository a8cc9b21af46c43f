package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/service"
	"github.com/desertwitch/arcvfs/internal/socket"
)

// Sync commits all changes into a new archive which replaces the old one in
// the parent file system, or discards them if opts requests so. Either way
// the archive is unmounted afterwards. A failed commit discards the changes.
func (c *Controller) Sync(ctx context.Context, opts options.Sync) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fs := c.fs
	if fs == nil {
		return nil
	}

	if opts.Has(options.AbortChanges) {
		err := c.abort(fs)
		err = fserr.Suppress(err, c.unmount())
		err = fserr.Suppress(err, c.model.SetTouched(false))

		slog.Debug("Discarded archive changes.", "mount", c.model.String())

		return err
	}

	if !c.model.Touched() {
		return c.unmount()
	}

	if err := c.commit(ctx, fs); err != nil {
		err = fserr.Suppress(err, c.abort(fs))
		err = fserr.Suppress(err, c.unmount())
		err = fserr.Suppress(err, c.model.SetTouched(false))

		slog.Error("Failed to commit archive.", "mount", c.model.String(), "err", err)

		return err
	}

	err := c.unmount()
	err = fserr.Suppress(err, c.model.SetTouched(false))

	return err
}

// commit writes every entry which has not been written yet into the output
// and finishes the archive.
func (c *Controller) commit(ctx context.Context, fs *fileSystem) error {
	if fs.spool != nil {
		fs.spool.ctx = ctx
	}

	out, err := c.ensureOutput(ctx, fs)
	if err != nil {
		return err
	}

	copied := 0

	for _, name := range fs.tree.names() {
		if _, ok := fs.written[name]; ok {
			continue
		}

		n := fs.tree.get(name)

		e, err := c.driver.NewEntry(name, n.e.Type(), 0, n.e)
		if err != nil {
			return fmt.Errorf("(archive-commit) %w", err)
		}

		if n.members != nil || n.pending || fs.input == nil || n.e.Type() != entry.File {
			if err := writeEmpty(out, e, n); err != nil {
				return err
			}

			continue
		}

		if _, err := socket.Copy(fs.input.Input(name), out.Output(e)); err != nil {
			return fmt.Errorf("(archive-commit) failed to copy %q: %w", name, err)
		}
		copied++
	}

	// The input is released first since closing the output of a nested file
	// system writes into the same parent entry the input reads from.
	if in := fs.input; in != nil {
		fs.input = nil
		if err := in.Close(); err != nil {
			return fmt.Errorf("(archive-commit) failed to close input: %w", err)
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("(archive-commit) %w", err)
	}

	slog.Info("Committed archive.", "mount", c.model.String(), "entries", out.Size(), "copied", copied)

	return nil
}

// writeEmpty writes an entry without content. Special entries of an input
// are written from their input content, which is always empty.
func writeEmpty(out service.OutputService, e entry.Mutable, n *node) error {
	if n.members == nil && n.e.Type() == entry.File {
		e.SetSize(entry.DataSize, 0)
	}

	w, err := out.Output(e).Stream(nil)
	if err != nil {
		return fmt.Errorf("(archive-commit) failed to write %q: %w", e.Name(), err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("(archive-commit) failed to write %q: %w", e.Name(), err)
	}

	return nil
}

// abort discards the output and releases its sink.
func (c *Controller) abort(fs *fileSystem) error {
	if fs.output == nil {
		return nil
	}

	out := fs.output
	fs.output = nil

	if err := out.Abort(); err != nil {
		return fmt.Errorf("(archive-abort) %w", err)
	}

	return nil
}

// ensureOutput returns the output service, creating it on first use. The
// archive of a top level file system is written straight into its parent.
// The archive of a nested file system is spooled until it is committed, so
// that the parent's output is only held while the spool is copied.
func (c *Controller) ensureOutput(ctx context.Context, fs *fileSystem) (service.OutputService, error) {
	if fs.output != nil {
		return fs.output, nil
	}

	var sink socket.OutputSocket
	if c.parent.Model().Federated() {
		fs.spool = &spoolSink{ctx: ctx, c: c}
		sink = fs.spool
	} else {
		sink = c.parent.Output(ctx, c.name(), options.CreateParents, nil)
	}

	out, err := c.driver.NewOutputService(ctx, c.model, sink, fs.input)
	if err != nil {
		return nil, fmt.Errorf("(archive-output) %w", err)
	}
	fs.output = out

	if err := c.touch(); err != nil {
		return nil, err
	}

	slog.Debug("Opened archive output.", "mount", c.model.String(), "spooled", fs.spool != nil)

	return out, nil
}

// spoolChannel reads the content of in into a temporary buffer and returns a
// channel on it which releases the buffer when closed.
func (c *Controller) spoolChannel(in socket.InputSocket) (_ socket.Channel, err error) {
	r, err := in.Stream(nil)
	if err != nil {
		return nil, fmt.Errorf("(archive-spool) %w", err)
	}
	defer func() {
		err = fserr.Suppress(err, r.Close())
	}()

	b := c.pool.Allocate()

	if _, err := io.Copy(b, r); err != nil {
		return nil, fserr.Suppress(fmt.Errorf("(archive-spool) %w", err), b.Release())
	}
	if err := b.Close(); err != nil {
		return nil, fserr.Suppress(fmt.Errorf("(archive-spool) %w", err), b.Release())
	}

	ch, err := b.Open()
	if err != nil {
		return nil, fserr.Suppress(fmt.Errorf("(archive-spool) %w", err), b.Release())
	}

	return socket.NewSectionChannel(ch, 0, ch.Size(), func() error {
		return fserr.Suppress(ch.Close(), b.Release())
	}), nil
}
