package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/pool"
	"github.com/desertwitch/arcvfs/internal/socket"
)

// spoolSink is the archive sink of a nested file system. The archive is
// written into a temporary buffer and copied into the parent file system
// when it is closed.
type spoolSink struct {
	ctx context.Context //nolint:containedctx
	c   *Controller
}

func (s *spoolSink) Target() (entry.Entry, error) {
	return entry.NewRecord(s.c.name(), entry.File, nil), nil
}

func (s *spoolSink) Stream(_ socket.InputSocket) (io.WriteCloser, error) {
	return &spoolWriter{sink: s, buf: s.c.pool.Allocate()}, nil
}

type spoolWriter struct {
	sink *spoolSink
	buf  *pool.Buffer
	done bool
}

func (w *spoolWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p) //nolint:wrapcheck
}

// Close copies the spooled archive into the parent file system and releases
// the buffer, even if the copy fails.
func (w *spoolWriter) Close() (err error) {
	if w.done {
		return nil
	}
	w.done = true

	defer func() {
		err = fserr.Suppress(err, w.buf.Release())
	}()

	if err := w.buf.Close(); err != nil {
		return fmt.Errorf("(archive-spool) %w", err)
	}

	c := w.sink.c

	rec := entry.NewRecord(c.name(), entry.File, nil)
	rec.SetSize(entry.DataSize, w.buf.Size())

	in := socket.NewChannelInput(rec, w.buf.Open)
	out := c.parent.Output(w.sink.ctx, c.name(), options.CreateParents, nil)

	n, err := socket.Copy(in, out)
	if err != nil {
		return fmt.Errorf("(archive-spool) failed to copy into parent: %w", err)
	}

	slog.Debug("Copied spooled archive into parent.", "mount", c.model.String(), "size", n)

	return nil
}

// Abort releases the buffer without touching the parent file system.
func (w *spoolWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true

	return w.buf.Release() //nolint:wrapcheck
}
