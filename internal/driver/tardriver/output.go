package tardriver

import (
	"archive/tar"
	"fmt"
	"io"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/socket"
)

// tarWriter is the [multiplex.Writer] of the TAR family.
type tarWriter struct {
	sink  io.WriteCloser
	codec io.WriteCloser
	tw    *tar.Writer
}

func (w *tarWriter) Begin(e entry.Entry, _ entry.Entry) (io.WriteCloser, error) {
	te, ok := e.(*Entry)
	if !ok {
		te = &Entry{Record: entry.NewRecord(e.Name(), e.Type(), e)}
	}

	if err := w.tw.WriteHeader(te.header()); err != nil {
		return nil, fmt.Errorf("(tar-begin) %w", err)
	}

	return &entryWriter{tw: w.tw}, nil
}

func (w *tarWriter) Finish() error {
	if err := w.tw.Close(); err != nil {
		return fmt.Errorf("(tar-finish) %w", err)
	}

	if err := w.codec.Close(); err != nil {
		return fmt.Errorf("(tar-finish) failed to close codec: %w", err)
	}

	if err := w.sink.Close(); err != nil {
		return fmt.Errorf("(tar-finish) failed to close sink: %w", err)
	}

	return nil
}

func (w *tarWriter) Abort() error {
	if a, ok := w.sink.(socket.Aborter); ok {
		return a.Abort() //nolint:wrapcheck
	}

	return w.sink.Close() //nolint:wrapcheck
}

// entryWriter writes the content of one entry and verifies on close that it
// has been written completely.
type entryWriter struct {
	tw *tar.Writer
}

func (w *entryWriter) Write(p []byte) (int, error) {
	return w.tw.Write(p) //nolint:wrapcheck
}

func (w *entryWriter) Close() error {
	if err := w.tw.Flush(); err != nil {
		return fmt.Errorf("(tar-entry) %w", err)
	}

	return nil
}
