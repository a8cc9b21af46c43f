package zipdriver

import (
	"fmt"
	"io"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/socket"
	"github.com/klauspost/compress/zip"
)

// zipWriter is the [multiplex.Writer] of the ZIP format.
type zipWriter struct {
	sink      io.WriteCloser
	zw        *zip.Writer
	postamble []byte
}

func newZipWriter(sink io.WriteCloser, input *inputService) (*zipWriter, error) {
	w := &zipWriter{sink: sink}

	var offset int64

	if input != nil {
		if len(input.preamble) > 0 {
			n, err := sink.Write(input.preamble)
			if err != nil {
				return nil, fmt.Errorf("(zip-output) failed to write preamble: %w", err)
			}
			offset = int64(n)
		}
		w.postamble = input.postamble
	}

	w.zw = zip.NewWriter(sink)
	if offset > 0 {
		w.zw.SetOffset(offset)
	}

	if input != nil && input.reader.Comment != "" {
		if err := w.zw.SetComment(input.reader.Comment); err != nil {
			return nil, fmt.Errorf("(zip-output) failed to set comment: %w", err)
		}
	}

	return w, nil
}

func (w *zipWriter) Begin(e entry.Entry, peer entry.Entry) (io.WriteCloser, error) {
	ze, ok := e.(*Entry)
	if !ok {
		ze = &Entry{Record: entry.NewRecord(e.Name(), e.Type(), e), method: zip.Deflate}
	}

	fh := ze.header()

	if raw(ze, peer) {
		src := peer.(*Entry) //nolint:forcetypeassert
		fh.CRC32 = src.file.CRC32
		fh.CompressedSize64 = src.file.CompressedSize64
		fh.UncompressedSize64 = src.file.UncompressedSize64

		out, err := w.zw.CreateRaw(fh)
		if err != nil {
			return nil, fmt.Errorf("(zip-begin-raw) %w", err)
		}

		return nopCloser{out}, nil
	}

	out, err := w.zw.CreateHeader(fh)
	if err != nil {
		return nil, fmt.Errorf("(zip-begin) %w", err)
	}

	return nopCloser{out}, nil
}

func (w *zipWriter) Finish() error {
	if err := w.zw.Close(); err != nil {
		return fmt.Errorf("(zip-finish) %w", err)
	}

	if len(w.postamble) > 0 {
		if _, err := w.sink.Write(w.postamble); err != nil {
			return fmt.Errorf("(zip-finish) failed to write postamble: %w", err)
		}
	}

	if err := w.sink.Close(); err != nil {
		return fmt.Errorf("(zip-finish) failed to close sink: %w", err)
	}

	return nil
}

func (w *zipWriter) Abort() error {
	if a, ok := w.sink.(socket.Aborter); ok {
		return a.Abort() //nolint:wrapcheck
	}

	return w.sink.Close() //nolint:wrapcheck
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error {
	return nil
}
