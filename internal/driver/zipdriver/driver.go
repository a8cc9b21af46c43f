// Package zipdriver implements the ZIP archive driver. Entries copied from one
// ZIP archive into another are copied without recompression.
package zipdriver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/desertwitch/arcvfs/internal/driver"
	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/model"
	"github.com/desertwitch/arcvfs/internal/multiplex"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/pool"
	"github.com/desertwitch/arcvfs/internal/service"
	"github.com/desertwitch/arcvfs/internal/socket"
	"github.com/klauspost/compress/zip"
)

// Scheme is the scheme of ZIP mount points.
const Scheme = "zip"

// Suffixes are the entry name suffixes of ZIP archives.
var Suffixes = []string{".zip", ".jar"}

var _ driver.Driver = (*Driver)(nil)

// Driver is the ZIP archive driver.
type Driver struct {
	pool *pool.Pool
}

// New returns a pointer to a new [Driver] buffering into p.
func New(p *pool.Pool) *Driver {
	return &Driver{pool: p}
}

func (*Driver) Scheme() string {
	return Scheme
}

func (*Driver) Charset() string {
	return "UTF-8"
}

func (*Driver) SupportsRedundantContent() bool {
	return false
}

func (d *Driver) NewInputService(_ context.Context, m *model.Model, source socket.InputSocket) (service.InputService, error) {
	ch, err := source.Channel(nil)
	if err != nil {
		return nil, fmt.Errorf("(zip-mount) failed to open source: %w", err)
	}

	s, err := newInputService(ch)
	if err != nil {
		ch.Close() //nolint:errcheck

		return nil, err
	}

	slog.Debug("Mounted ZIP archive.", "mount", m.String(), "entries", s.Size())

	return s, nil
}

func (d *Driver) NewOutputService(_ context.Context, m *model.Model, sink socket.OutputSocket, input service.InputService) (service.OutputService, error) {
	zin, _ := input.(*inputService)

	w, err := sink.Stream(nil)
	if err != nil {
		return nil, fmt.Errorf("(zip-output) failed to open sink: %w", err)
	}

	zw, err := newZipWriter(w, zin)
	if err != nil {
		if a, ok := w.(socket.Aborter); ok {
			a.Abort() //nolint:errcheck
		}

		return nil, err
	}

	slog.Debug("Opened ZIP output.", "mount", m.String())

	return multiplex.New(zw, d.pool), nil
}

func (*Driver) NewEntry(name string, typ entry.Type, opts options.Access, template entry.Entry) (entry.Mutable, error) {
	e := &Entry{
		Record: entry.NewRecord(name, typ, template),
		method: zip.Deflate,
	}

	if t, ok := template.(*Entry); ok {
		e.comment = t.comment
		if typ == entry.File && t.Type() == entry.File {
			e.method = t.method
			e.crc32 = t.crc32
			e.origin = t
		}
	}

	switch {
	case typ == entry.Directory:
		e.method = zip.Store
	case opts.Has(options.Store):
		e.method = zip.Store
	case opts.Has(options.Compress):
		e.method = zip.Deflate
	}

	if opts.Has(options.Encrypt) {
		slog.Debug("ZIP entries are not encrypted, ignoring option.", "entry", name)
	}

	return e, nil
}
