// Package tardriver implements the drivers of the TAR archive family: plain
// TAR plus gzip, zstd, LZ4 and xz compressed and age encrypted variants.
package tardriver

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/desertwitch/arcvfs/internal/driver"
	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/keys"
	"github.com/desertwitch/arcvfs/internal/model"
	"github.com/desertwitch/arcvfs/internal/multiplex"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/pool"
	"github.com/desertwitch/arcvfs/internal/service"
	"github.com/desertwitch/arcvfs/internal/socket"
)

// MaxKeyAttempts is the number of keys tried before an encrypted archive is
// given up.
const MaxKeyAttempts = 3

var _ driver.Driver = (*Driver)(nil)

// Driver is a TAR family driver.
type Driver struct {
	codec Codec
	pool  *pool.Pool
	keys  *keys.Manager
}

// New returns a pointer to a new [Driver] for codec. km may be nil if the
// codec does not need keys.
func New(codec Codec, p *pool.Pool, km *keys.Manager) *Driver {
	return &Driver{
		codec: codec,
		pool:  p,
		keys:  km,
	}
}

// Codec returns the codec of the driver.
func (d *Driver) Codec() Codec {
	return d.codec
}

func (d *Driver) Scheme() string {
	if d.codec.Name() == "" {
		return "tar"
	}

	return "tar." + d.codec.Name()
}

func (*Driver) Charset() string {
	return "UTF-8"
}

func (*Driver) SupportsRedundantContent() bool {
	return true
}

func (d *Driver) provider(m *model.Model) keys.Provider {
	if d.keys == nil {
		return nil
	}

	return d.keys.Provider(m.Point())
}

func (d *Driver) NewInputService(ctx context.Context, m *model.Model, source socket.InputSocket) (service.InputService, error) {
	kp := d.provider(m)
	invalid := false

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("(tar-mount) %w", err)
		}

		s, err := d.readSource(kp, invalid, source)
		if err == nil {
			slog.Debug("Mounted TAR archive.", "mount", m.String(), "entries", s.Size())

			return s, nil
		}

		if !errors.Is(err, ErrWrongKey) {
			return nil, err
		}

		if attempt >= MaxKeyAttempts {
			return nil, fmt.Errorf("(tar-mount) %w: %w", keys.ErrKeyRejected, err)
		}

		slog.Warn("Wrong key for encrypted archive.", "mount", m.String(), "attempt", attempt)
		invalid = true
	}
}

func (d *Driver) readSource(kp keys.Provider, invalid bool, source socket.InputSocket) (_ *inputService, err error) {
	rc, err := source.Stream(nil)
	if err != nil {
		return nil, fmt.Errorf("(tar-mount) failed to open source: %w", err)
	}
	defer func() {
		err = fserr.Suppress(err, rc.Close())
	}()

	dr, err := d.codec.NewReader(rc, kp, invalid)
	if err != nil {
		return nil, err
	}
	defer dr.Close()

	return readArchive(dr, d.pool)
}

func (d *Driver) NewOutputService(_ context.Context, m *model.Model, sink socket.OutputSocket, _ service.InputService) (service.OutputService, error) {
	w, err := sink.Stream(nil)
	if err != nil {
		return nil, fmt.Errorf("(tar-output) failed to open sink: %w", err)
	}

	cw, err := d.codec.NewWriter(w, d.provider(m))
	if err != nil {
		if a, ok := w.(socket.Aborter); ok {
			err = fserr.Suppress(err, a.Abort())
		}

		return nil, err
	}

	slog.Debug("Opened TAR output.", "mount", m.String(), "scheme", d.Scheme())

	return multiplex.New(&tarWriter{
		sink:  w,
		codec: cw,
		tw:    tar.NewWriter(cw),
	}, d.pool), nil
}

func (*Driver) NewEntry(name string, typ entry.Type, _ options.Access, template entry.Entry) (entry.Mutable, error) {
	e := &Entry{
		Record: entry.NewRecord(name, typ, template),
	}

	if t, ok := template.(*Entry); ok {
		e.typeflag = t.typeflag
		e.linkname = t.linkname
		e.uid, e.gid = t.uid, t.gid
		e.uname, e.gname = t.uname, t.gname
	}

	return e, nil
}
