package tardriver

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"

	"github.com/desertwitch/arcvfs/internal/driver"
	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/pool"
	"github.com/desertwitch/arcvfs/internal/service"
	"github.com/desertwitch/arcvfs/internal/socket"
)

// inputService holds the content of all entries in one temporary buffer,
// since TAR archives can only be read sequentially.
type inputService struct {
	entries *service.Entries[*Entry]
	buf     *pool.Buffer
}

// readArchive reads all entries from r. Later entries with a duplicate name
// override earlier ones.
func readArchive(r io.Reader, p *pool.Pool) (_ *inputService, err error) {
	s := &inputService{
		entries: service.NewEntries[*Entry](),
		buf:     p.Allocate(),
	}
	defer func() {
		if err != nil {
			err = fserr.Suppress(err, s.buf.Release())
		}
	}()

	tr := tar.NewReader(r)

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("(tar-input) %w: %w", driver.ErrNotArchive, err)
		}

		if entry.Clean(hdr.Name) == "" {
			continue
		}

		e := newInputEntry(hdr, s.buf.Size())

		if e.Type() == entry.File {
			n, err := io.Copy(s.buf, tr)
			if err != nil {
				return nil, fmt.Errorf("(tar-input) failed to buffer %q: %w", hdr.Name, err)
			}
			e.SetSize(entry.DataSize, n)
		}

		s.entries.Put(e)
	}

	if err := s.buf.Close(); err != nil {
		return nil, fmt.Errorf("(tar-input) %w", err)
	}

	return s, nil
}

func (s *inputService) Size() int {
	return s.entries.Size()
}

func (s *inputService) Entries() []entry.Entry {
	return s.entries.Entries()
}

func (s *inputService) Entry(name string) entry.Entry {
	return s.entries.Entry(name)
}

func (s *inputService) Input(name string) socket.InputSocket {
	return &inputSocket{service: s, name: name}
}

func (s *inputService) Close() error {
	return s.buf.Release() //nolint:wrapcheck
}

type inputSocket struct {
	service *inputService
	name    string
}

func (s *inputSocket) Target() (entry.Entry, error) {
	e, ok := s.service.entries.Get(s.name)
	if !ok {
		return nil, fmt.Errorf("(tar-input) %w: %q", fserr.ErrNotFound, s.name)
	}

	return e, nil
}

func (s *inputSocket) Stream(peer socket.OutputSocket) (io.ReadCloser, error) {
	return s.Channel(peer)
}

func (s *inputSocket) Channel(_ socket.OutputSocket) (socket.Channel, error) {
	t, err := s.Target()
	if err != nil {
		return nil, err
	}
	e := t.(*Entry) //nolint:forcetypeassert

	if e.Type() == entry.Directory {
		return nil, fmt.Errorf("(tar-input) %w: %q", fserr.ErrIsDirectory, s.name)
	}

	ch, err := s.service.buf.Open()
	if err != nil {
		return nil, fmt.Errorf("(tar-input) %w", err)
	}

	return socket.NewSectionChannel(ch, e.offset, e.Size(entry.DataSize), ch.Close), nil
}
