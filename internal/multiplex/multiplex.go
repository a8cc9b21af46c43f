// Package multiplex implements an output service which sequences the entries
// of an archive into a format specific [Writer]. Entries whose size is not
// known in advance are buffered in a temporary buffer first.
package multiplex

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/pool"
	"github.com/desertwitch/arcvfs/internal/service"
	"github.com/desertwitch/arcvfs/internal/socket"
)

// Writer encodes entries into an archive.
type Writer interface {
	// Begin writes the header of e and returns a writer for its content. The
	// data size of e is known. peer is the entry the content is copied from,
	// nil if the content is not copied.
	Begin(e entry.Entry, peer entry.Entry) (io.WriteCloser, error)

	// Finish writes any trailing structures and commits the archive sink.
	Finish() error

	// Abort discards the archive sink.
	Abort() error
}

// Checksummed is implemented by entries which record the CRC32 of their
// content in the archive.
type Checksummed interface {
	SetCRC32(crc uint32)
}

// Multiplexer is an [service.OutputService] over a [Writer].
type Multiplexer struct {
	sync.Mutex
	writer  Writer
	pool    *pool.Pool
	entries *service.Entries[entry.Mutable]
	active  string
	busy    bool
	closed  bool
}

// New returns a pointer to a new [Multiplexer] encoding into w and buffering
// into temporary buffers from p.
func New(w Writer, p *pool.Pool) *Multiplexer {
	return &Multiplexer{
		writer:  w,
		pool:    p,
		entries: service.NewEntries[entry.Mutable](),
	}
}

func (m *Multiplexer) Size() int {
	return m.entries.Size()
}

// Entries returns the written entries in first-write order.
func (m *Multiplexer) Entries() []entry.Entry {
	return m.entries.Entries()
}

func (m *Multiplexer) Entry(name string) entry.Entry {
	return m.entries.Entry(name)
}

// Busy returns the name of the entry in progress, if any.
func (m *Multiplexer) Busy() (string, bool) {
	m.Lock()
	defer m.Unlock()

	return m.active, m.busy
}

func (m *Multiplexer) Output(e entry.Mutable) socket.OutputSocket {
	return &outputSocket{
		mux:    m,
		target: e,
	}
}

// Close finishes the archive. It fails with a [fserr.BusyError] while an
// entry is in progress.
func (m *Multiplexer) Close() error {
	m.Lock()
	defer m.Unlock()

	if m.closed {
		return nil
	}

	if m.busy {
		return &fserr.BusyError{Name: "(archive footer)", InProgress: m.active}
	}
	m.closed = true

	if err := m.writer.Finish(); err != nil {
		return fmt.Errorf("(multiplex-close) %w", err)
	}

	return nil
}

// Abort discards the archive.
func (m *Multiplexer) Abort() error {
	m.Lock()
	defer m.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if err := m.writer.Abort(); err != nil {
		return fmt.Errorf("(multiplex-abort) %w", err)
	}

	return nil
}

// acquire marks e as the entry in progress.
func (m *Multiplexer) acquire(e entry.Entry) error {
	m.Lock()
	defer m.Unlock()

	if m.closed {
		return ErrClosed
	}

	if m.busy {
		return &fserr.BusyError{Name: e.Name(), InProgress: m.active}
	}

	m.busy = true
	m.active = e.Name()

	return nil
}

func (m *Multiplexer) release() {
	m.Lock()
	defer m.Unlock()

	m.busy = false
	m.active = ""
}

func (m *Multiplexer) isClosed() bool {
	m.Lock()
	defer m.Unlock()

	return m.closed
}

type outputSocket struct {
	mux    *Multiplexer
	target entry.Mutable
}

func (s *outputSocket) Target() (entry.Entry, error) {
	return s.target, nil
}

func (s *outputSocket) Stream(peer socket.InputSocket) (io.WriteCloser, error) {
	m := s.mux
	e := s.target

	var pe entry.Entry
	if peer != nil {
		var err error
		if pe, err = peer.Target(); err != nil {
			return nil, fmt.Errorf("(multiplex-stream) failed to get peer target: %w", err)
		}
	}

	if err := m.acquire(e); err != nil {
		return nil, err
	}

	if e.Type() == entry.Directory {
		defer m.release()

		return m.writeDirectory(e)
	}

	m.entries.Put(e)

	if pe != nil && pe.Size(entry.DataSize) != entry.Unknown {
		e.SetSize(entry.DataSize, pe.Size(entry.DataSize))

		w, err := m.writer.Begin(e, pe)
		if err != nil {
			m.entries.Remove(e.Name())
			m.release()

			return nil, fmt.Errorf("(multiplex-stream) failed to begin %q: %w", e.Name(), err)
		}

		return &directStream{mux: m, w: w}, nil
	}

	return &bufferedStream{mux: m, target: e, buf: m.pool.Allocate()}, nil
}

// writeDirectory writes a directory entry with an empty stored body.
func (m *Multiplexer) writeDirectory(e entry.Mutable) (io.WriteCloser, error) {
	e.SetSize(entry.DataSize, 0)

	w, err := m.writer.Begin(e, nil)
	if err != nil {
		return nil, fmt.Errorf("(multiplex-dir) failed to begin %q: %w", e.Name(), err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("(multiplex-dir) failed to close %q: %w", e.Name(), err)
	}

	m.entries.Put(e)

	return directoryStream{name: e.Name()}, nil
}

type directoryStream struct {
	name string
}

func (d directoryStream) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	return 0, fmt.Errorf("(multiplex-dir) %w: %q", fserr.ErrIsDirectory, d.name)
}

func (directoryStream) Close() error {
	return nil
}

// directStream writes content straight into the archive.
type directStream struct {
	mux    *Multiplexer
	w      io.WriteCloser
	closed bool
}

func (s *directStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrStreamClosed
	}

	return s.w.Write(p) //nolint:wrapcheck
}

func (s *directStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.mux.release()

	if err := s.w.Close(); err != nil {
		return fmt.Errorf("(multiplex-direct) %w", err)
	}

	return nil
}

// bufferedStream writes content into a temporary buffer, which is replayed
// into the archive once the size and checksum are known.
type bufferedStream struct {
	mux    *Multiplexer
	target entry.Mutable
	buf    *pool.Buffer
	closed bool
}

func (s *bufferedStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrStreamClosed
	}

	return s.buf.Write(p) //nolint:wrapcheck
}

func (s *bufferedStream) Close() (err error) {
	if s.closed {
		return nil
	}
	s.closed = true

	defer s.mux.release()
	defer func() {
		err = fserr.Suppress(err, s.buf.Release())
	}()

	if err := s.buf.Close(); err != nil {
		s.mux.entries.Remove(s.target.Name())

		return fmt.Errorf("(multiplex-buffered) %w", err)
	}

	if s.mux.isClosed() {
		s.mux.entries.Remove(s.target.Name())

		return ErrClosed
	}

	s.target.SetSize(entry.DataSize, s.buf.Size())
	if c, ok := s.target.(Checksummed); ok {
		c.SetCRC32(s.buf.CRC32())
	}

	w, err := s.mux.writer.Begin(s.target, nil)
	if err != nil {
		s.mux.entries.Remove(s.target.Name())

		return fmt.Errorf("(multiplex-buffered) failed to begin %q: %w", s.target.Name(), err)
	}

	if _, err := s.buf.Replay(w); err != nil {
		s.mux.entries.Remove(s.target.Name())

		return fserr.Suppress(fmt.Errorf("(multiplex-buffered) failed to replay %q: %w", s.target.Name(), err), w.Close())
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("(multiplex-buffered) failed to close %q: %w", s.target.Name(), err)
	}

	slog.Debug("Replayed buffered entry.", "entry", s.target.Name(), "size", s.buf.Size())

	return nil
}

// Abort discards the buffered content without writing the entry.
func (s *bufferedStream) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.mux.release()

	s.mux.entries.Remove(s.target.Name())

	return s.buf.Release() //nolint:wrapcheck
}
