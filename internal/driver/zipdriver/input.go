package zipdriver

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/desertwitch/arcvfs/internal/driver"
	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/service"
	"github.com/desertwitch/arcvfs/internal/socket"
	"github.com/klauspost/compress/zip"
)

const (
	eocdLen        = 22
	maxCommentLen  = 1<<16 - 1
	maxPreambleLen = 1 << 20
)

var (
	localHeaderSig = []byte("PK\x03\x04")
	eocdSig        = []byte("PK\x05\x06")
)

type inputService struct {
	entries   *service.Entries[*Entry]
	ch        socket.Channel
	reader    *zip.Reader
	preamble  []byte
	postamble []byte
}

func newInputService(ch socket.Channel) (*inputService, error) {
	zr, err := zip.NewReader(ch, ch.Size())
	if err != nil {
		return nil, fmt.Errorf("(zip-input) %w: %w", driver.ErrNotArchive, err)
	}

	s := &inputService{
		entries: service.NewEntries[*Entry](),
		ch:      ch,
		reader:  zr,
	}

	for _, f := range zr.File {
		name := entry.Clean(f.Name)
		if name == "" {
			continue
		}
		if _, exists := s.entries.Get(name); exists {
			continue
		}
		s.entries.Put(newInputEntry(f))
	}

	if err := s.readAmbles(); err != nil {
		return nil, err
	}

	return s, nil
}

// readAmbles reads any bytes preceding the first local file header and any
// bytes following the end of central directory record.
func (s *inputService) readAmbles() error {
	size := s.ch.Size()

	if len(s.reader.File) > 0 {
		first, err := s.reader.File[0].DataOffset()
		if err != nil {
			return fmt.Errorf("(zip-preamble) %w", err)
		}

		head := make([]byte, min(first, maxPreambleLen))
		if _, err := s.ch.ReadAt(head, 0); err != nil && err != io.EOF {
			return fmt.Errorf("(zip-preamble) %w", err)
		}

		if i := bytes.Index(head, localHeaderSig); i > 0 {
			s.preamble = head[:i]
		}
	}

	tailLen := min(size, eocdLen+maxCommentLen+maxPreambleLen)
	tail := make([]byte, tailLen)
	if _, err := s.ch.ReadAt(tail, size-tailLen); err != nil && err != io.EOF {
		return fmt.Errorf("(zip-postamble) %w", err)
	}

	i := bytes.LastIndex(tail, eocdSig)
	if i < 0 || i+eocdLen > len(tail) {
		return nil
	}

	end := i + eocdLen + int(binary.LittleEndian.Uint16(tail[i+20:i+22]))
	if end < len(tail) {
		s.postamble = tail[end:]
	}

	return nil
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
	if err := s.ch.Close(); err != nil {
		return fmt.Errorf("(zip-input-close) %w", err)
	}

	return nil
}

type inputSocket struct {
	service *inputService
	name    string
}

func (s *inputSocket) entry() (*Entry, error) {
	e, ok := s.service.entries.Get(s.name)
	if !ok {
		return nil, fmt.Errorf("(zip-input) %w: %q", fserr.ErrNotFound, s.name)
	}

	return e, nil
}

func (s *inputSocket) Target() (entry.Entry, error) {
	return s.entry()
}

func (s *inputSocket) Stream(peer socket.OutputSocket) (io.ReadCloser, error) {
	e, err := s.entry()
	if err != nil {
		return nil, err
	}

	if e.Type() == entry.Directory {
		return nil, fmt.Errorf("(zip-input) %w: %q", fserr.ErrIsDirectory, s.name)
	}

	if peer != nil {
		if pt, err := peer.Target(); err == nil {
			if dst, ok := pt.(*Entry); ok && raw(dst, e) {
				r, err := e.file.OpenRaw()
				if err != nil {
					return nil, fmt.Errorf("(zip-input-raw) %w", err)
				}

				return io.NopCloser(r), nil
			}
		}
	}

	r, err := e.file.Open()
	if err != nil {
		return nil, fmt.Errorf("(zip-input) %w", err)
	}

	return r, nil
}

func (s *inputSocket) Channel(_ socket.OutputSocket) (socket.Channel, error) {
	return nil, fmt.Errorf("(zip-input) %w", driver.ErrNoChannel)
}
