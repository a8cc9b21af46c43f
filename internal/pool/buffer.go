package pool

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"sync"

	"github.com/desertwitch/arcvfs/internal/socket"
	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// Buffer is a write-once temporary buffer. It is written until closed, then
// read any number of times until released. The CRC32 and BLAKE3 digests of
// the content are computed while writing.
type Buffer struct {
	sync.Mutex
	pool     *Pool
	mem      bytes.Buffer
	file     afero.File
	path     string
	size     int64
	crc      hash.Hash32
	hasher   *blake3.Hasher
	crc32    uint32
	digest   []byte
	closed   bool
	released bool
}

func newBuffer(p *Pool) *Buffer {
	return &Buffer{
		pool:   p,
		crc:    crc32.NewIEEE(),
		hasher: blake3.New(),
	}
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.Lock()
	defer b.Unlock()

	if b.released {
		return 0, ErrReleased
	}
	if b.closed {
		return 0, ErrClosed
	}

	if b.file == nil && int64(b.mem.Len()+len(p)) > b.pool.config.Threshold {
		if err := b.spill(int64(len(p))); err != nil {
			return 0, err
		}
	}

	var n int
	var err error

	if b.file != nil {
		n, err = b.file.Write(p)
	} else {
		n, err = b.mem.Write(p)
	}

	b.crc.Write(p[:n])    //nolint:errcheck
	b.hasher.Write(p[:n]) //nolint:errcheck
	b.size += int64(n)

	if err != nil {
		return n, fmt.Errorf("(pool-write) %w", err)
	}

	return n, nil
}

// spill moves the in-memory content into a temporary file.
func (b *Buffer) spill(pending int64) error {
	f, err := b.pool.createFile(int64(b.mem.Len()) + pending)
	if err != nil {
		return err
	}

	if _, err := f.Write(b.mem.Bytes()); err != nil {
		f.Close()                   //nolint:errcheck
		b.pool.fs.Remove(f.Name()) //nolint:errcheck

		return fmt.Errorf("(pool-spill) failed to write temp file: %w", err)
	}

	b.file = f
	b.path = f.Name()
	b.mem = bytes.Buffer{}

	return nil
}

// Close finishes writing and computes the digests. It is idempotent.
func (b *Buffer) Close() error {
	b.Lock()
	defer b.Unlock()

	if b.closed || b.released {
		return nil
	}
	b.closed = true
	b.crc32 = b.crc.Sum32()
	b.digest = b.hasher.Sum(nil)

	if b.file != nil {
		if err := b.file.Close(); err != nil {
			return fmt.Errorf("(pool-close) failed to close temp file: %w", err)
		}
		b.file = nil
	}

	return nil
}

// Size returns the number of bytes written so far.
func (b *Buffer) Size() int64 {
	b.Lock()
	defer b.Unlock()

	return b.size
}

// CRC32 returns the IEEE CRC32 of the content once closed.
func (b *Buffer) CRC32() uint32 {
	b.Lock()
	defer b.Unlock()

	return b.crc32
}

// Sum returns the BLAKE3 digest of the content once closed.
func (b *Buffer) Sum() []byte {
	b.Lock()
	defer b.Unlock()

	return append([]byte(nil), b.digest...)
}

// Path returns the path of the temporary file, "" while in memory.
func (b *Buffer) Path() string {
	b.Lock()
	defer b.Unlock()

	return b.path
}

// Open returns a new random access reader over the closed content.
func (b *Buffer) Open() (socket.Channel, error) {
	b.Lock()
	defer b.Unlock()

	switch {
	case b.released:
		return nil, ErrReleased
	case !b.closed:
		return nil, ErrNotClosed
	}

	if b.path == "" {
		return socket.NewSectionChannel(bytes.NewReader(b.mem.Bytes()), 0, b.size, nil), nil
	}

	f, err := b.pool.fs.Open(b.path)
	if err != nil {
		return nil, fmt.Errorf("(pool-open) failed to open temp file: %w", err)
	}

	return socket.NewSectionChannel(f, 0, b.size, f.Close), nil
}

// Replay writes the closed content to w and verifies that the replayed bytes
// match the digest computed while writing.
func (b *Buffer) Replay(w io.Writer) (int64, error) {
	r, err := b.Open()
	if err != nil {
		return 0, err
	}
	defer r.Close()

	hasher := blake3.New()

	n, err := io.Copy(io.MultiWriter(w, hasher), r)
	if err != nil {
		return n, fmt.Errorf("(pool-replay) failed to copy: %w", err)
	}

	want := b.Sum()
	got := hasher.Sum(nil)

	if !bytes.Equal(want, got) {
		return n, fmt.Errorf("(pool-replay) %w: %s (buffer) != %s (replay)",
			ErrHashMismatch, hex.EncodeToString(want), hex.EncodeToString(got))
	}

	return n, nil
}

// Release discards the content and deletes any temporary file. It is
// idempotent.
func (b *Buffer) Release() error {
	b.Lock()
	defer b.Unlock()

	if b.released {
		return nil
	}
	b.released = true
	b.pool.release(b)
	b.mem = bytes.Buffer{}

	var err error

	if b.file != nil {
		err = b.file.Close()
		b.file = nil
	}

	if b.path != "" {
		if rerr := b.pool.fs.Remove(b.path); rerr != nil {
			err = fmt.Errorf("(pool-release) failed to remove temp file %s: %w", b.path, rerr)
		}
	}

	return err
}
