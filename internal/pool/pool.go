// Package pool implements disposable temporary buffers for entry content
// whose size is not known before all bytes are seen. Buffers are kept in
// memory up to a threshold and spill into a temporary file beyond it.
package pool

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

const (
	// DefaultThreshold is the default amount of bytes kept in memory.
	DefaultThreshold int64 = 1 << 20

	tempPattern = "arcvfs-*.spool"
)

// statfsProvider defines Statfs methods needed for disk space checking.
type statfsProvider interface {
	Statfs(path string, buf *unix.Statfs_t) error
}

// UnixStatfs is the [unix.Statfs] backed statfs provider.
type UnixStatfs struct{}

func (*UnixStatfs) Statfs(path string, buf *unix.Statfs_t) error {
	return unix.Statfs(path, buf)
}

// Config configures a [Pool].
type Config struct {
	// Dir is the directory for temporary files, [os.TempDir] if empty.
	Dir string

	// Threshold is the amount of bytes kept in memory per buffer.
	Threshold int64

	// MinFree is the amount of bytes which must remain free in Dir after a
	// buffer spilled into a file. Zero disables the check.
	MinFree uint64
}

// Pool allocates [Buffer]s and keeps track of the unreleased ones.
type Pool struct {
	sync.Mutex
	fs     afero.Fs
	statfs statfsProvider
	config Config
	live   map[*Buffer]struct{}
}

// New returns a pointer to a new [Pool] storing temporary files on fs.
func New(fs afero.Fs, statfs statfsProvider, config Config) *Pool {
	if config.Dir == "" {
		config.Dir = os.TempDir()
	}
	if config.Threshold < 0 {
		config.Threshold = 0
	}

	return &Pool{
		fs:     fs,
		statfs: statfs,
		config: config,
		live:   make(map[*Buffer]struct{}),
	}
}

// Allocate returns a new empty [Buffer] owned by the caller until released.
func (p *Pool) Allocate() *Buffer {
	b := newBuffer(p)

	p.Lock()
	p.live[b] = struct{}{}
	p.Unlock()

	return b
}

// Live returns the number of allocated buffers which were not released yet.
func (p *Pool) Live() int {
	p.Lock()
	defer p.Unlock()

	return len(p.live)
}

func (p *Pool) release(b *Buffer) {
	p.Lock()
	delete(p.live, b)
	p.Unlock()
}

// createFile creates a new temporary file, if there is enough free space for
// the expected amount of bytes.
func (p *Pool) createFile(expected int64) (afero.File, error) {
	if err := p.checkSpace(expected); err != nil {
		return nil, err
	}

	if err := p.fs.MkdirAll(p.config.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("(pool-create) failed to create temp dir: %w", err)
	}

	f, err := afero.TempFile(p.fs, p.config.Dir, tempPattern)
	if err != nil {
		return nil, fmt.Errorf("(pool-create) failed to create temp file: %w", err)
	}

	slog.Debug("Spilled buffer into temporary file.", "path", f.Name())

	return f, nil
}

func (p *Pool) checkSpace(expected int64) error {
	if p.config.MinFree == 0 || p.statfs == nil {
		return nil
	}

	var stat unix.Statfs_t
	if err := p.statfs.Statfs(p.config.Dir, &stat); err != nil {
		return fmt.Errorf("(pool-space) failed to statfs: %w", err)
	}

	free := stat.Bavail * handleSize(stat.Bsize)
	required := p.config.MinFree + handleSize(expected)

	if free < required {
		return fmt.Errorf("(pool-space) %w: %d < %d", ErrInsufficientSpace, free, required)
	}

	return nil
}

// handleSize converts a signed size to an unsigned size (with sizes < 0
// becoming 0).
func handleSize(size int64) uint64 {
	if size < 0 {
		return 0
	}

	return uint64(size)
}
