package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/pool"
	"github.com/desertwitch/arcvfs/internal/socket"
)

// CacheController selectively caches entry content in temporary buffers.
// Entries read or written with [options.Cache] are kept until they are
// changed through another socket or a synchronization clears the cache.
type CacheController struct {
	Controller
	mu      sync.Mutex
	pool    *pool.Pool
	buffers map[string]*pool.Buffer
}

// NewCacheController returns a pointer to a new [CacheController] decorating
// c and allocating buffers from p.
func NewCacheController(c Controller, p *pool.Pool) *CacheController {
	return &CacheController{
		Controller: c,
		pool:       p,
		buffers:    make(map[string]*pool.Buffer),
	}
}

// Cached returns the number of cached entries.
func (c *CacheController) Cached() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.buffers)
}

func (c *CacheController) Input(ctx context.Context, name string, opts options.Access) socket.InputSocket {
	return &cacheInput{
		c:    c,
		name: entry.Clean(name),
		opts: opts,
		in:   c.Controller.Input(ctx, name, opts),
	}
}

func (c *CacheController) Output(ctx context.Context, name string, opts options.Access, template entry.Entry) socket.OutputSocket {
	return &cacheOutput{
		c:    c,
		name: entry.Clean(name),
		opts: opts,
		out:  c.Controller.Output(ctx, name, opts, template),
	}
}

func (c *CacheController) Mknod(ctx context.Context, name string, typ entry.Type, opts options.Access, template entry.Entry) error {
	if err := c.evict(entry.Clean(name)); err != nil {
		return err
	}

	return c.Controller.Mknod(ctx, name, typ, opts, template) //nolint:wrapcheck
}

func (c *CacheController) Unlink(ctx context.Context, name string, opts options.Access) error {
	if err := c.Controller.Unlink(ctx, name, opts); err != nil {
		return err //nolint:wrapcheck
	}

	if entry.Clean(name) == "" {
		return c.clear()
	}

	return c.evict(entry.Clean(name))
}

// Sync drops all cached content after the decorated controller has been
// synchronized, if opts clears the cache or discards the changes.
func (c *CacheController) Sync(ctx context.Context, opts options.Sync) error {
	err := c.Controller.Sync(ctx, opts)

	if opts.Has(options.ClearCache) || opts.Has(options.AbortChanges) {
		err = fserr.Suppress(err, c.clear())
	}

	return err //nolint:wrapcheck
}

func (c *CacheController) lookup(name string) *pool.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.buffers[name]
}

func (c *CacheController) store(name string, b *pool.Buffer) error {
	c.mu.Lock()
	old := c.buffers[name]
	c.buffers[name] = b
	c.mu.Unlock()

	if old != nil && old != b {
		return old.Release() //nolint:wrapcheck
	}

	return nil
}

func (c *CacheController) evict(name string) error {
	c.mu.Lock()
	b, ok := c.buffers[name]
	delete(c.buffers, name)
	c.mu.Unlock()

	if !ok {
		return nil
	}

	return b.Release() //nolint:wrapcheck
}

func (c *CacheController) clear() error {
	c.mu.Lock()
	buffers := c.buffers
	c.buffers = make(map[string]*pool.Buffer)
	c.mu.Unlock()

	var err error
	for _, b := range buffers {
		err = fserr.Suppress(err, b.Release())
	}

	if len(buffers) > 0 {
		slog.Debug("Cleared entry cache.", "mount", c.Model().String(), "entries", len(buffers))
	}

	return err
}

type cacheInput struct {
	c    *CacheController
	name string
	opts options.Access
	in   socket.InputSocket
}

func (s *cacheInput) Target() (entry.Entry, error) {
	return s.in.Target() //nolint:wrapcheck
}

func (s *cacheInput) Stream(peer socket.OutputSocket) (io.ReadCloser, error) {
	if b := s.c.lookup(s.name); b != nil || s.opts.Has(options.Cache) {
		return s.Channel(peer)
	}

	return s.in.Stream(peer) //nolint:wrapcheck
}

func (s *cacheInput) Channel(peer socket.OutputSocket) (socket.Channel, error) {
	if b := s.c.lookup(s.name); b != nil {
		ch, err := b.Open()
		if err == nil {
			return ch, nil
		}
		if !errors.Is(err, pool.ErrReleased) {
			return nil, fmt.Errorf("(cache-input) %w", err)
		}
	}

	if !s.opts.Has(options.Cache) {
		return s.in.Channel(peer) //nolint:wrapcheck
	}

	b, err := s.fill(peer)
	if err != nil {
		return nil, err
	}

	ch, err := b.Open()
	if err != nil {
		return nil, fmt.Errorf("(cache-input) %w", err)
	}

	return ch, nil
}

// fill reads the content of the entry into a new cache buffer.
func (s *cacheInput) fill(peer socket.OutputSocket) (_ *pool.Buffer, err error) {
	r, err := s.in.Stream(peer)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	defer func() {
		err = fserr.Suppress(err, r.Close())
	}()

	b := s.c.pool.Allocate()

	if _, err := io.Copy(b, r); err != nil {
		return nil, fserr.Suppress(fmt.Errorf("(cache-fill) %w", err), b.Release())
	}
	if err := b.Close(); err != nil {
		return nil, fserr.Suppress(fmt.Errorf("(cache-fill) %w", err), b.Release())
	}

	if err := s.c.store(s.name, b); err != nil {
		return nil, fmt.Errorf("(cache-fill) %w", err)
	}

	return b, nil
}

type cacheOutput struct {
	c    *CacheController
	name string
	opts options.Access
	out  socket.OutputSocket
}

func (s *cacheOutput) Target() (entry.Entry, error) {
	return s.out.Target() //nolint:wrapcheck
}

func (s *cacheOutput) Stream(peer socket.InputSocket) (io.WriteCloser, error) {
	if err := s.c.evict(s.name); err != nil {
		return nil, err
	}

	w, err := s.out.Stream(peer)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	if !s.opts.Has(options.Cache) || s.opts.Has(options.Append) {
		return w, nil
	}

	return &cacheWriter{c: s.c, name: s.name, w: w, buf: s.c.pool.Allocate()}, nil
}

// cacheWriter writes through to the decorated writer and keeps a copy of the
// content, which is cached once the decorated writer has been closed.
type cacheWriter struct {
	c    *CacheController
	name string
	w    io.WriteCloser
	buf  *pool.Buffer
	done bool
}

func (w *cacheWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if err != nil {
		return n, err //nolint:wrapcheck
	}

	if _, err := w.buf.Write(p[:n]); err != nil {
		return n, fmt.Errorf("(cache-write) %w", err)
	}

	return n, nil
}

func (w *cacheWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true

	if err := w.w.Close(); err != nil {
		return fserr.Suppress(err, w.buf.Release())
	}

	if err := w.buf.Close(); err != nil {
		return fserr.Suppress(fmt.Errorf("(cache-write) %w", err), w.buf.Release())
	}

	return w.c.store(w.name, w.buf)
}

func (w *cacheWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true

	var err error
	if a, ok := w.w.(socket.Aborter); ok {
		err = a.Abort()
	} else {
		err = w.w.Close()
	}

	return fserr.Suppress(err, w.buf.Release())
}
