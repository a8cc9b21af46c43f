package controller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/socket"
)

// AccountingController keeps account of the streams opened through its
// sockets, so that a synchronization can wait for them to be closed or
// forcibly disconnect them.
type AccountingController struct {
	Controller
	sync.Mutex
	accounts map[*account]struct{}
	changed  chan struct{}
}

// NewAccountingController returns a pointer to a new [AccountingController]
// decorating c.
func NewAccountingController(c Controller) *AccountingController {
	return &AccountingController{
		Controller: c,
		accounts:   make(map[*account]struct{}),
		changed:    make(chan struct{}),
	}
}

// Open returns the number of streams which have not been closed yet.
func (c *AccountingController) Open() int {
	c.Lock()
	defer c.Unlock()

	return len(c.accounts)
}

func (c *AccountingController) Input(ctx context.Context, name string, opts options.Access) socket.InputSocket {
	return &accountingInput{
		ctx:  ctx,
		c:    c,
		name: entry.Clean(name),
		in:   c.Controller.Input(ctx, name, opts),
	}
}

func (c *AccountingController) Output(ctx context.Context, name string, opts options.Access, template entry.Entry) socket.OutputSocket {
	return &accountingOutput{
		ctx:  ctx,
		c:    c,
		name: entry.Clean(name),
		out:  c.Controller.Output(ctx, name, opts, template),
	}
}

// Sync waits for or disconnects open streams as requested by opts before
// synchronizing the decorated controller. Disconnected streams are reported
// as a warning.
func (c *AccountingController) Sync(ctx context.Context, opts options.Sync) error {
	if opts.Has(options.WaitCloseIO) {
		c.waitOthers(ctx)
	}

	warning, err := c.closeRemaining(opts)
	if err != nil {
		return err
	}

	return fserr.Suppress(c.Controller.Sync(ctx, opts), warning)
}

// waitOthers blocks until all streams not owned by the caller are closed or
// ctx is done.
func (c *AccountingController) waitOthers(ctx context.Context) {
	for {
		c.Lock()
		others := 0
		for a := range c.accounts {
			if !owns(ctx, a.owner) {
				others++
			}
		}
		changed := c.changed
		c.Unlock()

		if others == 0 {
			return
		}

		slog.Debug("Waiting for open streams.", "mount", c.Model().String(), "streams", others)

		select {
		case <-changed:
		case <-ctx.Done():
			return
		}
	}
}

func (c *AccountingController) closeRemaining(opts options.Sync) (warning error, err error) {
	c.Lock()
	remaining := make([]*account, 0, len(c.accounts))
	for a := range c.accounts {
		remaining = append(remaining, a)
	}
	c.Unlock()

	if len(remaining) == 0 {
		return nil, nil
	}

	if !opts.Has(options.ForceCloseIO) {
		return nil, fmt.Errorf("(accounting-sync) %w", &fserr.BusyError{
			Name:       c.Model().String(),
			InProgress: fmt.Sprintf("%d open streams, first %q", len(remaining), remaining[0].name),
		})
	}

	var closeErr error
	for _, a := range remaining {
		closeErr = fserr.Suppress(closeErr, a.disconnect())
	}

	slog.Warn("Forcibly closed open streams.", "mount", c.Model().String(), "streams", len(remaining))

	warning = fserr.Warning(fmt.Errorf("(accounting-sync) %w: %d streams of %s", ErrForcedClose, len(remaining), c.Model()))

	return fserr.Suppress(warning, closeErr), nil
}

func (c *AccountingController) register(ctx context.Context, name string, closer io.Closer) *account {
	a := &account{
		c:      c,
		owner:  OwnerOf(ctx),
		name:   name,
		closer: closer,
	}

	c.Lock()
	c.accounts[a] = struct{}{}
	c.Unlock()

	return a
}

func (c *AccountingController) unregister(a *account) {
	c.Lock()
	defer c.Unlock()

	delete(c.accounts, a)
	close(c.changed)
	c.changed = make(chan struct{})
}

// account is the record of one open stream.
type account struct {
	mu           sync.Mutex
	c            *AccountingController
	owner        Owner
	name         string
	closer       io.Closer
	closed       bool
	disconnected bool
}

// do runs op unless the stream has been closed.
func (a *account) do(op func() error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disconnected {
		return fmt.Errorf("(accounting-io) %w: %q", fserr.ErrDisconnected, a.name)
	}
	if a.closed {
		return fmt.Errorf("(accounting-io) %w: %q", ErrStreamClosed, a.name)
	}

	return op()
}

func (a *account) close(closeFunc func() error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	defer a.c.unregister(a)

	return closeFunc()
}

func (a *account) disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	a.disconnected = true
	defer a.c.unregister(a)

	if err := a.closer.Close(); err != nil {
		return fmt.Errorf("(accounting-disconnect) %q: %w", a.name, err)
	}

	return nil
}

type accountingInput struct {
	ctx  context.Context //nolint:containedctx
	c    *AccountingController
	name string
	in   socket.InputSocket
}

func (s *accountingInput) Target() (entry.Entry, error) {
	return s.in.Target() //nolint:wrapcheck
}

func (s *accountingInput) Stream(peer socket.OutputSocket) (io.ReadCloser, error) {
	r, err := s.in.Stream(peer)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return &accountedReader{account: s.c.register(s.ctx, s.name, r), r: r}, nil
}

func (s *accountingInput) Channel(peer socket.OutputSocket) (socket.Channel, error) {
	ch, err := s.in.Channel(peer)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return &accountedChannel{account: s.c.register(s.ctx, s.name, ch), ch: ch}, nil
}

type accountingOutput struct {
	ctx  context.Context //nolint:containedctx
	c    *AccountingController
	name string
	out  socket.OutputSocket
}

func (s *accountingOutput) Target() (entry.Entry, error) {
	return s.out.Target() //nolint:wrapcheck
}

func (s *accountingOutput) Stream(peer socket.InputSocket) (io.WriteCloser, error) {
	w, err := s.out.Stream(peer)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return &accountedWriter{account: s.c.register(s.ctx, s.name, w), w: w}, nil
}

type accountedReader struct {
	*account
	r io.ReadCloser
}

func (r *accountedReader) Read(p []byte) (n int, err error) {
	err = r.do(func() (err error) {
		n, err = r.r.Read(p)

		return err
	})

	return n, err
}

func (r *accountedReader) Close() error {
	return r.close(r.r.Close)
}

type accountedChannel struct {
	*account
	ch socket.Channel
}

func (c *accountedChannel) Read(p []byte) (n int, err error) {
	err = c.do(func() (err error) {
		n, err = c.ch.Read(p)

		return err
	})

	return n, err
}

func (c *accountedChannel) ReadAt(p []byte, off int64) (n int, err error) {
	err = c.do(func() (err error) {
		n, err = c.ch.ReadAt(p, off)

		return err
	})

	return n, err
}

func (c *accountedChannel) Seek(offset int64, whence int) (n int64, err error) {
	err = c.do(func() (err error) {
		n, err = c.ch.Seek(offset, whence)

		return err
	})

	return n, err
}

func (c *accountedChannel) Size() int64 {
	return c.ch.Size()
}

func (c *accountedChannel) Close() error {
	return c.close(c.ch.Close)
}

type accountedWriter struct {
	*account
	w io.WriteCloser
}

func (w *accountedWriter) Write(p []byte) (n int, err error) {
	err = w.do(func() (err error) {
		n, err = w.w.Write(p)

		return err
	})

	return n, err
}

func (w *accountedWriter) Close() error {
	return w.close(w.w.Close)
}

// Abort discards the content if the decorated writer supports it, and
// closes it otherwise.
func (w *accountedWriter) Abort() error {
	return w.close(func() error {
		if a, ok := w.w.(socket.Aborter); ok {
			return a.Abort() //nolint:wrapcheck
		}

		return w.w.Close() //nolint:wrapcheck
	})
}
