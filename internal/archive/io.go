package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/desertwitch/arcvfs/internal/driver"
	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/socket"
)

func (c *Controller) Input(ctx context.Context, name string, _ options.Access) socket.InputSocket {
	return &inputSocket{ctx: ctx, c: c, name: entry.Clean(name)}
}

func (c *Controller) Output(ctx context.Context, name string, opts options.Access, template entry.Entry) socket.OutputSocket {
	return &outputSocket{ctx: ctx, c: c, name: entry.Clean(name), opts: opts, template: template}
}

type inputSocket struct {
	ctx  context.Context //nolint:containedctx
	c    *Controller
	name string
}

func (s *inputSocket) Target() (entry.Entry, error) {
	e, err := s.c.Stat(s.ctx, s.name)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("(archive-input) %w: %s!/%s", fserr.ErrNotFound, s.c.model, s.name)
	}

	return e, nil
}

// open returns the input socket of the driver, nil for entries without
// content.
func (s *inputSocket) open() (socket.InputSocket, error) {
	fs, err := s.c.mount(s.ctx, false)
	if err != nil {
		return nil, err
	}

	n := fs.tree.get(s.name)
	if n == nil {
		return nil, fmt.Errorf("(archive-input) %w: %s!/%s", fserr.ErrNotFound, s.c.model, s.name)
	}
	if n.members != nil {
		return nil, fmt.Errorf("(archive-input) %w: %s!/%s", fserr.ErrIsDirectory, s.c.model, s.name)
	}
	if _, ok := fs.written[s.name]; ok {
		return nil, fmt.Errorf("(archive-input) %w: %s!/%s", fserr.ErrNeedsSync, s.c.model, s.name)
	}
	if n.pending || fs.input == nil {
		return nil, nil
	}

	return fs.input.Input(s.name), nil
}

func (s *inputSocket) Stream(peer socket.OutputSocket) (io.ReadCloser, error) {
	peer = resolvePeer(peer)

	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	in, err := s.open()
	if err != nil {
		return nil, err
	}
	if in == nil {
		return emptyChannel(), nil
	}

	return in.Stream(peer) //nolint:wrapcheck
}

// Channel returns a random access channel. If the driver cannot provide one,
// the content is read into a temporary buffer which is released on close.
func (s *inputSocket) Channel(peer socket.OutputSocket) (socket.Channel, error) {
	peer = resolvePeer(peer)

	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	in, err := s.open()
	if err != nil {
		return nil, err
	}
	if in == nil {
		return emptyChannel(), nil
	}

	ch, err := in.Channel(peer)
	if !errors.Is(err, driver.ErrNoChannel) {
		return ch, err //nolint:wrapcheck
	}

	return s.c.spoolChannel(in)
}

// resolvePeer binds peer to its target before any lock is taken. A peer
// whose target cannot be resolved is dropped.
func resolvePeer(peer socket.OutputSocket) socket.OutputSocket {
	resolved, err := socket.ResolveOutput(peer)
	if err != nil {
		return nil
	}

	return resolved
}

func emptyChannel() socket.Channel {
	return socket.NewSectionChannel(bytes.NewReader(nil), 0, 0, nil)
}

type outputSocket struct {
	ctx      context.Context //nolint:containedctx
	c        *Controller
	name     string
	opts     options.Access
	template entry.Entry
}

func (s *outputSocket) Target() (entry.Entry, error) {
	if s.template != nil {
		return entry.NewRecord(s.name, entry.File, s.template), nil
	}

	if e, err := s.c.Stat(s.ctx, s.name); err == nil && e != nil {
		return entry.NewRecord(s.name, entry.File, e), nil
	}

	return entry.NewRecord(s.name, entry.File, nil), nil
}

func (s *outputSocket) Stream(peer socket.InputSocket) (io.WriteCloser, error) {
	c := s.c

	peer, err := socket.ResolveInput(peer)
	if err != nil {
		return nil, fmt.Errorf("(archive-output) failed to resolve peer: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s.name == "" {
		return nil, fmt.Errorf("(archive-output) %w: %s", fserr.ErrIsDirectory, c.model)
	}

	fs, err := c.mutable(s.ctx, s.name, s.opts.Has(options.CreateParents))
	if err != nil {
		return nil, err
	}

	n := fs.tree.get(s.name)
	if n != nil {
		if n.members != nil {
			return nil, fmt.Errorf("(archive-output) %w: %q", fserr.ErrIsDirectory, s.name)
		}
		if s.opts.Has(options.Exclusive) {
			return nil, fmt.Errorf("(archive-output) %w: %q", fserr.ErrExists, s.name)
		}
		if _, ok := fs.written[s.name]; ok {
			return nil, fmt.Errorf("(archive-output) %w: %q", fserr.ErrNeedsSync, s.name)
		}
	} else if err := checkParent(fs, s.name, s.opts); err != nil {
		return nil, err
	}

	template := s.template
	if template == nil && n != nil {
		template = n.e
	}

	e, err := c.newEntry(s.name, entry.File, s.opts, template)
	if err != nil {
		return nil, err
	}

	out, err := c.ensureOutput(s.ctx, fs)
	if err != nil {
		return nil, err
	}

	appending := s.opts.Has(options.Append) && n != nil && !n.pending && fs.input != nil
	if appending {
		peer = nil
	}

	w, err := out.Output(e).Stream(peer)
	if err != nil {
		return nil, fmt.Errorf("(archive-output) %w", err)
	}

	if appending {
		if err := copyExisting(fs.input.Input(s.name), w); err != nil {
			return nil, abortWriter(w, err)
		}
	}

	fs.tree.put(s.name, &node{e: e})
	fs.written[s.name] = struct{}{}

	if err := c.touch(); err != nil {
		return nil, abortWriter(w, err)
	}

	return w, nil
}

// copyExisting copies the current content of an entry ahead of appended
// content.
func copyExisting(in socket.InputSocket, w io.Writer) (err error) {
	r, err := in.Stream(nil)
	if err != nil {
		return fmt.Errorf("(archive-append) %w", err)
	}
	defer func() {
		err = fserr.Suppress(err, r.Close())
	}()

	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("(archive-append) %w", err)
	}

	return nil
}

func abortWriter(w io.WriteCloser, err error) error {
	if a, ok := w.(socket.Aborter); ok {
		return fserr.Suppress(err, a.Abort())
	}

	return fserr.Suppress(err, w.Close())
}
