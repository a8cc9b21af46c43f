package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/socket"
)

// SyncController synchronizes the decorated controller and retries once
// when an operation fails with [fserr.ErrNeedsSync], e.g. when an entry is
// read after it has been written.
type SyncController struct {
	Controller
	timeout time.Duration
}

// NewSyncController returns a pointer to a new [SyncController] decorating c.
// A timeout greater than zero bounds the wait for open streams.
func NewSyncController(c Controller, timeout time.Duration) *SyncController {
	return &SyncController{
		Controller: c,
		timeout:    timeout,
	}
}

func (c *SyncController) Input(ctx context.Context, name string, opts options.Access) socket.InputSocket {
	return WrapInput(c.Controller.Input(ctx, name, opts), c.around(ctx))
}

func (c *SyncController) Output(ctx context.Context, name string, opts options.Access, template entry.Entry) socket.OutputSocket {
	return WrapOutput(c.Controller.Output(ctx, name, opts, template), c.around(ctx))
}

func (c *SyncController) Mknod(ctx context.Context, name string, typ entry.Type, opts options.Access, template entry.Entry) error {
	return c.retry(ctx, func() error {
		return c.Controller.Mknod(ctx, name, typ, opts, template)
	})
}

func (c *SyncController) SetTime(ctx context.Context, name string, accesses []entry.Access, millis int64) (bool, error) {
	var ok bool

	err := c.retry(ctx, func() error {
		var err error
		ok, err = c.Controller.SetTime(ctx, name, accesses, millis)

		return err //nolint:wrapcheck
	})

	return ok, err
}

func (c *SyncController) Unlink(ctx context.Context, name string, opts options.Access) error {
	return c.retry(ctx, func() error {
		return c.Controller.Unlink(ctx, name, opts)
	})
}

func (c *SyncController) around(ctx context.Context) Around {
	return func(op func() error) error {
		return c.retry(ctx, op)
	}
}

func (c *SyncController) retry(ctx context.Context, op func() error) error {
	err := op()
	if !errors.Is(err, fserr.ErrNeedsSync) {
		return err
	}

	slog.Debug("Synchronizing before retry.", "mount", c.Model().String(), "err", err)

	sctx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.Controller.Sync(sctx, options.WaitCloseIO); err != nil && !fserr.IsWarning(err) {
		return fmt.Errorf("(sync-retry) %w", err)
	}

	return op()
}
