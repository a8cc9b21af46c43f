package pace

import (
	"context"
	"fmt"

	"github.com/desertwitch/arcvfs/internal/controller"
	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/mount"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/socket"
)

// Controller is the outermost decorator of a federated file system. Every
// operation first evicts queued file systems, then runs, then registers the
// file system as most recently used.
type Controller struct {
	controller.Controller
	pace  *Manager
	point *mount.Point
}

func (c *Controller) apply(ctx context.Context, op func() error) error {
	if err := c.pace.syncLru(ctx, c.point); err != nil {
		return fmt.Errorf("(pace-evict) %w", err)
	}

	err := op()
	c.pace.accessed(c.point)

	if evictErr := c.pace.syncLru(ctx, c.point); evictErr != nil {
		return fserr.Suppress(err, fmt.Errorf("(pace-evict) %w", evictErr))
	}

	return err
}

func (c *Controller) around(ctx context.Context) controller.Around {
	return func(op func() error) error {
		return c.apply(ctx, op)
	}
}

func (c *Controller) Stat(ctx context.Context, name string) (e entry.Entry, err error) {
	err = c.apply(ctx, func() (err error) {
		e, err = c.Controller.Stat(ctx, name)

		return err
	})

	return e, err
}

func (c *Controller) IsReadable(ctx context.Context, name string) (ok bool, err error) {
	err = c.apply(ctx, func() (err error) {
		ok, err = c.Controller.IsReadable(ctx, name)

		return err
	})

	return ok, err
}

func (c *Controller) IsWritable(ctx context.Context, name string) (ok bool, err error) {
	err = c.apply(ctx, func() (err error) {
		ok, err = c.Controller.IsWritable(ctx, name)

		return err
	})

	return ok, err
}

func (c *Controller) IsExecutable(ctx context.Context, name string) (ok bool, err error) {
	err = c.apply(ctx, func() (err error) {
		ok, err = c.Controller.IsExecutable(ctx, name)

		return err
	})

	return ok, err
}

func (c *Controller) SetReadOnly(ctx context.Context, name string) error {
	return c.apply(ctx, func() error {
		return c.Controller.SetReadOnly(ctx, name)
	})
}

func (c *Controller) SetTime(ctx context.Context, name string, accesses []entry.Access, millis int64) (ok bool, err error) {
	err = c.apply(ctx, func() (err error) {
		ok, err = c.Controller.SetTime(ctx, name, accesses, millis)

		return err
	})

	return ok, err
}

func (c *Controller) Input(ctx context.Context, name string, opts options.Access) socket.InputSocket {
	return controller.WrapInput(c.Controller.Input(ctx, name, opts), c.around(ctx))
}

func (c *Controller) Output(ctx context.Context, name string, opts options.Access, template entry.Entry) socket.OutputSocket {
	return controller.WrapOutput(c.Controller.Output(ctx, name, opts, template), c.around(ctx))
}

func (c *Controller) Mknod(ctx context.Context, name string, typ entry.Type, opts options.Access, template entry.Entry) error {
	return c.apply(ctx, func() error {
		return c.Controller.Mknod(ctx, name, typ, opts, template)
	})
}

func (c *Controller) Unlink(ctx context.Context, name string, opts options.Access) error {
	return c.apply(ctx, func() error {
		return c.Controller.Unlink(ctx, name, opts)
	})
}

// Sync synchronizes the file system alone. Nested file systems are not
// synchronized first.
func (c *Controller) Sync(ctx context.Context, opts options.Sync) error {
	err := c.Controller.Sync(ctx, opts)
	if err == nil || fserr.IsWarning(err) {
		c.pace.forget(c.point)
	}

	return err //nolint:wrapcheck
}
