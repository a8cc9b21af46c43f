package controller

import (
	"context"
	"sync"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/model"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/socket"
)

// LockController serializes all operations on the decorated controller,
// including the opening of streams. I/O on open streams is not serialized.
type LockController struct {
	sync.Mutex
	c Controller
}

// NewLockController returns a pointer to a new [LockController] decorating c.
func NewLockController(c Controller) *LockController {
	return &LockController{c: c}
}

func (l *LockController) locked(op func() error) error {
	l.Lock()
	defer l.Unlock()

	return op()
}

func (l *LockController) Model() *model.Model {
	return l.c.Model()
}

func (l *LockController) Stat(ctx context.Context, name string) (e entry.Entry, err error) {
	err = l.locked(func() (err error) {
		e, err = l.c.Stat(ctx, name)

		return err
	})

	return e, err
}

func (l *LockController) IsReadable(ctx context.Context, name string) (ok bool, err error) {
	err = l.locked(func() (err error) {
		ok, err = l.c.IsReadable(ctx, name)

		return err
	})

	return ok, err
}

func (l *LockController) IsWritable(ctx context.Context, name string) (ok bool, err error) {
	err = l.locked(func() (err error) {
		ok, err = l.c.IsWritable(ctx, name)

		return err
	})

	return ok, err
}

func (l *LockController) IsExecutable(ctx context.Context, name string) (ok bool, err error) {
	err = l.locked(func() (err error) {
		ok, err = l.c.IsExecutable(ctx, name)

		return err
	})

	return ok, err
}

func (l *LockController) SetReadOnly(ctx context.Context, name string) error {
	return l.locked(func() error {
		return l.c.SetReadOnly(ctx, name)
	})
}

func (l *LockController) SetTime(ctx context.Context, name string, accesses []entry.Access, millis int64) (ok bool, err error) {
	err = l.locked(func() (err error) {
		ok, err = l.c.SetTime(ctx, name, accesses, millis)

		return err
	})

	return ok, err
}

func (l *LockController) Input(ctx context.Context, name string, opts options.Access) socket.InputSocket {
	return WrapInput(l.c.Input(ctx, name, opts), l.locked)
}

func (l *LockController) Output(ctx context.Context, name string, opts options.Access, template entry.Entry) socket.OutputSocket {
	return WrapOutput(l.c.Output(ctx, name, opts, template), l.locked)
}

func (l *LockController) Mknod(ctx context.Context, name string, typ entry.Type, opts options.Access, template entry.Entry) error {
	return l.locked(func() error {
		return l.c.Mknod(ctx, name, typ, opts, template)
	})
}

func (l *LockController) Unlink(ctx context.Context, name string, opts options.Access) error {
	return l.locked(func() error {
		return l.c.Unlink(ctx, name, opts)
	})
}

func (l *LockController) Sync(ctx context.Context, opts options.Sync) error {
	return l.locked(func() error {
		return l.c.Sync(ctx, opts)
	})
}
