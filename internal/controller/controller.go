// Package controller defines the operational façade over one mounted file
// system and the decorators which add cross-cutting policy to it.
//
// A controller chain is built once per mount point, innermost first:
//
//	archive.Controller ← AccountingController ← CacheController ←
//	SyncController ← LockController ← pace.Controller
//
// Every decorator performs its own policy and then forwards to the wrapped
// controller, returning its errors unchanged.
package controller

import (
	"context"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/model"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/socket"
)

// Controller operates on the entries of one file system. Entry names are
// relative to the file system, the root directory is "".
type Controller interface {
	// Model returns the model of the file system.
	Model() *model.Model

	// Stat returns the named entry, nil if it does not exist.
	Stat(ctx context.Context, name string) (entry.Entry, error)

	IsReadable(ctx context.Context, name string) (bool, error)
	IsWritable(ctx context.Context, name string) (bool, error)
	IsExecutable(ctx context.Context, name string) (bool, error)

	// SetReadOnly removes all write permissions of the named entry.
	SetReadOnly(ctx context.Context, name string) error

	// SetTime sets the given times of the named entry. It returns false if
	// any of the times cannot be represented.
	SetTime(ctx context.Context, name string, accesses []entry.Access, millis int64) (bool, error)

	// Input returns a socket for reading the named entry. Nothing is
	// opened before a stream or channel is requested from the socket.
	Input(ctx context.Context, name string, opts options.Access) socket.InputSocket

	// Output returns a socket for writing the named entry. The metadata of
	// template is copied into the new entry if it is not nil.
	Output(ctx context.Context, name string, opts options.Access, template entry.Entry) socket.OutputSocket

	// Mknod creates the named entry without content.
	Mknod(ctx context.Context, name string, typ entry.Type, opts options.Access, template entry.Entry) error

	// Unlink removes the named entry. The root of a federated file system
	// removes the file system from its parent.
	Unlink(ctx context.Context, name string, opts options.Access) error

	// Sync commits all pending changes and releases all resources.
	Sync(ctx context.Context, opts options.Sync) error
}

// Permitted reports the permission of the named entry for the user,
// defaulting to def if the format cannot represent it. The result is false
// if the entry does not exist.
func Permitted(ctx context.Context, c Controller, name string, access entry.Access, def bool) (bool, error) {
	e, err := c.Stat(ctx, name)
	if err != nil || e == nil {
		return false, err
	}

	if p := e.Permitted(access, entry.User); p != nil {
		return *p, nil
	}

	return def, nil
}
