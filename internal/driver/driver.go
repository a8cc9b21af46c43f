// Package driver defines the contract of archive format drivers and a
// registry to detect them by entry name suffix.
package driver

import (
	"context"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/model"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/service"
	"github.com/desertwitch/arcvfs/internal/socket"
)

// Driver is the stateless policy of one archive format.
type Driver interface {
	// Scheme returns the scheme of mount points of this format.
	Scheme() string

	// NewInputService returns a service reading the archive provided by
	// source.
	NewInputService(ctx context.Context, m *model.Model, source socket.InputSocket) (service.InputService, error)

	// NewOutputService returns a service writing a new archive into sink.
	// input is the service of the archive being replaced, nil if there is
	// none.
	NewOutputService(ctx context.Context, m *model.Model, sink socket.OutputSocket, input service.InputService) (service.OutputService, error)

	// NewEntry returns a new entry of this format. If template is not nil,
	// its metadata is copied.
	NewEntry(name string, typ entry.Type, opts options.Access, template entry.Entry) (entry.Mutable, error)

	// Charset returns the character set of entry names.
	Charset() string

	// SupportsRedundantContent reports whether a later entry with a
	// duplicate name overrides an earlier one.
	SupportsRedundantContent() bool
}
