// Package service defines the input and output services through which the
// federated file system reads and writes the entries of an archive.
package service

import (
	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/socket"
)

// Container is an iterable collection of entries.
type Container interface {
	// Size returns the number of entries.
	Size() int

	// Entries returns the entries in their natural order.
	Entries() []entry.Entry

	// Entry returns the named entry, nil if it does not exist.
	Entry(name string) entry.Entry
}

// InputService provides random read access to the entries of an existing
// archive.
type InputService interface {
	Container

	// Input returns a socket for reading the named entry.
	Input(name string) socket.InputSocket

	// Close releases the archive source.
	Close() error
}

// OutputService writes the entries of a new archive sequentially.
type OutputService interface {
	Container

	// Output returns a socket for writing e. At most one entry may be
	// written at any time.
	Output(e entry.Mutable) socket.OutputSocket

	// Close finishes the archive and closes the archive sink.
	Close() error

	// Abort discards the archive, leaving the sink uncommitted.
	Abort() error
}
