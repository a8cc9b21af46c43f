// Package socket defines lazy, one-shot factories for the content of a single
// entry. An input socket and an output socket can be connected as peers so
// that both ends can negotiate how the content is transferred.
package socket

import (
	"io"

	"github.com/desertwitch/arcvfs/internal/entry"
)

// Channel is a random access view on the content of an entry.
type Channel interface {
	io.ReadSeekCloser
	io.ReaderAt

	// Size returns the number of bytes in the channel.
	Size() int64
}

// InputSocket provides read access to the content of its target entry.
// Nothing is opened before Stream or Channel is called.
type InputSocket interface {
	// Target returns the entry this socket reads. The error wraps
	// [fserr.ErrNotFound] if the entry does not exist.
	Target() (entry.Entry, error)

	// Stream opens a sequential reader. peer may be nil.
	Stream(peer OutputSocket) (io.ReadCloser, error)

	// Channel opens a random access reader. peer may be nil.
	Channel(peer OutputSocket) (Channel, error)
}

// OutputSocket provides write access to the content of its target entry.
type OutputSocket interface {
	// Target returns the entry this socket writes.
	Target() (entry.Entry, error)

	// Stream opens a sequential writer. peer may be nil. The content is
	// committed to the target entry when the writer is closed.
	Stream(peer InputSocket) (io.WriteCloser, error)
}

// Aborter is implemented by writers whose content can be discarded instead of
// committed.
type Aborter interface {
	Abort() error
}
