// Package fserr defines the error taxonomy shared by all federated file system
// components: busy resources, read-only violations and the aggregated
// warnings and failures of a synchronization.
package fserr

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is matched by every [BusyError].
	ErrBusy = errors.New("resource busy")

	// ErrReadOnly is matched by every [ReadOnlyError].
	ErrReadOnly = errors.New("read-only file system")

	// ErrNeedsSync occurs when an operation cannot proceed before the file
	// system has been synchronized, e.g. reading an entry which has been
	// written since the last synchronization.
	ErrNeedsSync = errors.New("file system needs synchronization")

	// ErrDisconnected occurs on any I/O on a stream which has been forcibly
	// closed by a synchronization.
	ErrDisconnected = errors.New("stream has been forcibly disconnected")

	// ErrNotFound occurs when an entry does not exist.
	ErrNotFound = errors.New("no such entry")

	// ErrExists occurs when an entry exists but exclusive access was
	// requested.
	ErrExists = errors.New("entry exists")

	// ErrNotDirectory occurs when a directory was expected.
	ErrNotDirectory = errors.New("not a directory")

	// ErrIsDirectory occurs when a file was expected.
	ErrIsDirectory = errors.New("is a directory")

	// ErrDirNotEmpty occurs when unlinking a directory with members.
	ErrDirNotEmpty = errors.New("directory not empty")
)

// BusyError occurs when a resource is exclusively held, e.g. when an entry
// stream is requested from an output service while another entry is still
// being written.
type BusyError struct {
	// Name is the entry which was requested.
	Name string

	// InProgress names what currently holds the resource.
	InProgress string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("%s: %q requested while %q is in progress", ErrBusy, e.Name, e.InProgress)
}

func (e *BusyError) Is(target error) bool {
	return target == ErrBusy
}

// ReadOnlyError occurs on a mutation of a file system mounted read-only.
type ReadOnlyError struct {
	Mount string
	Name  string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("%s: %s (entry %q)", ErrReadOnly, e.Mount, e.Name)
}

func (e *ReadOnlyError) Is(target error) bool {
	return target == ErrReadOnly
}

// EntryError records the operation and entry which caused an error, similar
// to [fs.PathError] but with the mount point as a separate field.
type EntryError struct {
	Op    string
	Mount string
	Name  string
	Err   error
}

func (e *EntryError) Error() string {
	if e.Mount == "" {
		return fmt.Sprintf("(%s) %q: %v", e.Op, e.Name, e.Err)
	}

	return fmt.Sprintf("(%s) %s!/%s: %v", e.Op, e.Mount, e.Name, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}
