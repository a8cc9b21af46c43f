// Package options defines the bit flags which control entry access and the
// synchronization of federated file systems.
package options

import (
	"fmt"
	"strings"
)

// Access are the options for input, output, mknod and unlink operations.
type Access uint32

const (
	// CreateParents creates missing parent directories.
	CreateParents Access = 1 << iota

	// Append appends new content to any existing content.
	Append

	// Exclusive fails if the entry already exists.
	Exclusive

	// Cache keeps the entry content selectively cached.
	Cache

	// Store prefers storing the content uncompressed.
	Store

	// Compress prefers compressing the content.
	Compress

	// Encrypt prefers encrypting the content.
	Encrypt
)

// Has reports whether all flags in o are set.
func (a Access) Has(o Access) bool {
	return a&o == o
}

func (a Access) String() string {
	return flagString(uint32(a), []string{
		"CREATE_PARENTS", "APPEND", "EXCLUSIVE", "CACHE", "STORE", "COMPRESS", "ENCRYPT",
	})
}

// Sync are the options for synchronizing a federated file system.
type Sync uint32

const (
	// WaitCloseIO waits until all other owners' open streams are closed.
	WaitCloseIO Sync = 1 << iota

	// ForceCloseIO disconnects remaining open streams and reports a warning.
	ForceCloseIO

	// AbortChanges discards any pending changes.
	AbortChanges

	// ClearCache drops any selectively cached entry content.
	ClearCache
)

const (
	// Default commits pending changes, waiting for open streams.
	Default = WaitCloseIO

	// Umount commits pending changes and releases every resource.
	Umount = ForceCloseIO | ClearCache

	// Reset discards pending changes.
	Reset = AbortChanges
)

// Has reports whether all flags in o are set.
func (s Sync) Has(o Sync) bool {
	return s&o == o
}

func (s Sync) String() string {
	return flagString(uint32(s), []string{
		"WAIT_CLOSE_IO", "FORCE_CLOSE_IO", "ABORT_CHANGES", "CLEAR_CACHE",
	})
}

// ValidateManager validates options for a manager wide synchronization.
// Discarding changes is never legal there.
func (s Sync) ValidateManager() error {
	if s.Has(AbortChanges) {
		return fmt.Errorf("(options) %w: %s", ErrAbortAtManager, s)
	}

	return nil
}

func flagString(v uint32, names []string) string {
	var parts []string

	for i, name := range names {
		if v&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}

	if len(parts) == 0 {
		return "NONE"
	}

	return strings.Join(parts, "|")
}
