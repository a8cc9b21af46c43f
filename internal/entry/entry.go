// Package entry defines the uniform metadata capability of everything that can
// be addressed inside a federated file system, regardless of whether it lives
// on a physical disk or inside a (nested) archive.
package entry

import (
	"path"
	"strings"
	"time"
)

// Unknown is the sentinel value for sizes and times which are not known (yet).
const Unknown int64 = -1

// Separator is the separator of hierarchical entry names.
const Separator = "/"

// Type is the type of an [Entry].
type Type int

const (
	// File is a regular file with content.
	File Type = iota

	// Directory is a directory holding members.
	Directory

	// Special is anything which is neither a file nor a directory.
	Special
)

func (t Type) String() string {
	switch t {
	case File:
		return "file"
	case Directory:
		return "directory"
	default:
		return "special"
	}
}

// SizeKind selects which size of an [Entry] is requested.
type SizeKind int

const (
	// DataSize is the size of the (decompressed) content.
	DataSize SizeKind = iota

	// StorageSize is the size the content occupies in its container.
	StorageSize
)

// Access selects an access kind for times and permissions.
type Access int

const (
	Create Access = iota
	Read
	Write
	Execute
)

func (a Access) String() string {
	switch a {
	case Create:
		return "create"
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "execute"
	}
}

// Entity selects the subject of a permission check.
type Entity int

const (
	User Entity = iota
	Group
	Other
)

// Entry is the metadata record of an addressable entry. Times and sizes may
// return [Unknown]. Permitted returns nil if the format cannot represent the
// requested permission.
type Entry interface {
	// Name returns the normalized hierarchical name relative to its file
	// system. The root directory has the empty name.
	Name() string
	Type() Type
	Size(kind SizeKind) int64
	Time(access Access) int64
	Permitted(access Access, entity Entity) *bool
}

// Mutable is an [Entry] whose metadata may be updated while it is written.
type Mutable interface {
	Entry
	SetSize(kind SizeKind, size int64)
	SetTime(access Access, millis int64)
	SetPermitted(access Access, entity Entity, value *bool)
}

// Members is implemented by directory entries which know their members.
type Members interface {
	Members() []string
}

// Millis converts a time into the milliseconds used by [Entry.Time].
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return Unknown
	}

	return t.UnixMilli()
}

// FromMillis converts milliseconds from [Entry.Time] back into a time. The
// zero time is returned for [Unknown].
func FromMillis(millis int64) time.Time {
	if millis == Unknown {
		return time.Time{}
	}

	return time.UnixMilli(millis)
}

// Bool returns a pointer to b for use with [Mutable.SetPermitted].
func Bool(b bool) *bool {
	return &b
}

// Clean normalizes an entry name: separators are collapsed, dot elements
// resolved and leading and trailing separators removed. The root is "".
func Clean(name string) string {
	if name == "" || name == Separator {
		return ""
	}

	cleaned := path.Clean(Separator + name)
	if cleaned == Separator {
		return ""
	}

	return strings.TrimPrefix(cleaned, Separator)
}

// Join joins entry names and cleans the result.
func Join(elem ...string) string {
	return Clean(path.Join(elem...))
}

// Parent returns the name of the parent directory of name. The parent of a
// top level name is the root "". The root has no parent, ok is then false.
func Parent(name string) (parent string, ok bool) {
	if name == "" {
		return "", false
	}

	i := strings.LastIndex(name, Separator)
	if i < 0 {
		return "", true
	}

	return name[:i], true
}

// Base returns the last element of name.
func Base(name string) string {
	i := strings.LastIndex(name, Separator)

	return name[i+1:]
}
