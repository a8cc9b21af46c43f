package archive

import "errors"

var (
	// ErrNoArchive occurs when reading from an archive which does not exist.
	ErrNoArchive = errors.New("archive does not exist")

	// ErrUnmounted occurs when the output of an archive is requested while
	// it is not mounted.
	ErrUnmounted = errors.New("archive is not mounted")
)
