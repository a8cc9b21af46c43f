package driver

import "errors"

var (
	// ErrInvalidSuffix occurs when registering a suffix without leading dot.
	ErrInvalidSuffix = errors.New("invalid suffix")

	// ErrDuplicateSuffix occurs when a suffix is registered for two drivers.
	ErrDuplicateSuffix = errors.New("suffix already registered")

	// ErrUnknownScheme occurs when no driver is registered for a scheme.
	ErrUnknownScheme = errors.New("no driver for scheme")

	// ErrNotArchive occurs when the content of an entry is not an archive of
	// the expected format.
	ErrNotArchive = errors.New("not an archive of the expected format")

	// ErrNoChannel occurs when a driver cannot provide random access to the
	// content of an entry. Callers may buffer the stream instead.
	ErrNoChannel = errors.New("random access not supported")
)
