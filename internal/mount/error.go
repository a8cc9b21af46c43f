package mount

import "errors"

var (
	// ErrNoParent occurs when a nested mount point is created without parent.
	ErrNoParent = errors.New("nested mount point needs a parent")

	// ErrEmptyName occurs when a nested mount point has no entry name.
	ErrEmptyName = errors.New("nested mount point needs an entry name")

	// ErrEmptyScheme occurs when a nested mount point has no scheme.
	ErrEmptyScheme = errors.New("nested mount point needs a scheme")
)
