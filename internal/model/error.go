package model

import "errors"

var (
	// ErrNoPoint occurs when a model is created without a mount point.
	ErrNoPoint = errors.New("model needs a mount point")

	// ErrParentMismatch occurs when the parent model does not belong to the
	// parent mount point.
	ErrParentMismatch = errors.New("parent model does not match parent mount point")

	// ErrRootTouched occurs when the root model is set touched.
	ErrRootTouched = errors.New("root file system cannot be touched")
)
