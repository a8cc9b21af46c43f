package manager

import "errors"

// ErrRootMount occurs when a mount point does not descend from the root of
// the manager.
var ErrRootMount = errors.New("mount point is not below the root")
