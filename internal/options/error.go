package options

import "errors"

// ErrAbortAtManager occurs when discarding changes is requested for a manager
// wide synchronization.
var ErrAbortAtManager = errors.New("ABORT_CHANGES is illegal for a manager wide sync")
