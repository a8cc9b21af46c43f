package multiplex

import "errors"

var (
	// ErrClosed occurs when the output service has already been closed.
	ErrClosed = errors.New("output service is closed")

	// ErrStreamClosed occurs when writing to a closed entry stream.
	ErrStreamClosed = errors.New("entry stream is closed")
)
