package controller

import "errors"

var (
	// ErrForcedClose is reported as a warning when a synchronization
	// disconnected open streams.
	ErrForcedClose = errors.New("open streams have been forcibly closed")

	// ErrStreamClosed occurs on I/O on a stream which has been closed.
	ErrStreamClosed = errors.New("stream closed")

	// ErrUnsupported occurs when an operation is not supported by a file
	// system.
	ErrUnsupported = errors.New("operation not supported")
)
