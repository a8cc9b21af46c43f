package pool

import "errors"

var (
	// ErrClosed occurs when writing to a closed buffer.
	ErrClosed = errors.New("buffer is closed")

	// ErrNotClosed occurs when reading a buffer which is still written.
	ErrNotClosed = errors.New("buffer is not closed")

	// ErrReleased occurs on any access to a released buffer.
	ErrReleased = errors.New("buffer is released")

	// ErrHashMismatch occurs when replayed content does not match the digest
	// computed while the buffer was written.
	ErrHashMismatch = errors.New("hash mismatch")

	// ErrInsufficientSpace occurs when spilling a buffer would leave less than
	// the configured minimum free space.
	ErrInsufficientSpace = errors.New("insufficient free space for temporary file")
)
