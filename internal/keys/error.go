package keys

import "errors"

var (
	// ErrNoKey occurs when a provider has no key to hand out.
	ErrNoKey = errors.New("no key available")

	// ErrKeyRejected occurs when no further key can be provided after a key
	// has been rejected.
	ErrKeyRejected = errors.New("key rejected")
)
