package tardriver

import "errors"

// ErrWrongKey occurs when an archive cannot be decrypted with a key.
var ErrWrongKey = errors.New("wrong key")
