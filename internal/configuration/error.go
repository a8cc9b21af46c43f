package configuration

import "errors"

var (
	// ErrInvalidValue occurs when a configuration key holds a value which
	// cannot be parsed or is out of range.
	ErrInvalidValue = errors.New("invalid configuration value")

	// ErrNoProvider occurs when no provider reads the configuration file.
	ErrNoProvider = errors.New("no provider for configuration file")
)
