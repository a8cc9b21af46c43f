package main

import "errors"

var (
	// ErrUsage occurs when a command is called with wrong arguments.
	ErrUsage = errors.New("invalid usage")

	// ErrUnknownCommand occurs when the command is not known.
	ErrUnknownCommand = errors.New("unknown command")
)
