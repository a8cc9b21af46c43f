package socket

import (
	"fmt"
	"io"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/fserr"
)

// Copy connects in and out as peers and copies the content of the input
// target to the output target. It returns the number of bytes copied.
//
// Both targets are resolved before any stream is opened, so a socket asking
// its peer for its target never calls back into the peer's controller.
func Copy(in InputSocket, out OutputSocket) (n int64, err error) {
	inPeer, err := ResolveInput(in)
	if err != nil {
		return 0, fmt.Errorf("(socket-copy) failed to resolve input: %w", err)
	}

	outPeer, err := ResolveOutput(out)
	if err != nil {
		return 0, fmt.Errorf("(socket-copy) failed to resolve output: %w", err)
	}

	r, err := in.Stream(outPeer)
	if err != nil {
		return 0, fmt.Errorf("(socket-copy) failed to open input: %w", err)
	}
	defer func() {
		err = fserr.Suppress(err, r.Close())
	}()

	w, err := out.Stream(inPeer)
	if err != nil {
		return 0, fmt.Errorf("(socket-copy) failed to open output: %w", err)
	}

	n, err = io.Copy(w, r)
	if err != nil {
		if a, ok := w.(Aborter); ok {
			return n, fserr.Suppress(fmt.Errorf("(socket-copy) failed to copy: %w", err), a.Abort())
		}

		return n, fserr.Suppress(fmt.Errorf("(socket-copy) failed to copy: %w", err), w.Close())
	}

	if err := w.Close(); err != nil {
		return n, fmt.Errorf("(socket-copy) failed to close output: %w", err)
	}

	return n, nil
}

// ResolveInput returns s bound to its current target. Nil yields nil.
func ResolveInput(s InputSocket) (InputSocket, error) {
	if s == nil {
		return nil, nil //nolint:nilnil
	}
	if r, ok := s.(*resolvedInput); ok {
		return r, nil
	}

	t, err := s.Target()
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return &resolvedInput{InputSocket: s, target: t}, nil
}

// ResolveOutput returns s bound to its current target. Nil yields nil.
func ResolveOutput(s OutputSocket) (OutputSocket, error) {
	if s == nil {
		return nil, nil //nolint:nilnil
	}
	if r, ok := s.(*resolvedOutput); ok {
		return r, nil
	}

	t, err := s.Target()
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return &resolvedOutput{OutputSocket: s, target: t}, nil
}

// resolvedInput is a peer input socket with a fixed target.
type resolvedInput struct {
	InputSocket
	target entry.Entry
}

func (s *resolvedInput) Target() (entry.Entry, error) {
	return s.target, nil
}

// resolvedOutput is a peer output socket with a fixed target.
type resolvedOutput struct {
	OutputSocket
	target entry.Entry
}

func (s *resolvedOutput) Target() (entry.Entry, error) {
	return s.target, nil
}
