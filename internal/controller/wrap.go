package controller

import (
	"io"

	"github.com/desertwitch/arcvfs/internal/entry"
	"github.com/desertwitch/arcvfs/internal/socket"
)

// Around runs op on behalf of a socket method, e.g. under a lock or with a
// retry.
type Around func(op func() error) error

type inputSocket struct {
	in     socket.InputSocket
	around Around
}

// WrapInput returns an input socket which runs every method of in through
// around.
func WrapInput(in socket.InputSocket, around Around) socket.InputSocket {
	return &inputSocket{in: in, around: around}
}

func (s *inputSocket) Target() (e entry.Entry, err error) {
	err = s.around(func() (err error) {
		e, err = s.in.Target()

		return err
	})

	return e, err
}

func (s *inputSocket) Stream(peer socket.OutputSocket) (r io.ReadCloser, err error) {
	err = s.around(func() (err error) {
		r, err = s.in.Stream(peer)

		return err
	})

	return r, err
}

func (s *inputSocket) Channel(peer socket.OutputSocket) (ch socket.Channel, err error) {
	err = s.around(func() (err error) {
		ch, err = s.in.Channel(peer)

		return err
	})

	return ch, err
}

type outputSocket struct {
	out    socket.OutputSocket
	around Around
}

// WrapOutput returns an output socket which runs every method of out through
// around.
func WrapOutput(out socket.OutputSocket, around Around) socket.OutputSocket {
	return &outputSocket{out: out, around: around}
}

func (s *outputSocket) Target() (e entry.Entry, err error) {
	err = s.around(func() (err error) {
		e, err = s.out.Target()

		return err
	})

	return e, err
}

func (s *outputSocket) Stream(peer socket.InputSocket) (w io.WriteCloser, err error) {
	err = s.around(func() (err error) {
		w, err = s.out.Stream(peer)

		return err
	})

	return w, err
}
