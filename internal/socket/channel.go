package socket

import (
	"io"

	"github.com/desertwitch/arcvfs/internal/entry"
)

// ChannelInput is an [InputSocket] over a target entry whose content is
// provided by a channel opener, such as a temporary buffer.
type ChannelInput struct {
	target entry.Entry
	open   func() (Channel, error)
}

// NewChannelInput returns a pointer to a new [ChannelInput].
func NewChannelInput(target entry.Entry, open func() (Channel, error)) *ChannelInput {
	return &ChannelInput{
		target: target,
		open:   open,
	}
}

func (s *ChannelInput) Target() (entry.Entry, error) {
	return s.target, nil
}

func (s *ChannelInput) Stream(_ OutputSocket) (io.ReadCloser, error) {
	return s.open()
}

func (s *ChannelInput) Channel(_ OutputSocket) (Channel, error) {
	return s.open()
}

// SectionChannel is a [Channel] over a section of an [io.ReaderAt]. Closing
// it calls the optional close function once.
type SectionChannel struct {
	*io.SectionReader
	closeFunc func() error
	closed    bool
}

// NewSectionChannel returns a pointer to a new [SectionChannel] reading n
// bytes from r starting at off.
func NewSectionChannel(r io.ReaderAt, off, n int64, closeFunc func() error) *SectionChannel {
	return &SectionChannel{
		SectionReader: io.NewSectionReader(r, off, n),
		closeFunc:     closeFunc,
	}
}

func (c *SectionChannel) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	if c.closeFunc != nil {
		return c.closeFunc()
	}

	return nil
}
