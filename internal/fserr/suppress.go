package fserr

// SuppressedError carries a primary error plus secondary errors which
// occurred while releasing resources after the primary error.
type SuppressedError struct {
	Err        error
	suppressed []error
}

// Suppress attaches secondary to primary without replacing it. If primary is
// nil, secondary becomes the primary error.
func Suppress(primary, secondary error) error {
	switch {
	case secondary == nil:
		return primary
	case primary == nil:
		return secondary
	}

	if se, ok := primary.(*SuppressedError); ok {
		return &SuppressedError{Err: se.Err, suppressed: append(se.Suppressed(), secondary)}
	}

	return &SuppressedError{Err: primary, suppressed: []error{secondary}}
}

func (e *SuppressedError) Error() string {
	return describe(e.Err, e.suppressed)
}

// Unwrap returns the primary error only, so that matching reflects the cause.
func (e *SuppressedError) Unwrap() error {
	return e.Err
}

// Suppressed returns the secondary errors in order.
func (e *SuppressedError) Suppressed() []error {
	return append([]error(nil), e.suppressed...)
}
