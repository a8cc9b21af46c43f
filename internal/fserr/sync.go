package fserr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	// PriorityWarning is the priority of recoverable errors.
	PriorityWarning = -1

	// PriorityFailure is the priority of any other error.
	PriorityFailure = 0

	// PriorityBusy is the priority of errors caused by open resources which
	// prevented a synchronization.
	PriorityBusy = 1
)

// Prioritized is implemented by errors which know their severity.
type Prioritized interface {
	Priority() int
}

// WarningError marks an error as recoverable: the content is intact, but some
// resource could not be cleanly released.
type WarningError struct {
	Err error
}

// Warning marks err as recoverable. A nil error yields nil.
func Warning(err error) error {
	if err == nil {
		return nil
	}

	return &WarningError{Err: err}
}

func (e *WarningError) Error() string {
	return "(warning) " + e.Err.Error()
}

func (e *WarningError) Unwrap() error {
	return e.Err
}

func (e *WarningError) Priority() int {
	return PriorityWarning
}

// Priority returns the severity of err. Errors not implementing
// [Prioritized] anywhere in their chain are failures, unless they are busy.
func Priority(err error) int {
	var p Prioritized
	if errors.As(err, &p) {
		return p.Priority()
	}

	if errors.Is(err, ErrBusy) {
		return PriorityBusy
	}

	return PriorityFailure
}

// SyncError is the aggregate of a synchronization which could not be
// completed. The primary error is the one with the highest priority; all
// others are kept in order as suppressed errors.
type SyncError struct {
	primary    error
	suppressed []error
}

// SyncWarningError is the aggregate of a synchronization which completed with
// warnings only.
type SyncWarningError struct {
	SyncError
}

func (e *SyncError) Error() string {
	return "(sync) " + describe(e.primary, e.suppressed)
}

func (e *SyncWarningError) Error() string {
	return "(sync-warning) " + describe(e.primary, e.suppressed)
}

// Primary returns the error selected as the reported cause.
func (e *SyncError) Primary() error {
	return e.primary
}

// Suppressed returns all other collected errors in order.
func (e *SyncError) Suppressed() []error {
	return append([]error(nil), e.suppressed...)
}

// Unwrap returns every collected error, the primary first.
func (e *SyncError) Unwrap() []error {
	return append([]error{e.primary}, e.suppressed...)
}

func (e *SyncError) Priority() int {
	return Priority(e.primary)
}

func (e *SyncWarningError) Priority() int {
	return PriorityWarning
}

// IsWarning reports whether err only carries recoverable problems.
func IsWarning(err error) bool {
	if err == nil {
		return false
	}

	var sw *SyncWarningError
	if errors.As(err, &sw) {
		return true
	}

	return Priority(err) == PriorityWarning
}

func describe(primary error, suppressed []error) string {
	if len(suppressed) == 0 {
		return primary.Error()
	}

	msgs := make([]string, 0, len(suppressed))
	for _, s := range suppressed {
		msgs = append(msgs, s.Error())
	}

	return fmt.Sprintf("%v (suppressed %d: %s)", primary, len(suppressed), strings.Join(msgs, "; "))
}

// Builder collects errors of a tree wide synchronization without aborting it.
type Builder struct {
	errs []error
}

// Add collects err if it is not nil.
func (b *Builder) Add(err error) {
	if err != nil {
		b.errs = append(b.errs, err)
	}
}

// Warn collects err as a warning if it is not nil.
func (b *Builder) Warn(err error) {
	b.Add(Warning(err))
}

// Len returns the number of collected errors.
func (b *Builder) Len() int {
	return len(b.errs)
}

// Err returns nil if nothing was collected, a [*SyncWarningError] if only
// warnings were collected and a [*SyncError] otherwise. The errors are ordered
// by descending priority, ties keep their collection order.
func (b *Builder) Err() error {
	if len(b.errs) == 0 {
		return nil
	}

	ordered := append([]error(nil), b.errs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return Priority(ordered[i]) > Priority(ordered[j])
	})

	agg := SyncError{primary: ordered[0], suppressed: ordered[1:]}
	if Priority(agg.primary) == PriorityWarning {
		return &SyncWarningError{SyncError: agg}
	}

	return &agg
}
