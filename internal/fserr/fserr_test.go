package fserr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBusyError_Success tests matching and rendering of busy errors.
func TestBusyError_Success(t *testing.T) {
	t.Parallel()

	err := error(&BusyError{Name: "b.txt", InProgress: "a.txt"})

	require.ErrorIs(t, err, ErrBusy)
	assert.Contains(t, err.Error(), "a.txt")
	assert.Equal(t, PriorityBusy, Priority(err))
}

// TestSuppress_Success tests attaching secondary errors.
func TestSuppress_Success(t *testing.T) {
	t.Parallel()

	primary := errors.New("replay failed")
	release := errors.New("remove temp failed")
	closing := errors.New("close failed")

	assert.Nil(t, Suppress(nil, nil))
	assert.Equal(t, primary, Suppress(primary, nil))
	assert.Equal(t, release, Suppress(nil, release))

	err := Suppress(Suppress(primary, release), closing)

	require.ErrorIs(t, err, primary)
	assert.NotErrorIs(t, err, release)

	var se *SuppressedError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []error{release, closing}, se.Suppressed())
	assert.Contains(t, err.Error(), "suppressed 2")
}

// TestBuilder_Success_Empty tests that nothing collected yields no error.
func TestBuilder_Success_Empty(t *testing.T) {
	t.Parallel()

	var b Builder
	b.Add(nil)
	b.Warn(nil)

	require.NoError(t, b.Err())
	assert.Equal(t, 0, b.Len())
}

// TestBuilder_Success_WarningsOnly tests the warning-only aggregate.
func TestBuilder_Success_WarningsOnly(t *testing.T) {
	t.Parallel()

	w1 := errors.New("forced close of 1 stream")
	w2 := errors.New("forced close of 2 streams")

	var b Builder
	b.Warn(w1)
	b.Warn(w2)

	err := b.Err()
	require.Error(t, err)
	assert.True(t, IsWarning(err))

	var sw *SyncWarningError
	require.ErrorAs(t, err, &sw)
	require.ErrorIs(t, sw.Primary(), w1)
	require.Len(t, sw.Suppressed(), 1)
	require.ErrorIs(t, err, w2)
}

// TestBuilder_Success_Ordering tests that failures sort ahead of warnings.
func TestBuilder_Success_Ordering(t *testing.T) {
	t.Parallel()

	warning := errors.New("warning")
	failure := errors.New("storage write failed")
	busy := &BusyError{Name: "x", InProgress: "y"}

	var b Builder
	b.Warn(warning)
	b.Add(failure)
	b.Add(busy)

	err := b.Err()
	require.Error(t, err)
	assert.False(t, IsWarning(err))

	var se *SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, busy, se.Primary())
	require.Len(t, se.Suppressed(), 2)
	assert.Equal(t, failure, se.Suppressed()[0])
	require.ErrorIs(t, se.Suppressed()[1], warning)

	require.ErrorIs(t, err, failure)
	require.ErrorIs(t, err, ErrBusy)
}
