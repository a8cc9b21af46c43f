package pool

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"golang.org/x/sys/unix"
)

// mockStatfsProvider is a mock type for the statfsProvider type.
type mockStatfsProvider struct {
	mock.Mock
}

// newMockStatfsProvider creates a new instance of mockStatfsProvider. It also
// registers a cleanup function to assert the mocks expectations.
func newMockStatfsProvider(t *testing.T) *mockStatfsProvider {
	t.Helper()

	m := &mockStatfsProvider{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

// Statfs provides a mock function with given fields: path, buf.
func (m *mockStatfsProvider) Statfs(path string, buf *unix.Statfs_t) error {
	args := m.Called(path, buf)

	return args.Error(0)
}

// expectFree sets up an expectation reporting free bytes for path.
func (m *mockStatfsProvider) expectFree(path string, free uint64) *mock.Call {
	return m.On("Statfs", path, mock.AnythingOfType("*unix.Statfs_t")).
		Run(func(args mock.Arguments) {
			buf := args.Get(1).(*unix.Statfs_t) //nolint:forcetypeassert
			buf.Bsize = 1
			buf.Bavail = free
		}).
		Return(nil)
}
