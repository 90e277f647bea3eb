package wallpaper

import "github.com/stretchr/testify/mock"

// MockSetter is a mock implementation of the Setter interface.
type MockSetter struct {
	mock.Mock
}

func (m *MockSetter) setDesktop(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockSetter) setLockScreen(path string) error {
	args := m.Called(path)
	return args.Error(0)
}
