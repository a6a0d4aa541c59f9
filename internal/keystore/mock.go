package keystore

import (
	"crypto"

	"github.com/stretchr/testify/mock"
)

// MockKeystore is a testify mock implementation of Keystore, in the same
// shape as music/mocks/mock_updater.go mocks music.Updater: one method per
// interface method, each calling m.Called(...).
type MockKeystore struct {
	mock.Mock
}

var _ Keystore = (*MockKeystore)(nil)

func (m *MockKeystore) Initialize() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockKeystore) Finalize() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockKeystore) Generate(repository string, algorithm uint8, bits int) (string, error) {
	args := m.Called(repository, algorithm, bits)
	return args.String(0), args.Error(1)
}

func (m *MockKeystore) FindByLocator(locator string) (Handle, error) {
	args := m.Called(locator)
	var h Handle
	if v := args.Get(0); v != nil {
		h = v.(Handle)
	}
	return h, args.Error(1)
}

func (m *MockKeystore) Sign(handle Handle, data []byte, opts crypto.SignerOpts) ([]byte, error) {
	args := m.Called(handle, data, opts)
	var sig []byte
	if v := args.Get(0); v != nil {
		sig = v.([]byte)
	}
	return sig, args.Error(1)
}

func (m *MockKeystore) Remove(handle Handle) error {
	args := m.Called(handle)
	return args.Error(0)
}

func (m *MockKeystore) RandomBytes(n int) ([]byte, error) {
	args := m.Called(n)
	var b []byte
	if v := args.Get(0); v != nil {
		b = v.([]byte)
	}
	return b, args.Error(1)
}
