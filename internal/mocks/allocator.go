package mocks

import (
	"github.com/brettbedarf/simfs"
	"github.com/stretchr/testify/mock"
)

// MockBlockAllocator implements simfs.BlockAllocator for testing across packages
type MockBlockAllocator struct {
	mock.Mock
}

func (m *MockBlockAllocator) Format() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockBlockAllocator) Allocate() (simfs.BlockIndex, error) {
	args := m.Called()

	// Handle function return types (for sequenced allocations)
	if fn, ok := args.Get(0).(func() simfs.BlockIndex); ok {
		return fn(), args.Error(1)
	}

	if args.Get(0) == nil {
		return 0, args.Error(1)
	}
	return args.Get(0).(simfs.BlockIndex), args.Error(1)
}

func (m *MockBlockAllocator) Free(idx simfs.BlockIndex) error {
	args := m.Called(idx)
	return args.Error(0)
}

func (m *MockBlockAllocator) Release(idxs ...simfs.BlockIndex) error {
	args := m.Called(idxs)
	return args.Error(0)
}

func (m *MockBlockAllocator) Claim(idxs ...simfs.BlockIndex) error {
	args := m.Called(idxs)
	return args.Error(0)
}

var _ simfs.BlockAllocator = (*MockBlockAllocator)(nil)
