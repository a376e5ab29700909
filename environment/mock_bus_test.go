package environment

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockRegisterBus is a mock implementation of hpa.RegisterBus using testify/mock
type MockRegisterBus struct {
	mock.Mock
}

func (m *MockRegisterBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockRegisterBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockRegisterBus) ReadRegister(ctx context.Context, address byte, register byte, buffer []byte) error {
	args := m.Called(ctx, address, register, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockRegisterBus) WriteRegister(ctx context.Context, address byte, register byte, data ...byte) error {
	args := m.Called(ctx, address, register, data)
	return args.Error(0)
}

func (m *MockRegisterBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockADC struct {
	mock.Mock
}

func (m *MockADC) ReadADC(ctx context.Context, channel int) (uint16, error) {
	args := m.Called(ctx, channel)
	return args.Get(0).(uint16), args.Error(1)
}
