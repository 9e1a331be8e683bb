// Package testutil provides shared test doubles for the engine packages.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/gazeflow/internal/domain/device"
	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
)

// MockDevice is a testify mock implementing device.Device.
type MockDevice struct {
	mock.Mock
}

var _ device.Device = (*MockDevice)(nil)

// UID mocks the UID method.
func (m *MockDevice) UID() string {
	return m.Called().String(0)
}

// Kind mocks the Kind method.
func (m *MockDevice) Kind() device.Kind {
	return m.Called().Get(0).(device.Kind)
}

// Start mocks the Start method.
func (m *MockDevice) Start(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// Stop mocks the Stop method.
func (m *MockDevice) Stop() error {
	return m.Called().Error(0)
}

// IsStarted mocks the IsStarted method.
func (m *MockDevice) IsStarted() bool {
	return m.Called().Bool(0)
}

// Timebase mocks the Timebase method.
func (m *MockDevice) Timebase() packet.Timebase {
	return m.Called().Get(0).(packet.Timebase)
}

// Read mocks the Read method.
func (m *MockDevice) Read(ctx context.Context, mode device.Mode) (device.Reading, error) {
	args := m.Called(ctx, mode)
	return args.Get(0).(device.Reading), args.Error(1)
}

// NewMockDevice creates a mock device with identity defaults. Lifecycle and
// read expectations are left to the test.
func NewMockDevice(t *testing.T, uid string) *MockDevice {
	t.Helper()
	m := new(MockDevice)

	m.On("UID").Return(uid).Maybe()
	m.On("Kind").Return(device.KindMock).Maybe()
	m.On("Timebase").Return(packet.TimebaseMonotonic).Maybe()

	return m
}

// Resettable wraps MockDevice with playback reset, as file-backed devices
// provide.
type Resettable struct {
	*MockDevice
}

// Reset mocks the Reset method.
func (r Resettable) Reset() error {
	return r.Called().Error(0)
}
