package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/gazeflow/internal/domain/calibration"
	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
)

// MockComputer is a testify mock implementing calibration.Computer.
type MockComputer struct {
	mock.Mock
}

var _ calibration.Computer = (*MockComputer)(nil)

// Compute mocks the Compute method.
func (m *MockComputer) Compute(ctx context.Context, cctx calibration.Context, pupils []packet.Pupil, markers []packet.Marker) (string, calibration.Result, error) {
	args := m.Called(ctx, cctx, pupils, markers)
	return args.String(0), args.Get(1).(calibration.Result), args.Error(2)
}
