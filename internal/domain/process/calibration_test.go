package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/gazeflow/internal/domain/calibration"
	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/testutil"
)

func newCalibrationStep(t *testing.T, computer calibration.Computer, kind Kind) *Calibration {
	t.Helper()
	cfg, err := Decode(map[string]any{"kind": string(kind)})
	require.NoError(t, err)
	step, err := New(cfg, Env{Stream: "world", Computer: computer, Store: calibration.NewStore(t.TempDir())})
	require.NoError(t, err)
	return step.(*Calibration)
}

func run(t *testing.T, p Process, pkt *packet.Packet, n packet.Notifications) *packet.Packet {
	t.Helper()
	out, err := p.Process(pkt, n).Resolve(time.Second)
	require.NoError(t, err)
	return out
}

func pupilNote(stream string, ts float64) packet.Notification {
	return packet.Notification{
		stream: map[string]any{
			packet.FieldPupil:   packet.Pupil{Timestamp: ts, Confidence: 0.9},
			packet.KeyName:      stream,
			packet.KeyDeviceUID: stream + "-dev",
			packet.KeyTimestamp: ts,
		},
	}
}

func markerPacket(t *testing.T, ts float64, markers ...packet.Marker) *packet.Packet {
	t.Helper()
	pkt := newPacket(t, ts)
	pkt.Set(packet.FieldCircleMarkers, markers)
	return pkt
}

var (
	collect   = packet.Notifications{{packet.NotifyCollectCalibration: true}}
	calculate = packet.Notifications{{packet.NotifyCalculateCalibration: true}}
)

func TestCalibration_CollectThenCalculate(t *testing.T) {
	computer := new(testutil.MockComputer)
	computer.On("Compute", mock.Anything, mock.Anything,
		mock.MatchedBy(func(p []packet.Pupil) bool { return len(p) == 2 }),
		mock.MatchedBy(func(m []packet.Marker) bool { return len(m) == 1 }),
	).Return("", calibration.Failure("test"), nil).Once()

	step := newCalibrationStep(t, computer, KindCalibration)

	run(t, step, newPacket(t, 0), collect)
	assert.Equal(t, StateCollecting, step.State())

	run(t, step, newPacket(t, 1), packet.Notifications{pupilNote("eye0", 1), pupilNote("eye1", 1)})
	run(t, step, markerPacket(t, 2, packet.Marker{Size: 10}), nil)

	out := run(t, step, newPacket(t, 3), calculate)
	computer.AssertExpectations(t)

	calculated, ok := packet.Value[bool](out, packet.FieldCalibrationCalculated)
	assert.True(t, ok && calculated)
}

func TestCalibration_QueuesDrainExactly(t *testing.T) {
	const cycles = 5
	var gotPupils []packet.Pupil
	var gotMarkers []packet.Marker

	computer := new(testutil.MockComputer)
	computer.On("Compute", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotPupils = args.Get(2).([]packet.Pupil)
			gotMarkers = args.Get(3).([]packet.Marker)
		}).
		Return("", calibration.Failure("test"), nil)

	step := newCalibrationStep(t, computer, KindCalibration)
	run(t, step, newPacket(t, 0), collect)

	for i := 1; i <= cycles; i++ {
		ts := float64(i)
		pkt := markerPacket(t, ts, packet.Marker{Timestamp: ts, Size: 20}, packet.Marker{Timestamp: ts, Size: 5})
		run(t, step, pkt, packet.Notifications{pupilNote("eye0", ts)})
	}
	// No marker on this cycle, and a pupil from a stream nobody listens to.
	run(t, step, newPacket(t, 9), packet.Notifications{pupilNote("world2", 9)})

	pupils, markers := step.Queued()
	assert.Equal(t, cycles, pupils)
	assert.Equal(t, cycles, markers)

	run(t, step, newPacket(t, 10), calculate)
	assert.Len(t, gotPupils, cycles)
	assert.Len(t, gotMarkers, cycles)
	for _, m := range gotMarkers {
		assert.Equal(t, 20.0, m.Size, "the primary marker is queued")
	}

	pupils, markers = step.Queued()
	assert.Zero(t, pupils)
	assert.Zero(t, markers)
	assert.Equal(t, StateIdle, step.State())
}

func TestCalibration_IgnoresDataWhileIdle(t *testing.T) {
	step := newCalibrationStep(t, new(testutil.MockComputer), KindCalibration)

	run(t, step, markerPacket(t, 1, packet.Marker{}), packet.Notifications{pupilNote("eye0", 1)})
	pupils, markers := step.Queued()
	assert.Zero(t, pupils)
	assert.Zero(t, markers)

	run(t, step, newPacket(t, 2), collect)
	run(t, step, newPacket(t, 3), packet.Notifications{{packet.NotifyCollectCalibration: false}})
	assert.Equal(t, StateIdle, step.State())
}

func TestCalibration_FailureYieldsNullResult(t *testing.T) {
	computer := new(testutil.MockComputer)
	computer.On("Compute", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", calibration.Failure("not enough data"), nil)

	step := newCalibrationStep(t, computer, KindCalibration)
	out := run(t, step, newPacket(t, 1), calculate)

	calculated, _ := packet.Value[bool](out, packet.FieldCalibrationCalculated)
	assert.True(t, calculated)
	assert.True(t, out.Has(packet.FieldCalibrationResult))
	_, ok := packet.Value[calibration.Result](out, packet.FieldCalibrationResult)
	assert.False(t, ok)
	assert.Contains(t, out.GetBroadcasts(), packet.FieldCalibrationCalculated)

	// The flag is consumed by one cycle.
	next := run(t, step, newPacket(t, 2), nil)
	assert.False(t, next.Has(packet.FieldCalibrationCalculated))
}

func TestCalibration_AppliesBinocularFixAndSaves(t *testing.T) {
	result := calibration.Result{
		Subject: calibration.SubjectPlugin,
		Name:    calibration.NameBinocularMapper,
		Args: calibration.Args{
			Params:     &calibration.Params{X: []float64{1}, Y: []float64{2, 3}, Terms: 13},
			ParamsEye0: &calibration.Params{X: []float64{1}, Y: []float64{4}, Terms: 7},
			ParamsEye1: &calibration.Params{X: []float64{1}, Y: []float64{5}, Terms: 7},
		},
	}
	computer := new(testutil.MockComputer)
	computer.On("Compute", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(calibration.MethodBinocularPolynomial, result, nil)

	cfg, err := Decode(map[string]any{"kind": "calibration", "save": true})
	require.NoError(t, err)
	store := calibration.NewStore(t.TempDir())
	step, err := New(cfg, Env{Computer: computer, Store: store})
	require.NoError(t, err)

	pkt := newPacket(t, 1)
	pkt.Set(packet.FieldFrame, &packet.Frame{Width: 4, Height: 2, Format: packet.ColorGray, Data: make([]byte, 8)})
	out := run(t, step, pkt, calculate)

	got, ok := packet.Value[calibration.Result](out, packet.FieldCalibrationResult)
	require.True(t, ok)
	assert.Equal(t, []float64{-2, -2}, got.Args.Params.Y)
	assert.Equal(t, []float64{-3}, got.Args.ParamsEye0.Y)
	assert.Equal(t, []float64{-4}, got.Args.ParamsEye1.Y)

	rec, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, calibration.MethodBinocularPolynomial, rec.Method)
	assert.Equal(t, [2]int{4, 2}, rec.Context.Resolution)
	assert.Equal(t, got.Args.Params.Y, rec.Result.Args.Params.Y)
}

func TestValidation_ReportsCollectedMarkers(t *testing.T) {
	step := newCalibrationStep(t, new(testutil.MockComputer), KindValidation)
	assert.Equal(t, KindValidation, step.Kind())

	run(t, step, newPacket(t, 0), collect)
	var out *packet.Packet
	for i := 1; i <= 3; i++ {
		out = run(t, step, markerPacket(t, float64(i), packet.Marker{}), nil)
	}

	n, ok := packet.Value[int](out, packet.FieldCollectedMarkers)
	require.True(t, ok)
	assert.Equal(t, 3, n)
	assert.Contains(t, out.GetBroadcasts(), packet.FieldCollectedMarkers)
}
