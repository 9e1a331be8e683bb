package process

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/gazeflow/internal/domain/calibration"
	"github.com/GriffinCanCode/gazeflow/internal/domain/device"
	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/recording"
	"github.com/GriffinCanCode/gazeflow/internal/testutil"
)

const synthSize = 192

func framePacket(t *testing.T, ts float64, frame *packet.Frame) *packet.Packet {
	t.Helper()
	pkt := newPacket(t, ts)
	pkt.Set(packet.FieldFrame, frame)
	pkt.Set(packet.FieldColorFormat, frame.Format)
	return pkt
}

func TestPupilDetector(t *testing.T) {
	det := NewPupilDetector(PupilDetectorConfig{Common: Common{Block: boolPtr(true)}, EyeID: 1, MinArea: 12}, Env{})

	frame := device.SynthFrame(device.PatternPupil, synthSize, synthSize, 0, packet.ColorGray)
	out := run(t, det, framePacket(t, 4.5, frame), nil)

	pupil, ok := packet.Value[packet.Pupil](out, packet.FieldPupil)
	require.True(t, ok)
	assert.Equal(t, 1, pupil.EyeID)
	assert.Equal(t, 4.5, pupil.Timestamp)
	assert.Greater(t, pupil.Confidence, 0.8)
	// The synthetic pupil starts to the right of center.
	assert.InDelta(t, 124.8, pupil.Ellipse.Center[0], 1)
	assert.InDelta(t, 96, pupil.Ellipse.Center[1], 1)
	assert.InDelta(t, 0.5, pupil.NormPos[1], 0.01)
	assert.InDelta(t, 2*0.08*synthSize, pupil.Diameter, 3)
	assert.Equal(t, []string{packet.FieldPupil}, out.Broadcasts())
}

func TestPupilDetector_NullDetection(t *testing.T) {
	det := NewPupilDetector(PupilDetectorConfig{Common: Common{Block: boolPtr(true)}}, Env{})

	out := run(t, det, newPacket(t, 1), nil)
	assert.True(t, out.Has(packet.FieldPupil))
	_, ok := packet.Value[packet.Pupil](out, packet.FieldPupil)
	assert.False(t, ok)

	blank := device.SynthFrame(device.PatternBlank, 32, 32, 0, packet.ColorGray)
	out = run(t, det, framePacket(t, 2, blank), nil)
	require.True(t, out.Has(packet.FieldPupil))
	v, ok := out.Get(packet.FieldPupil)
	require.True(t, ok)
	assert.Nil(t, v, "no pupil in the frame is a null detection")
}

type gatedFinder struct {
	release chan struct{}
}

func (f gatedFinder) Find(*packet.Frame) (packet.Pupil, bool) {
	<-f.release
	return packet.Pupil{Confidence: 0.9}, true
}

func TestPupilDetector_NonBlockingDefersPupil(t *testing.T) {
	finder := gatedFinder{release: make(chan struct{})}
	det := NewPupilDetectorWithFinder(PupilDetectorConfig{EyeID: 1}, Env{Stream: "eye1", Workers: 1, Queue: 4}, finder)
	require.NoError(t, det.Start(context.Background()))
	defer det.Stop()

	frame := device.SynthFrame(device.PatternPupil, 32, 32, 0, packet.ColorGray)
	out := run(t, det, framePacket(t, 3, frame), nil)
	assert.True(t, out.Has(packet.FieldPupil))
	assert.Contains(t, out.Broadcasts(), packet.FieldPupil)

	_, ok := out.GetTimeout(packet.FieldPupil, 10*time.Millisecond)
	assert.False(t, ok, "the pupil is still being detected")

	close(finder.release)
	pupil, ok := packet.Value[packet.Pupil](out, packet.FieldPupil)
	require.True(t, ok)
	assert.Equal(t, 3.0, pupil.Timestamp)
	assert.Equal(t, 1, pupil.EyeID)
	assert.Equal(t, 0.9, pupil.Confidence)
}

func TestCircleDetector_ColorFormats(t *testing.T) {
	for _, format := range []packet.ColorFormat{packet.ColorGray, packet.ColorBGR24, packet.ColorBayerRGGB8} {
		t.Run(string(format), func(t *testing.T) {
			det := NewCircleDetector(CircleDetectorConfig{Common: Common{Block: boolPtr(true)}, MinRadius: 3}, Env{})
			frame := device.SynthFrame(device.PatternMarker, synthSize, synthSize, 0, format)

			out := run(t, det, framePacket(t, 7, frame), nil)
			markers, ok := packet.Value[[]packet.Marker](out, packet.FieldCircleMarkers)
			require.True(t, ok)
			require.Len(t, markers, 1)
			assert.Equal(t, 7.0, markers[0].Timestamp)
			assert.InDelta(t, 124.8, markers[0].Location[0], 1.5)
			assert.InDelta(t, 96, markers[0].Location[1], 1.5)
			assert.Contains(t, out.Broadcasts(), packet.FieldCircleMarkers)
		})
	}
}

func TestCircleDetector_NoMarkers(t *testing.T) {
	det := NewCircleDetector(CircleDetectorConfig{Common: Common{Block: boolPtr(true)}}, Env{})

	// A filled disk is not a marker.
	pupil := device.SynthFrame(device.PatternPupil, synthSize, synthSize, 0, packet.ColorGray)
	out := run(t, det, framePacket(t, 1, pupil), nil)
	markers, ok := packet.Value[[]packet.Marker](out, packet.FieldCircleMarkers)
	require.True(t, ok)
	assert.Empty(t, markers)

	out = run(t, det, newPacket(t, 2), nil)
	markers, ok = packet.Value[[]packet.Marker](out, packet.FieldCircleMarkers)
	require.True(t, ok)
	assert.Empty(t, markers)
}

func TestCircleDetector_BatchRun(t *testing.T) {
	dir := t.TempDir()
	w, err := recording.NewFrameWriter(dir, "world", recording.FrameWriterOptions{})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		pattern := device.PatternMarker
		if i == 1 {
			pattern = device.PatternBlank
		}
		require.NoError(t, w.Write(device.SynthFrame(pattern, synthSize, synthSize, i, packet.ColorGray), float64(i), float64(i)))
	}
	require.NoError(t, w.Close())

	reader, err := recording.Open(dir, "world")
	require.NoError(t, err)
	defer reader.Close()

	det := NewCircleDetector(CircleDetectorConfig{MinRadius: 3}, Env{})
	frames, err := det.BatchRun(context.Background(), reader)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Len(t, frames[0].Markers, 1)
	assert.Empty(t, frames[1].Markers)
	assert.Equal(t, 2.0, frames[2].Timestamp)

	ds := NewMarkerDataset(frames)
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, []int{0, 2}, ds.FrameIndex)

	path, err := ds.Save(dir, "markers")
	require.NoError(t, err)
	rows, err := recording.ReadRecords(path)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

type fixedMapper struct{}

func (fixedMapper) Map(eye0, eye1 *packet.Pupil) (packet.GazePoint, bool) {
	return packet.GazePoint{
		Timestamp:  eye0.Timestamp,
		NormPos:    [2]float64{eye0.NormPos[0], eye1.NormPos[1]},
		Confidence: 1,
	}, true
}

func TestGazeMapper(t *testing.T) {
	g, err := NewGazeMapper(GazeMapperConfig{Common: Common{Block: boolPtr(true)}, Left: "eye1", Right: "eye0"}, Env{})
	require.NoError(t, err)
	assert.Equal(t, []string{packet.FieldPupil}, g.ListenFor())

	both := packet.Notification{
		"eye0": map[string]any{packet.FieldPupil: packet.Pupil{Timestamp: 1, NormPos: [2]float64{0.1, 0.2}}},
		"eye1": map[string]any{packet.FieldPupil: map[string]any{"timestamp": 1.0, "norm_pos": []any{0.3, 0.4}}},
	}
	onlyRight := packet.Notification{
		"eye0": map[string]any{packet.FieldPupil: packet.Pupil{Timestamp: 2}},
	}

	// Without a mapping nothing is produced.
	out := run(t, g, newPacket(t, 1), packet.Notifications{both})
	points, _ := packet.Value[[]packet.GazePoint](out, packet.FieldGazePoints)
	assert.Empty(t, points)

	g.SetMapper(fixedMapper{})
	out = run(t, g, newPacket(t, 2), packet.Notifications{both, onlyRight})
	points, ok := packet.Value[[]packet.GazePoint](out, packet.FieldGazePoints)
	require.True(t, ok)
	require.Len(t, points, 1)
	assert.Equal(t, [2]float64{0.1, 0.4}, points[0].NormPos)
	assert.Contains(t, out.Broadcasts(), packet.FieldGazePoints)

	// A null calibration result disables mapping.
	pkt := newPacket(t, 3)
	pkt.Set(packet.FieldCalibrationCalculated, true)
	pkt.Set(packet.FieldCalibrationResult, nil)
	run(t, g, pkt, nil)
	out = run(t, g, newPacket(t, 4), packet.Notifications{both})
	points, _ = packet.Value[[]packet.GazePoint](out, packet.FieldGazePoints)
	assert.Empty(t, points)
}

func TestGazeMapper_CalibrationAppliesToItsOwnCycle(t *testing.T) {
	g, err := NewGazeMapper(GazeMapperConfig{Common: Common{Block: boolPtr(true)}, Left: "eye1", Right: "eye0"}, Env{})
	require.NoError(t, err)

	both := packet.Notification{
		"eye0": map[string]any{packet.FieldPupil: packet.Pupil{Timestamp: 5, Confidence: 1}},
		"eye1": map[string]any{packet.FieldPupil: packet.Pupil{Timestamp: 5, Confidence: 1}},
	}
	pkt := newPacket(t, 1)
	pkt.Set(packet.FieldCalibrationCalculated, true)
	pkt.Set(packet.FieldCalibrationResult, calibration.Result{
		Subject: calibration.SubjectPlugin,
		Name:    calibration.NameMonocularMapper,
		Args: calibration.Args{
			ParamsEye0: &calibration.Params{X: []float64{1, 0, 0, 0, 0, 0, 0}, Y: []float64{0, 1, 0, 0, 0, 0, 0}, Terms: 7},
		},
	})

	out := run(t, g, pkt, packet.Notifications{both})
	points, ok := packet.Value[[]packet.GazePoint](out, packet.FieldGazePoints)
	require.True(t, ok)
	require.Len(t, points, 1, "pupils of the delivering cycle use the new calibration")
	assert.Equal(t, 5.0, points[0].Timestamp)
}

func TestGazeMapper_SavedCalibration(t *testing.T) {
	_, err := NewGazeMapper(GazeMapperConfig{Calibration: "latest"}, Env{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	store := calibration.NewStore(t.TempDir())
	_, err = NewGazeMapper(GazeMapperConfig{Calibration: "latest"}, Env{Store: store})
	assert.ErrorIs(t, err, calibration.ErrNoRecords)

	result := calibration.Result{
		Subject: calibration.SubjectPlugin,
		Name:    calibration.NameMonocularMapper,
		Args: calibration.Args{
			ParamsEye0: &calibration.Params{X: []float64{1, 0, 0, 0, 0, 0, 0}, Y: []float64{0, 1, 0, 0, 0, 0, 0}, Terms: 7},
		},
	}
	_, err = store.Save(calibration.MethodMonocularPolynomial, calibration.Context{}, result, 7, 7)
	require.NoError(t, err)

	g, err := NewGazeMapper(GazeMapperConfig{Calibration: "latest"}, Env{Store: store})
	require.NoError(t, err)
	assert.NotNil(t, g.mapper)
}

type captureViewer struct {
	mu     sync.Mutex
	frames []*packet.Frame
}

func (v *captureViewer) Show(_, _ string, f *packet.Frame) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.frames = append(v.frames, f)
}

func TestVideoDisplay(t *testing.T) {
	viewer := &captureViewer{}
	d := NewVideoDisplay(VideoDisplayConfig{}, Env{Stream: "world", Viewer: viewer})

	frame := device.SynthFrame(device.PatternBlank, 64, 64, 0, packet.ColorBGR24)
	pkt := framePacket(t, 1, frame)
	pkt.Set(packet.FieldGazePoints, []packet.GazePoint{{NormPos: [2]float64{0.5, 0.5}}})
	out := run(t, d, pkt, nil)

	require.Len(t, viewer.frames, 1)
	shown := viewer.frames[0]
	assert.Equal(t, packet.ColorGray, shown.Format)
	assert.Equal(t, byte(0), shown.At(32, 32), "gaze cross drawn")
	assert.Empty(t, out.Broadcasts())
}

func TestVideoRecorder(t *testing.T) {
	dir := t.TempDir()
	r := NewVideoRecorder(VideoRecorderConfig{Folder: dir, SourceTimestamps: true}, Env{Stream: "eye0"})
	require.NoError(t, r.Start(context.Background()))

	for i, ts := range []float64{1, 2, 2, 3} {
		pkt := framePacket(t, ts, device.SynthFrame(device.PatternPupil, 32, 32, i, packet.ColorGray))
		pkt.SourceTimestamp = 100 + ts
		run(t, r, pkt, nil)
	}
	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())

	ts, err := recording.LoadTimestamps(recording.TimestampsPath(dir, "eye0"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, ts)

	src, err := recording.LoadTimestamps(recording.SourceTimestampsPath(dir, "eye0"))
	require.NoError(t, err)
	assert.Equal(t, []float64{101, 102, 103}, src)
}

func TestMotionRecorder(t *testing.T) {
	dir := t.TempDir()
	r := NewMotionRecorder(MotionRecorderConfig{}, Env{Stream: "odometry", RecordingDir: dir})
	require.NoError(t, r.Start(context.Background()))

	for i := 0; i < 3; i++ {
		pkt := newPacket(t, float64(i))
		pkt.Set(packet.FieldMotion, device.SynthMotion(i, float64(i)))
		run(t, r, pkt, nil)
	}
	run(t, r, newPacket(t, 9), nil)
	require.NoError(t, r.Stop())

	rows, err := recording.ReadRecords(r.Path())
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestVideoFileSyncer_ResetsOnLoop(t *testing.T) {
	dev := testutil.Resettable{MockDevice: testutil.NewMockDevice(t, "world-file")}
	dev.On("Reset").Return(nil).Once()

	s := NewVideoFileSyncer(VideoFileSyncerConfig{Master: "world", Key: "timestamp"}, Env{})
	s.AttachDevice(dev)
	assert.Equal(t, []string{"timestamp"}, s.ListenFor())

	master := func(ts float64) packet.Notifications {
		return packet.Notifications{{"world": map[string]any{"timestamp": ts, "name": "world"}}}
	}
	s.BeforeFetch(master(5.0))
	s.BeforeFetch(master(5.5))
	dev.AssertNotCalled(t, "Reset")

	s.BeforeFetch(master(1.0))
	dev.AssertNumberOfCalls(t, "Reset", 1)

	// Other streams and missing keys are ignored.
	s.BeforeFetch(packet.Notifications{{"eye0": map[string]any{"timestamp": 0.0}}})
	s.BeforeFetch(packet.Notifications{{"world": map[string]any{"name": "world"}}})
	dev.AssertExpectations(t)
}

func TestVideoFileSyncer_WithoutResettableDevice(t *testing.T) {
	s := NewVideoFileSyncer(VideoFileSyncerConfig{Master: "world", Key: "timestamp"}, Env{})
	s.AttachDevice(testutil.NewMockDevice(t, "cam"))

	s.BeforeFetch(packet.Notifications{{"world": map[string]any{"timestamp": 2.0}}})
	s.BeforeFetch(packet.Notifications{{"world": map[string]any{"timestamp": 1.0}}})
	assert.Nil(t, s.device)
}
