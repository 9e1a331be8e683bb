package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/gazeflow/internal/domain/device"
	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/domain/process"
	"github.com/GriffinCanCode/gazeflow/internal/domain/stream"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/config"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/gazeflow/internal/testutil"
)

func testEngine() config.EngineConfig {
	e := config.Default().Engine
	e.UpdateInterval = 2 * time.Millisecond
	e.StopTimeout = 5 * time.Second
	e.ReconnectInterval = time.Millisecond
	return e
}

func mockStream(name, uid string, extra map[string]any, steps ...map[string]any) stream.Config {
	dev := map[string]any{"kind": "mock", "uid": uid, "fps": 200.0}
	for k, v := range extra {
		dev[k] = v
	}
	return stream.Config{Name: name, Device: dev, Pipeline: steps}
}

func TestRouteNotifications(t *testing.T) {
	eye := packet.Status{
		packet.KeyName:      "eye0",
		packet.KeyDeviceUID: "cam-0",
		packet.KeyTimestamp: 1.5,
		packet.KeyFPS:       120.0,
		packet.FieldPupil:   map[string]any{"confidence": 0.9},
	}
	world := packet.Status{
		packet.KeyName:      "world",
		packet.KeyDeviceUID: "cam-w",
		packet.KeyTimestamp: 1.6,
	}

	tests := []struct {
		name      string
		listenFor map[string][]string
		statuses  map[string]packet.Status
		want      map[string]packet.Notification
	}{
		{
			name:      "listened key is routed with identity fields only",
			listenFor: map[string][]string{"world": {packet.FieldPupil}, "eye0": nil},
			statuses:  map[string]packet.Status{"eye0": eye, "world": world},
			want: map[string]packet.Notification{
				"world": {"eye0": map[string]any{
					packet.FieldPupil:   map[string]any{"confidence": 0.9},
					packet.KeyName:      "eye0",
					packet.KeyDeviceUID: "cam-0",
					packet.KeyTimestamp: 1.5,
				}},
			},
		},
		{
			name:      "source without the key produces no entry",
			listenFor: map[string][]string{"eye0": {packet.FieldPupil}},
			statuses:  map[string]packet.Status{"world": world},
			want:      map[string]packet.Notification{},
		},
		{
			name:      "a stream never receives its own broadcasts",
			listenFor: map[string][]string{"eye0": {packet.FieldPupil}},
			statuses:  map[string]packet.Status{"eye0": eye},
			want:      map[string]packet.Notification{},
		},
		{
			name:      "several keys from several sources",
			listenFor: map[string][]string{"world": {packet.FieldPupil, packet.KeyFPS}},
			statuses: map[string]packet.Status{
				"eye0": eye,
				"eye1": {packet.KeyName: "eye1", packet.KeyDeviceUID: "cam-1", packet.KeyTimestamp: 1.4, packet.KeyFPS: 60.0},
			},
			want: map[string]packet.Notification{
				"world": {
					"eye0": map[string]any{
						packet.FieldPupil:   map[string]any{"confidence": 0.9},
						packet.KeyFPS:       120.0,
						packet.KeyName:      "eye0",
						packet.KeyDeviceUID: "cam-0",
						packet.KeyTimestamp: 1.5,
					},
					"eye1": map[string]any{
						packet.KeyFPS:       60.0,
						packet.KeyName:      "eye1",
						packet.KeyDeviceUID: "cam-1",
						packet.KeyTimestamp: 1.4,
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RouteNotifications(tt.listenFor, tt.statuses)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("RouteNotifications() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New([]stream.Config{mockStream("a", "x", nil), mockStream("a", "y", nil)})
	assert.ErrorIs(t, err, ErrDuplicateStream)

	_, err = New([]stream.Config{{Name: "a", Device: map[string]any{"kind": "laser"}}})
	assert.ErrorIs(t, err, device.ErrUnknownKind)

	_, err = New([]stream.Config{mockStream("a", "x", nil, map[string]any{"kind": "teleporter"})})
	assert.ErrorIs(t, err, process.ErrUnknownKind)
}

func TestNew_SharesDevicesByIdentity(t *testing.T) {
	m, err := New([]stream.Config{
		mockStream("eye0", "cam", nil),
		mockStream("eye0_copy", "cam", nil),
		mockStream("world", "other", nil),
	}, WithEngineConfig(testEngine()))
	require.NoError(t, err)
	assert.Equal(t, []string{"eye0", "eye0_copy", "world"}, m.Streams())

	a, _ := m.Stream("eye0")
	b, _ := m.Stream("eye0_copy")
	w, _ := m.Stream("world")

	va, ok := a.Device().(*view)
	require.True(t, ok)
	vb, ok := b.Device().(*view)
	require.True(t, ok)
	assert.Same(t, va.Unwrap(), vb.Unwrap())

	_, ok = w.Device().(*device.Mock)
	assert.True(t, ok, "an unshared device is used directly")
}

func TestShareDevice_RefCounts(t *testing.T) {
	inner := testutil.NewMockDevice(t, "cam")
	inner.On("IsStarted").Return(false).Once()
	inner.On("Start", mock.Anything).Return(nil).Once()
	inner.On("IsStarted").Return(true).Once()
	inner.On("Stop").Return(nil).Once()

	handles := shareDevice(inner, 2)
	require.Len(t, handles, 2)
	ctx := context.Background()

	require.NoError(t, handles[0].Start(ctx))
	require.NoError(t, handles[1].Start(ctx))
	require.NoError(t, handles[1].Start(ctx))
	assert.True(t, handles[0].IsStarted())

	require.NoError(t, handles[0].Stop())
	require.NoError(t, handles[0].Stop())
	assert.False(t, handles[0].IsStarted())
	inner.AssertNotCalled(t, "Stop")

	require.NoError(t, handles[1].Stop())
	inner.AssertExpectations(t)
}

func TestShareDevice_KeepsResetter(t *testing.T) {
	inner := testutil.Resettable{MockDevice: testutil.NewMockDevice(t, "file")}
	inner.On("Reset").Return(nil).Once()

	handles := shareDevice(inner, 2)
	r, ok := handles[1].(device.Resetter)
	require.True(t, ok)
	require.NoError(t, r.Reset())
	inner.AssertExpectations(t)

	single := shareDevice(inner, 1)
	assert.Equal(t, device.Device(inner), single[0])
}

func TestManager_UpdateRoutesAndCaches(t *testing.T) {
	metrics := monitoring.NewMetrics()
	m, err := New([]stream.Config{
		mockStream("eye0", "cam-0", nil),
		mockStream("world", "cam-w", nil, map[string]any{"kind": "validation"}),
	}, WithEngineConfig(testEngine()), WithMetrics(metrics))
	require.NoError(t, err)
	assert.Equal(t, []string{packet.FieldPupil}, m.listenFor["world"])

	pupil := packet.Pupil{EyeID: 0, Confidence: 0.9, NormPos: [2]float64{0.5, 0.5}}
	m.links["eye0"].Publish(packet.Status{
		packet.KeyName: "eye0", packet.KeyDeviceUID: "cam-0", packet.KeyTimestamp: 1.0,
		packet.KeyRunning: true, packet.FieldPupil: pupil,
	})
	m.links["eye0"].Publish(packet.Status{
		packet.KeyName: "eye0", packet.KeyDeviceUID: "cam-0", packet.KeyTimestamp: 2.0,
		packet.KeyRunning: true, packet.FieldPupil: pupil,
	})
	m.Update()

	want := packet.Notifications{{
		"eye0": map[string]any{
			packet.KeyName:      "eye0",
			packet.KeyDeviceUID: "cam-0",
			packet.KeyTimestamp: 2.0,
			packet.FieldPupil:   pupil,
		},
	}}
	if diff := cmp.Diff(want, m.links["world"].Notifications()); diff != "" {
		t.Errorf("routed notifications mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, m.links["eye0"].Notifications())
	assert.Equal(t, 1.0, prom.ToFloat64(metrics.NotificationsRouted.WithLabelValues("eye0", "world")))

	st, ok := m.StatusOf("eye0")
	require.True(t, ok)
	assert.Equal(t, 2.0, st[packet.KeyTimestamp])
	assert.False(t, m.AllStreamsRunning())
	assert.Equal(t, 1.0, prom.ToFloat64(metrics.StreamsRunning))

	world, _ := m.StatusOf("world")
	assert.Equal(t, packet.Status{packet.KeyName: "world", packet.KeyDeviceUID: "cam-w", packet.KeyRunning: false}, world)
}

func TestManager_StaleStatusFallsBack(t *testing.T) {
	engine := testEngine()
	engine.StatusTimeout = 10 * time.Millisecond
	m, err := New([]stream.Config{mockStream("eye0", "cam-0", nil), mockStream("eye1", "cam-1", nil)}, WithEngineConfig(engine))
	require.NoError(t, err)

	m.links["eye0"].Publish(packet.Status{packet.KeyName: "eye0", packet.KeyRunning: true})
	m.links["eye1"].Publish(packet.Status{packet.KeyName: "eye1", packet.KeyRunning: false, packet.KeyException: "boom"})
	m.Update()
	assert.True(t, m.Status()["eye0"].Running())

	time.Sleep(20 * time.Millisecond)
	m.Update()

	status := m.Status()
	s, _ := m.Stream("eye0")
	assert.Equal(t, s.DefaultStatus(), status["eye0"])
	exc, ok := status["eye1"].Exception()
	assert.True(t, ok, "a crashed stream keeps its exception")
	assert.Equal(t, "boom", exc)
}

func TestManager_LogsExceptionOnce(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	m, err := New([]stream.Config{mockStream("eye0", "cam-0", nil)}, WithEngineConfig(testEngine()), WithLogger(zap.New(core)))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		m.links["eye0"].Publish(packet.Status{packet.KeyName: "eye0", packet.KeyException: "boom"})
		m.Update()
	}
	assert.Equal(t, 1, logs.FilterMessage("Stream reported an exception").Len())
}

func TestManager_SendNotification(t *testing.T) {
	m, err := New([]stream.Config{mockStream("eye0", "cam-0", nil), mockStream("world", "cam-w", nil)}, WithEngineConfig(testEngine()))
	require.NoError(t, err)

	n := packet.Notification{packet.NotifyCollectCalibration: true}
	err = m.SendNotification(n, "world", "nope")
	assert.ErrorIs(t, err, ErrUnknownStream)
	assert.Empty(t, m.links["world"].Notifications(), "nothing is sent when a name is unknown")

	require.NoError(t, m.SendNotification(n))
	n[packet.NotifyCollectCalibration] = false

	for _, name := range m.Streams() {
		got := m.links[name].Notifications()
		assert.Equal(t, packet.Notifications{{packet.NotifyCollectCalibration: true}}, got, name)
	}
}

func TestManager_ValueAndFormatStatus(t *testing.T) {
	m, err := New([]stream.Config{mockStream("eye0", "cam-0", nil), mockStream("world", "cam-w", nil)}, WithEngineConfig(testEngine()))
	require.NoError(t, err)

	m.links["eye0"].Publish(packet.Status{
		packet.KeyName:    "eye0",
		packet.KeyFPS:     119.996,
		packet.FieldPupil: packet.Pupil{Confidence: 0.9, NormPos: [2]float64{0.25, 0.75}},
	})
	m.Update()

	v, err := m.Value("eye0", "pupil.norm_pos.1")
	require.NoError(t, err)
	assert.Equal(t, 0.75, v.Float())

	_, err = m.Value("nope", "fps")
	assert.ErrorIs(t, err, ErrUnknownStream)

	assert.Equal(t, "eye0: 0.90, world: no data", m.FormatStatus("pupil.confidence"))
	assert.Equal(t, "eye0: 120.00, world: no data", m.FormatStatus("fps"))
	assert.Equal(t, "eye0: eye0, world: world", m.FormatStatus("name"))
}

func TestManager_AwaitStatus(t *testing.T) {
	m, err := New([]stream.Config{mockStream("world", "cam-w", nil)}, WithEngineConfig(testEngine()))
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("unknown stream", func(t *testing.T) {
		assert.ErrorIs(t, m.AwaitStatus(ctx, "nope", "x", 1), ErrUnknownStream)
	})

	t.Run("already cached", func(t *testing.T) {
		assert.NoError(t, m.AwaitStatus(ctx, "world", "device_uid", "cam-w"))
	})

	t.Run("times out", func(t *testing.T) {
		tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		err := m.AwaitStatus(tctx, "world", packet.FieldCalibrationCalculated, true)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("transient value in a drained status", func(t *testing.T) {
		errc := make(chan error, 1)
		go func() { errc <- m.AwaitStatus(ctx, "world", packet.FieldCalibrationCalculated, true) }()

		require.Eventually(t, func() bool {
			m.waitMu.Lock()
			defer m.waitMu.Unlock()
			return len(m.waiters) == 1
		}, time.Second, time.Millisecond)

		m.links["world"].Publish(packet.Status{packet.KeyName: "world", packet.FieldCalibrationCalculated: true})
		m.links["world"].Publish(packet.Status{packet.KeyName: "world"})
		m.Update()

		select {
		case err := <-errc:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("AwaitStatus did not return")
		}
		_, cached := m.Status()["world"][packet.FieldCalibrationCalculated]
		assert.False(t, cached)
	})

	t.Run("matching status is returned", func(t *testing.T) {
		type result struct {
			st  packet.Status
			err error
		}
		done := make(chan result, 1)
		go func() {
			st, err := m.WaitForStatus(ctx, "world", "calibration_result.name", "poly")
			done <- result{st, err}
		}()
		require.Eventually(t, func() bool {
			m.waitMu.Lock()
			defer m.waitMu.Unlock()
			return len(m.waiters) == 1
		}, time.Second, time.Millisecond)

		m.links["world"].Publish(packet.Status{
			packet.KeyName:                    "world",
			packet.FieldCalibrationCalculated: true,
			packet.FieldCalibrationResult:     map[string]any{"name": "poly"},
		})
		m.links["world"].Publish(packet.Status{packet.KeyName: "world"})
		m.Update()

		r := <-done
		require.NoError(t, r.err)
		assert.Equal(t, true, r.st[packet.FieldCalibrationCalculated])
	})

	t.Run("numbers compare by value", func(t *testing.T) {
		m.links["world"].Publish(packet.Status{packet.KeyName: "world", packet.FieldCollectedMarkers: 3})
		m.Update()
		assert.NoError(t, m.AwaitStatus(ctx, "world", packet.FieldCollectedMarkers, 3.0))
	})
}

func TestManager_CalibrationProtocol(t *testing.T) {
	m, err := New([]stream.Config{
		mockStream("eye0", "cam-0", map[string]any{"pattern": "pupil"}, map[string]any{"kind": "pupil_detector", "block": true}),
		mockStream("world", "cam-w", map[string]any{"pattern": "blank"}, map[string]any{"kind": "calibration"}),
	}, WithEngineConfig(testEngine()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.Start(ctx))
	spin := m.SpinAsync(ctx)

	require.NoError(t, m.AwaitStatus(ctx, "eye0", packet.KeyRunning, true))
	require.NoError(t, m.SendNotification(packet.Notification{packet.NotifyCollectCalibration: true}, "world"))

	s, _ := m.Stream("world")
	cal, ok := s.Pipeline().Steps()[0].(*process.Calibration)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		pupils, _ := cal.Queued()
		return pupils > 0
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, m.SendNotification(packet.Notification{packet.NotifyCalculateCalibration: true}, "world"))
	st, err := m.WaitForStatus(ctx, "world", packet.FieldCalibrationCalculated, true)
	require.NoError(t, err)
	assert.Contains(t, st, packet.FieldCalibrationResult)
	assert.Equal(t, process.StateIdle, cal.State())
	assert.True(t, m.AllStreamsRunning())

	require.NoError(t, m.Stop())
	require.NoError(t, <-spin)
	assert.False(t, m.AllStreamsRunning())
}

func TestManager_WorkerCrashDoesNotStopOthers(t *testing.T) {
	metrics := monitoring.NewMetrics()
	broken := testutil.NewMockDevice(t, "broken")
	broken.On("IsStarted").Return(false).Once()
	broken.On("Start", mock.Anything).Return(nil).Once()
	broken.On("Read", mock.Anything, device.ModeVideo).Return(device.Reading{}, errors.New("usb fault")).Once()
	broken.On("IsStarted").Return(true).Once()
	broken.On("Stop").Return(nil).Once()

	m, err := New([]stream.Config{
		{Name: "bad", Device: map[string]any{"kind": "mock"}},
		mockStream("good", "cam-g", nil),
	}, WithEngineConfig(testEngine()), WithMetrics(metrics), WithDevice("bad", broken))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Start(ctx))
	assert.ErrorIs(t, m.Start(ctx), ErrAlreadyRunning)
	spin := m.SpinAsync(ctx)

	require.Eventually(t, func() bool {
		_, crashed := m.Status()["bad"].Exception()
		return crashed
	}, 2*time.Second, 2*time.Millisecond)
	require.NoError(t, m.AwaitStatus(ctx, "good", packet.KeyRunning, true))
	assert.False(t, m.AllStreamsRunning())
	assert.Equal(t, 1.0, prom.ToFloat64(metrics.StreamCrashes.WithLabelValues("bad")))

	require.NoError(t, m.Stop())
	require.NoError(t, <-spin)
	broken.AssertExpectations(t)
}

func TestManager_ReconnectingStreamStopsCleanlyAtDeadline(t *testing.T) {
	metrics := monitoring.NewMetrics()
	engine := testEngine()
	engine.ReconnectInterval = 50 * time.Millisecond
	absent := mockStream("world", "cam-w", map[string]any{"connect_after": -1})
	absent.AllowFailure = true
	m, err := New([]stream.Config{absent}, WithEngineConfig(engine), WithMetrics(metrics))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	require.NoError(t, m.Run(ctx))
	m.Update()

	st, ok := m.StatusOf("world")
	require.True(t, ok)
	exc, crashed := st.Exception()
	assert.False(t, crashed, "unexpected exception %q", exc)
	assert.False(t, st.Running())
	assert.Equal(t, 0.0, prom.ToFloat64(metrics.StreamCrashes.WithLabelValues("world")))
}

func TestManager_RunEndsWhenStreamsFinish(t *testing.T) {
	m, err := New([]stream.Config{
		mockStream("a", "shared", map[string]any{"frames": 6}),
		mockStream("b", "shared", map[string]any{"frames": 6}),
	}, WithEngineConfig(testEngine()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Run(ctx))
	require.NoError(t, ctx.Err())

	s, _ := m.Stream("a")
	inner := s.Device().(*view).Unwrap()
	assert.False(t, inner.IsStarted())
	assert.False(t, m.AllStreamsRunning())
}

func TestManager_RunDuration(t *testing.T) {
	engine := testEngine()
	engine.RunDuration = 30 * time.Millisecond
	m, err := New([]stream.Config{mockStream("a", "cam", nil)}, WithEngineConfig(engine))
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, m.Run(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	s, _ := m.Stream("a")
	assert.Equal(t, stream.StateStopped, s.State())
	assert.NoError(t, m.Stop())
}

func TestManager_SpinBeforeStart(t *testing.T) {
	m, err := New([]stream.Config{mockStream("a", "cam", nil)}, WithEngineConfig(testEngine()))
	require.NoError(t, err)
	assert.ErrorIs(t, m.Spin(context.Background()), ErrNotRunning)
	assert.NoError(t, m.Stop())
}
