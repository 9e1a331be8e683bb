package process

import (
	"context"
	"errors"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/gazeflow/internal/shared/async"
)

func boolPtr(b bool) *bool { return &b }

func newPacket(t *testing.T, ts float64) *packet.Packet {
	t.Helper()
	p, err := packet.New("world", "dev", ts)
	require.NoError(t, err)
	return p
}

func TestDecode(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Decode(map[string]any{"kind": "calibration"})
		require.NoError(t, err)
		c := cfg.(*CalibrationConfig)
		assert.Equal(t, "eye1", c.Left)
		assert.Equal(t, "eye0", c.Right)
		assert.Equal(t, 0.8, c.MinConfidence)
		assert.True(t, c.Blocking())
	})

	t.Run("detectors default to non-blocking", func(t *testing.T) {
		cfg, err := Decode(map[string]any{"kind": "pupil_detector", "eye_id": 1})
		require.NoError(t, err)
		assert.False(t, cfg.Blocking())

		cfg, err = Decode(map[string]any{"kind": "circle_detector", "block": true})
		require.NoError(t, err)
		assert.True(t, cfg.Blocking())
	})

	t.Run("validation shares calibration config", func(t *testing.T) {
		cfg, err := Decode(map[string]any{"kind": "validation", "left": "l", "right": "r"})
		require.NoError(t, err)
		assert.Equal(t, KindValidation, cfg.ProcessKind())
	})

	tests := []struct {
		name string
		raw  map[string]any
		want error
	}{
		{"unknown kind", map[string]any{"kind": "blur"}, ErrUnknownKind},
		{"missing kind", map[string]any{}, ErrUnknownKind},
		{"syncer without master", map[string]any{"kind": "video_file_syncer"}, ErrInvalidConfig},
		{"bad eye id", map[string]any{"kind": "pupil_detector", "eye_id": 2}, ErrInvalidConfig},
		{"bad mode", map[string]any{"kind": "calibration", "mode": "4d"}, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("unknown field", func(t *testing.T) {
		_, err := Decode(map[string]any{"kind": "gaze_mapper", "lefty": "eye1"})
		assert.Error(t, err)
	})
}

func TestBuild(t *testing.T) {
	steps, err := Build([]map[string]any{
		{"kind": "pupil_detector"},
		{"kind": "video_display"},
	}, Env{Stream: "eye0"})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, KindPupilDetector, steps[0].Kind())
	assert.Equal(t, KindVideoDisplay, steps[1].Kind())

	_, err = Build([]map[string]any{{"kind": "pupil_detector"}, {"kind": "nope"}}, Env{})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestBase_SaturatedPoolReturnsInput(t *testing.T) {
	metrics := monitoring.NewMetrics()
	b := newBase(KindPupilDetector, false, Env{Stream: "eye0", Workers: 1, Queue: 1, Metrics: metrics})

	started := make(chan struct{}, 4)
	release := make(chan struct{})
	b.transform = func(_ context.Context, pkt *packet.Packet) error {
		started <- struct{}{}
		<-release
		pkt.Set("done", true)
		return nil
	}
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	p1, p2, p3 := newPacket(t, 1), newPacket(t, 2), newPacket(t, 3)
	f1 := b.Process(p1, nil)
	<-started
	f2 := b.Process(p2, nil)

	begin := time.Now()
	f3 := b.Process(p3, nil)
	assert.Less(t, time.Since(begin), 100*time.Millisecond)
	assert.True(t, f3.IsReady())

	got, err := f3.Resolve(0)
	require.NoError(t, err)
	assert.Same(t, p3, got)
	assert.False(t, p3.Has("done"))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.ProcessDropped.WithLabelValues("eye0", "pupil_detector")))

	close(release)
	for _, f := range []*async.Future[*packet.Packet]{f1, f2} {
		p, err := f.Resolve(time.Second)
		require.NoError(t, err)
		assert.True(t, p.Has("done"))
	}
}

func TestBase_TransformFailuresPassPacketOn(t *testing.T) {
	for name, fn := range map[string]func(context.Context, *packet.Packet) error{
		"error": func(context.Context, *packet.Packet) error { return errors.New("boom") },
		"panic": func(context.Context, *packet.Packet) error { panic("boom") },
	} {
		t.Run(name, func(t *testing.T) {
			b := newBase(KindCircleDetector, true, Env{})
			b.transform = fn
			pkt := newPacket(t, 1)

			got, err := b.Process(pkt, nil).Resolve(time.Second)
			require.NoError(t, err)
			assert.Same(t, pkt, got)
		})
	}
}

func TestBase_NotificationsBeforePacket(t *testing.T) {
	b := newBase(KindGazeMapper, true, Env{})
	var order []string
	b.onNotifications = func(packet.Notifications) { order = append(order, "notifications") }
	b.transform = func(context.Context, *packet.Packet) error {
		order = append(order, "packet")
		return nil
	}

	_, err := b.Process(newPacket(t, 1), packet.Notifications{{"x": 1}}).Resolve(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"notifications", "packet"}, order)
}
