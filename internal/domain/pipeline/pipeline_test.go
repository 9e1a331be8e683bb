package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/gazeflow/internal/domain/device"
	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/domain/process"
	"github.com/GriffinCanCode/gazeflow/internal/shared/async"
)

// fakeStep records lifecycle calls into a shared log.
type fakeStep struct {
	name      string
	listen    []string
	log       *[]string
	startErr  error
	delay     time.Duration
	fetched   packet.Notifications
	processFn func(*packet.Packet)
}

func (s *fakeStep) Kind() process.Kind  { return process.Kind(s.name) }
func (s *fakeStep) ListenFor() []string { return s.listen }

func (s *fakeStep) Start(context.Context) error {
	*s.log = append(*s.log, "start "+s.name)
	return s.startErr
}

func (s *fakeStep) Stop() error {
	*s.log = append(*s.log, "stop "+s.name)
	return nil
}

func (s *fakeStep) Process(pkt *packet.Packet, _ packet.Notifications) *async.Future[*packet.Packet] {
	if s.delay == 0 {
		if s.processFn != nil {
			s.processFn(pkt)
		}
		return async.Ready(pkt)
	}

	pool := async.NewPool(1, 1)
	if err := pool.Start(context.Background()); err != nil {
		return async.Failed[*packet.Packet](err)
	}
	f, err := async.Submit(pool, func(context.Context) (*packet.Packet, error) {
		time.Sleep(s.delay)
		if s.processFn != nil {
			s.processFn(pkt)
		}
		return pkt, nil
	})
	if err != nil {
		return async.Failed[*packet.Packet](err)
	}
	return f
}

type fetchStep struct {
	*fakeStep
}

func (s fetchStep) BeforeFetch(n packet.Notifications) { s.fetched = n }

func newPacket(t *testing.T) *packet.Packet {
	t.Helper()
	p, err := packet.New("world", "dev", 1)
	require.NoError(t, err)
	return p
}

func TestListenFor_Union(t *testing.T) {
	var log []string
	p := New(
		&fakeStep{name: "a", listen: []string{"pupil", "timestamp"}, log: &log},
		&fakeStep{name: "b", log: &log},
		&fakeStep{name: "c", listen: []string{"circle_markers", "pupil"}, log: &log},
	)
	assert.Equal(t, []string{"pupil", "timestamp", "circle_markers"}, p.ListenFor())
	assert.Equal(t, 3, p.Len())
}

func TestStartStop_Order(t *testing.T) {
	var log []string
	p := New(&fakeStep{name: "a", log: &log}, &fakeStep{name: "b", log: &log})

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop())
	assert.Equal(t, []string{"start a", "start b", "stop a", "stop b"}, log)
}

func TestStart_FailureStopsStartedSteps(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	p := New(
		&fakeStep{name: "a", log: &log},
		&fakeStep{name: "b", log: &log, startErr: boom},
		&fakeStep{name: "c", log: &log},
	)

	err := p.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start a", "start b", "stop a"}, log)
}

func TestFlush_ResolvesBetweenSteps(t *testing.T) {
	var log []string
	slow := &fakeStep{name: "slow", log: &log, delay: 20 * time.Millisecond, processFn: func(p *packet.Packet) {
		p.Set("stage", 1)
	}}
	var seen any
	next := &fakeStep{name: "next", log: &log, processFn: func(p *packet.Packet) {
		seen, _ = p.Get("stage")
		p.Set("stage", 2)
	}}

	out, err := New(slow, next).Flush(context.Background(), newPacket(t), nil).Resolve(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
	v, _ := out.Get("stage")
	assert.Equal(t, 2, v)
}

func TestFlush_Empty(t *testing.T) {
	pkt := newPacket(t)
	out, err := New().Flush(context.Background(), pkt, nil).Resolve(0)
	require.NoError(t, err)
	assert.Same(t, pkt, out)
}

func TestFlush_CancelledWhileWaiting(t *testing.T) {
	var log []string
	slow := &fakeStep{name: "slow", log: &log, delay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(slow, &fakeStep{name: "b", log: &log}).Flush(ctx, newPacket(t), nil).Resolve(time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBeforeFetch(t *testing.T) {
	var log []string
	fs := fetchStep{&fakeStep{name: "sync", log: &log}}
	plain := &fakeStep{name: "plain", log: &log}

	n := packet.Notifications{{"world": map[string]any{"timestamp": 1.0}}}
	New(plain, fs).BeforeFetch(n)
	assert.Equal(t, n, fs.fetched)
	assert.Nil(t, plain.fetched)
}

func TestFlush_RealSteps(t *testing.T) {
	env := process.Env{Stream: "eye0", Workers: 1, Queue: 2}
	steps, err := process.Build([]map[string]any{
		{"kind": "pupil_detector"},
		{"kind": "pupil_detector", "eye_id": 1, "block": true},
	}, env)
	require.NoError(t, err)

	p := New(steps...)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	pkt := newPacket(t)
	pkt.Set(packet.FieldFrame, device.SynthFrame(device.PatternPupil, 64, 64, 0, packet.ColorGray))

	out, err := p.Flush(context.Background(), pkt, nil).Resolve(time.Second)
	require.NoError(t, err)
	pupil, ok := packet.Value[packet.Pupil](out, packet.FieldPupil)
	require.True(t, ok)
	assert.Equal(t, 1, pupil.EyeID)
	assert.Equal(t, map[string]any{packet.FieldPupil: pupil}, out.GetBroadcasts())
}
