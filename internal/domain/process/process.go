package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/gazeflow/internal/domain/device"
	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/gazeflow/internal/shared/async"
)

// Process is one pipeline step.
type Process interface {
	Kind() Kind
	ListenFor() []string
	Start(ctx context.Context) error
	Stop() error
	Process(pkt *packet.Packet, notifications packet.Notifications) *async.Future[*packet.Packet]
}

// BeforeFetcher is implemented by steps that must see notifications before
// the stream reads its next frame.
type BeforeFetcher interface {
	BeforeFetch(notifications packet.Notifications)
}

// DeviceAttacher is implemented by steps that act on their stream's device.
type DeviceAttacher interface {
	AttachDevice(dev device.Device)
}

// poolStopTimeout bounds how long Stop waits for queued transforms.
const poolStopTimeout = 2 * time.Second

// Base carries the plumbing shared by all steps: the block flag, the
// subscription keys and the worker pool used by non-blocking steps.
type Base struct {
	kind      Kind
	stream    string
	block     bool
	listenFor []string

	pool    *async.Pool
	ctx     context.Context
	logger  *zap.Logger
	metrics *monitoring.Metrics

	onNotifications func(packet.Notifications)
	transform       func(ctx context.Context, pkt *packet.Packet) error
}

func newBase(kind Kind, block bool, env Env) *Base {
	b := &Base{
		kind:    kind,
		stream:  env.Stream,
		block:   block,
		ctx:     context.Background(),
		logger:  logging.ForProcess(env.logger(), string(kind)),
		metrics: env.Metrics,
	}
	if !block {
		b.pool = async.NewPool(env.Workers, env.Queue, async.WithDropHook(func() {
			b.metrics.IncDropped(b.stream, string(b.kind))
		}))
	}
	return b
}

// Kind returns the step kind.
func (b *Base) Kind() Kind { return b.kind }

// Blocking reports whether the transform runs inline.
func (b *Base) Blocking() bool { return b.block }

// ListenFor returns the notification keys this step consumes.
func (b *Base) ListenFor() []string {
	out := make([]string, len(b.listenFor))
	copy(out, b.listenFor)
	return out
}

// Start launches the worker pool of a non-blocking step.
func (b *Base) Start(ctx context.Context) error {
	b.ctx = ctx
	if b.pool == nil {
		return nil
	}
	if err := b.pool.Start(ctx); err != nil && !errors.Is(err, async.ErrPoolAlreadyStarted) {
		return fmt.Errorf("start %s pool: %w", b.kind, err)
	}
	return nil
}

// Stop drains the worker pool.
func (b *Base) Stop() error {
	if b.pool == nil {
		return nil
	}
	if err := b.pool.Stop(poolStopTimeout); err != nil {
		b.logger.Warn("Worker pool did not drain", zap.Error(err))
	}
	return nil
}

// Process handles notifications, then the packet.
func (b *Base) Process(pkt *packet.Packet, notifications packet.Notifications) *async.Future[*packet.Packet] {
	b.processNotifications(notifications)
	return b.processPacket(pkt)
}

func (b *Base) processNotifications(notifications packet.Notifications) {
	if b.onNotifications == nil || len(notifications) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Notification handler panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	b.onNotifications(notifications)
}

func (b *Base) processPacket(pkt *packet.Packet) *async.Future[*packet.Packet] {
	if b.transform == nil {
		return async.Ready(pkt)
	}
	if b.block {
		b.apply(b.ctx, pkt)
		return async.Ready(pkt)
	}
	return async.SubmitOr(b.pool, func(ctx context.Context) (*packet.Packet, error) {
		b.apply(ctx, pkt)
		return pkt, nil
	}, pkt)
}

// apply runs the transform; failures are logged and the packet passes on.
func (b *Base) apply(ctx context.Context, pkt *packet.Packet) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Step panicked",
				zap.Float64("timestamp", pkt.Timestamp),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	if err := b.transform(ctx, pkt); err != nil {
		b.logger.Warn("Step failed", zap.Float64("timestamp", pkt.Timestamp), zap.Error(err))
	}
}
