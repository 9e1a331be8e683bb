package stream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/gazeflow/internal/domain/device"
	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/domain/pipeline"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/monitoring"
)

// State is the stream lifecycle state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

const defaultFPSBuffer = 100

// Option configures a stream.
type Option func(*Stream)

// WithLogger sets the base logger; the stream names it after itself.
func WithLogger(l *zap.Logger) Option {
	return func(s *Stream) { s.logger = logging.ForStream(l, s.name) }
}

// WithMetrics enables metric reporting.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Stream) { s.metrics = m }
}

// WithPacketTimeout bounds deferred field resolution on packets.
func WithPacketTimeout(d time.Duration) Option {
	return func(s *Stream) { s.packetTimeout = d }
}

// WithReconnectInterval sets the pause between connection attempts when
// failure is allowed.
func WithReconnectInterval(d time.Duration) Option {
	return func(s *Stream) { s.reconnect = d }
}

// WithFPSBuffer sets the frame rate history length unless the stream
// config overrides it.
func WithFPSBuffer(n int) Option {
	return func(s *Stream) {
		if s.cfg.FPSBuffer == 0 && n > 0 {
			s.fps = NewFPSBuffer(n)
		}
	}
}

// Stream owns one device and one pipeline.
type Stream struct {
	cfg      Config
	name     string
	kind     Kind
	device   device.Device
	pipeline *pipeline.Pipeline
	fps      *FPSBuffer

	packetTimeout time.Duration
	reconnect     time.Duration

	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu    sync.Mutex
	state State
}

// New assembles a stream from a decoded config, its device and pipeline.
func New(cfg Config, dev device.Device, pipe *pipeline.Pipeline, opts ...Option) (*Stream, error) {
	if dev == nil {
		return nil, fmt.Errorf("stream %s: device is required", cfg.Name)
	}
	if cfg.Kind == "" {
		cfg.Kind = KindVideo
	}
	if _, err := ParseKind(string(cfg.Kind)); err != nil {
		return nil, err
	}
	if pipe == nil {
		pipe = pipeline.New()
	}

	size := cfg.FPSBuffer
	if size == 0 {
		size = defaultFPSBuffer
	}
	s := &Stream{
		cfg:       cfg,
		name:      cfg.Name,
		kind:      cfg.Kind,
		device:    dev,
		pipeline:  pipe,
		fps:       NewFPSBuffer(size),
		reconnect: time.Second,
		logger:    logging.ForStream(zap.NewNop(), cfg.Name),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the stream name.
func (s *Stream) Name() string { return s.name }

// Kind returns the stream kind.
func (s *Stream) Kind() Kind { return s.kind }

// Device returns the stream's device.
func (s *Stream) Device() device.Device { return s.device }

// Pipeline returns the stream's pipeline.
func (s *Stream) Pipeline() *pipeline.Pipeline { return s.pipeline }

// ListenFor returns the keys the pipeline subscribes to.
func (s *Stream) ListenFor() []string { return s.pipeline.ListenFor() }

// FPS returns the running frame rate.
func (s *Stream) FPS() float64 { return s.fps.Mean() }

// State returns the lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// DefaultStatus is the status reported before the first cycle or after
// updates stop arriving.
func (s *Stream) DefaultStatus() packet.Status {
	return packet.Status{
		packet.KeyName:      s.name,
		packet.KeyDeviceUID: s.device.UID(),
		packet.KeyRunning:   false,
	}
}

// Start starts the device, then the pipeline. With AllowFailure a device
// that is not connected is retried at the reconnect interval, reporting
// "reconnecting" through link (which may be nil) until it comes up or ctx
// ends.
func (s *Stream) Start(ctx context.Context, link *Link) error {
	s.setState(StateStarting)
	if err := s.startDevice(ctx, link); err != nil {
		s.setState(StateStopped)
		return err
	}

	s.pipeline.AttachDevice(s.device)
	if err := s.pipeline.Start(ctx); err != nil {
		_ = s.device.Stop()
		s.setState(StateStopped)
		return fmt.Errorf("stream %s: %w", s.name, err)
	}

	s.setState(StateRunning)
	s.logger.Info("Stream started",
		zap.String("device", s.device.UID()),
		zap.String("kind", string(s.kind)),
		zap.Int("steps", s.pipeline.Len()))
	return nil
}

func (s *Stream) startDevice(ctx context.Context, link *Link) error {
	if s.device.IsStarted() {
		return nil
	}

	limiter := rate.NewLimiter(rate.Every(s.reconnect), 1)
	for attempt := 1; ; attempt++ {
		if err := waitTurn(ctx, limiter); err != nil {
			return fmt.Errorf("stream %s: %w", s.name, err)
		}
		err := s.device.Start(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, device.ErrNotConnected) || !s.cfg.AllowFailure {
			return fmt.Errorf("stream %s: %w", s.name, err)
		}

		s.logger.Warn("Device not connected, retrying",
			zap.String("device", s.device.UID()),
			zap.Int("attempt", attempt),
			zap.Duration("interval", s.reconnect))
		st := s.DefaultStatus()
		st[packet.KeyReconnecting] = true
		link.Publish(st)
	}
}

// waitTurn blocks until the limiter allows another attempt. It fails only
// when ctx ends, never early because a deadline is closer than the delay.
func waitTurn(ctx context.Context, limiter *rate.Limiter) error {
	r := limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// Stop stops the pipeline, then the device. Calling it again, or on a
// device that is already stopped, does nothing further.
func (s *Stream) Stop() error {
	s.mu.Lock()
	if s.state == StateStopped || s.state == StateStopping {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	s.mu.Unlock()
	defer s.setState(StateStopped)

	var errs []error
	if err := s.pipeline.Stop(); err != nil {
		errs = append(errs, err)
	}
	if s.device.IsStarted() {
		if err := s.device.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop device %s: %w", s.device.UID(), err))
		}
	}
	s.logger.Info("Stream stopped")
	return errors.Join(errs...)
}

// Run loops until ctx ends, the device reports stream_stop, or a cycle
// fails. A failure is published once as an "exception" status and
// returned.
func (s *Stream) Run(ctx context.Context, link *Link) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		done, err := s.cycle(ctx, link)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return s.crash(link, err)
		}
		if done {
			return nil
		}
	}
}

// Serve runs the full worker lifecycle: start, run, stop. A clean exit
// ends with a final not-running status.
func (s *Stream) Serve(ctx context.Context, link *Link) error {
	if err := s.Start(ctx, link); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return s.crash(link, err)
	}
	runErr := s.Run(ctx, link)
	if err := s.Stop(); err != nil {
		s.logger.Warn("Stream stop reported errors", zap.Error(err))
	}
	if runErr == nil {
		link.Publish(s.DefaultStatus())
	}
	return runErr
}

func (s *Stream) cycle(ctx context.Context, link *Link) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	notifications := link.Notifications()
	s.pipeline.BeforeFetch(notifications)

	reading, err := s.device.Read(ctx, s.kind.Mode())
	if err != nil {
		return false, fmt.Errorf("read %s: %w", s.device.UID(), err)
	}
	switch reading.Event {
	case device.EventStreamStop:
		s.logger.Info("Device ended the stream")
		return true, nil
	case device.EventDeviceDisconnect:
		s.logger.Debug("Device disconnected, skipping cycle")
		return false, nil
	}

	started := time.Now()
	pkt, err := s.packet(reading)
	if err != nil {
		return false, err
	}
	pkt, err = s.pipeline.Flush(ctx, pkt, notifications).Wait(ctx)
	if err != nil {
		return false, fmt.Errorf("pipeline: %w", err)
	}
	s.metrics.ObservePacket(s.name, time.Since(started))

	s.fps.Add(pkt.SourceTimestamp)
	fps := s.FPS()
	if !math.IsNaN(fps) {
		s.metrics.SetFPS(s.name, fps)
	}
	link.Publish(s.status(pkt, fps))
	return false, nil
}

func (s *Stream) packet(r device.Reading) (*packet.Packet, error) {
	opts := []packet.Option{
		packet.WithSourceTimestamp(r.Source()),
		packet.WithTimebase(s.device.Timebase()),
		packet.WithTimeout(s.packetTimeout),
	}
	pkt, err := packet.New(s.name, s.device.UID(), r.Timestamp, opts...)
	if err != nil {
		return nil, err
	}

	switch s.kind {
	case KindMotion:
		pkt.Set(packet.FieldMotion, r.Frame)
	default:
		pkt.Set(packet.FieldFrame, r.Frame)
		if f, ok := r.Frame.(*packet.Frame); ok && f != nil {
			pkt.Set(packet.FieldColorFormat, f.Format)
		}
	}
	return pkt, nil
}

func (s *Stream) status(pkt *packet.Packet, fps float64) packet.Status {
	if math.IsNaN(fps) {
		fps = 0
	}
	st := packet.Status{
		packet.KeyName:            s.name,
		packet.KeyDeviceUID:       pkt.DeviceUID,
		packet.KeyTimestamp:       pkt.Timestamp,
		packet.KeySourceTimestamp: pkt.SourceTimestamp,
		packet.KeyRunning:         true,
		packet.KeyFPS:             fps,
	}
	for k, v := range pkt.GetBroadcasts() {
		st[k] = v
	}
	return st
}

func (s *Stream) crash(link *Link, err error) error {
	s.logger.Error("Stream crashed", zap.Error(err), zap.Stack("stack"))
	s.metrics.IncCrash(s.name)

	st := s.DefaultStatus()
	st[packet.KeyException] = err.Error()
	link.Publish(st)
	return fmt.Errorf("stream %s: %w", s.name, err)
}
