package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/gazeflow/internal/domain/device"
	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/domain/pipeline"
	"github.com/GriffinCanCode/gazeflow/internal/domain/process"
	"github.com/GriffinCanCode/gazeflow/internal/domain/stream"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/config"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/monitoring"
)

// Manager owns a fixed set of streams for the duration of a run.
type Manager struct {
	engine  config.EngineConfig
	logger  *zap.Logger
	metrics *monitoring.Metrics

	streams   map[string]*stream.Stream
	links     map[string]*stream.Link
	listenFor map[string][]string
	order     []string

	mu       sync.RWMutex
	status   map[string]packet.Status
	updated  map[string]time.Time
	reported map[string]bool

	waitMu  sync.Mutex
	waiters []*waiter

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New builds every stream. Device configs with the same identity share one
// device instance.
func New(configs []stream.Config, opts ...Option) (*Manager, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	m := &Manager{
		engine:    o.engine,
		logger:    o.logger.Named("manager"),
		metrics:   o.metrics,
		streams:   make(map[string]*stream.Stream, len(configs)),
		links:     make(map[string]*stream.Link, len(configs)),
		listenFor: make(map[string][]string, len(configs)),
		status:    make(map[string]packet.Status, len(configs)),
		updated:   make(map[string]time.Time, len(configs)),
		reported:  make(map[string]bool),
	}

	for _, cfg := range configs {
		if _, dup := m.streams[cfg.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStream, cfg.Name)
		}
		m.streams[cfg.Name] = nil
		m.order = append(m.order, cfg.Name)
	}

	devices, err := m.buildDevices(configs, o)
	if err != nil {
		return nil, err
	}

	for _, cfg := range configs {
		s, err := m.buildStream(cfg, devices[cfg.Name], o)
		if err != nil {
			return nil, err
		}
		m.streams[cfg.Name] = s
		m.links[cfg.Name] = stream.NewLink(m.engine.StatusQueue, m.engine.NotificationQueue)
		m.listenFor[cfg.Name] = s.ListenFor()
		m.status[cfg.Name] = s.DefaultStatus()
	}

	m.logger.Info("Manager created", zap.Strings("streams", m.order))
	return m, nil
}

// buildDevices constructs one device per identity and hands every stream
// its own handle.
func (m *Manager) buildDevices(configs []stream.Config, o *options) (map[string]device.Device, error) {
	out := make(map[string]device.Device, len(configs))
	groups := make(map[string][]string)
	cfgs := make(map[string]device.Config)
	var identities []string

	for _, cfg := range configs {
		if d, ok := o.devices[cfg.Name]; ok {
			out[cfg.Name] = d
			continue
		}
		dcfg, err := device.Decode(cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", cfg.Name, err)
		}
		key := device.Identity(dcfg)
		if key == "" {
			key = "stream:" + cfg.Name
		}
		if _, seen := groups[key]; !seen {
			identities = append(identities, key)
			cfgs[key] = dcfg
		}
		groups[key] = append(groups[key], cfg.Name)
	}

	for _, key := range identities {
		names := groups[key]
		d, err := device.New(cfgs[key], device.WithLogger(m.logger.Named("device")))
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", names[0], err)
		}
		if len(names) > 1 {
			m.logger.Info("Sharing device between streams",
				zap.String("device", d.UID()),
				zap.Strings("streams", names))
		}
		for i, h := range shareDevice(d, len(names)) {
			out[names[i]] = h
		}
	}
	return out, nil
}

func (m *Manager) buildStream(cfg stream.Config, dev device.Device, o *options) (*stream.Stream, error) {
	env := process.Env{
		Stream:       cfg.Name,
		Logger:       logging.ForStream(o.logger, cfg.Name),
		Metrics:      o.metrics,
		Workers:      m.engine.PoolWorkers,
		Queue:        m.engine.PoolQueue,
		Viewer:       o.viewer,
		RecordingDir: o.recDir,
		Store:        o.store,
		Computer:     o.computer,
	}
	steps, err := process.Build(cfg.Pipeline, env)
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", cfg.Name, err)
	}

	return stream.New(cfg, dev, pipeline.New(steps...),
		stream.WithLogger(o.logger),
		stream.WithMetrics(o.metrics),
		stream.WithPacketTimeout(m.engine.PacketTimeout),
		stream.WithReconnectInterval(m.engine.ReconnectInterval),
		stream.WithFPSBuffer(m.engine.FPSBuffer),
	)
}

// Streams returns the stream names in configuration order.
func (m *Manager) Streams() []string {
	return append([]string(nil), m.order...)
}

// Stream returns the named stream.
func (m *Manager) Stream(name string) (*stream.Stream, bool) {
	s, ok := m.streams[name]
	return s, ok
}

// Start launches one worker per stream. A worker that fails is logged and
// reported through its status; the others keep running.
func (m *Manager) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}

	wctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(wctx)
	for _, name := range m.order {
		s, link := m.streams[name], m.links[name]
		g.Go(func() error {
			if err := s.Serve(gctx, link); err != nil {
				m.logger.Error("Stream worker exited", zap.String("stream", s.Name()), zap.Error(err))
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	m.cancel, m.done, m.running = cancel, done, true
	m.logger.Info("Stream workers started", zap.Int("count", len(m.order)))
	return nil
}

// Done is closed once every worker has exited. It is nil before Start.
func (m *Manager) Done() <-chan struct{} {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.done
}

// Stop signals every worker and waits for them to exit.
func (m *Manager) Stop() error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	m.cancel()
	m.running = false

	var err error
	timeout := m.engine.StopTimeout
	if timeout <= 0 {
		<-m.done
	} else {
		select {
		case <-m.done:
		case <-time.After(timeout):
			err = fmt.Errorf("%w after %v", ErrStopTimeout, timeout)
		}
	}

	m.Update()
	m.logger.Info("Stream workers stopped")
	return err
}

// Spin calls Update on the engine's update interval until ctx ends, the
// run duration elapses, or every worker has exited.
func (m *Manager) Spin(ctx context.Context) error {
	done := m.Done()
	if done == nil {
		return ErrNotRunning
	}

	interval := m.engine.UpdateInterval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if m.engine.RunDuration > 0 {
		timer := time.NewTimer(m.engine.RunDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline:
			m.logger.Info("Run duration elapsed", zap.Duration("duration", m.engine.RunDuration))
			return nil
		case <-done:
			m.Update()
			return nil
		case <-ticker.C:
			m.Update()
		}
	}
}

// SpinAsync runs Spin in the background. The returned channel yields its
// result and is then closed.
func (m *Manager) SpinAsync(ctx context.Context) <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		errc <- m.Spin(ctx)
	}()
	return errc
}

// Run starts the workers, spins until ctx ends, the duration elapses or
// all workers exit, then stops them.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	spinErr := m.Spin(ctx)
	return errors.Join(spinErr, m.Stop())
}

// Update drains every stream's statuses, routes broadcast fields to the
// streams listening for them and refreshes the cached status view.
func (m *Manager) Update() {
	fresh := make(map[string]packet.Status, len(m.order))
	for _, name := range m.order {
		for _, st := range m.links[name].Statuses() {
			fresh[name] = st
			m.checkWaiters(name, st)
		}
	}

	for dest, n := range RouteNotifications(m.listenFor, fresh) {
		m.links[dest].Notify(n)
		for _, src := range sources(n) {
			m.metrics.IncRouted(src, dest)
		}
	}

	now := time.Now()
	m.mu.Lock()
	for name, st := range fresh {
		m.status[name] = st
		m.updated[name] = now
		if exc, ok := st.Exception(); ok && !m.reported[name] {
			m.reported[name] = true
			m.logger.Error("Stream reported an exception",
				zap.String("stream", name),
				zap.String("exception", exc))
		}
	}
	for _, name := range m.order {
		if _, ok := fresh[name]; ok {
			continue
		}
		last, seen := m.updated[name]
		if !seen || now.Sub(last) <= m.engine.StatusTimeout {
			continue
		}
		if _, crashed := m.status[name].Exception(); crashed {
			continue
		}
		m.status[name] = m.streams[name].DefaultStatus()
		delete(m.updated, name)
	}
	running := 0
	for _, st := range m.status {
		if st.Running() {
			running++
		}
	}
	m.mu.Unlock()

	m.metrics.SetStreamsRunning(running)
}

// SendNotification queues n ahead of routed traffic for the named streams,
// or for every stream when none are named.
func (m *Manager) SendNotification(n packet.Notification, streams ...string) error {
	if len(streams) == 0 {
		streams = m.order
	}
	for _, name := range streams {
		if _, ok := m.links[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownStream, name)
		}
	}
	for _, name := range streams {
		cp := make(packet.Notification, len(n))
		for k, v := range n {
			cp[k] = v
		}
		m.links[name].NotifyPriority(cp)
	}
	m.logger.Debug("Notification sent", zap.Strings("streams", streams), zap.Int("keys", len(n)))
	return nil
}

// Status returns a copy of every stream's cached status.
func (m *Manager) Status() map[string]packet.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]packet.Status, len(m.status))
	for k, v := range m.status {
		out[k] = v.Copy()
	}
	return out
}

// StatusOf returns a copy of one stream's cached status.
func (m *Manager) StatusOf(name string) (packet.Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.status[name]
	if !ok {
		return nil, false
	}
	return st.Copy(), true
}

// AllStreamsRunning reports whether every stream's latest status says it
// is running. A crashed stream is never restarted, so it stays false.
func (m *Manager) AllStreamsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, st := range m.status {
		if !st.Running() {
			return false
		}
	}
	return len(m.status) > 0
}
