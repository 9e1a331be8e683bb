package device

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
)

// Mock is a synthetic device. It renders frames or motion samples at a
// configured rate, or replays a fixed script of readings.
type Mock struct {
	cfg    MockConfig
	logger *zap.Logger

	mu       sync.Mutex
	started  bool
	starts   int
	stops    int
	reads    int
	script   []Reading
	scripted bool
	pacer    *pacer
}

// NewMock builds a mock device. A missing uid is generated.
func NewMock(cfg MockConfig, opts ...Option) (*Mock, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.UID == "" {
		cfg.UID = uuid.NewString()
	}

	return &Mock{
		cfg:      cfg,
		logger:   o.logger.With(zap.String("device", cfg.UID)),
		script:   o.script,
		scripted: len(o.script) > 0,
		pacer:    newPacer(cfg.FPS),
	}, nil
}

func (m *Mock) UID() string               { return m.cfg.UID }
func (m *Mock) Kind() Kind                { return KindMock }
func (m *Mock) Timebase() packet.Timebase { return m.cfg.Timebase }

// Start connects the device, failing while ConnectAfter attempts remain.
func (m *Mock) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}
	m.starts++
	if m.cfg.ConnectAfter < 0 || m.starts <= m.cfg.ConnectAfter {
		return &NotConnectedError{UID: m.cfg.UID}
	}
	m.started = true
	m.logger.Debug("Mock device started", zap.Int("attempt", m.starts))
	return nil
}

// Stop disconnects the device.
func (m *Mock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	m.started = false
	m.stops++
	m.logger.Debug("Mock device stopped")
	return nil
}

func (m *Mock) IsStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Stops returns how many times the device was torn down.
func (m *Mock) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

// Read returns the next scripted reading or renders a new one.
func (m *Mock) Read(ctx context.Context, mode Mode) (Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return Reading{}, ErrNotStarted
	}

	if m.scripted {
		if len(m.script) == 0 {
			return EventReading(EventStreamStop), nil
		}
		r := m.script[0]
		m.script = m.script[1:]
		return r, nil
	}

	if m.cfg.Frames > 0 && m.reads >= m.cfg.Frames {
		return EventReading(EventStreamStop), nil
	}
	if err := m.pacer.wait(ctx); err != nil {
		return Reading{}, err
	}

	n := m.reads
	m.reads++
	ts := Monotonic()

	var frame any
	switch mode {
	case ModeMotion:
		frame = SynthMotion(n, ts)
	case ModeVideo:
		frame = SynthFrame(m.cfg.Pattern, m.cfg.Resolution[0], m.cfg.Resolution[1], n, m.cfg.ColorFormat)
	default:
		return Reading{}, &IllegalSettingError{Setting: "mode", Value: mode}
	}

	if m.cfg.Timebase == packet.TimebaseEpoch {
		return SourceReading(frame, ts, Epoch()), nil
	}
	return FrameReading(frame, ts), nil
}
