package manager

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/gazeflow/internal/domain/calibration"
	"github.com/GriffinCanCode/gazeflow/internal/domain/device"
	"github.com/GriffinCanCode/gazeflow/internal/domain/process"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/config"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/monitoring"
)

// Option configures a Manager.
type Option func(*options)

type options struct {
	engine   config.EngineConfig
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	viewer   process.Viewer
	recDir   string
	store    *calibration.Store
	computer calibration.Computer
	devices  map[string]device.Device
}

func defaultOptions() *options {
	return &options{
		engine:  config.Default().Engine,
		logger:  zap.NewNop(),
		devices: make(map[string]device.Device),
	}
}

// WithEngineConfig sets intervals, timeouts and queue sizes.
func WithEngineConfig(cfg config.EngineConfig) Option {
	return func(o *options) { o.engine = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics enables metric reporting for the manager and its streams.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithViewer sets where video_display steps send frames.
func WithViewer(v process.Viewer) Option {
	return func(o *options) { o.viewer = v }
}

// WithRecordingDir sets the root for recorder steps with relative folders.
func WithRecordingDir(dir string) Option {
	return func(o *options) { o.recDir = dir }
}

// WithCalibrationStore sets where calibration steps save and load records.
func WithCalibrationStore(s *calibration.Store) Option {
	return func(o *options) { o.store = s }
}

// WithComputer replaces the default calibration computer.
func WithComputer(c calibration.Computer) Option {
	return func(o *options) { o.computer = c }
}

// WithDevice supplies a ready device for the named stream instead of
// constructing one from its device config.
func WithDevice(stream string, d device.Device) Option {
	return func(o *options) { o.devices[stream] = d }
}
