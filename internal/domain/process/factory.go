package process

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/gazeflow/internal/domain/calibration"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/monitoring"
)

// Env holds the collaborators steps are built with.
type Env struct {
	// Stream is the owning stream's name.
	Stream  string
	Logger  *zap.Logger
	Metrics *monitoring.Metrics

	// Workers and Queue size the pool of each non-blocking step.
	Workers int
	Queue   int

	Viewer       Viewer
	RecordingDir string
	Store        *calibration.Store
	Computer     calibration.Computer
}

func (e Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Env) computer() calibration.Computer {
	if e.Computer == nil {
		return calibration.NewPolynomial()
	}
	return e.Computer
}

// New builds the step for cfg.
func New(cfg Config, env Env) (Process, error) {
	switch c := cfg.(type) {
	case *PupilDetectorConfig:
		return NewPupilDetector(*c, env), nil
	case *CircleDetectorConfig:
		return NewCircleDetector(*c, env), nil
	case *GazeMapperConfig:
		return NewGazeMapper(*c, env)
	case *CalibrationConfig:
		if c.Kind == KindValidation {
			return NewValidation(*c, env), nil
		}
		return NewCalibration(*c, env), nil
	case *VideoDisplayConfig:
		return NewVideoDisplay(*c, env), nil
	case *VideoRecorderConfig:
		return NewVideoRecorder(*c, env), nil
	case *MotionRecorderConfig:
		return NewMotionRecorder(*c, env), nil
	case *VideoFileSyncerConfig:
		return NewVideoFileSyncer(*c, env), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, cfg)
	}
}

// Build decodes and constructs a list of steps.
func Build(raws []map[string]any, env Env) ([]Process, error) {
	steps := make([]Process, 0, len(raws))
	for i, raw := range raws {
		cfg, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		step, err := New(cfg, env)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}
