package process

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/gazeflow/internal/domain/calibration"
	"github.com/GriffinCanCode/gazeflow/internal/shared/codec"
)

// Kind tags a step type.
type Kind string

const (
	KindPupilDetector   Kind = "pupil_detector"
	KindCircleDetector  Kind = "circle_detector"
	KindGazeMapper      Kind = "gaze_mapper"
	KindCalibration     Kind = "calibration"
	KindValidation      Kind = "validation"
	KindVideoDisplay    Kind = "video_display"
	KindVideoRecorder   Kind = "video_recorder"
	KindMotionRecorder  Kind = "motion_recorder"
	KindVideoFileSyncer Kind = "video_file_syncer"
)

// Kinds lists every known step kind.
var Kinds = []Kind{
	KindPupilDetector, KindCircleDetector, KindGazeMapper,
	KindCalibration, KindValidation,
	KindVideoDisplay, KindVideoRecorder, KindMotionRecorder,
	KindVideoFileSyncer,
}

var (
	// ErrUnknownKind is returned for an unrecognized step tag.
	ErrUnknownKind = errors.New("unknown process kind")

	// ErrInvalidConfig is returned when a step config fails validation.
	ErrInvalidConfig = errors.New("invalid process config")
)

// ParseKind validates a step tag.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Config is a decoded per-kind step configuration.
type Config interface {
	ProcessKind() Kind
	Blocking() bool
}

// Common holds the fields every step accepts.
type Common struct {
	Kind Kind `json:"kind"`

	// Block runs the transform inline. Unset picks the kind's default.
	Block *bool `json:"block,omitempty"`
}

func (c Common) ProcessKind() Kind { return c.Kind }

func (c Common) blockOr(def bool) bool {
	if c.Block == nil {
		return def
	}
	return *c.Block
}

// PupilDetectorConfig configures pupil detection on eye frames.
type PupilDetectorConfig struct {
	Common
	EyeID int `json:"eye_id"`

	// Threshold is the darkness cutoff; zero derives it from the frame.
	Threshold int `json:"threshold"`
	MinArea   int `json:"min_area"`
}

func (c *PupilDetectorConfig) Blocking() bool { return c.blockOr(false) }

// CircleDetectorConfig configures calibration marker detection.
type CircleDetectorConfig struct {
	Common
	Threshold int     `json:"threshold"`
	MinRadius float64 `json:"min_radius"`
	MaxRadius float64 `json:"max_radius"`
}

func (c *CircleDetectorConfig) Blocking() bool { return c.blockOr(false) }

// GazeMapperConfig configures gaze mapping. Left and Right name the eye
// streams; right is eye 0 and left is eye 1.
type GazeMapperConfig struct {
	Common
	Left  string `json:"left"`
	Right string `json:"right"`

	// Calibration selects a saved record: an id, "latest", or empty to wait
	// for a result computed upstream in the same pipeline.
	Calibration   string  `json:"calibration"`
	MinConfidence float64 `json:"min_confidence"`
}

func (c *GazeMapperConfig) Blocking() bool { return c.blockOr(false) }

// CalibrationConfig configures the calibration and validation steps.
type CalibrationConfig struct {
	Common
	Left          string                    `json:"left"`
	Right         string                    `json:"right"`
	Resolution    [2]int                    `json:"resolution"`
	Mode          calibration.DetectionMode `json:"mode"`
	MinConfidence float64                   `json:"min_confidence"`
	Save          bool                      `json:"save"`
}

func (c *CalibrationConfig) Blocking() bool { return c.blockOr(true) }

// VideoDisplayConfig configures the preview sink.
type VideoDisplayConfig struct {
	Common
	Title    string `json:"title"`
	Annotate *bool  `json:"annotate,omitempty"`
}

func (c *VideoDisplayConfig) Blocking() bool { return c.blockOr(true) }

// VideoRecorderConfig configures the frame recorder.
type VideoRecorderConfig struct {
	Common
	Folder           string `json:"folder"`
	Name             string `json:"name"`
	SourceTimestamps bool   `json:"source_timestamps"`
	CompressionLevel int    `json:"compression_level"`
}

func (c *VideoRecorderConfig) Blocking() bool { return c.blockOr(true) }

// MotionRecorderConfig configures the odometry recorder.
type MotionRecorderConfig struct {
	Common
	Folder string `json:"folder"`
	Name   string `json:"name"`
}

func (c *MotionRecorderConfig) Blocking() bool { return c.blockOr(true) }

// VideoFileSyncerConfig configures loop detection on a master stream.
type VideoFileSyncerConfig struct {
	Common
	Master string `json:"master"`

	// Key is the master status field compared across cycles.
	Key string `json:"key"`
}

func (c *VideoFileSyncerConfig) Blocking() bool { return c.blockOr(true) }

// Decode turns a generic config tree into the typed config for its kind.
// Unknown fields are rejected.
func Decode(raw map[string]any) (Config, error) {
	tag, _ := raw["kind"].(string)
	kind, err := ParseKind(tag)
	if err != nil {
		return nil, err
	}

	var cfg Config
	switch kind {
	case KindPupilDetector:
		cfg = &PupilDetectorConfig{}
	case KindCircleDetector:
		cfg = &CircleDetectorConfig{}
	case KindGazeMapper:
		cfg = &GazeMapperConfig{}
	case KindCalibration, KindValidation:
		cfg = &CalibrationConfig{}
	case KindVideoDisplay:
		cfg = &VideoDisplayConfig{}
	case KindVideoRecorder:
		cfg = &VideoRecorderConfig{}
	case KindMotionRecorder:
		cfg = &MotionRecorderConfig{}
	case KindVideoFileSyncer:
		cfg = &VideoFileSyncerConfig{}
	}

	if err := codec.DecodeStrict(raw, cfg); err != nil {
		return nil, fmt.Errorf("%s config: %w", kind, err)
	}
	if err := prepare(cfg); err != nil {
		return nil, fmt.Errorf("%s config: %w", kind, err)
	}
	return cfg, nil
}

// prepare applies defaults and validates.
func prepare(cfg Config) error {
	switch c := cfg.(type) {
	case *PupilDetectorConfig:
		if c.EyeID < 0 || c.EyeID > 1 {
			return fmt.Errorf("%w: eye_id must be 0 or 1", ErrInvalidConfig)
		}
		if c.MinArea <= 0 {
			c.MinArea = 12
		}
	case *CircleDetectorConfig:
		if c.MaxRadius > 0 && c.MinRadius > c.MaxRadius {
			return fmt.Errorf("%w: min_radius exceeds max_radius", ErrInvalidConfig)
		}
		if c.MinRadius <= 0 {
			c.MinRadius = 3
		}
	case *GazeMapperConfig:
		eyeDefaults(&c.Left, &c.Right)
	case *CalibrationConfig:
		eyeDefaults(&c.Left, &c.Right)
		if c.Mode == "" {
			c.Mode = calibration.Mode2D
		}
		if c.Mode != calibration.Mode2D && c.Mode != calibration.Mode3D {
			return fmt.Errorf("%w: mode %q", ErrInvalidConfig, c.Mode)
		}
		if c.MinConfidence == 0 {
			c.MinConfidence = 0.8
		}
	case *VideoRecorderConfig:
		if c.CompressionLevel < 0 || c.CompressionLevel > 4 {
			return fmt.Errorf("%w: compression_level must be 0-4", ErrInvalidConfig)
		}
	case *VideoFileSyncerConfig:
		if c.Master == "" {
			return fmt.Errorf("%w: master is required", ErrInvalidConfig)
		}
		if c.Key == "" {
			c.Key = "timestamp"
		}
	}
	return nil
}

func eyeDefaults(left, right *string) {
	if *left == "" {
		*left = "eye1"
	}
	if *right == "" {
		*right = "eye0"
	}
}
