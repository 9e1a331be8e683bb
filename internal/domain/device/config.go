package device

import (
	"fmt"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/shared/codec"
	"github.com/GriffinCanCode/gazeflow/internal/shared/utils"
)

// Kind tags a device implementation.
type Kind string

const (
	KindMock      Kind = "mock"
	KindVideoFile Kind = "video_file"
	KindUVC       Kind = "uvc"
	KindFLIR      Kind = "flir"
	KindRealSense Kind = "realsense"
)

// ParseKind validates a kind tag.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindMock, KindVideoFile, KindUVC, KindFLIR, KindRealSense:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Config is a decoded per-kind device configuration.
type Config interface {
	DeviceKind() Kind
	DeviceUID() string
}

// MockConfig configures the synthetic device.
type MockConfig struct {
	Kind        Kind               `json:"kind"`
	UID         string             `json:"uid"`
	Resolution  [2]int             `json:"resolution"`
	FPS         float64            `json:"fps"`
	ColorFormat packet.ColorFormat `json:"color_format"`
	Timebase    packet.Timebase    `json:"timebase"`

	// Pattern is what the synthetic frames show: "pupil", "marker" or "blank".
	Pattern string `json:"pattern"`

	// Frames ends the stream after this many readings; zero never ends.
	Frames int `json:"frames"`

	// ConnectAfter fails this many Start calls with a not-connected error
	// before succeeding; negative never connects.
	ConnectAfter int `json:"connect_after"`
}

func (c *MockConfig) DeviceKind() Kind  { return KindMock }
func (c *MockConfig) DeviceUID() string { return c.UID }

func (c *MockConfig) applyDefaults() {
	if c.Resolution == [2]int{} {
		c.Resolution = [2]int{192, 192}
	}
	if c.ColorFormat == "" {
		c.ColorFormat = packet.ColorGray
	}
	if c.Timebase == "" {
		c.Timebase = packet.TimebaseMonotonic
	}
	if c.Pattern == "" {
		c.Pattern = PatternPupil
	}
}

func (c *MockConfig) validate() error {
	if c.Resolution[0] <= 0 || c.Resolution[1] <= 0 {
		return &IllegalSettingError{Setting: "resolution", Value: c.Resolution}
	}
	if c.ColorFormat.Channels() == 0 {
		return &IllegalSettingError{Setting: "color_format", Value: c.ColorFormat}
	}
	if c.FPS < 0 {
		return &IllegalSettingError{Setting: "fps", Value: c.FPS}
	}
	switch c.Pattern {
	case PatternPupil, PatternMarker, PatternBlank:
	default:
		return &IllegalSettingError{Setting: "pattern", Value: c.Pattern}
	}
	return c.Timebase.Validate()
}

// VideoFileConfig configures playback of a frame recording.
type VideoFileConfig struct {
	Kind     Kind            `json:"kind"`
	UID      string          `json:"uid"`
	Folder   string          `json:"folder"`
	Name     string          `json:"name"`
	Loop     bool            `json:"loop"`
	FPS      float64         `json:"fps"`
	Timebase packet.Timebase `json:"timebase"`
}

func (c *VideoFileConfig) DeviceKind() Kind { return KindVideoFile }

func (c *VideoFileConfig) DeviceUID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Folder + "/" + c.Name
}

func (c *VideoFileConfig) applyDefaults() {
	if c.Timebase == "" {
		c.Timebase = packet.TimebaseMonotonic
	}
}

func (c *VideoFileConfig) validate() error {
	if c.Folder == "" {
		return &IllegalSettingError{Setting: "folder", Value: c.Folder}
	}
	if c.Name == "" {
		return &IllegalSettingError{Setting: "name", Value: c.Name}
	}
	if c.FPS < 0 {
		return &IllegalSettingError{Setting: "fps", Value: c.FPS}
	}
	return c.Timebase.Validate()
}

// DriverConfig holds the settings of an external hardware driver.
type DriverConfig struct {
	Kind     Kind           `json:"kind"`
	UID      string         `json:"uid"`
	Settings map[string]any `json:"settings"`
}

func (c *DriverConfig) DeviceKind() Kind  { return c.Kind }
func (c *DriverConfig) DeviceUID() string { return c.UID }

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
	case KindMock:
		c := &MockConfig{}
		if err := codec.DecodeStrict(raw, c); err != nil {
			return nil, fmt.Errorf("mock device config: %w", err)
		}
		c.applyDefaults()
		if err := c.validate(); err != nil {
			return nil, err
		}
		cfg = c
	case KindVideoFile:
		c := &VideoFileConfig{}
		if err := codec.DecodeStrict(raw, c); err != nil {
			return nil, fmt.Errorf("video_file device config: %w", err)
		}
		c.applyDefaults()
		if err := c.validate(); err != nil {
			return nil, err
		}
		cfg = c
	default:
		c := &DriverConfig{}
		if err := codec.DecodeStrict(raw, c); err != nil {
			return nil, fmt.Errorf("%s device config: %w", kind, err)
		}
		cfg = c
	}
	return cfg, nil
}

// Identity returns the grouping key for a device config. Configs with the
// same identity are served by one device instance. An empty uid yields an
// empty identity, meaning the device is never shared.
func Identity(cfg Config) string {
	if cfg.DeviceUID() == "" {
		return ""
	}
	return utils.DefaultHasher().HashFields(
		"kind:"+string(cfg.DeviceKind()),
		"uid:"+cfg.DeviceUID(),
	)
}
