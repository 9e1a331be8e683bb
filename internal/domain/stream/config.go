package stream

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/gazeflow/internal/domain/device"
	"github.com/GriffinCanCode/gazeflow/internal/shared/codec"
	"github.com/GriffinCanCode/gazeflow/internal/shared/utils"
)

// Kind selects what the stream reads from its device.
type Kind string

const (
	KindVideo  Kind = "video"
	KindMotion Kind = "motion"
)

// ErrUnknownKind is returned for an unrecognized stream tag.
var ErrUnknownKind = errors.New("unknown stream kind")

// ParseKind validates a stream tag.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindVideo, KindMotion:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Mode returns the device read mode.
func (k Kind) Mode() device.Mode {
	if k == KindMotion {
		return device.ModeMotion
	}
	return device.ModeVideo
}

// Config describes one stream. Device and Pipeline stay generic here and
// are decoded by their own packages.
type Config struct {
	Name     string           `json:"name"`
	Kind     Kind             `json:"kind"`
	Device   map[string]any   `json:"device"`
	Pipeline []map[string]any `json:"pipeline"`

	// FPSBuffer overrides the engine-wide frame rate history length.
	FPSBuffer int `json:"fps_buffer"`

	// AllowFailure keeps retrying a device that is not connected instead of
	// failing the start.
	AllowFailure bool `json:"allow_failure"`
}

// DecodeConfig strictly decodes one stream entry.
func DecodeConfig(raw map[string]any) (Config, error) {
	var cfg Config
	if err := codec.DecodeStrict(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("stream config: %w", err)
	}
	if err := utils.ValidateName(cfg.Name); err != nil {
		return Config{}, fmt.Errorf("stream config: %w", err)
	}
	if cfg.Kind == "" {
		cfg.Kind = KindVideo
	}
	if _, err := ParseKind(string(cfg.Kind)); err != nil {
		return Config{}, fmt.Errorf("stream %s: %w", cfg.Name, err)
	}
	if cfg.Device == nil {
		return Config{}, fmt.Errorf("stream %s: device is required", cfg.Name)
	}
	if cfg.FPSBuffer < 0 {
		return Config{}, fmt.Errorf("stream %s: fps_buffer must not be negative", cfg.Name)
	}
	return cfg, nil
}

// DecodeSet decodes the "streams" list of a stream set file.
func DecodeSet(tree map[string]any) ([]Config, error) {
	raw, ok := tree["streams"].([]any)
	if !ok {
		return nil, errors.New("stream set: \"streams\" must be a list")
	}

	configs := make([]Config, 0, len(raw))
	for i, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("stream set: entry %d is not a mapping", i)
		}
		cfg, err := DecodeConfig(m)
		if err != nil {
			return nil, fmt.Errorf("stream set entry %d: %w", i, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
