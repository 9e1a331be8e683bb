// Package config loads engine settings from the environment and stream set
// descriptions from YAML, TOML or JSON files.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all engine configuration.
type Config struct {
	Engine      EngineConfig
	Logging     LogConfig
	HTTP        HTTPConfig
	RateLimit   RateLimitConfig
	Calibration CalibrationConfig
	Recording   RecordingConfig
}

// EngineConfig tunes the manager and stream workers.
type EngineConfig struct {
	UpdateInterval    time.Duration `envconfig:"UPDATE_INTERVAL" default:"10ms"`
	StatusTimeout     time.Duration `envconfig:"STATUS_TIMEOUT" default:"1s"`
	RunDuration       time.Duration `envconfig:"RUN_DURATION" default:"0s"`
	StopTimeout       time.Duration `envconfig:"STOP_TIMEOUT" default:"5s"`
	PoolWorkers       int           `envconfig:"POOL_WORKERS" default:"2"`
	PoolQueue         int           `envconfig:"POOL_QUEUE" default:"4"`
	PacketTimeout     time.Duration `envconfig:"PACKET_TIMEOUT" default:"1s"`
	StatusQueue       int           `envconfig:"STATUS_QUEUE" default:"8"`
	NotificationQueue int           `envconfig:"NOTIFICATION_QUEUE" default:"8"`
	FPSBuffer         int           `envconfig:"FPS_BUFFER" default:"100"`
	ReconnectInterval time.Duration `envconfig:"RECONNECT_INTERVAL" default:"1s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// HTTPConfig holds the status API configuration.
type HTTPConfig struct {
	Enabled      bool          `envconfig:"HTTP_ENABLED" default:"false"`
	Host         string        `envconfig:"HTTP_HOST" default:"127.0.0.1"`
	Port         string        `envconfig:"HTTP_PORT" default:"8080"`
	StatusPush   time.Duration `envconfig:"HTTP_STATUS_PUSH" default:"100ms"`
	AllowOrigins []string      `envconfig:"HTTP_ALLOW_ORIGINS" default:"*"`
}

// RateLimitConfig holds API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// CalibrationConfig configures the calibration computer and record store.
type CalibrationConfig struct {
	URL     string        `envconfig:"CALIBRATION_URL" default:""`
	Timeout time.Duration `envconfig:"CALIBRATION_TIMEOUT" default:"30s"`
	Retries int           `envconfig:"CALIBRATION_RETRIES" default:"2"`
	Dir     string        `envconfig:"CALIBRATION_DIR" default:"calibrations"`
}

// RecordingConfig configures recorder output.
type RecordingConfig struct {
	Root string `envconfig:"RECORDING_ROOT" default:"recordings"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			UpdateInterval:    10 * time.Millisecond,
			StatusTimeout:     time.Second,
			StopTimeout:       5 * time.Second,
			PoolWorkers:       2,
			PoolQueue:         4,
			PacketTimeout:     time.Second,
			StatusQueue:       8,
			NotificationQueue: 8,
			FPSBuffer:         100,
			ReconnectInterval: time.Second,
		},
		Logging: LogConfig{
			Level: "info",
		},
		HTTP: HTTPConfig{
			Host:         "127.0.0.1",
			Port:         "8080",
			StatusPush:   100 * time.Millisecond,
			AllowOrigins: []string{"*"},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
		Calibration: CalibrationConfig{
			Timeout: 30 * time.Second,
			Retries: 2,
			Dir:     "calibrations",
		},
		Recording: RecordingConfig{
			Root: "recordings",
		},
	}
}

// Addr returns the API listen address.
func (c HTTPConfig) Addr() string {
	return c.Host + ":" + c.Port
}
