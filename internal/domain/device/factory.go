package device

import (
	"fmt"

	"go.uber.org/zap"
)

// Option configures device construction.
type Option func(*options)

type options struct {
	logger *zap.Logger
	script []Reading
}

// WithLogger sets the device logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithScript makes a mock device replay readings verbatim, then report
// stream_stop.
func WithScript(readings ...Reading) Option {
	return func(o *options) { o.script = append(o.script, readings...) }
}

// New constructs the device for cfg.
func New(cfg Config, opts ...Option) (Device, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	switch c := cfg.(type) {
	case *MockConfig:
		return NewMock(*c, opts...)
	case *VideoFileConfig:
		return NewVideoFile(*c, o.logger), nil
	case *DriverConfig:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, c.Kind)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, cfg)
	}
}
