package process

import (
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/gazeflow/internal/domain/device"
	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
)

// VideoFileSyncer rewinds its stream's file playback whenever the master
// stream's timestamp goes backwards, which means the master looped. It
// acts before the stream fetches its next frame.
type VideoFileSyncer struct {
	*Base
	master string
	key    string

	mu       sync.Mutex
	device   device.Resetter
	last     float64
	seen     bool
	attached string
}

// NewVideoFileSyncer builds the syncer. It needs AttachDevice before it
// can reset anything.
func NewVideoFileSyncer(cfg VideoFileSyncerConfig, env Env) *VideoFileSyncer {
	s := &VideoFileSyncer{
		Base:   newBase(KindVideoFileSyncer, cfg.Blocking(), env),
		master: cfg.Master,
		key:    cfg.Key,
	}
	s.listenFor = []string{cfg.Key}
	return s
}

// AttachDevice implements DeviceAttacher.
func (s *VideoFileSyncer) AttachDevice(dev device.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := dev.(device.Resetter)
	if !ok {
		s.logger.Error("Syncer attached to a device without playback control",
			zap.String("device", dev.UID()),
			zap.Error(ErrNotResettable))
		return
	}
	s.device = r
	s.attached = dev.UID()
}

// BeforeFetch implements BeforeFetcher.
func (s *VideoFileSyncer) BeforeFetch(notifications packet.Notifications) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range notifications {
		src, ok := n.Source(s.master)
		if !ok {
			continue
		}
		ts, ok := packet.AsFloat(src[s.key])
		if !ok {
			continue
		}

		if s.seen && ts < s.last {
			s.reset(ts)
		}
		s.last, s.seen = ts, true
	}
}

func (s *VideoFileSyncer) reset(ts float64) {
	logger := s.logger.With(
		zap.String("master", s.master),
		zap.Float64("previous", s.last),
		zap.Float64("current", ts))
	if s.device == nil {
		logger.Warn("Master stream looped but no device is attached")
		return
	}
	if err := s.device.Reset(); err != nil {
		logger.Error("Failed to reset playback", zap.String("device", s.attached), zap.Error(err))
		return
	}
	logger.Info("Master stream looped, playback reset", zap.String("device", s.attached))
}
