package device

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/recording"
)

// VideoFile plays back a frame recording. Readings carry the recorded
// timestamp as their source timestamp.
type VideoFile struct {
	cfg    VideoFileConfig
	logger *zap.Logger

	mu     sync.Mutex
	reader *recording.FrameReader
	pacer  *pacer
	resets int
}

// NewVideoFile creates an unstarted playback device.
func NewVideoFile(cfg VideoFileConfig, logger *zap.Logger) *VideoFile {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VideoFile{
		cfg:    cfg,
		logger: logger.With(zap.String("device", cfg.DeviceUID())),
		pacer:  newPacer(cfg.FPS),
	}
}

func (v *VideoFile) UID() string               { return v.cfg.DeviceUID() }
func (v *VideoFile) Kind() Kind                { return KindVideoFile }
func (v *VideoFile) Timebase() packet.Timebase { return v.cfg.Timebase }

// Start opens the recording. A missing recording reports not connected.
func (v *VideoFile) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.reader != nil {
		return nil
	}
	r, err := recording.Open(v.cfg.Folder, v.cfg.Name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &NotConnectedError{UID: v.UID()}
		}
		return err
	}
	v.reader = r
	v.logger.Info("Playback opened", zap.Int("frames", r.Len()), zap.Bool("loop", v.cfg.Loop))
	return nil
}

// Stop closes the recording.
func (v *VideoFile) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.reader == nil {
		return nil
	}
	err := v.reader.Close()
	v.reader = nil
	return err
}

func (v *VideoFile) IsStarted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reader != nil
}

// Reset rewinds playback to the first frame.
func (v *VideoFile) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.reader == nil {
		return ErrNotStarted
	}
	v.resets++
	v.logger.Debug("Playback reset", zap.Int("resets", v.resets))
	return v.reader.Reset()
}

// Resets returns how often playback was rewound.
func (v *VideoFile) Resets() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resets
}

// Read returns the next recorded frame. At the end of the recording it
// rewinds when looping, otherwise it reports stream_stop.
func (v *VideoFile) Read(ctx context.Context, mode Mode) (Reading, error) {
	if mode != ModeVideo {
		return Reading{}, &IllegalSettingError{Setting: "mode", Value: mode}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.reader == nil {
		return Reading{}, ErrNotStarted
	}
	if err := v.pacer.wait(ctx); err != nil {
		return Reading{}, err
	}

	frame, _, recorded, err := v.reader.Next()
	if errors.Is(err, io.EOF) {
		if !v.cfg.Loop {
			return EventReading(EventStreamStop), nil
		}
		if err := v.reader.Reset(); err != nil {
			return Reading{}, err
		}
		frame, _, recorded, err = v.reader.Next()
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			return EventReading(EventStreamStop), nil
		}
		return Reading{}, err
	}

	return SourceReading(frame, Now(v.cfg.Timebase), recorded), nil
}
