package process

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/recording"
)

// recorderTarget resolves the folder and file name of a recorder.
func recorderTarget(folder, name string, env Env) (string, string) {
	if folder == "" {
		folder = env.RecordingDir
	} else if !filepath.IsAbs(folder) && env.RecordingDir != "" {
		folder = filepath.Join(env.RecordingDir, folder)
	}
	if folder == "" {
		folder = "."
	}
	if name == "" {
		name = env.Stream
	}
	return folder, name
}

// VideoRecorder writes frames with their monotonic timestamps and,
// optionally, their source timestamps. The timestamp arrays are written
// when the recorder stops.
type VideoRecorder struct {
	*Base
	dir, name string
	opts      recording.FrameWriterOptions

	mu     sync.Mutex
	writer *recording.FrameWriter
}

// NewVideoRecorder builds the frame sink. Files are created on Start.
func NewVideoRecorder(cfg VideoRecorderConfig, env Env) *VideoRecorder {
	dir, name := recorderTarget(cfg.Folder, cfg.Name, env)
	r := &VideoRecorder{
		Base: newBase(KindVideoRecorder, cfg.Blocking(), env),
		dir:  dir,
		name: name,
		opts: recording.FrameWriterOptions{
			SourceTimestamps: cfg.SourceTimestamps,
			Level:            zstd.EncoderLevel(cfg.CompressionLevel),
		},
	}
	r.transform = r.write
	return r
}

// Path returns the frame container path.
func (r *VideoRecorder) Path() string {
	return recording.FramesPath(r.dir, r.name)
}

// Start opens the recording.
func (r *VideoRecorder) Start(ctx context.Context) error {
	w, err := recording.NewFrameWriter(r.dir, r.name, r.opts)
	if err != nil {
		return fmt.Errorf("video recorder: %w", err)
	}
	r.mu.Lock()
	r.writer = w
	r.mu.Unlock()

	r.logger.Info("Recording video", zap.String("path", r.Path()))
	return r.Base.Start(ctx)
}

// Stop flushes queued frames, then finalizes the files.
func (r *VideoRecorder) Stop() error {
	_ = r.Base.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return nil
	}
	n := r.writer.Len()
	err := r.writer.Close()
	r.writer = nil
	if err != nil {
		return fmt.Errorf("video recorder: %w", err)
	}
	r.logger.Info("Video recording closed", zap.String("path", r.Path()), zap.Int("frames", n))
	return nil
}

func (r *VideoRecorder) write(_ context.Context, pkt *packet.Packet) error {
	frame, ok := packet.Value[*packet.Frame](pkt, packet.FieldFrame)
	if !ok || frame == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return recording.ErrNotRecording
	}
	err := r.writer.Write(frame, pkt.Timestamp, pkt.SourceTimestamp)
	if errors.Is(err, recording.ErrNonMonotonic) {
		r.logger.Debug("Dropped out-of-order frame", zap.Float64("timestamp", pkt.Timestamp))
		return nil
	}
	return err
}

// MotionRecorder writes odometry samples as JSON lines.
type MotionRecorder struct {
	*Base
	dir, name string

	mu     sync.Mutex
	writer *recording.RecordWriter
}

// NewMotionRecorder builds the motion sink. The file is created on Start.
func NewMotionRecorder(cfg MotionRecorderConfig, env Env) *MotionRecorder {
	dir, name := recorderTarget(cfg.Folder, cfg.Name, env)
	r := &MotionRecorder{
		Base: newBase(KindMotionRecorder, cfg.Blocking(), env),
		dir:  dir,
		name: name,
	}
	r.transform = r.write
	return r
}

// Path returns the record file path.
func (r *MotionRecorder) Path() string {
	return recording.RecordsPath(r.dir, r.name)
}

// Start opens the recording.
func (r *MotionRecorder) Start(ctx context.Context) error {
	w, err := recording.NewRecordWriter(r.dir, r.name)
	if err != nil {
		return fmt.Errorf("motion recorder: %w", err)
	}
	r.mu.Lock()
	r.writer = w
	r.mu.Unlock()

	r.logger.Info("Recording motion", zap.String("path", r.Path()))
	return r.Base.Start(ctx)
}

// Stop flushes and closes the file.
func (r *MotionRecorder) Stop() error {
	_ = r.Base.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return nil
	}
	err := r.writer.Close()
	r.writer = nil
	if err != nil {
		return fmt.Errorf("motion recorder: %w", err)
	}
	return nil
}

func (r *MotionRecorder) write(_ context.Context, pkt *packet.Packet) error {
	motion, ok := packet.Value[packet.Motion](pkt, packet.FieldMotion)
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return recording.ErrNotRecording
	}
	return r.writer.Write(motion)
}
