package recording

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/shared/codec"
)

const (
	FramesExt              = ".frames.zst"
	TimestampsSuffix       = "_timestamps.json"
	SourceTimestampsSuffix = "_source_timestamps.json"

	containerMagic   = "GZFR"
	containerVersion = 1
)

// FramesPath returns the container path for a recording name in dir.
func FramesPath(dir, name string) string {
	return filepath.Join(dir, name+FramesExt)
}

// TimestampsPath returns the timestamp array path for a recording.
func TimestampsPath(dir, name string) string {
	return filepath.Join(dir, name+TimestampsSuffix)
}

// SourceTimestampsPath returns the source timestamp array path.
func SourceTimestampsPath(dir, name string) string {
	return filepath.Join(dir, name+SourceTimestampsSuffix)
}

// FrameWriterOptions configures a FrameWriter.
type FrameWriterOptions struct {
	// SourceTimestamps also persists the device clock array.
	SourceTimestamps bool
	Level            zstd.EncoderLevel
}

// FrameWriter appends frames to a compressed container. Timestamp arrays
// are held in memory and written when the writer is closed.
type FrameWriter struct {
	dir  string
	name string
	opts FrameWriterOptions

	mu         sync.Mutex
	file       *os.File
	enc        *zstd.Encoder
	buf        *bufio.Writer
	timestamps []float64
	sources    []float64
	closed     bool
}

// NewFrameWriter creates dir if needed and opens <dir>/<name>.frames.zst.
func NewFrameWriter(dir, name string, opts FrameWriterOptions) (*FrameWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording folder: %w", err)
	}
	if opts.Level == 0 {
		opts.Level = zstd.SpeedFastest
	}

	f, err := os.Create(FramesPath(dir, name))
	if err != nil {
		return nil, fmt.Errorf("create frame container: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(opts.Level))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}

	w := &FrameWriter{
		dir:  dir,
		name: name,
		opts: opts,
		file: f,
		enc:  enc,
		buf:  bufio.NewWriterSize(enc, 1<<20),
	}
	if _, err := w.buf.WriteString(containerMagic); err != nil {
		w.abort()
		return nil, err
	}
	if err := w.buf.WriteByte(containerVersion); err != nil {
		w.abort()
		return nil, err
	}
	return w, nil
}

// Write appends one frame. ts must be strictly greater than the previous
// frame's timestamp.
func (w *FrameWriter) Write(frame *packet.Frame, ts, sourceTS float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if n := len(w.timestamps); n > 0 && ts <= w.timestamps[n-1] {
		return fmt.Errorf("%w: %v after %v", ErrNonMonotonic, ts, w.timestamps[n-1])
	}
	if err := frame.Validate(); err != nil {
		return err
	}

	size := frame.Width * frame.Height * frame.Format.Channels()
	if err := writeFrameHeader(w.buf, frame, size); err != nil {
		return err
	}
	if _, err := w.buf.Write(frame.Data[:size]); err != nil {
		return err
	}

	w.timestamps = append(w.timestamps, ts)
	if w.opts.SourceTimestamps {
		w.sources = append(w.sources, sourceTS)
	}
	return nil
}

// Len returns the number of frames written.
func (w *FrameWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timestamps)
}

// Close flushes the container and writes the timestamp arrays.
// Closing twice is a no-op.
func (w *FrameWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	errs = append(errs, w.buf.Flush(), w.enc.Close(), w.file.Close())
	errs = append(errs, writeTimestamps(TimestampsPath(w.dir, w.name), w.timestamps))
	if w.opts.SourceTimestamps {
		errs = append(errs, writeTimestamps(SourceTimestampsPath(w.dir, w.name), w.sources))
	}
	return errors.Join(errs...)
}

func (w *FrameWriter) abort() {
	w.enc.Close()
	w.file.Close()
}

func writeFrameHeader(out io.Writer, frame *packet.Frame, size int) error {
	format := string(frame.Format)
	if len(format) > math.MaxUint8 {
		return fmt.Errorf("color format name too long")
	}

	hdr := make([]byte, 0, 13+len(format))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(frame.Width))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(frame.Height))
	hdr = append(hdr, byte(len(format)))
	hdr = append(hdr, format...)
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(size))
	_, err := out.Write(hdr)
	return err
}

func writeTimestamps(path string, ts []float64) error {
	if ts == nil {
		ts = []float64{}
	}
	data, err := codec.Marshal(ts)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadTimestamps reads a timestamp array written by a FrameWriter.
func LoadTimestamps(path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ts []float64
	if err := codec.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return ts, nil
}

// FrameReader plays back a frame container in order.
type FrameReader struct {
	path       string
	timestamps []float64
	sources    []float64

	file  *os.File
	dec   *zstd.Decoder
	buf   *bufio.Reader
	index int
}

// OpenFrames opens a container by path. The companion timestamp arrays are
// located next to it.
func OpenFrames(path string) (*FrameReader, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, err
	}
	if !mtype.Is("application/zstd") {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotRecording, filepath.Base(path), mtype.String())
	}

	dir, name := splitFramesPath(path)
	ts, err := LoadTimestamps(TimestampsPath(dir, name))
	if err != nil {
		return nil, fmt.Errorf("load timestamps: %w", err)
	}
	sources, err := LoadTimestamps(SourceTimestampsPath(dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load source timestamps: %w", err)
	}

	r := &FrameReader{path: path, timestamps: ts, sources: sources}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

// Open opens the named recording in dir.
func Open(dir, name string) (*FrameReader, error) {
	return OpenFrames(FramesPath(dir, name))
}

func splitFramesPath(path string) (dir, name string) {
	return filepath.Dir(path), strings.TrimSuffix(filepath.Base(path), FramesExt)
}

func (r *FrameReader) open() error {
	f, err := os.Open(r.path)
	if err != nil {
		return err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("zstd decoder: %w", err)
	}
	buf := bufio.NewReaderSize(dec, 1<<20)

	magic := make([]byte, len(containerMagic)+1)
	if _, err := io.ReadFull(buf, magic); err != nil {
		dec.Close()
		f.Close()
		return fmt.Errorf("%w: %v", ErrNotRecording, err)
	}
	if string(magic[:len(containerMagic)]) != containerMagic || magic[len(containerMagic)] != containerVersion {
		dec.Close()
		f.Close()
		return ErrNotRecording
	}

	r.file, r.dec, r.buf, r.index = f, dec, buf, 0
	return nil
}

// Len returns the number of frames in the recording.
func (r *FrameReader) Len() int {
	return len(r.timestamps)
}

// Timestamps returns the recording's timestamp array.
func (r *FrameReader) Timestamps() []float64 {
	return r.timestamps
}

// Next returns the next frame with its timestamp and source timestamp.
// The source timestamp equals ts when none was recorded. io.EOF marks the
// end of the recording.
func (r *FrameReader) Next() (*packet.Frame, float64, float64, error) {
	if r.index >= len(r.timestamps) {
		return nil, 0, 0, io.EOF
	}

	hdr := make([]byte, 9)
	if _, err := io.ReadFull(r.buf, hdr); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, 0, io.EOF
		}
		return nil, 0, 0, err
	}
	width := binary.LittleEndian.Uint32(hdr[0:4])
	height := binary.LittleEndian.Uint32(hdr[4:8])
	format := make([]byte, hdr[8])
	if _, err := io.ReadFull(r.buf, format); err != nil {
		return nil, 0, 0, err
	}
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r.buf, sizeBuf[:]); err != nil {
		return nil, 0, 0, err
	}
	data := make([]byte, binary.LittleEndian.Uint32(sizeBuf[:]))
	if _, err := io.ReadFull(r.buf, data); err != nil {
		return nil, 0, 0, err
	}

	ts := r.timestamps[r.index]
	src := ts
	if r.index < len(r.sources) {
		src = r.sources[r.index]
	}
	r.index++

	frame := &packet.Frame{
		Width:  int(width),
		Height: int(height),
		Format: packet.ColorFormat(format),
		Data:   data,
	}
	return frame, ts, src, nil
}

// Reset rewinds to the first frame.
func (r *FrameReader) Reset() error {
	r.closeFile()
	return r.open()
}

// Close releases the file.
func (r *FrameReader) Close() error {
	return r.closeFile()
}

func (r *FrameReader) closeFile() error {
	if r.dec != nil {
		r.dec.Close()
		r.dec = nil
	}
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}
