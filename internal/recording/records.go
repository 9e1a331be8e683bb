package recording

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/gazeflow/internal/shared/codec"
)

// RecordsExt is the extension of JSON-lines record files.
const RecordsExt = ".jsonl.zst"

// RecordsPath returns the record file path for name in dir.
func RecordsPath(dir, name string) string {
	return filepath.Join(dir, name+RecordsExt)
}

// RecordWriter appends JSON records, one per line, to a compressed file.
type RecordWriter struct {
	mu     sync.Mutex
	file   *os.File
	enc    *zstd.Encoder
	buf    *bufio.Writer
	count  int
	closed bool
}

// NewRecordWriter opens <dir>/<name>.jsonl.zst.
func NewRecordWriter(dir, name string) (*RecordWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording folder: %w", err)
	}
	f, err := os.Create(RecordsPath(dir, name))
	if err != nil {
		return nil, fmt.Errorf("create record file: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return &RecordWriter{file: f, enc: enc, buf: bufio.NewWriter(enc)}, nil
}

// Write appends one record.
func (w *RecordWriter) Write(record any) error {
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if _, err := w.buf.Write(data); err != nil {
		return err
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return err
	}
	w.count++
	return nil
}

// Len returns the number of records written.
func (w *RecordWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes and closes the file. Closing twice is a no-op.
func (w *RecordWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.buf.Flush(); err != nil {
		w.enc.Close()
		w.file.Close()
		return err
	}
	if err := w.enc.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// ReadRecords decodes every record in a JSON-lines file into generic maps.
func ReadRecords(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	defer dec.Close()

	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)

	var out []map[string]any
	for scanner.Scan() {
		var rec map[string]any
		if err := codec.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
	return out, scanner.Err()
}
