// Package id generates the sortable identifiers used for calibration
// records and manager runs.
//
// IDs are ULIDs, optionally prefixed with their kind (cal_*, run_*) so they
// read well in logs and file names. ULIDs sort by creation time, which keeps
// a directory of calibration records in chronological order.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Typed IDs
// ============================================================================

// CalibrationID identifies a persisted calibration record.
type CalibrationID string

// RunID identifies one manager run.
type RunID string

const (
	CalibrationPrefix = "cal"
	RunPrefix         = "run"
)

func (id CalibrationID) String() string { return string(id) }
func (id RunID) String() string         { return string(id) }

// ============================================================================
// Generator
// ============================================================================

// Generator produces ULIDs from a locked entropy source.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewGeneratorWithEntropy creates a generator with a caller-supplied entropy
// source, for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID string.
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a "prefix_ULID" string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewCalibrationID generates a calibration record id.
func NewCalibrationID() CalibrationID {
	return CalibrationID(Default().GenerateWithPrefix(CalibrationPrefix))
}

// NewRunID generates a manager run id.
func NewRunID() RunID {
	return RunID(Default().GenerateWithPrefix(RunPrefix))
}

// ============================================================================
// Parsing
// ============================================================================

// Strip removes a known kind prefix, returning the bare ULID text.
func Strip(id string) string {
	if i := strings.IndexByte(id, '_'); i >= 0 {
		return id[i+1:]
	}
	return id
}

// IsValid reports whether id (prefixed or bare) holds a valid ULID.
func IsValid(id string) bool {
	_, err := ulid.Parse(Strip(id))
	return err == nil
}

// Timestamp extracts the creation time encoded in id.
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.Parse(Strip(id))
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
