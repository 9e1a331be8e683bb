package calibration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/GriffinCanCode/gazeflow/internal/shared/codec"
	"github.com/GriffinCanCode/gazeflow/internal/shared/id"
)

// ErrNoRecords is returned by Latest on an empty store.
var ErrNoRecords = errors.New("no calibration records")

const recordExt = ".calib.json"

// Record is a persisted calibration.
type Record struct {
	ID      id.CalibrationID `json:"id"`
	Created time.Time        `json:"created"`
	Method  string           `json:"method"`
	Context Context          `json:"context"`
	Result  Result           `json:"result"`
	Pupils  int              `json:"pupils"`
	Markers int              `json:"markers"`
}

// Store keeps calibration records as JSON files named by their id.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The folder is created on first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store folder.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes a new record under a fresh id.
func (s *Store) Save(method string, cctx Context, result Result, pupils, markers int) (Record, error) {
	rec := Record{
		ID:      id.NewCalibrationID(),
		Created: time.Now().UTC(),
		Method:  method,
		Context: cctx,
		Result:  result,
		Pupils:  pupils,
		Markers: markers,
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Record{}, fmt.Errorf("create calibration folder: %w", err)
	}
	data, err := codec.MarshalIndent(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode calibration: %w", err)
	}
	if err := os.WriteFile(s.path(rec.ID), data, 0o644); err != nil {
		return Record{}, fmt.Errorf("write calibration: %w", err)
	}
	return rec, nil
}

// Load reads one record.
func (s *Store) Load(cid id.CalibrationID) (Record, error) {
	data, err := os.ReadFile(s.path(cid))
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := codec.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode calibration %s: %w", cid, err)
	}
	return rec, nil
}

// List returns record ids oldest first.
func (s *Store) List() ([]id.CalibrationID, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ids []id.CalibrationID
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		cid := strings.TrimSuffix(name, recordExt)
		if id.IsValid(cid) {
			ids = append(ids, id.CalibrationID(cid))
		}
	}
	// ULIDs sort by creation time.
	sort.Slice(ids, func(i, j int) bool { return id.Strip(string(ids[i])) < id.Strip(string(ids[j])) })
	return ids, nil
}

// Latest loads the most recent record.
func (s *Store) Latest() (Record, error) {
	ids, err := s.List()
	if err != nil {
		return Record{}, err
	}
	if len(ids) == 0 {
		return Record{}, ErrNoRecords
	}
	return s.Load(ids[len(ids)-1])
}

func (s *Store) path(cid id.CalibrationID) string {
	return filepath.Join(s.dir, string(cid)+recordExt)
}
