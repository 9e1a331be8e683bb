package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/gazeflow/internal/shared/codec"
)

// InfoFile is the per-session metadata file name.
const InfoFile = "info.json"

// Session is one recording folder shared by every recorder of a run.
type Session struct {
	ID      uuid.UUID `json:"id"`
	Dir     string    `json:"dir"`
	Started time.Time `json:"started"`
}

// NewSession creates a uniquely named folder under root.
func NewSession(root string) (*Session, error) {
	sid := uuid.New()
	now := time.Now()
	dir := filepath.Join(root, fmt.Sprintf("%s_%s", now.Format("2006-01-02_15-04-05"), sid.String()[:8]))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session folder: %w", err)
	}
	return &Session{ID: sid, Dir: dir, Started: now}, nil
}

// WriteInfo persists session metadata alongside extra fields.
func (s *Session) WriteInfo(extra map[string]any) error {
	info := map[string]any{
		"id":      s.ID.String(),
		"started": s.Started.Format(time.RFC3339Nano),
	}
	for k, v := range extra {
		info[k] = v
	}
	data, err := codec.MarshalIndent(info)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.Dir, InfoFile), data, 0o644)
}
