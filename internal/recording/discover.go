package recording

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
)

// DefaultPattern matches every frame container below the search root.
const DefaultPattern = "**/*" + FramesExt

// Recording describes one frame container found on disk.
type Recording struct {
	Name       string    `json:"name"`
	Dir        string    `json:"dir"`
	Path       string    `json:"path"`
	Frames     int       `json:"frames"`
	Size       int64     `json:"size"`
	Modified   time.Time `json:"modified"`
	HasSources bool      `json:"has_source_timestamps"`
}

// Duration returns the span between the first and last timestamp.
func (r Recording) Duration() (float64, error) {
	ts, err := LoadTimestamps(TimestampsPath(r.Dir, r.Name))
	if err != nil {
		return 0, err
	}
	if len(ts) < 2 {
		return 0, nil
	}
	return ts[len(ts)-1] - ts[0], nil
}

// Discover walks root and returns the recordings whose root-relative path
// matches pattern (doublestar syntax). An empty pattern uses DefaultPattern.
func Discover(ctx context.Context, root, pattern string) ([]Recording, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	var (
		mu    sync.Mutex
		found []Recording
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil || d.IsDir() || !strings.HasSuffix(p, FramesExt) {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		if ok, _ := doublestar.Match(pattern, filepath.ToSlash(rel)); !ok {
			return nil
		}

		rec, err := describe(p)
		if err != nil {
			return nil
		}
		mu.Lock()
		found = append(found, rec)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover recordings: %w", err)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Path < found[j].Path })
	return found, nil
}

func describe(path string) (Recording, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Recording{}, err
	}
	dir, name := splitFramesPath(path)

	rec := Recording{
		Name:     name,
		Dir:      dir,
		Path:     path,
		Size:     info.Size(),
		Modified: info.ModTime(),
	}
	if ts, err := LoadTimestamps(TimestampsPath(dir, name)); err == nil {
		rec.Frames = len(ts)
	}
	if _, err := os.Stat(SourceTimestampsPath(dir, name)); err == nil {
		rec.HasSources = true
	} else if !errors.Is(err, os.ErrNotExist) {
		return Recording{}, err
	}
	return rec, nil
}
