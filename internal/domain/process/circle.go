package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/recording"
)

// MarkerFinder locates calibration markers in a gray world frame.
type MarkerFinder interface {
	Find(gray *packet.Frame) []packet.Marker
}

// RingFinder detects concentric markers: a dark ring around a dark center
// dot. Results are ordered largest first.
type RingFinder struct {
	Threshold int
	MinRadius float64
	MaxRadius float64
}

const (
	// A ring covers well under the area of its enclosing disk.
	maxRingFill = 0.8
	// The dot must sit within this fraction of the ring radius.
	maxDotOffset = 0.25
)

// Find implements MarkerFinder. Timestamps are left to the caller.
func (f RingFinder) Find(gray *packet.Frame) []packet.Marker {
	thr := byte(f.Threshold)
	if f.Threshold <= 0 {
		thr = autoThreshold(gray)
	}
	if thr == 0 {
		return nil
	}

	blobs := findBlobs(gray, thr, 1)
	var markers []packet.Marker
	for i := range blobs {
		ring := &blobs[i]
		r := ring.radius()
		if r < f.MinRadius || (f.MaxRadius > 0 && r > f.MaxRadius) {
			continue
		}
		if float64(ring.area)/(math.Pi*r*r) > maxRingFill {
			continue
		}
		cx, cy := ring.centroid()
		if !hasDot(blobs, i, cx, cy, r) {
			continue
		}
		markers = append(markers, packet.Marker{
			Location: [2]float64{cx, cy},
			NormPos:  normPos(cx, cy, gray.Width, gray.Height),
			Size:     2 * r,
		})
	}

	sort.SliceStable(markers, func(a, b int) bool { return markers[a].Size > markers[b].Size })
	return markers
}

func hasDot(blobs []blob, ring int, cx, cy, r float64) bool {
	for j := range blobs {
		if j == ring || blobs[j].radius() >= r/2 {
			continue
		}
		dx, dy := blobs[j].centroid()
		if math.Hypot(dx-cx, dy-cy) <= maxDotOffset*r {
			return true
		}
	}
	return false
}

// CircleDetector sets "circle_markers" on world packets and broadcasts it.
// The list is empty, never absent, when nothing is found.
type CircleDetector struct {
	*Base
	finder MarkerFinder
}

// NewCircleDetector builds a detector with the ring finder.
func NewCircleDetector(cfg CircleDetectorConfig, env Env) *CircleDetector {
	return NewCircleDetectorWithFinder(cfg, env, RingFinder{
		Threshold: cfg.Threshold,
		MinRadius: cfg.MinRadius,
		MaxRadius: cfg.MaxRadius,
	})
}

// NewCircleDetectorWithFinder builds a detector around a custom finder.
func NewCircleDetectorWithFinder(cfg CircleDetectorConfig, env Env, finder MarkerFinder) *CircleDetector {
	d := &CircleDetector{
		Base:   newBase(KindCircleDetector, cfg.Blocking(), env),
		finder: finder,
	}
	d.transform = d.detect
	return d
}

func (d *CircleDetector) detect(_ context.Context, pkt *packet.Packet) error {
	pkt.Broadcast(packet.FieldCircleMarkers)

	gray, err := grayFrame(pkt)
	if err != nil {
		pkt.Set(packet.FieldCircleMarkers, []packet.Marker{})
		d.logger.Debug("Marker detection skipped frame", zap.Error(err))
		return nil
	}
	pkt.Set(packet.FieldCircleMarkers, d.find(gray, pkt.Timestamp))
	return nil
}

func (d *CircleDetector) find(gray *packet.Frame, ts float64) []packet.Marker {
	markers := d.finder.Find(gray)
	if markers == nil {
		markers = []packet.Marker{}
	}
	for i := range markers {
		markers[i].Timestamp = ts
	}
	return markers
}

// FrameSource yields recorded frames in order and io.EOF at the end.
// recording.FrameReader satisfies it.
type FrameSource interface {
	Next() (*packet.Frame, float64, float64, error)
}

// FrameMarkers is the detection result of one recorded frame.
type FrameMarkers struct {
	Index     int             `json:"frame_index"`
	Timestamp float64         `json:"timestamp"`
	Markers   []packet.Marker `json:"markers"`
}

// BatchRun replays detection over a whole recording, outside any pipeline.
func (d *CircleDetector) BatchRun(ctx context.Context, src FrameSource) ([]FrameMarkers, error) {
	var out []FrameMarkers
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		frame, ts, _, err := src.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("read frame %d: %w", i, err)
		}

		entry := FrameMarkers{Index: i, Timestamp: ts, Markers: []packet.Marker{}}
		if gray, err := frame.ToGray(); err == nil {
			entry.Markers = d.find(gray, ts)
		} else {
			d.logger.Debug("Batch detection skipped frame", zap.Int("frame", i), zap.Error(err))
		}
		out = append(out, entry)
	}
}

// MarkerDataset is the columnar form of a batch run: one row per detected
// marker.
type MarkerDataset struct {
	FrameIndex []int     `json:"frame_index"`
	Timestamp  []float64 `json:"timestamp"`
	X          []float64 `json:"x"`
	Y          []float64 `json:"y"`
	NormX      []float64 `json:"norm_x"`
	NormY      []float64 `json:"norm_y"`
	Size       []float64 `json:"size"`
}

// NewMarkerDataset flattens batch results.
func NewMarkerDataset(frames []FrameMarkers) *MarkerDataset {
	ds := &MarkerDataset{}
	for _, f := range frames {
		for _, m := range f.Markers {
			ds.FrameIndex = append(ds.FrameIndex, f.Index)
			ds.Timestamp = append(ds.Timestamp, f.Timestamp)
			ds.X = append(ds.X, m.Location[0])
			ds.Y = append(ds.Y, m.Location[1])
			ds.NormX = append(ds.NormX, m.NormPos[0])
			ds.NormY = append(ds.NormY, m.NormPos[1])
			ds.Size = append(ds.Size, m.Size)
		}
	}
	return ds
}

// Len returns the number of rows.
func (ds *MarkerDataset) Len() int {
	return len(ds.FrameIndex)
}

// Save writes the rows as a compressed JSON-lines record file.
func (ds *MarkerDataset) Save(dir, name string) (string, error) {
	w, err := recording.NewRecordWriter(dir, name)
	if err != nil {
		return "", err
	}
	for i := 0; i < ds.Len(); i++ {
		row := map[string]any{
			"frame_index": ds.FrameIndex[i],
			"timestamp":   ds.Timestamp[i],
			"x":           ds.X[i],
			"y":           ds.Y[i],
			"norm_x":      ds.NormX[i],
			"norm_y":      ds.NormY[i],
			"size":        ds.Size[i],
		}
		if err := w.Write(row); err != nil {
			w.Close()
			return "", err
		}
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return recording.RecordsPath(dir, name), nil
}
