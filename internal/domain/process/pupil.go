package process

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/shared/async"
)

// PupilFinder locates the pupil in a gray eye frame.
type PupilFinder interface {
	Find(gray *packet.Frame) (packet.Pupil, bool)
}

// DarkRegionFinder picks the largest dark region and fits its moment
// ellipse.
type DarkRegionFinder struct {
	Threshold int
	MinArea   int
}

// Find implements PupilFinder. Timestamp and eye id are left to the caller.
func (f DarkRegionFinder) Find(gray *packet.Frame) (packet.Pupil, bool) {
	thr := byte(f.Threshold)
	if f.Threshold <= 0 {
		thr = autoThreshold(gray)
	}
	if thr == 0 {
		return packet.Pupil{}, false
	}

	var best *blob
	blobs := findBlobs(gray, thr, max(f.MinArea, 1))
	for i := range blobs {
		if best == nil || blobs[i].area > best.area {
			best = &blobs[i]
		}
	}
	if best == nil {
		return packet.Pupil{}, false
	}

	e := best.ellipse()
	ellipseArea := math.Pi * e.Axes[0] * e.Axes[1] / 4
	confidence := 0.0
	if ellipseArea > 0 {
		confidence = math.Min(1, float64(best.area)/ellipseArea)
	}
	return packet.Pupil{
		Confidence: confidence,
		Diameter:   math.Max(e.Axes[0], e.Axes[1]),
		Ellipse:    e,
		NormPos:    normPos(e.Center[0], e.Center[1], gray.Width, gray.Height),
		Method:     "2d dark region",
	}, true
}

// PupilDetector sets "pupil" on eye packets and broadcasts it. An
// unprocessable frame or a frame without a pupil yields a null pupil rather
// than an error. A non-blocking detector passes the packet on at once and
// stores the pupil as a deferred field that its worker pool completes.
type PupilDetector struct {
	*Base
	eyeID  int
	finder PupilFinder
}

// NewPupilDetector builds a detector with the dark region finder.
func NewPupilDetector(cfg PupilDetectorConfig, env Env) *PupilDetector {
	return NewPupilDetectorWithFinder(cfg, env, DarkRegionFinder{Threshold: cfg.Threshold, MinArea: cfg.MinArea})
}

// NewPupilDetectorWithFinder builds a detector around a custom finder.
func NewPupilDetectorWithFinder(cfg PupilDetectorConfig, env Env, finder PupilFinder) *PupilDetector {
	d := &PupilDetector{
		Base:   newBase(KindPupilDetector, cfg.Blocking(), env),
		eyeID:  cfg.EyeID,
		finder: finder,
	}
	d.transform = d.detect
	return d
}

// Process implements Process.
func (d *PupilDetector) Process(pkt *packet.Packet, notifications packet.Notifications) *async.Future[*packet.Packet] {
	if d.block {
		return d.Base.Process(pkt, notifications)
	}

	pkt.Broadcast(packet.FieldPupil)
	gray, err := grayFrame(pkt)
	if err != nil {
		pkt.Set(packet.FieldPupil, nil)
		d.logger.Debug("Pupil detection skipped frame", zap.Error(err))
		return async.Ready(pkt)
	}
	ts := pkt.Timestamp
	pkt.SetDeferred(packet.FieldPupil, async.SubmitOr(d.pool, func(context.Context) (any, error) {
		return d.find(gray, ts), nil
	}, nil))
	return async.Ready(pkt)
}

func (d *PupilDetector) detect(_ context.Context, pkt *packet.Packet) error {
	pkt.Broadcast(packet.FieldPupil)

	gray, err := grayFrame(pkt)
	if err != nil {
		pkt.Set(packet.FieldPupil, nil)
		d.logger.Debug("Pupil detection skipped frame", zap.Error(err))
		return nil
	}
	pkt.Set(packet.FieldPupil, d.find(gray, pkt.Timestamp))
	return nil
}

// find returns the pupil in gray, or untyped nil when there is none.
func (d *PupilDetector) find(gray *packet.Frame, ts float64) any {
	pupil, ok := d.finder.Find(gray)
	if !ok {
		return nil
	}
	pupil.Timestamp = ts
	pupil.EyeID = d.eyeID
	return pupil
}
