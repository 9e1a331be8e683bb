package process

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/gazeflow/internal/domain/calibration"
	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/shared/id"
)

// GazeMapper pairs pupils routed from the left and right eye streams and
// appends mapped points to "gaze_points". It follows calibration results
// computed upstream in the same pipeline; a null result disables mapping
// until the next one arrives.
type GazeMapper struct {
	*Base
	left, right   string
	minConfidence float64

	mu      sync.Mutex
	mapper  calibration.Mapper
	pending []pupilPair
}

type pupilPair struct {
	right, left packet.Pupil
}

// NewGazeMapper builds a mapper, loading a saved calibration when one is
// configured.
func NewGazeMapper(cfg GazeMapperConfig, env Env) (*GazeMapper, error) {
	g := &GazeMapper{
		Base:          newBase(KindGazeMapper, cfg.Blocking(), env),
		left:          cfg.Left,
		right:         cfg.Right,
		minConfidence: cfg.MinConfidence,
	}
	g.listenFor = []string{packet.FieldPupil}
	g.onNotifications = g.collect
	g.transform = g.attach

	if cfg.Calibration != "" {
		mapper, err := loadMapper(env.Store, cfg.Calibration)
		if err != nil {
			return nil, err
		}
		g.mapper = mapper
	}
	return g, nil
}

func loadMapper(store *calibration.Store, ref string) (calibration.Mapper, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: no calibration store for %q", ErrInvalidConfig, ref)
	}

	var rec calibration.Record
	var err error
	if ref == "latest" {
		rec, err = store.Latest()
	} else {
		rec, err = store.Load(id.CalibrationID(ref))
	}
	if err != nil {
		return nil, fmt.Errorf("load calibration %s: %w", ref, err)
	}
	mapper, err := calibration.NewMapper(rec.Result)
	if err != nil {
		return nil, fmt.Errorf("calibration %s: %w", ref, err)
	}
	return mapper, nil
}

// SetMapper replaces the active mapping. Nil disables mapping.
func (g *GazeMapper) SetMapper(m calibration.Mapper) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mapper = m
}

// collect queues every cycle that carries confident pupils from both eyes.
// Pairs are mapped in attach, after a calibration in the same packet has
// been applied.
func (g *GazeMapper) collect(notifications packet.Notifications) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range notifications {
		right, okR := pupilFrom(n, g.right)
		left, okL := pupilFrom(n, g.left)
		if !okR || !okL {
			continue
		}
		if right.Confidence < g.minConfidence || left.Confidence < g.minConfidence {
			continue
		}
		g.pending = append(g.pending, pupilPair{right: right, left: left})
	}
}

func (g *GazeMapper) attach(_ context.Context, pkt *packet.Packet) error {
	if calculated, _ := packet.Value[bool](pkt, packet.FieldCalibrationCalculated); calculated {
		g.updateMapping(pkt)
	}

	g.mu.Lock()
	pairs, mapper := g.pending, g.mapper
	g.pending = nil
	g.mu.Unlock()

	var points []packet.GazePoint
	if mapper != nil {
		for _, p := range pairs {
			if gp, ok := mapper.Map(&p.right, &p.left); ok {
				points = append(points, gp)
			}
		}
	}

	existing, _ := packet.Value[[]packet.GazePoint](pkt, packet.FieldGazePoints)
	pkt.Set(packet.FieldGazePoints, append(existing, points...))
	pkt.Broadcast(packet.FieldGazePoints)
	return nil
}

func (g *GazeMapper) updateMapping(pkt *packet.Packet) {
	result, ok := packet.Value[calibration.Result](pkt, packet.FieldCalibrationResult)
	if !ok {
		g.SetMapper(nil)
		g.logger.Info("Calibration unavailable, gaze mapping disabled")
		return
	}
	mapper, err := calibration.NewMapper(result)
	if err != nil {
		g.SetMapper(nil)
		g.logger.Warn("Calibration result rejected", zap.Error(err))
		return
	}
	g.SetMapper(mapper)
	g.logger.Info("Gaze mapping updated", zap.String("mapper", result.Name))
}

// pupilFrom extracts the pupil routed from stream in one notification.
func pupilFrom(n packet.Notification, stream string) (packet.Pupil, bool) {
	src, ok := n.Source(stream)
	if !ok {
		return packet.Pupil{}, false
	}
	return packet.Decode[packet.Pupil](src[packet.FieldPupil])
}
