package process

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/gazeflow/internal/domain/calibration"
	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
)

// CollectionState is the accumulator's control state.
type CollectionState int

const (
	StateIdle CollectionState = iota
	StateCollecting
	StateCalculated
)

func (s CollectionState) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateCalculated:
		return "calculated"
	default:
		return "idle"
	}
}

// Calibration accumulates pupils routed from the eye streams and the
// primary marker of each world packet while collecting, then computes a
// gaze mapping when told to calculate.
//
// Control notifications:
//   - collect_calibration_data=true starts collecting, false stops
//   - calculate_calibration=true drains both queues into one computation
//
// The computation runs on the next packet, which receives
// "calibration_calculated" and "calibration_result" (null on failure).
type Calibration struct {
	*Base
	cfg      CalibrationConfig
	computer calibration.Computer
	store    *calibration.Store

	// reportMarkers broadcasts the marker queue length every cycle.
	reportMarkers bool

	mu      sync.Mutex
	state   CollectionState
	pupils  []packet.Pupil
	markers []packet.Marker
}

// NewCalibration builds the calibration step.
func NewCalibration(cfg CalibrationConfig, env Env) *Calibration {
	return newAccumulator(KindCalibration, cfg, env, false)
}

// NewValidation builds the validation step, which also reports
// "collected_markers" so a controller can poll progress.
func NewValidation(cfg CalibrationConfig, env Env) *Calibration {
	return newAccumulator(KindValidation, cfg, env, true)
}

func newAccumulator(kind Kind, cfg CalibrationConfig, env Env, report bool) *Calibration {
	c := &Calibration{
		Base:          newBase(kind, cfg.Blocking(), env),
		cfg:           cfg,
		computer:      env.computer(),
		store:         env.Store,
		reportMarkers: report,
	}
	c.listenFor = []string{packet.FieldPupil}
	c.onNotifications = c.handle
	c.transform = c.cycle
	return c
}

// State returns the control state.
func (c *Calibration) State() CollectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Queued returns the current queue lengths.
func (c *Calibration) Queued() (pupils, markers int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pupils), len(c.markers)
}

func (c *Calibration) handle(notifications packet.Notifications) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range notifications {
		if collect, ok := n.Bool(packet.NotifyCollectCalibration); ok {
			if collect {
				c.state = StateCollecting
				c.logger.Info("Collecting calibration data")
			} else if c.state == StateCollecting {
				c.state = StateIdle
				c.logger.Info("Calibration collection stopped")
			}
		}
		if calc, ok := n.Bool(packet.NotifyCalculateCalibration); ok && calc {
			c.state = StateCalculated
		}

		if c.state != StateCollecting {
			continue
		}
		for _, eye := range []string{c.cfg.Right, c.cfg.Left} {
			if pupil, ok := pupilFrom(n, eye); ok {
				c.pupils = append(c.pupils, pupil)
			}
		}
	}
}

func (c *Calibration) cycle(ctx context.Context, pkt *packet.Packet) error {
	c.mu.Lock()
	state := c.state
	if state == StateCollecting {
		markers, _ := packet.Value[[]packet.Marker](pkt, packet.FieldCircleMarkers)
		if len(markers) > 0 {
			c.markers = append(c.markers, markers[0])
		}
	}
	collected := len(c.markers)

	var pupils []packet.Pupil
	var markers []packet.Marker
	if state == StateCalculated {
		pupils, markers = c.pupils, c.markers
		c.pupils, c.markers = nil, nil
		c.state = StateIdle
	}
	c.mu.Unlock()

	if c.reportMarkers && state == StateCollecting {
		pkt.Set(packet.FieldCollectedMarkers, collected)
		pkt.Broadcast(packet.FieldCollectedMarkers)
	}
	if state != StateCalculated {
		return nil
	}

	result := c.calculate(ctx, pkt, pupils, markers)
	if result != nil {
		pkt.Set(packet.FieldCalibrationResult, *result)
	} else {
		pkt.Set(packet.FieldCalibrationResult, nil)
	}
	pkt.Set(packet.FieldCalibrationCalculated, true)
	pkt.Broadcast(packet.FieldCalibrationCalculated, packet.FieldCalibrationResult)
	return nil
}

// calculate runs the computation. Any failure yields nil.
func (c *Calibration) calculate(ctx context.Context, pkt *packet.Packet, pupils []packet.Pupil, markers []packet.Marker) *calibration.Result {
	cctx := calibration.Context{
		Resolution:    c.resolution(pkt),
		Mode:          c.cfg.Mode,
		MinConfidence: c.cfg.MinConfidence,
	}
	logger := c.logger.With(zap.Int("pupils", len(pupils)), zap.Int("markers", len(markers)))

	method, result, err := c.computer.Compute(ctx, cctx, pupils, markers)
	if err != nil {
		c.metrics.IncCalibration(method, "error")
		logger.Error("Calibration computation failed", zap.Error(err))
		return nil
	}
	if result.Failed() {
		c.metrics.IncCalibration(method, "failed")
		logger.Warn("Calibration failed", zap.String("reason", result.Reason))
		return nil
	}

	fixed := calibration.FixBinocularPolynomial(method, result)
	c.metrics.IncCalibration(method, "success")
	logger.Info("Calibration calculated", zap.String("method", method), zap.String("mapper", fixed.Name))

	if c.cfg.Save && c.store != nil {
		rec, err := c.store.Save(method, cctx, fixed, len(pupils), len(markers))
		if err != nil {
			logger.Error("Failed to save calibration", zap.Error(err))
		} else {
			logger.Info("Calibration saved", zap.String("id", rec.ID.String()))
		}
	}
	return &fixed
}

func (c *Calibration) resolution(pkt *packet.Packet) [2]int {
	if c.cfg.Resolution != [2]int{} {
		return c.cfg.Resolution
	}
	if frame, ok := packet.Value[*packet.Frame](pkt, packet.FieldFrame); ok && frame != nil {
		return frame.Resolution()
	}
	return [2]int{}
}
