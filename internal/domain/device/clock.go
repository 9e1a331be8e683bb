package device

import (
	"context"
	"time"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
)

var processStart = time.Now()

// Monotonic returns seconds on the process-local monotonic clock.
func Monotonic() float64 {
	return time.Since(processStart).Seconds()
}

// Epoch returns seconds since the Unix epoch.
func Epoch() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Now returns the current time on the given timebase.
func Now(tb packet.Timebase) float64 {
	if tb == packet.TimebaseEpoch {
		return Epoch()
	}
	return Monotonic()
}

// pacer spaces reads at a fixed rate. A zero rate never waits.
type pacer struct {
	interval time.Duration
	next     time.Time
}

func newPacer(fps float64) *pacer {
	p := &pacer{}
	if fps > 0 {
		p.interval = time.Duration(float64(time.Second) / fps)
	}
	return p
}

func (p *pacer) wait(ctx context.Context) error {
	if p.interval == 0 {
		return ctx.Err()
	}

	now := time.Now()
	if p.next.IsZero() || p.next.Before(now.Add(-p.interval)) {
		p.next = now
	}
	delay := p.next.Sub(now)
	p.next = p.next.Add(p.interval)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
