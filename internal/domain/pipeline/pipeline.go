// Package pipeline chains process steps for one stream.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/gazeflow/internal/domain/device"
	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/domain/process"
	"github.com/GriffinCanCode/gazeflow/internal/shared/async"
)

// Pipeline is a fixed, ordered list of steps. A step's output packet is the
// next step's input.
type Pipeline struct {
	steps []process.Process
}

// New builds a pipeline. The order is fixed here.
func New(steps ...process.Process) *Pipeline {
	return &Pipeline{steps: append([]process.Process(nil), steps...)}
}

// Steps returns the steps in order.
func (p *Pipeline) Steps() []process.Process {
	return append([]process.Process(nil), p.steps...)
}

// Len returns the number of steps.
func (p *Pipeline) Len() int {
	return len(p.steps)
}

// ListenFor returns the union of the steps' subscription keys in first-seen
// order.
func (p *Pipeline) ListenFor() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, s := range p.steps {
		for _, k := range s.ListenFor() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// Start starts every step in order. Steps started before a failure are
// stopped again.
func (p *Pipeline) Start(ctx context.Context) error {
	for i, s := range p.steps {
		if err := s.Start(ctx); err != nil {
			for _, started := range p.steps[:i] {
				_ = started.Stop()
			}
			return fmt.Errorf("start %s: %w", s.Kind(), err)
		}
	}
	return nil
}

// Stop stops every step in pipeline order. Every step is stopped even when
// an earlier one fails.
func (p *Pipeline) Stop() error {
	var errs []error
	for _, s := range p.steps {
		if err := s.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", s.Kind(), err))
		}
	}
	return errors.Join(errs...)
}

// AttachDevice hands the stream's device to steps that act on it.
func (p *Pipeline) AttachDevice(dev device.Device) {
	for _, s := range p.steps {
		if a, ok := s.(process.DeviceAttacher); ok {
			a.AttachDevice(dev)
		}
	}
}

// BeforeFetch lets steps react to notifications before the next frame is
// read.
func (p *Pipeline) BeforeFetch(notifications packet.Notifications) {
	for _, s := range p.steps {
		if b, ok := s.(process.BeforeFetcher); ok {
			b.BeforeFetch(notifications)
		}
	}
}

// Flush feeds pkt through every step with the same notifications. Each
// intermediate future is resolved before the next step runs; the last
// step's future is returned unresolved.
func (p *Pipeline) Flush(ctx context.Context, pkt *packet.Packet, notifications packet.Notifications) *async.Future[*packet.Packet] {
	if len(p.steps) == 0 {
		return async.Ready(pkt)
	}

	last := len(p.steps) - 1
	for i, s := range p.steps {
		f := s.Process(pkt, notifications)
		if i == last {
			return f
		}
		next, err := f.Wait(ctx)
		if err != nil {
			return async.Failed[*packet.Packet](fmt.Errorf("step %d (%s): %w", i, s.Kind(), err))
		}
		pkt = next
	}
	return async.Ready(pkt)
}
