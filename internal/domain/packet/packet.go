package packet

import (
	"fmt"
	"time"

	"github.com/GriffinCanCode/gazeflow/internal/shared/async"
)

// Well-known payload field names.
const (
	FieldFrame                 = "frame"
	FieldColorFormat           = "color_format"
	FieldPupil                 = "pupil"
	FieldCircleMarkers         = "circle_markers"
	FieldGazePoints            = "gaze_points"
	FieldCalibrationResult     = "calibration_result"
	FieldCalibrationCalculated = "calibration_calculated"
	FieldCollectedMarkers      = "collected_markers"
	FieldMotion                = "motion"
)

// Packet is one acquisition cycle's worth of data for a single stream.
type Packet struct {
	Name            string
	DeviceUID       string
	Timestamp       float64
	SourceTimestamp float64
	SourceTimebase  Timebase

	// Timeout bounds how long Get waits for a deferred field. Zero waits
	// until the value is ready.
	Timeout time.Duration

	broadcasts []string
	fields     map[string]any
}

// Option configures a packet at construction.
type Option func(*Packet)

// WithSourceTimestamp sets the device/hardware timestamp.
func WithSourceTimestamp(ts float64) Option {
	return func(p *Packet) { p.SourceTimestamp = ts }
}

// WithTimebase sets the source timebase.
func WithTimebase(tb Timebase) Option {
	return func(p *Packet) { p.SourceTimebase = tb }
}

// WithBroadcasts seeds the broadcast set.
func WithBroadcasts(names ...string) Option {
	return func(p *Packet) { p.Broadcast(names...) }
}

// WithTimeout sets the deferred-field timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Packet) { p.Timeout = d }
}

// New creates a packet. The source timestamp defaults to timestamp and the
// timebase to monotonic.
func New(name, deviceUID string, timestamp float64, opts ...Option) (*Packet, error) {
	p := &Packet{
		Name:            name,
		DeviceUID:       deviceUID,
		Timestamp:       timestamp,
		SourceTimestamp: timestamp,
		SourceTimebase:  TimebaseMonotonic,
		fields:          make(map[string]any),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.SourceTimebase.Validate(); err != nil {
		return nil, fmt.Errorf("packet %s: %w", name, err)
	}
	return p, nil
}

// Set stores a ready value.
func (p *Packet) Set(name string, v any) {
	p.fields[name] = v
}

// SetDeferred stores a value that a worker completes later.
func (p *Packet) SetDeferred(name string, f *async.Future[any]) {
	p.fields[name] = f
}

// Has reports whether the field is present, ready or not.
func (p *Packet) Has(name string) bool {
	_, ok := p.fields[name]
	return ok
}

// Get returns the field value, waiting up to the packet timeout for a
// deferred value. A missing field or an expired wait reports false.
func (p *Packet) Get(name string) (any, bool) {
	return p.GetTimeout(name, p.Timeout)
}

// GetTimeout is Get with a caller-supplied wait bound.
func (p *Packet) GetTimeout(name string, timeout time.Duration) (any, bool) {
	v, ok := p.fields[name]
	if !ok {
		return nil, false
	}
	if f, deferred := v.(*async.Future[any]); deferred {
		resolved, err := f.Resolve(timeout)
		if err != nil {
			return nil, false
		}
		return resolved, true
	}
	return v, true
}

// GetOr returns the field value or def.
func (p *Packet) GetOr(name string, def any) any {
	if v, ok := p.Get(name); ok {
		return v
	}
	return def
}

// Delete removes a field. Steps only delete fields they own.
func (p *Packet) Delete(name string) {
	delete(p.fields, name)
}

// Fields lists the names of all present fields.
func (p *Packet) Fields() []string {
	names := make([]string, 0, len(p.fields))
	for name := range p.fields {
		names = append(names, name)
	}
	return names
}

// Broadcast marks fields as shareable with other streams. The set keeps
// first-insertion order.
func (p *Packet) Broadcast(names ...string) {
	for _, name := range names {
		if !p.IsBroadcast(name) {
			p.broadcasts = append(p.broadcasts, name)
		}
	}
}

// IsBroadcast reports whether name is in the broadcast set.
func (p *Packet) IsBroadcast(name string) bool {
	for _, b := range p.broadcasts {
		if b == name {
			return true
		}
	}
	return false
}

// Broadcasts returns a copy of the broadcast set.
func (p *Packet) Broadcasts() []string {
	out := make([]string, len(p.broadcasts))
	copy(out, p.broadcasts)
	return out
}

// GetBroadcasts returns the present fields named in the broadcast set.
func (p *Packet) GetBroadcasts() map[string]any {
	out := make(map[string]any, len(p.broadcasts))
	for _, name := range p.broadcasts {
		if v, ok := p.Get(name); ok {
			out[name] = v
		}
	}
	return out
}

// Value returns a typed field value. Pointer and value forms of the same
// record type are both accepted for struct payloads.
func Value[T any](p *Packet, name string) (T, bool) {
	var zero T
	v, ok := p.Get(name)
	if !ok || v == nil {
		return zero, false
	}
	if t, ok := v.(T); ok {
		return t, true
	}
	if ptr, ok := v.(*T); ok && ptr != nil {
		return *ptr, true
	}
	return zero, false
}
