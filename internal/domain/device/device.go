package device

import (
	"context"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
)

// Mode selects what a device read returns.
type Mode string

const (
	ModeVideo  Mode = "video"
	ModeMotion Mode = "motion"
)

// Event is a control signal returned in place of data.
type Event string

const (
	EventNone             Event = ""
	EventStreamStop       Event = "stream_stop"
	EventDeviceDisconnect Event = "device_disconnect"
)

// Reading is the result of one acquisition. Exactly one shape applies:
// a control event, a frame with a monotonic timestamp, or a frame with both
// a monotonic and a source timestamp.
type Reading struct {
	Event           Event
	Frame           any
	Timestamp       float64
	SourceTimestamp *float64
}

// EventReading builds a control reading.
func EventReading(e Event) Reading {
	return Reading{Event: e}
}

// FrameReading builds a reading with a monotonic timestamp only.
func FrameReading(frame any, ts float64) Reading {
	return Reading{Frame: frame, Timestamp: ts}
}

// SourceReading builds a reading with both clocks.
func SourceReading(frame any, ts, source float64) Reading {
	return Reading{Frame: frame, Timestamp: ts, SourceTimestamp: &source}
}

// IsEvent reports whether the reading is a control event.
func (r Reading) IsEvent() bool {
	return r.Event != EventNone
}

// Source returns the source timestamp, defaulting to the monotonic one.
func (r Reading) Source() float64 {
	if r.SourceTimestamp != nil {
		return *r.SourceTimestamp
	}
	return r.Timestamp
}

// Device is the capability contract a stream acquires data through.
// Devices shared by several streams must tolerate concurrent Read calls.
type Device interface {
	UID() string
	Kind() Kind
	Start(ctx context.Context) error
	Stop() error
	IsStarted() bool
	Timebase() packet.Timebase
	Read(ctx context.Context, mode Mode) (Reading, error)
}

// Resetter is implemented by devices that can rewind playback.
type Resetter interface {
	Reset() error
}
