package packet

import "fmt"

// Timebase names the clock a source timestamp was taken from.
type Timebase string

const (
	TimebaseMonotonic Timebase = "monotonic"
	TimebaseEpoch     Timebase = "epoch"
)

// ParseTimebase validates s.
func ParseTimebase(s string) (Timebase, error) {
	tb := Timebase(s)
	if err := tb.Validate(); err != nil {
		return "", err
	}
	return tb, nil
}

// Validate returns ErrInvalidTimebase for unknown values.
func (t Timebase) Validate() error {
	switch t {
	case TimebaseMonotonic, TimebaseEpoch:
		return nil
	default:
		return fmt.Errorf("%w: %q (expected monotonic or epoch)", ErrInvalidTimebase, string(t))
	}
}

func (t Timebase) String() string { return string(t) }
