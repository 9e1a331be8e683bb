package packet

import "errors"

// ErrInvalidTimebase is returned for a source timebase other than
// monotonic or epoch.
var ErrInvalidTimebase = errors.New("invalid timebase")
