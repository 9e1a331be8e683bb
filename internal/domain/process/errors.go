package process

import "errors"

var (
	errNoFrame = errors.New("packet has no frame")

	// ErrNotResettable is logged when a syncer is attached to a device
	// without playback control.
	ErrNotResettable = errors.New("device does not support reset")
)
