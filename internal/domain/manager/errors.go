package manager

import "errors"

var (
	// ErrDuplicateStream is returned when two stream configs share a name.
	ErrDuplicateStream = errors.New("duplicate stream name")

	// ErrUnknownStream is returned for a stream name the manager does not own.
	ErrUnknownStream = errors.New("unknown stream")

	// ErrAlreadyRunning is returned by Start while workers are running.
	ErrAlreadyRunning = errors.New("manager already running")

	// ErrNotRunning is returned by Spin before Start.
	ErrNotRunning = errors.New("manager not running")

	// ErrStopTimeout is returned when workers do not exit in time.
	ErrStopTimeout = errors.New("timed out waiting for stream workers")
)
