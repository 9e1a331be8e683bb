package async

import "errors"

var (
	// ErrTimeout is returned when a pending future is not completed in time.
	ErrTimeout = errors.New("future not resolved before timeout")

	// ErrQueueFull indicates the pool queue is at capacity.
	ErrQueueFull = errors.New("worker pool queue full")

	// ErrPoolNotStarted indicates Start has not been called.
	ErrPoolNotStarted = errors.New("worker pool not started")

	// ErrPoolStopped indicates the pool no longer accepts work.
	ErrPoolStopped = errors.New("worker pool stopped")

	// ErrPoolAlreadyStarted indicates Start was called twice.
	ErrPoolAlreadyStarted = errors.New("worker pool already started")

	// ErrStopTimeout indicates workers did not drain within the stop timeout.
	ErrStopTimeout = errors.New("timeout waiting for workers to stop")
)
