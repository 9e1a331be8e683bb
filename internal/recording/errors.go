package recording

import "errors"

var (
	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("recording: sink closed")

	// ErrNonMonotonic rejects a frame whose timestamp does not increase.
	ErrNonMonotonic = errors.New("recording: timestamp not increasing")

	// ErrNotRecording is returned when a file is not a frame container.
	ErrNotRecording = errors.New("recording: not a frame container")
)
