package queue

import "errors"

// Sentinel kinds for enqueue failures.
var (
	// ErrFull signals backpressure.
	ErrFull = errors.New("queue full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("queue closed")
)
