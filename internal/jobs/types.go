// Package jobs moves run bookkeeping off the request path.
package jobs

import "errors"

var (
	// ErrQueueFull is returned when a record cannot be buffered without blocking.
	ErrQueueFull = errors.New("jobs: queue is full")
	// ErrQueueClosed is returned after Stop or Close.
	ErrQueueClosed = errors.New("jobs: queue is closed")
)

// Default tuning for the in-memory queue.
const (
	DefaultBufferSize = 100
	DefaultWorkers    = 2
	DefaultMaxRetries = 3
)
