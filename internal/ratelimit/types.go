// Package ratelimit defines the admission gate applied to every request.
package ratelimit

import "time"

// DefaultWindow is the trailing span over which requests are counted.
const DefaultWindow = 60 * time.Second

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Remaining int
}

// Admitter decides whether a client identity may proceed. Implementations
// must be safe for concurrent use.
type Admitter interface {
	Admit(identity string) Decision
	// Limit is the maximum number of requests admitted per window.
	Limit() int
	// Window is the span the limit applies to.
	Window() time.Duration
}
