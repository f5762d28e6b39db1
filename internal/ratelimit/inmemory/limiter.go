package inmemory

import (
	"sync"
	"time"

	"github.com/dvloznov/statement-extractor/internal/ratelimit"
)

var _ ratelimit.Admitter = (*Limiter)(nil)

// Limiter is a sliding-window rate limiter kept in process memory.
// State is lost on restart and is not shared between processes.
type Limiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	now     func() time.Time
	windows map[string][]time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) { l.window = d }
}

// NewLimiter creates a limiter admitting max requests per window.
func NewLimiter(max int, opts ...Option) *Limiter {
	l := &Limiter{
		max:     max,
		window:  ratelimit.DefaultWindow,
		now:     time.Now,
		windows: make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit implements ratelimit.Admitter. Rejected attempts are not recorded.
func (l *Limiter) Admit(identity string) ratelimit.Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	stamps := purge(l.windows[identity], now.Add(-l.window))

	if len(stamps) >= l.max {
		l.windows[identity] = stamps
		return ratelimit.Decision{Allowed: false, Remaining: 0}
	}

	stamps = append(stamps, now)
	l.windows[identity] = stamps
	return ratelimit.Decision{Allowed: true, Remaining: l.max - len(stamps)}
}

// Limit implements ratelimit.Admitter.
func (l *Limiter) Limit() int { return l.max }

// Window implements ratelimit.Admitter.
func (l *Limiter) Window() time.Duration { return l.window }

// Sweep forgets identities whose window has fully expired and returns how
// many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	removed := 0
	for id, stamps := range l.windows {
		if stamps = purge(stamps, cutoff); len(stamps) == 0 {
			delete(l.windows, id)
			removed++
			continue
		}
		l.windows[id] = stamps
	}
	return removed
}

// Len returns the number of tracked identities.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// purge drops timestamps at or before cutoff. Stamps are appended in
// order, so the survivors are a suffix.
func purge(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
