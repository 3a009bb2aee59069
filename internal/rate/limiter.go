// Package rate throttles answer submissions per connection so one client
// cannot brute-force a round by flooding guesses.
package rate

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Limiter implements a sliding window submission limiter.
type Limiter struct {
	window  time.Duration // time window
	limit   int           // submissions allowed per window
	history []time.Time   // submission timestamp history
	mu      sync.Mutex
	clock   Clock
}

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

func NewLimiter(window time.Duration, limit int) *Limiter {
	return &Limiter{
		window: window,
		limit:  limit,
		clock:  clock.New(),
	}
}

func NewLimiterWithClock(window time.Duration, limit int, clock Clock) *Limiter {
	return &Limiter{
		window: window,
		limit:  limit,
		clock:  clock,
	}
}

// Allow checks if a submission may be processed.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.history = l.slide(now)

	if len(l.history) >= l.limit {
		return false
	}

	l.history = append(l.history, now)

	return true
}

// Slots returns how many submissions remain in the current window.
func (l *Limiter) Slots() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	return l.limit - len(l.slide(now))
}

func (l *Limiter) slide(now time.Time) []time.Time {
	window := now.Add(-l.window)
	i := 0
	for i < len(l.history) && l.history[i].Before(window) {
		i++
	}
	return append(l.history[:0:0], l.history[i:]...)
}
