// Package testutil provides shared test doubles.
package testutil

import "sync"

// Clock is a settable epoch-seconds clock for tests. It satisfies
// domain.Clock and is safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now int64
}

// NewClock creates a Clock pinned at the given epoch second.
func NewClock(now int64) *Clock {
	return &Clock{now: now}
}

// Now returns the pinned time.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set pins the clock to a new time.
func (c *Clock) Set(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock forward by d seconds.
func (c *Clock) Advance(d int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}
