package debal

import (
	"sync"
	"time"
)

// Clock is the simulated time source. Time is an offset from simulation start.
type Clock interface {
	Now() time.Duration
	AdvanceTo(t time.Duration)
	Sleep(d time.Duration)
}

// SimClock is a manually advanced Clock. It never moves backwards.
type SimClock struct {
	mu  sync.RWMutex
	now time.Duration
}

// NewSimClock returns a clock positioned at start.
func NewSimClock(start time.Duration) *SimClock {
	return &SimClock{now: start}
}

// Now returns the current simulated time.
func (c *SimClock) Now() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// AdvanceTo moves the clock to t. Earlier times are ignored.
func (c *SimClock) AdvanceTo(t time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t > c.now {
		c.now = t
	}
}

// Sleep advances the clock by d.
func (c *SimClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}
