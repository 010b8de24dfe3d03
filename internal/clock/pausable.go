package clock

import (
	"sync"
	"time"
)

// PausableClock returns system time unless paused, in which case it keeps
// returning the instant Pause was invoked until Resume is called.
type PausableClock struct {
	mu       sync.Mutex
	paused   bool
	pausedAt time.Time
}

// NewPausable creates a running pausable real-time clock.
func NewPausable() *PausableClock { return &PausableClock{} }

// Now returns the system time, or the pause instant while paused.
func (c *PausableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return c.pausedAt
	}
	return time.Now()
}

// IsHistorical always returns false.
func (c *PausableClock) IsHistorical() bool { return false }

// Pause freezes the clock at the current system time. Pausing an already
// paused clock keeps the original pause instant.
func (c *PausableClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		c.paused = true
		c.pausedAt = time.Now()
	}
}

// Resume unfreezes the clock.
func (c *PausableClock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

// IsPaused reports whether the clock is currently frozen.
func (c *PausableClock) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}
