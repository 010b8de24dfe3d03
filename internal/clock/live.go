package clock

import "time"

// LiveClock returns system time. Used for paper-trading style runs where
// bars arrive in real time.
type LiveClock struct{}

// NewLive creates a live wall-clock.
func NewLive() *LiveClock { return &LiveClock{} }

// Now returns the system time.
func (c *LiveClock) Now() time.Time { return time.Now() }

// IsHistorical always returns false.
func (c *LiveClock) IsHistorical() bool { return false }
