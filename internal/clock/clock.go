// Package clock supplies the notion of "current time" to a simulation run.
// Each engine instance owns exactly one Clock; no variant is safe to share
// across concurrent runs.
package clock

import "time"

// Clock supplies the current time to a run.
type Clock interface {
	// Now returns the clock's current time.
	Now() time.Time
	// IsHistorical reports whether the clock replays simulated time.
	IsHistorical() bool
}

// HistoricalClock is a deterministic stepped clock for historical replay.
// Time starts at the configured instant and only moves when Advance is
// called; it has no dependency on wall time.
type HistoricalClock struct {
	current time.Time
	step    time.Duration
}

// NewHistorical creates a historical clock starting at start, advancing by
// step on every Advance call.
func NewHistorical(start time.Time, step time.Duration) *HistoricalClock {
	return &HistoricalClock{current: start, step: step}
}

// Now returns the current simulated time.
func (c *HistoricalClock) Now() time.Time { return c.current }

// IsHistorical always returns true.
func (c *HistoricalClock) IsHistorical() bool { return true }

// Advance moves the clock forward by exactly one step.
func (c *HistoricalClock) Advance() {
	c.current = c.current.Add(c.step)
}

// Step returns the configured step duration.
func (c *HistoricalClock) Step() time.Duration { return c.step }
