package domain

import "time"

// Signal is a strategy's decision for one bar. It is produced and consumed
// within a single bar-processing step and only materializes into an order
// when the action is buy or sell with a positive quantity.
type Signal struct {
	Symbol     string       // Trading symbol
	Action     SignalAction // buy, sell or hold
	Quantity   float64      // Desired quantity, 0 leaves the bar actionless
	Reason     string       // Human-readable explanation
	Confidence float64      // Optional confidence in [0,1], 0 when unused
	Timestamp  time.Time    // Bar timestamp the signal was produced for
}

// Actionable reports whether the engine should submit an order for this signal.
func (s *Signal) Actionable() bool {
	if s == nil {
		return false
	}
	return (s.Action == ActionBuy || s.Action == ActionSell) && s.Quantity > 0
}
