package domain

import "time"

// BacktestConfig is the immutable input to one engine run.
type BacktestConfig struct {
	StrategyID     string             // Registry identity of the strategy
	Symbol         string             // Trading symbol
	StartTime      time.Time          // First bar timestamp (inclusive)
	EndTime        time.Time          // Last bar timestamp (inclusive)
	Interval       string             // Bar interval requested from the data source
	InitialCapital float64            // Starting cash
	CommissionRate float64            // Commission as a fraction of notional (e.g., 0.001)
	SlippageRate   float64            // Slippage as a fraction of price (e.g., 0.0005)
	Params         map[string]float64 // Strategy parameter overrides
}
