package domain

import "time"

// Bar represents a single OHLCV sample for a fixed time interval.
type Bar struct {
	Timestamp time.Time // Start time of the interval
	Symbol    string    // Trading symbol
	Interval  string    // Bar interval (e.g., "1m", "1h")
	Open      float64   // Opening price
	High      float64   // Highest price
	Low       float64   // Lowest price
	Close     float64   // Closing price
	Volume    float64   // Traded volume
}
