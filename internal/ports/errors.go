package ports

import "errors"

// Standard application-level errors.
// Adapters and components wrap underlying errors with these sentinels so
// callers can branch with errors.Is.
var (
	// General errors.
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Order rejection errors. These are a normal consequence of strategy
	// logic: the order is recorded as rejected and the run continues.
	ErrNoPriceData          = errors.New("no price data observed for symbol")
	ErrInsufficientFunds    = errors.New("insufficient funds for order")
	ErrInsufficientPosition = errors.New("insufficient position for order")

	// Fatal run errors.
	ErrNoHistoricalData  = errors.New("no historical data available")
	ErrStrategyExecution = errors.New("strategy execution failed")

	// Collaborator errors.
	ErrPersistence = errors.New("persistence operation failed")
)
