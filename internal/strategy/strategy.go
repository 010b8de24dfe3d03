// Package strategy defines the trading strategy contract and the registry
// the engine uses to look strategies up by identity.
package strategy

import (
	"context"

	"backsim/internal/domain"
	"backsim/internal/ports"
)

// Strategy is the decision component of a run. OnBar is called once per bar
// in strict chronological order and must be a function of the bar history
// seen so far plus the broker view; strategies act only by returning a
// signal for the engine to execute.
type Strategy interface {
	// ID returns the registry identity of the strategy.
	ID() string
	// Name returns the display name.
	Name() string
	// Description returns a short human-readable description.
	Description() string
	// Params returns the current parameter set.
	Params() map[string]float64
	// Initialize merges the supplied parameters into the strategy state.
	// Called once, before the run starts.
	Initialize(params map[string]float64) error
	// OnStart is invoked once before the first bar.
	OnStart(ctx context.Context, initialCapital float64) error
	// OnBar is invoked once per bar and returns at most one signal.
	OnBar(ctx context.Context, bar *domain.Bar, view ports.BrokerView) (*domain.Signal, error)
	// OnEnd is invoked once after the last bar with the final portfolio.
	OnEnd(ctx context.Context, portfolio *domain.Portfolio) error
}

// Factory builds a fresh strategy instance. The registry stores factories
// rather than instances so every run starts from a clean state.
type Factory func() Strategy

// Info describes a registered strategy for listing.
type Info struct {
	ID            string
	Name          string
	Description   string
	DefaultParams map[string]float64
}

// ValidationResult is the outcome of validating parameters against a
// registered strategy.
type ValidationResult struct {
	Valid  bool
	Errors []string
}
