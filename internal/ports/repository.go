package ports

import (
	"context"

	"backsim/internal/domain"
)

// RunRepository persists backtest runs, their trades and periodic telemetry.
// All writes are keyed by run ID; the engine never reads this state back
// during a run. Implementations must tolerate concurrent writes from
// independent runs.
type RunRepository interface {
	// CreateRun records a new run in pending state and returns its ID.
	CreateRun(ctx context.Context, cfg *domain.BacktestConfig) (string, error)
	// UpdateRunStatus transitions a run's status. errorMessage is stored for
	// failed runs and ignored otherwise.
	UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus, errorMessage string) error
	// InsertTrade records one filled order with its direction and whether it
	// opened or closed exposure.
	InsertTrade(ctx context.Context, runID string, order *domain.Order, direction domain.TradeDirection, state domain.TradeState) error
	// InsertSnapshot records one periodic performance snapshot.
	InsertSnapshot(ctx context.Context, snap *domain.PerformanceSnapshot) error
	// SaveResult persists the final result of a completed run. A failure
	// here must be surfaced to the caller of the run.
	SaveResult(ctx context.Context, result *domain.BacktestResult) error
}
