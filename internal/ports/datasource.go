package ports

import (
	"context"
	"time"

	"backsim/internal/domain"
)

// DataSource supplies historical bars to the engine. Implementations must
// return bars in ascending timestamp order; the engine performs no
// gap-filling. An empty result is a fatal condition for the run.
type DataSource interface {
	LoadBars(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Bar, error)
}
