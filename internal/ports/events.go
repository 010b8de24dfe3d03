package ports

import "backsim/internal/domain"

// EventKind discriminates run notification events.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventComplete EventKind = "complete"
	EventFailed   EventKind = "failed"
)

// Event is one run notification. Progress events carry PercentComplete and
// BarsProcessed, complete events carry Result, failed events carry Err.
type Event struct {
	Kind            EventKind
	RunID           string
	PercentComplete float64
	BarsProcessed   int
	Result          *domain.BacktestResult
	Err             error
}

// EventPublisher broadcasts run events to any subscribed consumers. Publish
// must never block bar processing: implementations drop events for slow or
// absent consumers.
type EventPublisher interface {
	Publish(event Event)
}
