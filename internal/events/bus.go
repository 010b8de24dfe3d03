// Package events provides the in-process notification bus the engine
// publishes run progress to. Consumers subscribe per run ID; publishing
// never blocks bar processing.
package events

import (
	"context"
	"sync"

	"backsim/internal/ports"
)

// defaultBuffer is the per-subscriber channel capacity. A consumer that
// falls this far behind starts losing events.
const defaultBuffer = 64

// Bus fans run events out to per-run subscribers. Safe for concurrent use
// by independent runs.
type Bus struct {
	logger ports.Logger

	mu   sync.RWMutex
	subs map[string][]chan ports.Event
}

// NewBus creates an event bus.
func NewBus(logger ports.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[string][]chan ports.Event),
	}
}

// Subscribe registers a consumer for one run's events. The returned cancel
// function removes the subscription and closes the channel.
func (b *Bus) Subscribe(runID string) (<-chan ports.Event, func()) {
	ch := make(chan ports.Event, defaultBuffer)

	b.mu.Lock()
	b.subs[runID] = append(b.subs[runID], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		channels := b.subs[runID]
		for i, c := range channels {
			if c == ch {
				b.subs[runID] = append(channels[:i], channels[i+1:]...)
				close(c)
				break
			}
		}
		if len(b.subs[runID]) == 0 {
			delete(b.subs, runID)
		}
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers of its run. Delivery is
// fire-and-forget: a full subscriber buffer drops the event with a warning
// rather than blocking the publisher.
func (b *Bus) Publish(event ports.Event) {
	// The read lock is held across the sends so a concurrent cancel cannot
	// close a channel mid-delivery; cancel takes the write lock.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[event.RunID] {
		select {
		case ch <- event:
		default:
			b.logger.Warn(context.Background(), "Dropping event for slow subscriber", map[string]interface{}{
				"runID": event.RunID,
				"kind":  event.Kind,
			})
		}
	}
}
