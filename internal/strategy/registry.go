package strategy

import (
	"fmt"
	"sort"
	"sync"

	"backsim/internal/ports"
)

// Registry maps strategy identities to factories. It is an explicit
// instance constructed at startup and passed into the engine's
// dependencies; there is no package-level global.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the ID its strategies report. Registering
// the same ID twice is an error.
func (r *Registry) Register(factory Factory) error {
	if factory == nil {
		return fmt.Errorf("%w: nil strategy factory", ports.ErrInvalidRequest)
	}
	probe := factory()
	if probe == nil || probe.ID() == "" {
		return fmt.Errorf("%w: strategy factory must produce a strategy with an ID", ports.ErrInvalidRequest)
	}
	id := probe.ID()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("%w: strategy %q already registered", ports.ErrInvalidRequest, id)
	}
	r.factories[id] = factory
	return nil
}

// Unregister removes a strategy by ID.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; !exists {
		return fmt.Errorf("%w: strategy %q", ports.ErrNotFound, id)
	}
	delete(r.factories, id)
	return nil
}

// Create builds a fresh instance of the strategy with the given ID.
func (r *Registry) Create(id string) (Strategy, error) {
	r.mu.RLock()
	factory, exists := r.factories[id]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: strategy %q", ports.ErrNotFound, id)
	}
	return factory(), nil
}

// List returns descriptions of all registered strategies, sorted by ID.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.factories))
	for _, factory := range r.factories {
		s := factory()
		infos = append(infos, Info{
			ID:            s.ID(),
			Name:          s.Name(),
			Description:   s.Description(),
			DefaultParams: s.Params(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Validate checks parameters against a strategy by initializing a throwaway
// instance. Callers use this before starting a run; the engine and broker
// still enforce their invariants defensively regardless of the outcome.
func (r *Registry) Validate(id string, params map[string]float64) ValidationResult {
	s, err := r.Create(id)
	if err != nil {
		return ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}
	if err := s.Initialize(params); err != nil {
		return ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}
	return ValidationResult{Valid: true}
}
