package providers

import (
	"fmt"
)

// Registry maps provider ids to adapter instances and owns the fallback
// order used when a requested provider is unavailable. It is built once at
// startup and passed into the orchestrator; there is no ambient global
// provider state.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

// NewRegistry builds a registry from adapters and an explicit fallback
// order. Ids in the order that have no registered adapter are rejected.
func NewRegistry(adapters []Adapter, fallbackOrder []string) (*Registry, error) {
	byID := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		if _, dup := byID[a.ID()]; dup {
			return nil, fmt.Errorf("duplicate provider id %q", a.ID())
		}
		byID[a.ID()] = a
	}
	for _, id := range fallbackOrder {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("fallback order references unknown provider %q", id)
		}
	}
	return &Registry{adapters: byID, order: fallbackOrder}, nil
}

// Get returns the adapter for id, available or not.
func (r *Registry) Get(id string) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// Select resolves the adapter for a generation request. The requested
// provider wins when it exists and is available; otherwise the first
// available adapter in fallback order is used. An unknown requested id is
// an error rather than a silent fallback.
func (r *Registry) Select(requested string) (Adapter, error) {
	if requested != "" {
		a, ok := r.adapters[requested]
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", requested)
		}
		if a.Available() {
			return a, nil
		}
	}
	for _, id := range r.order {
		if a := r.adapters[id]; a.Available() {
			return a, nil
		}
	}
	return nil, fmt.Errorf("no available generation provider")
}

// Fallbacks returns the available adapters that come after the given
// provider in fallback order, used when a job fails transiently and the
// retry budget moves to the next backend.
func (r *Registry) Fallbacks(after string) []Adapter {
	var out []Adapter
	seen := after == ""
	for _, id := range r.order {
		if id == after {
			seen = true
			continue
		}
		if !seen {
			continue
		}
		if a := r.adapters[id]; a.Available() {
			out = append(out, a)
		}
	}
	return out
}
