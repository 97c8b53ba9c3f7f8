package mapping

import (
	"errors"
	"sync"
)

// Registry holds entity mappings keyed by (source, entityType). Lookups are
// read-only and safe under concurrent normalization workers; Register is
// intended for bootstrap but may be called at runtime.
type Registry struct {
	mu       sync.RWMutex
	mappings map[string]EntityMapping
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{mappings: make(map[string]EntityMapping)}
}

// NewDefaultRegistry returns a registry pre-loaded with the built-in mappings.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, m := range DefaultMappings() {
		// Built-ins are valid by construction.
		_ = r.Register(m)
	}
	return r
}

// Register upserts a mapping by (source, entityType); last write wins.
func (r *Registry) Register(m EntityMapping) error {
	if !m.Valid() {
		return errors.New("mapping requires source and entity type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings[Key(m.Source, m.EntityType)] = m
	return nil
}

// Lookup returns the mapping for a (source, entityType) pair.
func (r *Registry) Lookup(source, entityType string) (EntityMapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mappings[Key(source, entityType)]
	return m, ok
}

// All returns every registered mapping in unspecified order.
func (r *Registry) All() []EntityMapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EntityMapping, 0, len(r.mappings))
	for _, m := range r.mappings {
		out = append(out, m)
	}
	return out
}
