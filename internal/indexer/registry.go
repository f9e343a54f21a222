package indexer

import (
	"sync"

	"indexq/internal/ports"
)

var _ ports.IndexerResolver = (*Registry)(nil)

// Registry maps object types to indexers. Tasks without an object type
// (rebuild, optimize) resolve to the indexer registered under "".
type Registry struct {
	mu       sync.RWMutex
	byType   map[string]ports.Indexer
	fallback ports.Indexer
}

func NewRegistry() *Registry {
	return &Registry{byType: map[string]ports.Indexer{}}
}

func (r *Registry) Register(objectType string, ix ports.Indexer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[objectType] = ix
}

// SetFallback sets the indexer used for object types with no registration.
func (r *Registry) SetFallback(ix ports.Indexer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = ix
}

func (r *Registry) Resolve(objectType string) (ports.Indexer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ix, ok := r.byType[objectType]; ok {
		return ix, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byType))
	for k := range r.byType {
		out = append(out, k)
	}
	return out
}
