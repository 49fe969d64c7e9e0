package ecommerce

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cardvault/backend/internal/domain/integration"
)

// Registry resolves marketplace adapters by marketplace code
type Registry struct {
	mu       sync.RWMutex
	adapters map[integration.Marketplace]integration.MarketplaceAdapter
}

// NewRegistry creates a registry holding the given adapters
func NewRegistry(adapters ...integration.MarketplaceAdapter) *Registry {
	r := &Registry{adapters: make(map[integration.Marketplace]integration.MarketplaceAdapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter of its marketplace
func (r *Registry) Register(a integration.MarketplaceAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Marketplace()] = a
}

// Adapter returns the adapter of a marketplace
func (r *Registry) Adapter(m integration.Marketplace) (integration.MarketplaceAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[m]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrAdapterNotRegistered, m)
	}
	return a, nil
}

// Marketplaces returns the registered marketplaces in a stable order
func (r *Registry) Marketplaces() []integration.Marketplace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]integration.Marketplace, 0, len(r.adapters))
	for m := range r.adapters {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var _ integration.AdapterResolver = (*Registry)(nil)
