package adapters

import (
	"fmt"
	"sort"
	"sync"

	"github.com/thenexusengine/tne_mediation/internal/mediation"
)

// Registry holds the network factories known to the host
type Registry struct {
	mu       sync.RWMutex
	networks map[string]NetworkWithInfo
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{networks: make(map[string]NetworkWithInfo)}
}

// DefaultRegistry is populated by network packages from their init functions
var DefaultRegistry = NewRegistry()

// RegisterAdapter registers a network with the default registry
func RegisterAdapter(name string, factory Factory, info NetworkInfo) error {
	return DefaultRegistry.Register(name, factory, info)
}

// Register adds a network. Names are unique.
func (r *Registry) Register(name string, factory Factory, info NetworkInfo) error {
	if name == "" {
		return fmt.Errorf("network name is required")
	}
	if factory == nil {
		return fmt.Errorf("network %s: factory is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.networks[name]; exists {
		return fmt.Errorf("network %s already registered", name)
	}
	r.networks[name] = NetworkWithInfo{Factory: factory, Info: info}
	return nil
}

// Get returns a registered network
func (r *Registry) Get(name string) (NetworkWithInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.networks[name]
	return n, ok
}

// New builds an adapter for a registered network
func (r *Registry) New(name string, deps Dependencies) (mediation.Adapter, error) {
	n, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("network %s is not registered", name)
	}
	a, err := n.Factory(deps)
	if err != nil {
		return nil, fmt.Errorf("network %s: %w", name, err)
	}
	return a, nil
}

// ListNetworks returns every registered network name, sorted
func (r *Registry) ListNetworks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.networks))
	for name := range r.networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListEnabledNetworks returns registered names whose info is enabled, sorted
func (r *Registry) ListEnabledNetworks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.networks))
	for name, n := range r.networks {
		if n.Info.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
