// internal/comm/registry.go
package comm

import (
	"sort"
	"sync"
)

// Registry holds the port identifiers that passed the last enumeration,
// mapped to a human readable descriptor. The enumerator is the only writer;
// readers may observe a scan in progress, the content is advisory.
type Registry struct {
	mu    sync.RWMutex
	ports map[string]string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{ports: make(map[string]string)}
}

// Replace swaps the content for ports
func (r *Registry) Replace(ports map[string]string) {
	next := make(map[string]string, len(ports))
	for k, v := range ports {
		next[k] = v
	}
	r.mu.Lock()
	r.ports = next
	r.mu.Unlock()
}

// Contains reports exact membership of name
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ports[name]
	return ok
}

// Len returns the number of registered ports
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ports)
}

// Snapshot returns a copy of the registry content
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.ports))
	for k, v := range r.ports {
		out[k] = v
	}
	return out
}

// Names returns the sorted port identifiers
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.ports))
	for k := range r.ports {
		names = append(names, k)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
