package plugin

import (
	"fmt"
	"sync"
)

// Registry holds the handler catalog in registration order. Dispatch walks
// plugins in that order for every message, so first-match-wins semantics are
// stable across runs. The registry is populated at startup by the embedding
// program; descriptors are read-only afterwards except for Disabled.
type Registry struct {
	mu      sync.RWMutex
	ordered []*Plugin
	byName  map[string]*Plugin

	// DefaultPrefix applies to plugins without their own prefix spec.
	DefaultPrefix *Affix
}

// NewRegistry creates an empty registry with the given default prefix.
func NewRegistry(defaultPrefix *Affix) *Registry {
	return &Registry{
		byName:        make(map[string]*Plugin),
		DefaultPrefix: defaultPrefix,
	}
}

// Register appends a plugin. Names must be unique.
func (r *Registry) Register(p *Plugin) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("plugin must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[p.Name]; exists {
		return fmt.Errorf("plugin %q already registered", p.Name)
	}
	r.byName[p.Name] = p
	r.ordered = append(r.ordered, p)
	return nil
}

// Get returns a plugin by name, or nil.
func (r *Registry) Get(name string) *Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// Plugins returns the registration-ordered plugin list. The returned slice
// is a copy; the descriptors are shared.
func (r *Registry) Plugins() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Plugin, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// PrefixFor resolves the effective prefix spec for a plugin.
func (r *Registry) PrefixFor(p *Plugin) *Affix {
	if p.Prefix != nil {
		return p.Prefix
	}
	return r.DefaultPrefix
}
