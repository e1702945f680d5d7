package core

import (
	"sort"
	"strings"
	"sync"

	"cmsstore/pkg/domain"
)

// Factory builds a processor. pctx is nil when no external context is set.
type Factory func(pctx *ProcessorContext, props PropertyBag) (Processor, error)

// Registry maps implementation identifiers to factories. Identifiers are
// case-insensitive and may be registered once.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under impl.
func (r *Registry) Register(impl string, f Factory) error {
	impl = strings.TrimSpace(impl)
	if impl == "" || f == nil {
		return domain.NewFault(domain.ReasonInvalidArgument, "Registry.Register", "impl and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := strings.ToLower(impl)
	if _, exists := r.factories[k]; exists {
		return domain.NewFault(domain.ReasonDuplicate, "Registry.Register", "processor %s already registered", impl)
	}
	r.factories[k] = f
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(impl string, f Factory) {
	if err := r.Register(impl, f); err != nil {
		panic(err)
	}
}

// Lookup returns the factory for impl.
func (r *Registry) Lookup(impl string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[strings.ToLower(strings.TrimSpace(impl))]
	return f, ok
}

// Impls lists registered identifiers in order.
func (r *Registry) Impls() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
