package core

import (
	"errors"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"cmsstore/pkg/domain"
)

// EnvProcessorConfig names the configuration file used by OpenResolver.
const EnvProcessorConfig = "CMSSTORE_PROCESSOR_CONFIG"

// Resolver resolves component types to processors for one category.
// Processors are cached per implementation identifier, so every component
// type bound to the same impl shares one instance.
type Resolver struct {
	category string
	registry *Registry
	bindings map[string]ProcessorDef
	state    atomic.Pointer[resolverState]
	opts     options
}

type resolverState struct {
	pctx  *ProcessorContext
	mu    sync.Mutex
	cache map[string]Processor
}

func newResolverState(pctx *ProcessorContext) *resolverState {
	return &resolverState{pctx: pctx, cache: make(map[string]Processor)}
}

// NewResolver binds the category's entries of cfg to factories in reg.
func NewResolver(cfg *Config, category string, reg *Registry, opts ...Option) (*Resolver, error) {
	const op = "NewResolver"
	if cfg == nil {
		return nil, domain.NewFault(domain.ReasonConfigMissing, op, "configuration is nil")
	}
	if reg == nil {
		return nil, domain.NewFault(domain.ReasonInvalidArgument, op, "registry is nil")
	}
	if strings.TrimSpace(category) == "" {
		return nil, domain.NewFault(domain.ReasonInvalidArgument, op, "category is required")
	}
	r := &Resolver{
		category: category,
		registry: reg,
		bindings: make(map[string]ProcessorDef),
		opts:     applyOptions(opts),
	}
	for _, def := range cfg.Definitions(category) {
		r.bindings[strings.ToLower(string(def.Type))] = def
	}
	r.state.Store(newResolverState(nil))
	r.opts.logger.Debug("resolver ready", "category", category, "types", len(r.bindings))
	return r, nil
}

// OpenResolver loads the configuration named by CMSSTORE_PROCESSOR_CONFIG,
// or the built-in one when unset, and builds a resolver for category.
func OpenResolver(category string, reg *Registry, opts ...Option) (*Resolver, error) {
	var (
		cfg *Config
		err error
	)
	if path := os.Getenv(EnvProcessorConfig); path != "" {
		cfg, err = LoadConfigFile(path)
	} else {
		cfg, err = DefaultConfig()
	}
	if err != nil {
		return nil, err
	}
	return NewResolver(cfg, category, reg, opts...)
}

// Category returns the resolver's processor category.
func (r *Resolver) Category() string { return r.category }

// Types lists the bound component types.
func (r *Resolver) Types() []domain.ComponentType {
	out := make([]domain.ComponentType, 0, len(r.bindings))
	for _, d := range r.bindings {
		out = append(out, d.Type)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Context returns the current processor context, nil when none is set.
func (r *Resolver) Context() *ProcessorContext {
	return r.state.Load().pctx
}

// Impl returns the implementation identifier bound to t.
func (r *Resolver) Impl(t domain.ComponentType) (string, error) {
	def, err := r.binding(t)
	if err != nil {
		return "", err
	}
	return strings.ToLower(def.Impl), nil
}

func (r *Resolver) binding(t domain.ComponentType) (ProcessorDef, error) {
	def, ok := r.bindings[strings.ToLower(string(t))]
	if !ok {
		return ProcessorDef{}, domain.NewFault(domain.ReasonUnknownComponentType, "Resolver.Resolve",
			"no %s processor configured for %s", r.category, t)
	}
	return def, nil
}

// Resolve returns the processor for t, building and caching it on first use.
func (r *Resolver) Resolve(t domain.ComponentType) (Processor, error) {
	const op = "Resolver.Resolve"
	def, err := r.binding(t)
	if err != nil {
		return nil, err
	}
	impl := strings.ToLower(def.Impl)
	st := r.state.Load()
	st.mu.Lock()
	defer st.mu.Unlock()
	if p, ok := st.cache[impl]; ok {
		return p, nil
	}
	factory, ok := r.registry.Lookup(impl)
	if !ok {
		return nil, domain.NewFault(domain.ReasonNoConstructor, op, "no factory registered for %s (type %s)", def.Impl, t)
	}
	p, err := factory(st.pctx, def.Properties)
	if err != nil {
		r.opts.logger.Error("processor construction failed", "impl", def.Impl, "type", string(t), "error", err)
		return nil, &domain.Fault{Reason: domain.ReasonInstantiation, Op: op, Message: "build " + def.Impl, Err: err}
	}
	if p == nil {
		return nil, domain.NewFault(domain.ReasonInstantiation, op, "factory %s returned no processor", def.Impl)
	}
	st.cache[impl] = p
	r.opts.logger.Debug("processor instantiated", "impl", def.Impl, "category", r.category)
	return p, nil
}

// SetContext installs a new processor context and discards every cached
// processor; the next Resolve builds fresh instances. Retired processors that
// implement io.Closer are closed. Callers must not run proxy operations on
// this resolver concurrently with SetContext.
func (r *Resolver) SetContext(pctx *ProcessorContext) {
	old := r.state.Swap(newResolverState(pctx))
	if err := closeAll(old); err != nil {
		r.opts.logger.Warn("closing retired processors", "error", err)
	}
	r.opts.logger.Info("processor context replaced", "category", r.category)
}

// Close closes cached processors that implement io.Closer.
func (r *Resolver) Close() error {
	return closeAll(r.state.Swap(newResolverState(r.Context())))
}

func closeAll(st *resolverState) error {
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	var errs []error
	for impl, p := range st.cache {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		delete(st.cache, impl)
	}
	return errors.Join(errs...)
}
