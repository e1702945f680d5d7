package core

import (
	"context"

	"cmsstore/pkg/domain"
)

// Operation names reported to metrics, tracing and logs.
const (
	OpSave           = "save"
	OpDelete         = "delete"
	OpDeleteKeys     = "delete_keys"
	OpLoad           = "load"
	OpAddChildren    = "add_children"
	OpRemoveChildren = "remove_children"
	OpMoveChildren   = "move_children"
	OpChildren       = "children"
)

// Proxy dispatches batches of components to the processors their types
// resolve to. A batch mixing types is split by implementation, so types that
// share a processor are handed to it together.
type Proxy struct {
	resolver *Resolver
	opts     options
}

// NewProxy wraps a resolver.
func NewProxy(r *Resolver, opts ...Option) (*Proxy, error) {
	if r == nil {
		return nil, domain.NewFault(domain.ReasonInvalidArgument, "NewProxy", "resolver is nil")
	}
	return &Proxy{resolver: r, opts: applyOptions(opts)}, nil
}

// Resolver returns the underlying resolver.
func (p *Proxy) Resolver() *Resolver { return p.resolver }

type batch struct {
	impl       string
	processor  Processor
	components []domain.Component
}

// partition groups components by implementation in first-appearance order.
// Nil entries are dropped.
func (p *Proxy) partition(components []domain.Component) ([]*batch, error) {
	var out []*batch
	byImpl := make(map[string]*batch)
	for _, c := range components {
		if domain.IsNil(c) {
			continue
		}
		impl, err := p.resolver.Impl(c.Type())
		if err != nil {
			return nil, err
		}
		b, ok := byImpl[impl]
		if !ok {
			proc, err := p.resolver.Resolve(c.Type())
			if err != nil {
				return nil, err
			}
			b = &batch{impl: impl, processor: proc}
			byImpl[impl] = b
			out = append(out, b)
		}
		b.components = append(b.components, c)
	}
	return out, nil
}

func (p *Proxy) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := p.opts.clock.Now()
	ctx, span := p.opts.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	p.opts.metrics.Observe(ctx, op, err == nil, p.opts.clock.Now().Sub(start))
	if err != nil {
		p.opts.logger.Error("proxy operation failed", "operation", op, "category", p.resolver.Category(), "error", err)
	}
	return err
}

func processingFault(err error, op, impl string) error {
	return domain.WrapFault(err, domain.ReasonProcessing, "Proxy."+op, "processor "+impl)
}

// Save hands each group to its processor and aggregates the results. The
// returned components are grouped by processor, not in input order. On error
// the results of groups already saved are still returned.
func (p *Proxy) Save(ctx context.Context, components []domain.Component) (SaveResults, error) {
	var total SaveResults
	err := p.run(ctx, OpSave, func(ctx context.Context) error {
		batches, err := p.partition(components)
		if err != nil {
			return err
		}
		for _, b := range batches {
			res, err := b.processor.Save(ctx, b.components)
			total.Merge(res)
			if err != nil {
				return processingFault(err, OpSave, b.impl)
			}
			p.opts.logger.Debug("saved batch", "impl", b.impl, "components", len(b.components),
				"inserted", res.Stats.Inserted, "updated", res.Stats.Updated, "deleted", res.Stats.Deleted)
		}
		return nil
	})
	if obs, ok := p.opts.metrics.(SaveStatsObserver); ok {
		obs.ObserveSaveStats(ctx, total.Stats)
	}
	return total, err
}

// Delete removes components and returns how many were actually removed.
func (p *Proxy) Delete(ctx context.Context, components []domain.Component) (int, error) {
	var removed int
	err := p.run(ctx, OpDelete, func(ctx context.Context) error {
		batches, err := p.partition(components)
		if err != nil {
			return err
		}
		for _, b := range batches {
			n, err := b.processor.Delete(ctx, b.components)
			removed += n
			if err != nil {
				return processingFault(err, OpDelete, b.impl)
			}
		}
		return nil
	})
	return removed, err
}

// DeleteKeys removes components of type t by key. Nil keys and keys that
// match nothing are skipped; a removed key is cleared, so a key still
// assigned after the call was not found.
func (p *Proxy) DeleteKeys(ctx context.Context, t domain.ComponentType, keys []*domain.Key) (int, error) {
	var removed int
	err := p.run(ctx, OpDeleteKeys, func(ctx context.Context) error {
		live := make([]*domain.Key, 0, len(keys))
		for _, k := range keys {
			if k != nil {
				live = append(live, k)
			}
		}
		proc, err := p.resolver.Resolve(t)
		if err != nil {
			return err
		}
		if len(live) == 0 {
			return nil
		}
		n, err := proc.DeleteKeys(ctx, t, live)
		removed = n
		if err != nil {
			impl, _ := p.resolver.Impl(t)
			return processingFault(err, OpDeleteKeys, impl)
		}
		return nil
	})
	return removed, err
}

// Load fetches components of type t. A nil keys slice loads every stored
// component of the type; a nil element inside keys is an argument fault.
// Fewer components than keys come back when some keys match nothing.
func (p *Proxy) Load(ctx context.Context, t domain.ComponentType, keys []*domain.Key) ([]domain.Component, error) {
	var out []domain.Component
	err := p.run(ctx, OpLoad, func(ctx context.Context) error {
		for i, k := range keys {
			if k == nil {
				return domain.NewFault(domain.ReasonInvalidArgument, "Proxy.Load", "key %d is nil", i)
			}
		}
		proc, err := p.resolver.Resolve(t)
		if err != nil {
			return err
		}
		out, err = proc.Load(ctx, t, keys)
		if err != nil {
			impl, _ := p.resolver.Impl(t)
			return processingFault(err, OpLoad, impl)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Proxy) folder(op string, parent domain.Component) (FolderProcessor, string, error) {
	if domain.IsNil(parent) {
		return nil, "", domain.NewFault(domain.ReasonInvalidArgument, "Proxy."+op, "parent is required")
	}
	proc, err := p.resolver.Resolve(parent.Type())
	if err != nil {
		return nil, "", err
	}
	impl, _ := p.resolver.Impl(parent.Type())
	fp, ok := proc.(FolderProcessor)
	if !ok {
		return nil, "", domain.NewFault(domain.ReasonUnsupported, "Proxy."+op, "processor %s has no folder support", impl)
	}
	return fp, impl, nil
}

func compact(components []domain.Component) []domain.Component {
	out := make([]domain.Component, 0, len(components))
	for _, c := range components {
		if !domain.IsNil(c) {
			out = append(out, c)
		}
	}
	return out
}

// AddChildren links children under parent.
func (p *Proxy) AddChildren(ctx context.Context, parent domain.Component, children []domain.Component) error {
	return p.run(ctx, OpAddChildren, func(ctx context.Context) error {
		fp, impl, err := p.folder(OpAddChildren, parent)
		if err != nil {
			return err
		}
		if err := fp.AddChildren(ctx, parent, compact(children)); err != nil {
			return processingFault(err, OpAddChildren, impl)
		}
		return nil
	})
}

// RemoveChildren unlinks children from parent.
func (p *Proxy) RemoveChildren(ctx context.Context, parent domain.Component, children []domain.Component) error {
	return p.run(ctx, OpRemoveChildren, func(ctx context.Context) error {
		fp, impl, err := p.folder(OpRemoveChildren, parent)
		if err != nil {
			return err
		}
		if err := fp.RemoveChildren(ctx, parent, compact(children)); err != nil {
			return processingFault(err, OpRemoveChildren, impl)
		}
		return nil
	})
}

// MoveChildren relinks children from source to target.
func (p *Proxy) MoveChildren(ctx context.Context, source, target domain.Component, children []domain.Component) error {
	return p.run(ctx, OpMoveChildren, func(ctx context.Context) error {
		if domain.IsNil(target) {
			return domain.NewFault(domain.ReasonInvalidArgument, "Proxy."+OpMoveChildren, "target is required")
		}
		fp, impl, err := p.folder(OpMoveChildren, source)
		if err != nil {
			return err
		}
		if err := fp.MoveChildren(ctx, source, target, compact(children)); err != nil {
			return processingFault(err, OpMoveChildren, impl)
		}
		return nil
	})
}

// Children returns the components linked under parent in sort-rank order.
func (p *Proxy) Children(ctx context.Context, parent domain.Component) ([]domain.Component, error) {
	var out []domain.Component
	err := p.run(ctx, OpChildren, func(ctx context.Context) error {
		fp, impl, err := p.folder(OpChildren, parent)
		if err != nil {
			return err
		}
		out, err = fp.Children(ctx, parent)
		if err != nil {
			return processingFault(err, OpChildren, impl)
		}
		return nil
	})
	return out, err
}
