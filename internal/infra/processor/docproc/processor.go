// Package docproc implements core.Processor and core.FolderProcessor over a
// flat document store. Each stored component is one document holding the
// component's XML rendering, children included; folder membership is kept as
// FolderContent relationship documents.
package docproc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"

	"cmsstore/internal/core"
	"cmsstore/pkg/domain"
)

// Document is one stored component. ID is the component key's String form.
type Document struct {
	Type    domain.ComponentType
	ID      string
	Payload []byte
}

// Store persists documents by type and id. Put replaces an existing document.
// List returns documents of one type ordered by id.
type Store interface {
	Get(ctx context.Context, t domain.ComponentType, id string) (Document, bool, error)
	Put(ctx context.Context, doc Document) error
	Delete(ctx context.Context, t domain.ComponentType, id string) (bool, error)
	List(ctx context.Context, t domain.ComponentType) ([]Document, error)
}

// Option configures a Processor.
type Option func(*Processor)

// WithCatalog sets the catalog used to decode documents.
func WithCatalog(c *domain.Catalog) Option {
	return func(p *Processor) {
		if c != nil {
			p.catalog = c
		}
	}
}

// WithIDGenerator replaces the uuid based key generator.
func WithIDGenerator(gen func(part string) string) Option {
	return func(p *Processor) {
		if gen != nil {
			p.newID = gen
		}
	}
}

// Processor stores components as documents in a Store.
type Processor struct {
	store   Store
	catalog *domain.Catalog
	newID   func(part string) string
	// links serializes folder membership edits.
	links sync.Mutex
}

var (
	_ core.Processor       = (*Processor)(nil)
	_ core.FolderProcessor = (*Processor)(nil)
)

// New wraps store.
func New(store Store, opts ...Option) (*Processor, error) {
	if store == nil {
		return nil, errors.New("docproc: store is nil")
	}
	p := &Processor{
		store:   store,
		catalog: domain.DefaultCatalog(),
		newID:   func(string) string { return uuid.NewString() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Store returns the underlying document store.
func (p *Processor) Store() Store { return p.store }

// Close closes the store when it holds resources.
func (p *Processor) Close() error {
	if c, ok := p.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (p *Processor) canonical(op string, t domain.ComponentType) (domain.ComponentType, error) {
	ct, ok := p.catalog.Canonical(t)
	if !ok {
		return "", domain.NewFault(domain.ReasonUnknownComponentType, op, "unknown component type %s", t)
	}
	return ct, nil
}

func (p *Processor) decode(doc Document) (domain.Component, error) {
	el, err := domain.UnmarshalXML(doc.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", doc.Type, doc.ID, err)
	}
	c, err := p.catalog.Decode(el)
	if err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", doc.Type, doc.ID, err)
	}
	return c, nil
}

// Load implements core.Processor.
func (p *Processor) Load(ctx context.Context, t domain.ComponentType, keys []*domain.Key) ([]domain.Component, error) {
	ct, err := p.canonical("docproc.Load", t)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		docs, err := p.store.List(ctx, ct)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", ct, err)
		}
		out := make([]domain.Component, 0, len(docs))
		for _, d := range docs {
			c, err := p.decode(d)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	}
	out := make([]domain.Component, 0, len(keys))
	for i, k := range keys {
		if k == nil {
			return nil, domain.NewFault(domain.ReasonInvalidArgument, "docproc.Load", "key %d is nil", i)
		}
		if !k.IsAssigned() {
			continue
		}
		doc, found, err := p.store.Get(ctx, ct, k.String())
		if err != nil {
			return nil, fmt.Errorf("get %s %s: %w", ct, k, err)
		}
		if !found {
			continue
		}
		c, err := p.decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// write generates missing keys and stores the persisted rendering of c.
func (p *Processor) write(ctx context.Context, c domain.Component) error {
	ct, err := p.canonical("docproc.Save", c.Type())
	if err != nil {
		return err
	}
	if err := domain.GenerateKeys(c, p.newID); err != nil {
		return err
	}
	stored := c.CloneFull()
	if err := stored.SetPersisted(); err != nil {
		return err
	}
	payload, err := domain.MarshalXML(domain.Marshal(stored))
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", ct, c.Key(), err)
	}
	if err := p.store.Put(ctx, Document{Type: ct, ID: c.Key().String(), Payload: payload}); err != nil {
		return fmt.Errorf("put %s %s: %w", ct, c.Key(), err)
	}
	return nil
}

// Save implements core.Processor. Components come back persisted unless
// they were deleted; the first failure stops the batch.
func (p *Processor) Save(ctx context.Context, components []domain.Component) (core.SaveResults, error) {
	var res core.SaveResults
	for _, c := range components {
		if domain.IsNil(c) {
			continue
		}
		switch {
		case c.State() == domain.StateMarkedForDeletion:
			if !c.IsPersisted() {
				res.Stats.Skipped++
				continue
			}
			ct, err := p.canonical("docproc.Save", c.Type())
			if err != nil {
				res.Stats.Errored++
				return res, err
			}
			removed, err := p.store.Delete(ctx, ct, c.Key().String())
			if err != nil {
				res.Stats.Errored++
				return res, fmt.Errorf("delete %s %s: %w", ct, c.Key(), err)
			}
			if removed {
				res.Stats.Deleted++
			} else {
				res.Stats.Skipped++
			}
		case c.State() == domain.StateNew:
			if err := p.write(ctx, c); err != nil {
				res.Stats.Errored++
				return res, err
			}
			if err := c.SetPersisted(); err != nil {
				return res, err
			}
			res.Stats.Inserted++
			res.Components = append(res.Components, c)
		case domain.IsDirty(c):
			if err := p.write(ctx, c); err != nil {
				res.Stats.Errored++
				return res, err
			}
			if err := c.SetPersisted(); err != nil {
				return res, err
			}
			res.Stats.Updated++
			res.Components = append(res.Components, c)
		default:
			res.Stats.Skipped++
			res.Components = append(res.Components, c)
		}
	}
	return res, nil
}

// Delete implements core.Processor. Removed components have their keys cleared.
func (p *Processor) Delete(ctx context.Context, components []domain.Component) (int, error) {
	n := 0
	for _, c := range components {
		if domain.IsNil(c) || !c.IsAssigned() {
			continue
		}
		ct, err := p.canonical("docproc.Delete", c.Type())
		if err != nil {
			return n, err
		}
		removed, err := p.store.Delete(ctx, ct, c.Key().String())
		if err != nil {
			return n, fmt.Errorf("delete %s %s: %w", ct, c.Key(), err)
		}
		if removed {
			n++
			c.Key().Clear()
		}
	}
	return n, nil
}

// DeleteKeys implements core.Processor.
func (p *Processor) DeleteKeys(ctx context.Context, t domain.ComponentType, keys []*domain.Key) (int, error) {
	ct, err := p.canonical("docproc.DeleteKeys", t)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		if k == nil || !k.IsAssigned() {
			continue
		}
		removed, err := p.store.Delete(ctx, ct, k.String())
		if err != nil {
			return n, fmt.Errorf("delete %s %s: %w", ct, k, err)
		}
		if removed {
			n++
			k.Clear()
		}
	}
	return n, nil
}

func requireAssigned(op string, c domain.Component) error {
	if domain.IsNil(c) {
		return domain.NewFault(domain.ReasonInvalidArgument, op, "component is nil")
	}
	if !c.IsAssigned() {
		return domain.NewFault(domain.ReasonInvalidKey, op, "%s key %s is not assigned", c.Type(), c.Key())
	}
	return nil
}

// folderLinks returns the FolderContent relationships owned by ownerID
// ordered by sort rank.
func (p *Processor) folderLinks(ctx context.Context, ownerID string) ([]*domain.Relationship, error) {
	docs, err := p.store.List(ctx, domain.TypeRelationship)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", domain.TypeRelationship, err)
	}
	var links []*domain.Relationship
	for _, d := range docs {
		c, err := p.decode(d)
		if err != nil {
			return nil, err
		}
		r, ok := c.(*domain.Relationship)
		if !ok || r.Config() != domain.RelationshipFolderContent || r.OwnerID() != ownerID {
			continue
		}
		links = append(links, r)
	}
	sort.SliceStable(links, func(i, j int) bool { return links[i].SortRank() < links[j].SortRank() })
	return links, nil
}

func (p *Processor) addChildren(ctx context.Context, parent domain.Component, children []domain.Component) error {
	links, err := p.folderLinks(ctx, parent.Key().String())
	if err != nil {
		return err
	}
	linked := make(map[string]bool, len(links))
	rank := 0
	for _, l := range links {
		linked[l.DependentID()] = true
		if l.SortRank() >= rank {
			rank = l.SortRank() + 1
		}
	}
	for _, child := range children {
		if domain.IsNil(child) {
			continue
		}
		if err := requireAssigned("docproc.AddChildren", child); err != nil {
			return err
		}
		id := child.Key().String()
		if linked[id] {
			continue
		}
		r, err := domain.NewRelationship(domain.RelationshipFolderContent, parent, child)
		if err != nil {
			return err
		}
		if err := r.SetSortRank(rank); err != nil {
			return err
		}
		if err := p.write(ctx, r); err != nil {
			return err
		}
		linked[id] = true
		rank++
	}
	return nil
}

func (p *Processor) removeChildren(ctx context.Context, parent domain.Component, children []domain.Component) error {
	drop := make(map[string]bool, len(children))
	for _, child := range children {
		if domain.IsNil(child) || !child.IsAssigned() {
			continue
		}
		drop[child.Key().String()] = true
	}
	if len(drop) == 0 {
		return nil
	}
	links, err := p.folderLinks(ctx, parent.Key().String())
	if err != nil {
		return err
	}
	for _, l := range links {
		if !drop[l.DependentID()] {
			continue
		}
		if _, err := p.store.Delete(ctx, domain.TypeRelationship, l.Key().String()); err != nil {
			return fmt.Errorf("unlink %s: %w", l.DependentID(), err)
		}
	}
	return nil
}

// AddChildren links children under parent after its existing children.
// Children already linked keep their position.
func (p *Processor) AddChildren(ctx context.Context, parent domain.Component, children []domain.Component) error {
	if err := requireAssigned("docproc.AddChildren", parent); err != nil {
		return err
	}
	p.links.Lock()
	defer p.links.Unlock()
	return p.addChildren(ctx, parent, children)
}

// RemoveChildren unlinks children from parent. The children themselves stay stored.
func (p *Processor) RemoveChildren(ctx context.Context, parent domain.Component, children []domain.Component) error {
	if err := requireAssigned("docproc.RemoveChildren", parent); err != nil {
		return err
	}
	p.links.Lock()
	defer p.links.Unlock()
	return p.removeChildren(ctx, parent, children)
}

// MoveChildren unlinks children from source and appends them to target.
func (p *Processor) MoveChildren(ctx context.Context, source, target domain.Component, children []domain.Component) error {
	if err := requireAssigned("docproc.MoveChildren", source); err != nil {
		return err
	}
	if err := requireAssigned("docproc.MoveChildren", target); err != nil {
		return err
	}
	p.links.Lock()
	defer p.links.Unlock()
	if err := p.removeChildren(ctx, source, children); err != nil {
		return err
	}
	return p.addChildren(ctx, target, children)
}

// Children loads the components linked under parent in sort order. Links
// whose dependent no longer exists are skipped.
func (p *Processor) Children(ctx context.Context, parent domain.Component) ([]domain.Component, error) {
	if err := requireAssigned("docproc.Children", parent); err != nil {
		return nil, err
	}
	p.links.Lock()
	links, err := p.folderLinks(ctx, parent.Key().String())
	p.links.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Component, 0, len(links))
	for _, l := range links {
		ct, err := p.canonical("docproc.Children", l.DependentType())
		if err != nil {
			return nil, err
		}
		doc, found, err := p.store.Get(ctx, ct, l.DependentID())
		if err != nil {
			return nil, fmt.Errorf("get %s %s: %w", ct, l.DependentID(), err)
		}
		if !found {
			continue
		}
		c, err := p.decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
