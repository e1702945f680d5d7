package core

import (
	"context"
	"errors"
	"sort"
	"sync"

	"cmsstore/pkg/domain"
)

// stubProcessor keeps components in a map keyed by type and key string.
type stubProcessor struct {
	mu      sync.Mutex
	pctx    *ProcessorContext
	props   PropertyBag
	rows    map[string]domain.Component
	saves   [][]domain.Component
	failOn  string
	closed  bool
	folders map[string][]domain.Component
}

func newStubProcessor(pctx *ProcessorContext, props PropertyBag) *stubProcessor {
	return &stubProcessor{
		pctx:    pctx,
		props:   props,
		rows:    make(map[string]domain.Component),
		folders: make(map[string][]domain.Component),
	}
}

func rowID(t domain.ComponentType, k *domain.Key) string {
	return string(t) + "|" + k.String()
}

func (s *stubProcessor) put(c domain.Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[rowID(c.Type(), c.Key())] = c
}

func (s *stubProcessor) Load(_ context.Context, t domain.ComponentType, keys []*domain.Key) ([]domain.Component, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Component
	if keys == nil {
		ids := make([]string, 0, len(s.rows))
		for id, c := range s.rows {
			if c.Type() == t {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		for _, id := range ids {
			out = append(out, s.rows[id])
		}
		return out, nil
	}
	for _, k := range keys {
		if c, ok := s.rows[rowID(t, k)]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubProcessor) Save(_ context.Context, components []domain.Component) (SaveResults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, components)
	var res SaveResults
	for _, c := range components {
		if s.failOn != "" && c.Key().String() == s.failOn {
			res.Stats.Errored++
			return res, errors.New("disk full")
		}
		switch c.State() {
		case domain.StateNew:
			res.Stats.Inserted++
		case domain.StateModified:
			res.Stats.Updated++
		case domain.StateMarkedForDeletion:
			delete(s.rows, rowID(c.Type(), c.Key()))
			res.Stats.Deleted++
			continue
		default:
			res.Stats.Skipped++
		}
		s.rows[rowID(c.Type(), c.Key())] = c
		res.Components = append(res.Components, c)
	}
	return res, nil
}

func (s *stubProcessor) Delete(ctx context.Context, components []domain.Component) (int, error) {
	n := 0
	for _, c := range components {
		removed, err := s.DeleteKeys(ctx, c.Type(), []*domain.Key{c.Key()})
		if err != nil {
			return n, err
		}
		n += removed
	}
	return n, nil
}

func (s *stubProcessor) DeleteKeys(_ context.Context, t domain.ComponentType, keys []*domain.Key) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range keys {
		if k == nil {
			continue
		}
		id := rowID(t, k)
		if _, ok := s.rows[id]; ok {
			delete(s.rows, id)
			k.Clear()
			n++
		}
	}
	return n, nil
}

func (s *stubProcessor) Close() error {
	s.closed = true
	return nil
}

// stubFolderProcessor adds folder support to stubProcessor.
type stubFolderProcessor struct {
	*stubProcessor
}

func (s stubFolderProcessor) AddChildren(_ context.Context, parent domain.Component, children []domain.Component) error {
	id := parent.Key().String()
	s.folders[id] = append(s.folders[id], children...)
	return nil
}

func (s stubFolderProcessor) RemoveChildren(_ context.Context, parent domain.Component, children []domain.Component) error {
	id := parent.Key().String()
	kept := s.folders[id][:0]
	for _, have := range s.folders[id] {
		drop := false
		for _, c := range children {
			if have.Key().Equal(c.Key()) {
				drop = true
			}
		}
		if !drop {
			kept = append(kept, have)
		}
	}
	s.folders[id] = kept
	return nil
}

func (s stubFolderProcessor) MoveChildren(ctx context.Context, source, target domain.Component, children []domain.Component) error {
	if err := s.RemoveChildren(ctx, source, children); err != nil {
		return err
	}
	return s.AddChildren(ctx, target, children)
}

func (s stubFolderProcessor) Children(_ context.Context, parent domain.Component) ([]domain.Component, error) {
	return s.folders[parent.Key().String()], nil
}
