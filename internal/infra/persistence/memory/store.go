// Package memory provides an in-memory document store used by the default
// processor configuration, tests and ephemeral environments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"cmsstore/internal/infra/processor/docproc"
	"cmsstore/pkg/domain"
)

var _ docproc.Store = (*Store)(nil)

type docKey struct {
	typ string
	id  string
}

// Store keeps documents in a map guarded by a RWMutex. Payloads are copied
// on the way in and out so callers cannot alias stored bytes.
type Store struct {
	mu   sync.RWMutex
	docs map[docKey][]byte
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{docs: make(map[docKey][]byte)}
}

func keyOf(t domain.ComponentType, id string) docKey {
	return docKey{typ: strings.ToLower(string(t)), id: id}
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

// Get implements docproc.Store.
func (s *Store) Get(_ context.Context, t domain.ComponentType, id string) (docproc.Document, bool, error) {
	s.mu.RLock()
	payload, ok := s.docs[keyOf(t, id)]
	s.mu.RUnlock()
	if !ok {
		return docproc.Document{}, false, nil
	}
	return docproc.Document{Type: t, ID: id, Payload: clone(payload)}, true, nil
}

// Put implements docproc.Store.
func (s *Store) Put(_ context.Context, doc docproc.Document) error {
	s.mu.Lock()
	s.docs[keyOf(doc.Type, doc.ID)] = clone(doc.Payload)
	s.mu.Unlock()
	return nil
}

// Delete implements docproc.Store.
func (s *Store) Delete(_ context.Context, t domain.ComponentType, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyOf(t, id)
	_, ok := s.docs[k]
	delete(s.docs, k)
	return ok, nil
}

// List implements docproc.Store.
func (s *Store) List(_ context.Context, t domain.ComponentType) ([]docproc.Document, error) {
	want := strings.ToLower(string(t))
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []docproc.Document
	for k, payload := range s.docs {
		if k.typ == want {
			out = append(out, docproc.Document{Type: t, ID: k.id, Payload: clone(payload)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Len returns the number of stored documents of every type.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
