package core

import (
	"context"

	"cmsstore/pkg/domain"
)

// Processor performs storage work for the component types bound to it.
type Processor interface {
	// Load returns the stored components of type t named by keys. A nil keys
	// slice loads every stored component of that type. Keys that match nothing
	// are skipped; a nil entry is an argument fault.
	Load(ctx context.Context, t domain.ComponentType, keys []*domain.Key) ([]domain.Component, error)
	// Save applies the storage work implied by each component's state.
	Save(ctx context.Context, components []domain.Component) (SaveResults, error)
	// Delete removes the given components and returns how many were removed.
	Delete(ctx context.Context, components []domain.Component) (int, error)
	// DeleteKeys removes components of type t by key. Nil and unmatched keys
	// are skipped; removed keys are cleared so callers can spot skipped ones
	// by their still-assigned flag.
	DeleteKeys(ctx context.Context, t domain.ComponentType, keys []*domain.Key) (int, error)
}

// FolderProcessor is the optional folder-tree capability.
type FolderProcessor interface {
	AddChildren(ctx context.Context, parent domain.Component, children []domain.Component) error
	RemoveChildren(ctx context.Context, parent domain.Component, children []domain.Component) error
	MoveChildren(ctx context.Context, source, target domain.Component, children []domain.Component) error
	Children(ctx context.Context, parent domain.Component) ([]domain.Component, error)
}

// ProcessorContext is the external context processors are built against.
// Replacing it on a Resolver rebuilds every processor.
type ProcessorContext struct {
	Principal domain.Principal
	Values    map[string]string
}

// Value returns a context value.
func (c *ProcessorContext) Value(name string) string {
	if c == nil {
		return ""
	}
	return c.Values[name]
}

// SaveStats counts the outcome of a save per component.
type SaveStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
	Skipped  int `json:"skipped"`
	Errored  int `json:"errored"`
}

// Add accumulates other into s.
func (s *SaveStats) Add(other SaveStats) {
	s.Inserted += other.Inserted
	s.Updated += other.Updated
	s.Deleted += other.Deleted
	s.Skipped += other.Skipped
	s.Errored += other.Errored
}

// Total returns the number of components accounted for.
func (s SaveStats) Total() int {
	return s.Inserted + s.Updated + s.Deleted + s.Skipped + s.Errored
}

// SaveResults is what a save returns: the surviving components and counts.
type SaveResults struct {
	Components []domain.Component
	Stats      SaveStats
}

// Merge appends other's components and adds its stats.
func (r *SaveResults) Merge(other SaveResults) {
	r.Components = append(r.Components, other.Components...)
	r.Stats.Add(other.Stats)
}
