package domain

import (
	"sort"
	"strings"
)

// Constructor returns an empty component of one type, ready for Unmarshal.
type Constructor func() Component

// Catalog maps component type names to constructors. It replaces runtime
// class lookup when decoding elements.
type Catalog struct {
	ctors map[string]catalogEntry
}

type catalogEntry struct {
	typ  ComponentType
	ctor Constructor
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{ctors: make(map[string]catalogEntry)}
}

// DefaultCatalog returns a catalog holding the built-in component types.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	c.mustRegister(TypeFolder, func() Component { return newEmptyFolder() })
	c.mustRegister(TypeProperty, func() Component { return newEmptyProperty() })
	c.mustRegister(TypeAclEntry, func() Component { return newEmptyAclEntry() })
	c.mustRegister(TypeRelationship, func() Component { return newEmptyRelationship() })
	return c
}

// Register adds a component type. Names are case-insensitive and unique.
func (c *Catalog) Register(t ComponentType, ctor Constructor) error {
	if t == "" || ctor == nil {
		return NewFault(ReasonInvalidArgument, "Catalog.Register", "type and constructor are required")
	}
	k := strings.ToLower(string(t))
	if _, exists := c.ctors[k]; exists {
		return NewFault(ReasonDuplicate, "Catalog.Register", "component type %s already registered", t)
	}
	c.ctors[k] = catalogEntry{typ: t, ctor: ctor}
	return nil
}

func (c *Catalog) mustRegister(t ComponentType, ctor Constructor) {
	if err := c.Register(t, ctor); err != nil {
		panic(err)
	}
}

// Has reports whether t is known.
func (c *Catalog) Has(t ComponentType) bool {
	_, ok := c.ctors[strings.ToLower(string(t))]
	return ok
}

// Canonical returns the registered spelling of t.
func (c *Catalog) Canonical(t ComponentType) (ComponentType, bool) {
	e, ok := c.ctors[strings.ToLower(string(t))]
	return e.typ, ok
}

// New returns an empty component of type t.
func (c *Catalog) New(t ComponentType) (Component, error) {
	e, ok := c.ctors[strings.ToLower(string(t))]
	if !ok {
		return nil, NewFault(ReasonUnknownComponentType, "Catalog.New", "unknown component type %s", t)
	}
	return e.ctor(), nil
}

// Decode builds a component from its element, choosing the type from the
// element name.
func (c *Catalog) Decode(el *Element) (Component, error) {
	if el == nil {
		return nil, NewFault(ReasonInvalidArgument, "Catalog.Decode", "element is nil")
	}
	comp, err := c.New(TypeFromNodeName(el.Name))
	if err != nil {
		return nil, err
	}
	if err := Unmarshal(el, comp); err != nil {
		return nil, err
	}
	return comp, nil
}

// Types lists registered types in name order.
func (c *Catalog) Types() []ComponentType {
	out := make([]ComponentType, 0, len(c.ctors))
	for _, e := range c.ctors {
		out = append(out, e.typ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
