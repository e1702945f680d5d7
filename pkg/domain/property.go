package domain

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// TypeProperty is the declared type of Property.
const TypeProperty ComponentType = "PSProperty"

// Property is a named string value attached to another component.
type Property struct {
	Base
	name        string
	value       string
	description string
}

// NewProperty returns a new, unsaved property.
func NewProperty(name, value string) (*Property, error) {
	if strings.TrimSpace(name) == "" {
		return nil, NewFault(ReasonInvalidArgument, "NewProperty", "property name must not be empty")
	}
	return &Property{Base: NewBase(MustKey("PROPERTYID")), name: name, value: value}, nil
}

func newEmptyProperty() *Property {
	return &Property{Base: NewBase(MustKey("PROPERTYID"))}
}

// Type implements Component.
func (p *Property) Type() ComponentType { return TypeProperty }

// Name returns the property name.
func (p *Property) Name() string { return p.name }

// Value returns the property value.
func (p *Property) Value() string { return p.value }

// Description returns the optional description.
func (p *Property) Description() string { return p.description }

// SetValue changes the value.
func (p *Property) SetValue(v string) error {
	if v == p.value {
		return nil
	}
	if err := p.Touch(); err != nil {
		return err
	}
	p.value = v
	return nil
}

// SetDescription changes the description.
func (p *Property) SetDescription(d string) error {
	if d == p.description {
		return nil
	}
	if err := p.Touch(); err != nil {
		return err
	}
	p.description = d
	return nil
}

// MarshalContent implements Component.
func (p *Property) MarshalContent(el *Element) {
	el.AddText("name", p.name)
	el.AddText("value", p.value)
	if p.description != "" {
		el.AddText("description", p.description)
	}
}

// UnmarshalContent implements Component.
func (p *Property) UnmarshalContent(el *Element) error {
	name := el.ChildText("name")
	if strings.TrimSpace(name) == "" {
		return NewFault(ReasonMalformedElement, "Property.UnmarshalContent", "property name is required")
	}
	p.name = name
	p.value = el.ChildText("value")
	p.description = el.ChildText("description")
	return nil
}

// ContentEqual implements Component.
func (p *Property) ContentEqual(other Component) bool {
	o, ok := other.(*Property)
	return ok && p.name == o.name && p.value == o.value && p.description == o.description
}

// ContentHash implements Component.
func (p *Property) ContentHash() uint64 {
	return xxhash.Sum64String(p.name + "\x00" + p.value + "\x00" + p.description)
}

// Clone implements Component.
func (p *Property) Clone() Component {
	cp := *p
	cp.Base = p.CopyBase()
	return &cp
}

// CloneFull implements Component.
func (p *Property) CloneFull() Component { return p.Clone() }

// PropertySet holds properties keyed case-insensitively by name. Adding a
// property whose name is already present updates the existing member's
// value instead of adding a second one.
type PropertySet = Collection[*Property]

// NewPropertySet returns an empty PropertySet.
func NewPropertySet() *PropertySet {
	return NewMergingCollection(TypeProperty, newEmptyProperty, mergePropertyByName)
}

func mergePropertyByName(existing []*Property, incoming *Property) (bool, error) {
	for _, p := range existing {
		if strings.EqualFold(p.name, incoming.name) {
			if err := p.SetValue(incoming.value); err != nil {
				return true, err
			}
			if incoming.description != "" {
				if err := p.SetDescription(incoming.description); err != nil {
					return true, err
				}
			}
			return true, nil
		}
	}
	return false, nil
}

// PropertyValue returns the value of the named property in set.
func PropertyValue(set *PropertySet, name string) (string, bool) {
	for _, p := range set.items {
		if strings.EqualFold(p.name, name) {
			return p.value, true
		}
	}
	return "", false
}
