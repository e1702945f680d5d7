// Package domain defines the cmsstore object model: keys, state-tracked
// components, typed component collections, ACLs and the permission evaluator.
// Components convert to and from Element trees; textual XML only appears at
// external boundaries.
package domain

import (
	"reflect"
	"strings"
)

// ComponentType is the declared type name of a component, e.g. "PSFolder".
type ComponentType string

// NodeName derives the element name for a component type by replacing the
// "PS" prefix with "PSX".
func NodeName(t ComponentType) string {
	s := string(t)
	if strings.HasPrefix(s, "PS") && !strings.HasPrefix(s, "PSX") {
		return "PSX" + s[2:]
	}
	return s
}

// TypeFromNodeName is the inverse of NodeName.
func TypeFromNodeName(node string) ComponentType {
	if strings.HasPrefix(node, "PSX") {
		return ComponentType("PS" + node[3:])
	}
	return ComponentType(node)
}

// Component is an in-memory object mirroring one stored row. Implementations
// embed Base, which supplies identity and lifecycle.
type Component interface {
	Type() ComponentType
	Key() *Key
	State() State
	IsPersisted() bool
	IsAssigned() bool
	SetPersisted() error
	MarkForDeletion()

	// MarshalContent appends type-specific attributes and children after the key.
	MarshalContent(el *Element)
	// UnmarshalContent reads what MarshalContent wrote.
	UnmarshalContent(el *Element) error
	// ContentEqual compares type-specific attributes; other has the same type.
	ContentEqual(other Component) bool
	// ContentHash must agree with ContentEqual.
	ContentHash() uint64
	// Clone deep-copies the component without pending deletions of children.
	Clone() Component
	// CloneFull deep-copies everything including pending deletions.
	CloneFull() Component

	base() *Base
}

// Composite is implemented by components that own child collections.
type Composite interface {
	Component
	// ChildrenDirty reports whether any child collection has storage work.
	ChildrenDirty() bool
	// ContentEqualFull compares content including pending deletions.
	ContentEqualFull(other Component) bool
	// ChildComponents returns the live members of every child collection.
	ChildComponents() []Component
}

// Base carries a component's key and lifecycle state.
type Base struct {
	key   *Key
	state State
}

// NewBase starts a component lifecycle around key. A persisted key yields an
// unmodified component, anything else a new one.
func NewBase(key *Key) Base {
	if key == nil {
		key = MustKey("ID")
	}
	state := StateNew
	if key.IsPersisted() {
		state = StateUnmodified
	}
	return Base{key: key, state: state}
}

func (b *Base) base() *Base { return b }

// Key returns the component's key. Callers must not share it between components.
func (b *Base) Key() *Key { return b.key }

// State returns the lifecycle state.
func (b *Base) State() State { return b.state }

// IsNew reports StateNew.
func (b *Base) IsNew() bool { return b.state == StateNew }

// IsModified reports StateModified.
func (b *Base) IsModified() bool { return b.state == StateModified }

// IsMarkedForDeletion reports StateMarkedForDeletion.
func (b *Base) IsMarkedForDeletion() bool { return b.state == StateMarkedForDeletion }

// IsPersisted delegates to the key.
func (b *Base) IsPersisted() bool { return b.key.IsPersisted() }

// IsAssigned delegates to the key.
func (b *Base) IsAssigned() bool { return b.key.IsAssigned() }

// Touch records a mutation. Setters call it before changing a field.
func (b *Base) Touch() error {
	switch b.state {
	case StateMarkedForDeletion:
		return NewFault(ReasonInvalidState, "Touch", "component %s is marked for deletion", b.key.String())
	case StateUnmodified:
		b.state = StateModified
	}
	return nil
}

// SetPersisted confirms storage accepted the component.
func (b *Base) SetPersisted() error {
	switch b.state {
	case StateUnmodified:
		return nil
	case StateMarkedForDeletion:
		return NewFault(ReasonInvalidState, "SetPersisted", "component %s is marked for deletion", b.key.String())
	}
	if err := b.key.SetPersisted(true); err != nil {
		return err
	}
	b.state = StateUnmodified
	return nil
}

// checkPersistable reports the error SetPersisted would return for c or any
// live descendant, without changing anything.
func checkPersistable(c Component) error {
	switch c.State() {
	case StateMarkedForDeletion:
		return NewFault(ReasonInvalidState, "SetPersisted", "component %s is marked for deletion", c.Key().String())
	case StateNew, StateModified:
		if !c.Key().IsAssigned() {
			return NewFault(ReasonInvalidState, "Key.SetPersisted", "unassigned key %s cannot be persisted", c.Key().String())
		}
	}
	if comp, ok := c.(Composite); ok {
		for _, child := range comp.ChildComponents() {
			if child.State() == StateMarkedForDeletion {
				continue
			}
			if err := checkPersistable(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// MarkForDeletion requests removal. Calling it again has no further effect.
func (b *Base) MarkForDeletion() {
	b.state = StateMarkedForDeletion
}

// CopyBase returns an independent copy of the identity and state for use in
// Clone implementations.
func (b *Base) CopyBase() Base {
	return Base{key: b.key.Clone(), state: b.state}
}

// Marshal renders a component: root named after its type, state attribute
// when not unmodified, key first, then content.
func Marshal(c Component) *Element {
	el := NewElement(NodeName(c.Type()))
	if s := c.State(); s != StateUnmodified {
		el.SetAttr(attrState, s.String())
	}
	el.Add(c.Key().ToElement())
	c.MarshalContent(el)
	return el
}

// Unmarshal fills c from el. The key found in el must match the shape of c's
// current key. On error c keeps its previous identity and state.
func Unmarshal(el *Element, c Component) error {
	if el == nil {
		return NewFault(ReasonInvalidArgument, "Unmarshal", "element is nil")
	}
	if want := NodeName(c.Type()); el.Name != want {
		return NewFault(ReasonTypeMismatch, "Unmarshal", "element %s does not describe %s", el.Name, want)
	}
	if len(el.Children) == 0 || el.Children[0].Name != NodeKey {
		return NewFault(ReasonMalformedElement, "Unmarshal", "%s must start with %s", el.Name, NodeKey)
	}
	key, err := KeyFromElement(el.Children[0], c.Key())
	if err != nil {
		return err
	}
	sv, _ := el.Attr(attrState)
	state, err := ParseState(sv)
	if err != nil {
		return err
	}
	if err := c.UnmarshalContent(el); err != nil {
		return err
	}
	b := c.base()
	b.key = key
	b.state = state
	return nil
}

// IsDirty reports whether ToDb would produce work for c.
func IsDirty(c Component) bool {
	if c.State() != StateUnmodified {
		return true
	}
	if comp, ok := c.(Composite); ok {
		return comp.ChildrenDirty()
	}
	return false
}

// ToDb returns the storage fragment for c or nil when there is nothing to do.
// Unmodified components whose children changed are emitted as updates; a
// deletion of a never-stored component is dropped.
func ToDb(c Component) *Element {
	var action Action
	switch c.State() {
	case StateNew:
		action = ActionInsert
	case StateModified:
		action = ActionUpdate
	case StateMarkedForDeletion:
		return DeleteFragment(c)
	default:
		if !IsDirty(c) {
			return nil
		}
		action = ActionUpdate
	}
	el := Marshal(c)
	el.SetAttr(attrAction, string(action))
	return el
}

// DeleteFragment builds the delete action fragment for a component removed
// from a collection.
func DeleteFragment(c Component) *Element {
	if !c.IsPersisted() {
		return nil
	}
	el := NewElement(NodeName(c.Type()))
	el.SetAttr(attrAction, string(ActionDelete))
	el.Add(c.Key().ToElement())
	return el
}

// Equal is the shallow equality: type, key values and content. Lifecycle
// state and pending deletions are ignored.
func Equal(a, b Component) bool {
	an, bn := IsNil(a), IsNil(b)
	if an || bn {
		return an && bn
	}
	if a.Type() != b.Type() || !a.Key().Equal(b.Key()) {
		return false
	}
	return a.ContentEqual(b)
}

// EqualFull additionally compares lifecycle state, key flags and pending
// deletions of child collections.
func EqualFull(a, b Component) bool {
	if IsNil(a) || IsNil(b) {
		return IsNil(a) && IsNil(b)
	}
	if !Equal(a, b) {
		return false
	}
	if a.State() != b.State() || a.IsPersisted() != b.IsPersisted() || a.Key().NeedGenerateID() != b.Key().NeedGenerateID() {
		return false
	}
	if ac, ok := a.(Composite); ok {
		return ac.ContentEqualFull(b)
	}
	return true
}

// Hash agrees with Equal.
func Hash(c Component) uint64 {
	if IsNil(c) {
		return nilHash
	}
	return c.Key().Hash()*31 + c.ContentHash()
}

// GenerateKeys assigns generated values to every key of c and its children
// that still needs them. Members marked for deletion are left alone.
func GenerateKeys(c Component, gen func(part string) string) error {
	if IsNil(c) || c.State() == StateMarkedForDeletion {
		return nil
	}
	if c.Key().NeedGenerateID() || !c.IsAssigned() {
		if err := c.Key().Generate(gen); err != nil {
			return err
		}
	}
	if comp, ok := c.(Composite); ok {
		for _, child := range comp.ChildComponents() {
			if err := GenerateKeys(child, gen); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsNil reports whether c is nil or a typed nil pointer.
func IsNil(c Component) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
