package domain

// nilHash is the sentinel added to a collection hash per nil member.
const nilHash uint64 = 0x9e3779b97f4a7c15

const nodeDeleted = "PSXDeleted"

// AddPolicy decides how a collection treats an incoming member equal to one
// it already holds.
type AddPolicy int

// Collection add policies.
const (
	// PolicyList accepts duplicates.
	PolicyList AddPolicy = iota
	// PolicySet rejects a member equal to an existing one.
	PolicySet
	// PolicyMerge hands the incoming member to a merge callback first.
	PolicyMerge
)

// MergeFunc folds incoming into a matching existing member and reports
// whether it did. When it returns false the member is appended.
type MergeFunc[T Component] func(existing []T, incoming T) (bool, error)

// Collection holds components of one declared type together with the members
// removed since the last persisted snapshot.
type Collection[T Component] struct {
	memberType ComponentType
	newMember  func() T
	policy     AddPolicy
	merge      MergeFunc[T]
	items      []T
	deleted    []T
}

// NewList returns a collection that accepts duplicate members.
func NewList[T Component](memberType ComponentType, newMember func() T) *Collection[T] {
	return &Collection[T]{memberType: memberType, newMember: newMember, policy: PolicyList}
}

// NewSet returns a collection that rejects members equal to existing ones.
func NewSet[T Component](memberType ComponentType, newMember func() T) *Collection[T] {
	return &Collection[T]{memberType: memberType, newMember: newMember, policy: PolicySet}
}

// NewMergingCollection returns a collection that merges incoming members via merge.
func NewMergingCollection[T Component](memberType ComponentType, newMember func() T, merge MergeFunc[T]) *Collection[T] {
	return &Collection[T]{memberType: memberType, newMember: newMember, policy: PolicyMerge, merge: merge}
}

// MemberType returns the declared member type.
func (c *Collection[T]) MemberType() ComponentType { return c.memberType }

// NodeName returns the element name of the serialized collection.
func (c *Collection[T]) NodeName() string { return NodeName(c.memberType) + "List" }

// Len returns the number of live members.
func (c *Collection[T]) Len() int { return len(c.items) }

// At returns the i-th live member.
func (c *Collection[T]) At(i int) T { return c.items[i] }

// Items returns a copy of the live member slice.
func (c *Collection[T]) Items() []T {
	return append([]T(nil), c.items...)
}

// Deleted returns a copy of the pending-delete members.
func (c *Collection[T]) Deleted() []T {
	return append([]T(nil), c.deleted...)
}

// Add appends a member after checking its declared type.
func (c *Collection[T]) Add(item T) error {
	if IsNil(item) {
		return NewFault(ReasonInvalidArgument, "Collection.Add", "member is nil")
	}
	if item.Type() != c.memberType {
		return NewFault(ReasonTypeMismatch, "Collection.Add", "%s cannot be added to a %s collection", item.Type(), c.memberType)
	}
	switch c.policy {
	case PolicyMerge:
		if c.merge != nil {
			merged, err := c.merge(c.items, item)
			if err != nil {
				return err
			}
			if merged {
				return nil
			}
		}
	case PolicySet:
		for _, existing := range c.items {
			if Equal(existing, item) {
				return NewFault(ReasonDuplicate, "Collection.Add", "%s %s already present", c.memberType, item.Key().String())
			}
		}
	}
	for i, d := range c.deleted {
		if Equal(d, item) {
			c.deleted = append(c.deleted[:i], c.deleted[i+1:]...)
			break
		}
	}
	c.items = append(c.items, item)
	return nil
}

// AddAll adds members in order, stopping at the first failure.
func (c *Collection[T]) AddAll(items ...T) error {
	for _, it := range items {
		if err := c.Add(it); err != nil {
			return err
		}
	}
	return nil
}

// Remove drops the member (matched by identity, then by value). Stored
// members move to the pending-delete bag; never-stored ones are discarded.
func (c *Collection[T]) Remove(item T) bool {
	if IsNil(item) {
		return false
	}
	idx := -1
	for i, it := range c.items {
		if Component(it) == Component(item) {
			idx = i
			break
		}
	}
	if idx < 0 {
		for i, it := range c.items {
			if Equal(it, item) {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return false
	}
	c.RemoveAt(idx)
	return true
}

// RemoveAt removes the i-th live member and returns it.
func (c *Collection[T]) RemoveAt(i int) T {
	item := c.items[i]
	c.items = append(c.items[:i], c.items[i+1:]...)
	if item.State() != StateNew && item.IsPersisted() {
		c.deleted = append(c.deleted, item)
	}
	return item
}

// Find returns the first live member whose key equals key.
func (c *Collection[T]) Find(key *Key) (T, bool) {
	var zero T
	if key == nil {
		return zero, false
	}
	for _, it := range c.items {
		if it.Key().Equal(key) {
			return it, true
		}
	}
	return zero, false
}

// Equal compares live members as a multiset, ignoring order and the
// pending-delete bag.
func (c *Collection[T]) Equal(other *Collection[T]) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.memberType == other.memberType && sameMultiset(c.items, other.items, Equal)
}

// EqualFull also compares pending-delete bags and uses full member equality.
func (c *Collection[T]) EqualFull(other *Collection[T]) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.memberType == other.memberType &&
		sameMultiset(c.items, other.items, EqualFull) &&
		sameMultiset(c.deleted, other.deleted, EqualFull)
}

// Hash sums member hashes so it agrees with the order-independent Equal.
func (c *Collection[T]) Hash() uint64 {
	var h uint64
	for _, it := range c.items {
		h += Hash(it)
	}
	return h
}

// Clone deep-copies live members; pending deletions are not carried over.
func (c *Collection[T]) Clone() *Collection[T] {
	out := c.emptyCopy()
	for _, it := range c.items {
		out.items = append(out.items, it.Clone().(T))
	}
	return out
}

// CloneFull deep-copies live members and pending deletions.
func (c *Collection[T]) CloneFull() *Collection[T] {
	out := c.emptyCopy()
	for _, it := range c.items {
		out.items = append(out.items, it.CloneFull().(T))
	}
	for _, it := range c.deleted {
		out.deleted = append(out.deleted, it.CloneFull().(T))
	}
	return out
}

func (c *Collection[T]) emptyCopy() *Collection[T] {
	return &Collection[T]{memberType: c.memberType, newMember: c.newMember, policy: c.policy, merge: c.merge}
}

// IsPersisted is true when every live member is persisted.
func (c *Collection[T]) IsPersisted() bool {
	for _, it := range c.items {
		if !it.IsPersisted() {
			return false
		}
	}
	return true
}

// IsAssigned is true when every live member has an assigned key.
func (c *Collection[T]) IsAssigned() bool {
	for _, it := range c.items {
		if !it.IsAssigned() {
			return false
		}
	}
	return true
}

// IsDirty reports whether ToDb would emit anything.
func (c *Collection[T]) IsDirty() bool {
	if len(c.deleted) > 0 {
		return true
	}
	for _, it := range c.items {
		if IsDirty(it) {
			return true
		}
	}
	return false
}

// SetPersisted confirms storage accepted the collection: live members are
// persisted, members marked for deletion are dropped and the pending-delete
// bag is purged. Nothing changes when a live member cannot be persisted.
func (c *Collection[T]) SetPersisted() error {
	kept := make([]T, 0, len(c.items))
	for _, it := range c.items {
		if it.State() == StateMarkedForDeletion {
			continue
		}
		if err := checkPersistable(it); err != nil {
			return err
		}
		kept = append(kept, it)
	}
	for _, it := range kept {
		if err := it.SetPersisted(); err != nil {
			return err
		}
	}
	c.items = kept
	c.deleted = nil
	return nil
}

// ToDb returns storage fragments for dirty members followed by deletes for
// the pending-delete bag.
func (c *Collection[T]) ToDb() []*Element {
	var out []*Element
	for _, it := range c.items {
		if el := ToDb(it); el != nil {
			out = append(out, el)
		}
	}
	for _, it := range c.deleted {
		if el := DeleteFragment(it); el != nil {
			out = append(out, el)
		}
	}
	return out
}

// ToElement serializes live members and, when present, the pending deletions.
func (c *Collection[T]) ToElement() *Element {
	el := NewElement(c.NodeName())
	for _, it := range c.items {
		el.Add(Marshal(it))
	}
	if len(c.deleted) > 0 {
		del := NewElement(nodeDeleted)
		for _, it := range c.deleted {
			del.Add(Marshal(it))
		}
		el.Add(del)
	}
	return el
}

// FromElement replaces the collection's content with the members in el.
func (c *Collection[T]) FromElement(el *Element) error {
	if el == nil || el.Name != c.NodeName() {
		return NewFault(ReasonMalformedElement, "Collection.FromElement", "expected %s element", c.NodeName())
	}
	if c.newMember == nil {
		return NewFault(ReasonUnsupported, "Collection.FromElement", "%s collection has no member constructor", c.memberType)
	}
	var items, deleted []T
	for _, child := range el.Children {
		if child.Name == nodeDeleted {
			for _, d := range child.Children {
				m, err := c.decodeMember(d)
				if err != nil {
					return err
				}
				deleted = append(deleted, m)
			}
			continue
		}
		m, err := c.decodeMember(child)
		if err != nil {
			return err
		}
		items = append(items, m)
	}
	c.items, c.deleted = items, deleted
	return nil
}

func (c *Collection[T]) decodeMember(el *Element) (T, error) {
	m := c.newMember()
	if err := Unmarshal(el, m); err != nil {
		var zero T
		return zero, err
	}
	return m, nil
}

func sameMultiset[T Component](a, b []T, eq func(Component, Component) bool) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, x := range a {
		found := false
		for j, y := range b {
			if !used[j] && eq(x, y) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
