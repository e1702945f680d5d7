package domain

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// TypeRelationship is the declared type of Relationship.
const TypeRelationship ComponentType = "PSRelationship"

// RelationshipFolderContent is the configuration linking a folder to its children.
const RelationshipFolderContent = "FolderContent"

// Relationship links an owner to a dependent under a named configuration.
type Relationship struct {
	Base
	config        string
	ownerID       string
	dependentID   string
	dependentType ComponentType
	sortRank      int
}

// NewRelationship returns a new, unsaved relationship.
func NewRelationship(config string, owner, dependent Component) (*Relationship, error) {
	if IsNil(owner) || IsNil(dependent) {
		return nil, NewFault(ReasonInvalidArgument, "NewRelationship", "owner and dependent are required")
	}
	if !owner.IsAssigned() || !dependent.IsAssigned() {
		return nil, NewFault(ReasonInvalidKey, "NewRelationship", "owner and dependent keys must be assigned")
	}
	if strings.TrimSpace(config) == "" {
		config = RelationshipFolderContent
	}
	r := newEmptyRelationship()
	r.config = config
	r.ownerID = owner.Key().String()
	r.dependentID = dependent.Key().String()
	r.dependentType = dependent.Type()
	return r, nil
}

func newEmptyRelationship() *Relationship {
	return &Relationship{Base: NewBase(MustKey("RID"))}
}

// Type implements Component.
func (r *Relationship) Type() ComponentType { return TypeRelationship }

// Config returns the relationship configuration name.
func (r *Relationship) Config() string { return r.config }

// OwnerID returns the owner's key string.
func (r *Relationship) OwnerID() string { return r.ownerID }

// DependentID returns the dependent's key string.
func (r *Relationship) DependentID() string { return r.dependentID }

// DependentType returns the dependent's component type.
func (r *Relationship) DependentType() ComponentType { return r.dependentType }

// SortRank returns the ordering hint among siblings.
func (r *Relationship) SortRank() int { return r.sortRank }

// SetOwnerID moves the relationship to another owner.
func (r *Relationship) SetOwnerID(id string) error {
	if id == "" {
		return NewFault(ReasonInvalidArgument, "Relationship.SetOwnerID", "owner id must not be empty")
	}
	if id == r.ownerID {
		return nil
	}
	if err := r.Touch(); err != nil {
		return err
	}
	r.ownerID = id
	return nil
}

// SetSortRank changes the ordering hint.
func (r *Relationship) SetSortRank(rank int) error {
	if rank == r.sortRank {
		return nil
	}
	if err := r.Touch(); err != nil {
		return err
	}
	r.sortRank = rank
	return nil
}

// MarshalContent implements Component.
func (r *Relationship) MarshalContent(el *Element) {
	el.SetAttr("config", r.config)
	el.AddText("owner", r.ownerID)
	dep := NewElement("dependent")
	dep.Text = r.dependentID
	dep.SetAttr("type", string(r.dependentType))
	el.Add(dep)
	el.AddText("sortRank", strconv.Itoa(r.sortRank))
}

// UnmarshalContent implements Component.
func (r *Relationship) UnmarshalContent(el *Element) error {
	config, _ := el.Attr("config")
	owner := el.ChildText("owner")
	dep := el.Child("dependent")
	if config == "" || owner == "" || dep == nil || dep.Text == "" {
		return NewFault(ReasonMalformedElement, "Relationship.UnmarshalContent", "config, owner and dependent are required")
	}
	rank, err := atoiDefault(el.ChildText("sortRank"), 0)
	if err != nil {
		return WrapFault(err, ReasonMalformedElement, "Relationship.UnmarshalContent", "sortRank")
	}
	dt, _ := dep.Attr("type")
	r.config, r.ownerID, r.dependentID, r.dependentType, r.sortRank = config, owner, dep.Text, ComponentType(dt), rank
	return nil
}

// ContentEqual implements Component.
func (r *Relationship) ContentEqual(other Component) bool {
	o, ok := other.(*Relationship)
	return ok && r.config == o.config && r.ownerID == o.ownerID && r.dependentID == o.dependentID &&
		r.dependentType == o.dependentType && r.sortRank == o.sortRank
}

// ContentHash implements Component.
func (r *Relationship) ContentHash() uint64 {
	return xxhash.Sum64String(r.config+"\x00"+r.ownerID+"\x00"+r.dependentID+"\x00"+string(r.dependentType)) + uint64(r.sortRank)
}

// Clone implements Component.
func (r *Relationship) Clone() Component {
	cp := *r
	cp.Base = r.CopyBase()
	return &cp
}

// CloneFull implements Component.
func (r *Relationship) CloneFull() Component { return r.Clone() }
