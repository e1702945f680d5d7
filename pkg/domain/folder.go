package domain

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// TypeFolder is the declared type of Folder.
const TypeFolder ComponentType = "PSFolder"

// Folder is a container object with properties and an ACL.
type Folder struct {
	Base
	name            string
	description     string
	communityID     int
	displayFormatID int
	properties      *PropertySet
	acl             *Acl
}

// NewFolder returns a new, unsaved folder open to every community.
func NewFolder(name string) (*Folder, error) {
	if strings.TrimSpace(name) == "" {
		return nil, NewFault(ReasonInvalidArgument, "NewFolder", "folder name must not be empty")
	}
	f := newEmptyFolder()
	f.name = name
	return f, nil
}

func newEmptyFolder() *Folder {
	return &Folder{
		Base:            NewBase(MustKey("CONTENTID")),
		communityID:     CommunityAny,
		displayFormatID: -1,
		properties:      NewPropertySet(),
		acl:             NewAcl(),
	}
}

// Type implements Component.
func (f *Folder) Type() ComponentType { return TypeFolder }

// Name returns the folder name.
func (f *Folder) Name() string { return f.name }

// Description returns the folder description.
func (f *Folder) Description() string { return f.description }

// CommunityID returns the owning community or CommunityAny.
func (f *Folder) CommunityID() int { return f.communityID }

// DisplayFormatID returns the display format id, -1 when unset.
func (f *Folder) DisplayFormatID() int { return f.displayFormatID }

// Properties returns the folder's property set.
func (f *Folder) Properties() *PropertySet { return f.properties }

// Acl returns the folder's ACL.
func (f *Folder) Acl() *Acl { return f.acl }

// SetName renames the folder.
func (f *Folder) SetName(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewFault(ReasonInvalidArgument, "Folder.SetName", "folder name must not be empty")
	}
	if name == f.name {
		return nil
	}
	if err := f.Touch(); err != nil {
		return err
	}
	f.name = name
	return nil
}

// SetDescription changes the description.
func (f *Folder) SetDescription(d string) error {
	if d == f.description {
		return nil
	}
	if err := f.Touch(); err != nil {
		return err
	}
	f.description = d
	return nil
}

// SetCommunityID restricts the folder to a community.
func (f *Folder) SetCommunityID(id int) error {
	if id < CommunityAny {
		return NewFault(ReasonInvalidArgument, "Folder.SetCommunityID", "invalid community id %d", id)
	}
	if id == f.communityID {
		return nil
	}
	if err := f.Touch(); err != nil {
		return err
	}
	f.communityID = id
	return nil
}

// SetDisplayFormatID changes the display format.
func (f *Folder) SetDisplayFormatID(id int) error {
	if id == f.displayFormatID {
		return nil
	}
	if err := f.Touch(); err != nil {
		return err
	}
	f.displayFormatID = id
	return nil
}

// SetProperty adds a property or updates the same-named one.
func (f *Folder) SetProperty(name, value string) error {
	if f.IsMarkedForDeletion() {
		return NewFault(ReasonInvalidState, "Folder.SetProperty", "folder %s is marked for deletion", f.Key().String())
	}
	p, err := NewProperty(name, value)
	if err != nil {
		return err
	}
	return f.properties.Add(p)
}

// SetPersisted confirms storage and cascades to child collections. The folder
// is left untouched when it or any live child cannot be persisted.
func (f *Folder) SetPersisted() error {
	if err := checkPersistable(f); err != nil {
		return err
	}
	if err := f.Base.SetPersisted(); err != nil {
		return err
	}
	if err := f.properties.SetPersisted(); err != nil {
		return err
	}
	return f.acl.SetPersisted()
}

// ChildrenDirty implements Composite.
func (f *Folder) ChildrenDirty() bool {
	return f.properties.IsDirty() || f.acl.IsDirty()
}

// ChildComponents implements Composite.
func (f *Folder) ChildComponents() []Component {
	out := make([]Component, 0, f.properties.Len()+f.acl.Len())
	for _, p := range f.properties.Items() {
		out = append(out, p)
	}
	for _, e := range f.acl.Items() {
		out = append(out, e)
	}
	return out
}

// MarshalContent implements Component.
func (f *Folder) MarshalContent(el *Element) {
	el.AddText("name", f.name)
	if f.description != "" {
		el.AddText("description", f.description)
	}
	el.AddText("communityId", strconv.Itoa(f.communityID))
	el.AddText("displayFormatId", strconv.Itoa(f.displayFormatID))
	el.Add(f.properties.ToElement(), f.acl.ToElement())
}

// UnmarshalContent implements Component.
func (f *Folder) UnmarshalContent(el *Element) error {
	name := el.ChildText("name")
	if strings.TrimSpace(name) == "" {
		return NewFault(ReasonMalformedElement, "Folder.UnmarshalContent", "folder name is required")
	}
	community, err := atoiDefault(el.ChildText("communityId"), CommunityAny)
	if err != nil {
		return WrapFault(err, ReasonMalformedElement, "Folder.UnmarshalContent", "communityId")
	}
	format, err := atoiDefault(el.ChildText("displayFormatId"), -1)
	if err != nil {
		return WrapFault(err, ReasonMalformedElement, "Folder.UnmarshalContent", "displayFormatId")
	}
	props := NewPropertySet()
	if pe := el.Child(props.NodeName()); pe != nil {
		if err := props.FromElement(pe); err != nil {
			return err
		}
	}
	acl := NewAcl()
	if ae := el.Child(acl.NodeName()); ae != nil {
		if err := acl.FromElement(ae); err != nil {
			return err
		}
	}
	f.name = name
	f.description = el.ChildText("description")
	f.communityID = community
	f.displayFormatID = format
	f.properties = props
	f.acl = acl
	return nil
}

func (f *Folder) fieldsEqual(o *Folder) bool {
	return f.name == o.name && f.description == o.description &&
		f.communityID == o.communityID && f.displayFormatID == o.displayFormatID
}

// ContentEqual implements Component.
func (f *Folder) ContentEqual(other Component) bool {
	o, ok := other.(*Folder)
	return ok && f.fieldsEqual(o) && f.properties.Equal(o.properties) && f.acl.Equal(o.acl)
}

// ContentEqualFull implements Composite.
func (f *Folder) ContentEqualFull(other Component) bool {
	o, ok := other.(*Folder)
	return ok && f.fieldsEqual(o) && f.properties.EqualFull(o.properties) && f.acl.EqualFull(o.acl)
}

// ContentHash implements Component.
func (f *Folder) ContentHash() uint64 {
	h := xxhash.Sum64String(f.name + "\x00" + f.description + "\x00" +
		strconv.Itoa(f.communityID) + "\x00" + strconv.Itoa(f.displayFormatID))
	return h + f.properties.Hash() + 7*f.acl.Hash()
}

// Clone implements Component.
func (f *Folder) Clone() Component {
	cp := *f
	cp.Base = f.CopyBase()
	cp.properties = f.properties.Clone()
	cp.acl = f.acl.Clone()
	return &cp
}

// CloneFull implements Component.
func (f *Folder) CloneFull() Component {
	cp := *f
	cp.Base = f.CopyBase()
	cp.properties = f.properties.CloneFull()
	cp.acl = f.acl.CloneFull()
	return &cp
}

func atoiDefault(s string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
