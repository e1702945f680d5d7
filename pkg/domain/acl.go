package domain

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// TypeAclEntry is the declared type of AclEntry.
const TypeAclEntry ComponentType = "PSAclEntry"

// Access is a permission bitmask.
type Access uint32

// Access levels. AccessAll is the non-administrative maximum; a server
// administrator holds every bit.
const (
	AccessDeny        Access = 0
	AccessRead        Access = 1
	AccessWrite       Access = 2
	AccessAdmin       Access = 4
	AccessAll                = AccessRead | AccessWrite | AccessAdmin
	AccessServerAdmin Access = ^Access(0)
)

// Has reports whether every bit of level is present.
func (a Access) Has(level Access) bool { return a&level == level }

// String renders the mask as a |-separated list.
func (a Access) String() string {
	switch a {
	case AccessDeny:
		return "deny"
	case AccessServerAdmin:
		return "server_admin"
	}
	var parts []string
	if a&AccessRead != 0 {
		parts = append(parts, "read")
	}
	if a&AccessWrite != 0 {
		parts = append(parts, "write")
	}
	if a&AccessAdmin != 0 {
		parts = append(parts, "admin")
	}
	if rest := a &^ AccessAll; rest != 0 {
		parts = append(parts, strconv.FormatUint(uint64(rest), 10))
	}
	return strings.Join(parts, "|")
}

// PrincipalKind says what an ACL entry names.
type PrincipalKind string

// ACL principal kinds.
const (
	PrincipalUser    PrincipalKind = "user"
	PrincipalRole    PrincipalKind = "role"
	PrincipalVirtual PrincipalKind = "virtual"
)

// Virtual principal names recognised by the evaluator.
const (
	VirtualEveryone        = "Everyone"
	VirtualFolderCommunity = "Folder Community"
)

// ParsePrincipalKind validates a serialized kind.
func ParsePrincipalKind(s string) (PrincipalKind, error) {
	switch k := PrincipalKind(strings.ToLower(s)); k {
	case PrincipalUser, PrincipalRole, PrincipalVirtual:
		return k, nil
	}
	return "", NewFault(ReasonInvalidArgument, "ParsePrincipalKind", "unknown principal kind %q", s)
}

// AclEntry grants an access mask to one principal. Its key is its own
// storage identity, independent of the object it secures.
type AclEntry struct {
	Base
	kind   PrincipalKind
	name   string
	access Access
}

// NewAclEntry returns a new, unsaved entry.
func NewAclEntry(kind PrincipalKind, name string, access Access) (*AclEntry, error) {
	if _, err := ParsePrincipalKind(string(kind)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, NewFault(ReasonInvalidArgument, "NewAclEntry", "principal name must not be empty")
	}
	return &AclEntry{Base: NewBase(MustKey("ACLID")), kind: kind, name: name, access: access}, nil
}

func newEmptyAclEntry() *AclEntry {
	return &AclEntry{Base: NewBase(MustKey("ACLID"))}
}

// Type implements Component.
func (e *AclEntry) Type() ComponentType { return TypeAclEntry }

// Kind returns the principal kind.
func (e *AclEntry) Kind() PrincipalKind { return e.kind }

// Name returns the principal name.
func (e *AclEntry) Name() string { return e.name }

// Access returns the granted mask.
func (e *AclEntry) Access() Access { return e.access }

// IsUser reports a per-user entry.
func (e *AclEntry) IsUser() bool { return e.kind == PrincipalUser }

// IsRole reports a role entry.
func (e *AclEntry) IsRole() bool { return e.kind == PrincipalRole }

// IsVirtual reports a virtual entry.
func (e *AclEntry) IsVirtual() bool { return e.kind == PrincipalVirtual }

// SetAccess replaces the granted mask.
func (e *AclEntry) SetAccess(a Access) error {
	if a == e.access {
		return nil
	}
	if err := e.Touch(); err != nil {
		return err
	}
	e.access = a
	return nil
}

// MarshalContent implements Component.
func (e *AclEntry) MarshalContent(el *Element) {
	el.SetAttr("type", string(e.kind))
	el.SetAttr("name", e.name)
	el.SetAttr("access", strconv.FormatUint(uint64(e.access), 10))
}

// UnmarshalContent implements Component.
func (e *AclEntry) UnmarshalContent(el *Element) error {
	kv, _ := el.Attr("type")
	kind, err := ParsePrincipalKind(kv)
	if err != nil {
		return err
	}
	name, _ := el.Attr("name")
	if strings.TrimSpace(name) == "" {
		return NewFault(ReasonMalformedElement, "AclEntry.UnmarshalContent", "principal name is required")
	}
	av, _ := el.Attr("access")
	access, err := strconv.ParseUint(av, 10, 32)
	if err != nil {
		return WrapFault(err, ReasonMalformedElement, "AclEntry.UnmarshalContent", "access")
	}
	e.kind, e.name, e.access = kind, name, Access(access)
	return nil
}

// ContentEqual implements Component. Principal names compare case-insensitively.
func (e *AclEntry) ContentEqual(other Component) bool {
	o, ok := other.(*AclEntry)
	return ok && e.kind == o.kind && strings.EqualFold(e.name, o.name) && e.access == o.access
}

// ContentHash implements Component.
func (e *AclEntry) ContentHash() uint64 {
	return xxhash.Sum64String(string(e.kind)+"\x00"+foldName(e.name)) + uint64(e.access)
}

// Clone implements Component.
func (e *AclEntry) Clone() Component {
	cp := *e
	cp.Base = e.CopyBase()
	return &cp
}

// CloneFull implements Component.
func (e *AclEntry) CloneFull() Component { return e.Clone() }

// Acl is the ordered entry set securing one object.
type Acl = Collection[*AclEntry]

// NewAcl returns an empty ACL that rejects duplicate entries.
func NewAcl() *Acl {
	return NewSet(TypeAclEntry, newEmptyAclEntry)
}

// FindAclEntry returns the first entry naming the principal.
func FindAclEntry(acl *Acl, kind PrincipalKind, name string) (*AclEntry, bool) {
	if acl == nil {
		return nil, false
	}
	for _, e := range acl.items {
		if e.kind == kind && strings.EqualFold(e.name, name) {
			return e, true
		}
	}
	return nil, false
}
