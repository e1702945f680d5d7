package domain

import "strings"

// CommunityAny marks an object that is not restricted to a community.
const CommunityAny = -1

// Principal is the identity permissions are evaluated for.
type Principal struct {
	Name        string
	Roles       []string
	Community   int
	ServerAdmin bool
}

// HasRole reports case-insensitive role membership.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// EntryHook lets a specialised evaluator adjust the accumulated mask after
// each visited entry. It is called one last time with a nil entry once all
// entries are visited.
type EntryHook func(entry *AclEntry, access Access) Access

// EvalOption configures an evaluation.
type EvalOption func(*evaluator)

// WithCommunity sets the community of the secured object.
func WithCommunity(community int) EvalOption {
	return func(ev *evaluator) { ev.community = community }
}

// WithEntryHook installs a closing-adjustment hook.
func WithEntryHook(h EntryHook) EvalOption {
	return func(ev *evaluator) { ev.hook = h }
}

// Permissions is the effective access of a principal on one object. It is
// recomputed on demand and never stored.
type Permissions struct {
	access    Access
	userEntry *AclEntry
}

// Access returns the effective mask.
func (p Permissions) Access() Access { return p.access }

// HasAccess reports whether every bit of level is granted.
func (p Permissions) HasAccess(level Access) bool { return p.access.Has(level) }

// HasReadAccess reports read permission.
func (p Permissions) HasReadAccess() bool { return p.HasAccess(AccessRead) }

// HasWriteAccess reports write permission.
func (p Permissions) HasWriteAccess() bool { return p.HasAccess(AccessWrite) }

// HasAdminAccess reports admin permission.
func (p Permissions) HasAdminAccess() bool { return p.HasAccess(AccessAdmin) }

// UserEntry returns the per-user entry that decided the result, if any.
func (p Permissions) UserEntry() (*AclEntry, bool) { return p.userEntry, p.userEntry != nil }

type evaluator struct {
	acl       *Acl
	principal Principal
	community int
	hook      EntryHook
	access    Access
	userEntry *AclEntry
}

// Evaluate computes the principal's effective access on an object secured
// by acl. Server administrators get every bit, an empty ACL grants
// AccessAll, and a per-user entry is final. Otherwise matching role and
// virtual entries are OR-ed together; no entry revokes a bit another granted.
func Evaluate(acl *Acl, principal Principal, opts ...EvalOption) Permissions {
	ev := &evaluator{acl: acl, principal: principal, community: CommunityAny}
	for _, opt := range opts {
		opt(ev)
	}
	if ev.processAcl() {
		for _, entry := range ev.entries() {
			ev.processAclEntry(entry)
		}
		ev.processAclEntry(nil)
	}
	return Permissions{access: ev.access, userEntry: ev.userEntry}
}

// NewObjectPermissions evaluates a generic object's ACL.
func NewObjectPermissions(acl *Acl, principal Principal) Permissions {
	return Evaluate(acl, principal)
}

// NewFolderPermissions evaluates a folder's ACL; the "Folder Community"
// virtual entry compares against the folder's community.
func NewFolderPermissions(folder *Folder, principal Principal, opts ...EvalOption) Permissions {
	all := append([]EvalOption{WithCommunity(folder.CommunityID())}, opts...)
	return Evaluate(folder.Acl(), principal, all...)
}

func (ev *evaluator) entries() []*AclEntry {
	if ev.acl == nil {
		return nil
	}
	return ev.acl.items
}

// processAcl returns false when the result is known without visiting entries.
func (ev *evaluator) processAcl() bool {
	if ev.principal.ServerAdmin {
		ev.access = AccessServerAdmin
		return false
	}
	entries := ev.entries()
	if len(entries) == 0 {
		ev.access = AccessAll
		return false
	}
	for _, e := range entries {
		if e.IsUser() && strings.EqualFold(e.name, ev.principal.Name) {
			ev.access = e.access
			ev.userEntry = e
			return false
		}
	}
	ev.access = AccessDeny
	return true
}

func (ev *evaluator) processAclEntry(entry *AclEntry) {
	if entry != nil {
		switch entry.kind {
		case PrincipalRole:
			if ev.principal.HasRole(entry.name) {
				ev.access |= entry.access
			}
		case PrincipalVirtual:
			if ev.virtualMatches(entry.name) {
				ev.access |= entry.access
			}
		}
	}
	if ev.hook != nil {
		ev.access = ev.hook(entry, ev.access)
	}
}

func (ev *evaluator) virtualMatches(name string) bool {
	switch {
	case strings.EqualFold(name, VirtualEveryone):
		return true
	case strings.EqualFold(name, VirtualFolderCommunity):
		return ev.community == CommunityAny || ev.community == ev.principal.Community
	}
	return false
}
