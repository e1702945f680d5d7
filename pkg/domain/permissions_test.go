package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aclOf(t *testing.T, entries ...*AclEntry) *Acl {
	t.Helper()
	acl := NewAcl()
	require.NoError(t, acl.AddAll(entries...))
	return acl
}

func entry(t *testing.T, kind PrincipalKind, name string, access Access) *AclEntry {
	t.Helper()
	e, err := NewAclEntry(kind, name, access)
	require.NoError(t, err)
	return e
}

func TestEvaluatePermissions(t *testing.T) {
	joe := Principal{Name: "joe", Roles: []string{"Editors", "Readers"}, Community: 3}

	cases := []struct {
		name      string
		acl       *Acl
		principal Principal
		opts      []EvalOption
		want      Access
	}{
		{
			name:      "empty acl grants all",
			acl:       NewAcl(),
			principal: joe,
			want:      AccessAll,
		},
		{
			name:      "nil acl grants all",
			principal: joe,
			want:      AccessAll,
		},
		{
			name:      "server admin gets every bit",
			acl:       aclOf(t, entry(t, PrincipalUser, "root", AccessDeny)),
			principal: Principal{Name: "root", ServerAdmin: true},
			want:      AccessServerAdmin,
		},
		{
			name: "user entry short-circuits roles",
			acl: aclOf(t,
				entry(t, PrincipalRole, "editors", AccessAdmin),
				entry(t, PrincipalUser, "JOE", AccessDeny),
			),
			principal: joe,
			want:      AccessDeny,
		},
		{
			name: "role grants are additive",
			acl: aclOf(t,
				entry(t, PrincipalRole, "readers", AccessRead),
				entry(t, PrincipalRole, "editors", AccessWrite),
				entry(t, PrincipalRole, "admins", AccessAdmin),
			),
			principal: joe,
			want:      AccessRead | AccessWrite,
		},
		{
			name: "no matching entry denies",
			acl: aclOf(t,
				entry(t, PrincipalUser, "ann", AccessAll),
				entry(t, PrincipalRole, "admins", AccessAdmin),
			),
			principal: joe,
			want:      AccessDeny,
		},
		{
			name:      "everyone matches anyone",
			acl:       aclOf(t, entry(t, PrincipalVirtual, VirtualEveryone, AccessRead)),
			principal: Principal{Name: "guest"},
			want:      AccessRead,
		},
		{
			name:      "folder community matches same community",
			acl:       aclOf(t, entry(t, PrincipalVirtual, VirtualFolderCommunity, AccessWrite)),
			principal: joe,
			opts:      []EvalOption{WithCommunity(3)},
			want:      AccessWrite,
		},
		{
			name:      "folder community skips other community",
			acl:       aclOf(t, entry(t, PrincipalVirtual, VirtualFolderCommunity, AccessWrite)),
			principal: joe,
			opts:      []EvalOption{WithCommunity(4)},
			want:      AccessDeny,
		},
		{
			name:      "folder community matches any-community object",
			acl:       aclOf(t, entry(t, PrincipalVirtual, VirtualFolderCommunity, AccessWrite)),
			principal: joe,
			want:      AccessWrite,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.acl, tc.principal, tc.opts...)
			assert.Equal(t, tc.want, got.Access(), "got %s", got.Access())
		})
	}
}

func TestUserEntryIsReported(t *testing.T) {
	user := entry(t, PrincipalUser, "joe", AccessRead)
	p := NewObjectPermissions(aclOf(t, user), Principal{Name: "joe"})
	got, ok := p.UserEntry()
	require.True(t, ok)
	assert.Same(t, user, got)
	assert.True(t, p.HasReadAccess())
	assert.False(t, p.HasWriteAccess())
	assert.False(t, p.HasAdminAccess())
}

func TestEntryHookSeesEveryEntryAndSentinel(t *testing.T) {
	acl := aclOf(t,
		entry(t, PrincipalRole, "a", AccessRead),
		entry(t, PrincipalRole, "b", AccessWrite),
	)
	var seen []*AclEntry
	hook := func(e *AclEntry, access Access) Access {
		seen = append(seen, e)
		if e == nil {
			return access &^ AccessWrite
		}
		return access
	}
	p := Evaluate(acl, Principal{Name: "x", Roles: []string{"a", "b"}}, WithEntryHook(hook))
	require.Len(t, seen, 3)
	assert.Nil(t, seen[2])
	assert.Equal(t, AccessRead, p.Access())
}

func TestFolderPermissionsUseFolderCommunity(t *testing.T) {
	f, err := NewFolder("docs")
	require.NoError(t, err)
	require.NoError(t, f.SetCommunityID(7))
	require.NoError(t, f.Acl().Add(entry(t, PrincipalVirtual, VirtualFolderCommunity, AccessRead)))

	assert.True(t, NewFolderPermissions(f, Principal{Name: "a", Community: 7}).HasReadAccess())
	assert.False(t, NewFolderPermissions(f, Principal{Name: "b", Community: 8}).HasReadAccess())
}

func TestAccessString(t *testing.T) {
	assert.Equal(t, "deny", AccessDeny.String())
	assert.Equal(t, "read|write", (AccessRead | AccessWrite).String())
	assert.Equal(t, "server_admin", AccessServerAdmin.String())
}
