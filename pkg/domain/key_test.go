package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyRejectsBadNames(t *testing.T) {
	_, err := NewKey()
	require.True(t, IsReason(err, ReasonInvalidKey))

	_, err = NewKey("ID", " ")
	require.True(t, IsReason(err, ReasonInvalidKey))

	_, err = NewKey("ID", "id")
	require.True(t, IsReason(err, ReasonInvalidKey), "part names compare case-insensitively")
}

func TestKeyAssignIsAtomic(t *testing.T) {
	k := MustKey("A", "B")
	require.True(t, k.NeedGenerateID())

	err := k.Assign("1")
	require.True(t, IsReason(err, ReasonInvalidKey))
	assert.Equal(t, []string{"", ""}, k.Values())

	err = k.Assign("1", "")
	require.True(t, IsReason(err, ReasonInvalidKey))
	assert.Equal(t, []string{"", ""}, k.Values(), "partial assignment must not leak")
	assert.False(t, k.IsAssigned())

	require.NoError(t, k.Assign("1", "2"))
	assert.True(t, k.IsAssigned())
	assert.False(t, k.NeedGenerateID())
	v, err := k.Part("b")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	_, err = k.Part("C")
	assert.True(t, IsReason(err, ReasonInvalidKey))
}

func TestKeyPersistRequiresAssignment(t *testing.T) {
	k := MustKey("ID")
	err := k.SetPersisted(true)
	require.True(t, IsInvalidState(err))
	assert.False(t, k.IsPersisted())

	require.NoError(t, k.Assign("7"))
	require.NoError(t, k.SetPersisted(true))
	assert.True(t, k.IsPersisted())

	k.Clear()
	assert.False(t, k.IsAssigned())
	assert.False(t, k.IsPersisted())
	assert.True(t, k.NeedGenerateID())
}

func TestKeyGenerateFillsEmptyParts(t *testing.T) {
	k := MustKey("SITE", "ID")
	require.NoError(t, k.Generate(func(part string) string { return part + "-gen" }))
	assert.Equal(t, []string{"SITE-gen", "ID-gen"}, k.Values())
	assert.Error(t, k.Generate(nil))
}

func TestKeyEqualityAndHash(t *testing.T) {
	a, err := NewAssignedKey([]string{"ID"}, []string{"5"})
	require.NoError(t, err)
	b, err := NewPersistedKey([]string{"id"}, []string{"5"})
	require.NoError(t, err)
	c, err := NewAssignedKey([]string{"ID"}, []string{"6"})
	require.NoError(t, err)

	assert.True(t, a.Equal(b), "lifecycle flags and name case are ignored")
	assert.Equal(t, a.Hash(), b.Hash())
	assert.False(t, a.Equal(c))
	assert.True(t, a.IsSameType(c))
	assert.False(t, a.Equal(nil))
	assert.Equal(t, "id=5", a.String())
}

func TestKeyHashFollowsCaseFolding(t *testing.T) {
	a, err := NewAssignedKey([]string{"\u017FITE"}, []string{"1"})
	require.NoError(t, err)
	b, err := NewAssignedKey([]string{"site"}, []string{"1"})
	require.NoError(t, err)
	require.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, a.String(), b.String())
}

func TestKeyStringEscapesValues(t *testing.T) {
	a, err := NewAssignedKey([]string{"A", "B"}, []string{"1;b=x", "y"})
	require.NoError(t, err)
	b, err := NewAssignedKey([]string{"A", "B"}, []string{"1", "x;b=y"})
	require.NoError(t, err)
	require.False(t, a.Equal(b))
	assert.NotEqual(t, a.String(), b.String())
	assert.Equal(t, "a=1%3Bb%3Dx;b=y", a.String())

	pct, err := NewAssignedKey([]string{"A"}, []string{"100%3B"})
	require.NoError(t, err)
	assert.Equal(t, "a=100%253B", pct.String())
}

func TestKeyElementRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		key  func(t *testing.T) *Key
	}{
		{"unassigned", func(*testing.T) *Key { return MustKey("ID") }},
		{"assigned", func(t *testing.T) *Key {
			k, err := NewAssignedKey([]string{"ID"}, []string{"3"})
			require.NoError(t, err)
			return k
		}},
		{"persisted", func(t *testing.T) *Key {
			k, err := NewPersistedKey([]string{"A", "B"}, []string{"1", "2"})
			require.NoError(t, err)
			return k
		}},
		{"assigned but generated", func(t *testing.T) *Key {
			k, err := NewAssignedKey([]string{"ID"}, []string{"3"})
			require.NoError(t, err)
			k.needGenerateID = true
			return k
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			k := tc.key(t)
			got, err := KeyFromElement(k.ToElement(), k)
			require.NoError(t, err)
			assert.True(t, k.Equal(got))
			assert.Equal(t, k.IsPersisted(), got.IsPersisted())
			assert.Equal(t, k.NeedGenerateID(), got.NeedGenerateID())
		})
	}
}

func TestKeyFromElementValidation(t *testing.T) {
	el := MustKey("ID").ToElement()
	_, err := KeyFromElement(el, MustKey("OTHER"))
	assert.True(t, IsReason(err, ReasonInvalidKey))

	persistedEmpty := NewElement(NodeKey).AddText("ID", "")
	_, err = KeyFromElement(persistedEmpty, nil)
	assert.True(t, IsReason(err, ReasonInvalidKey), "a persisted key must be assigned")

	_, err = KeyFromElement(NewElement("Other"), nil)
	assert.True(t, IsReason(err, ReasonMalformedElement))
}

func TestKeyCloneIsIndependent(t *testing.T) {
	k, err := NewAssignedKey([]string{"ID"}, []string{"1"})
	require.NoError(t, err)
	cp := k.Clone()
	require.NoError(t, cp.Assign("2"))
	assert.Equal(t, []string{"1"}, k.Values())
}
