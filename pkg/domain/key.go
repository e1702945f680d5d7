package domain

import (
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/cases"
)

// NodeKey is the element name of a serialized Key.
const NodeKey = "PSXKey"

const (
	attrIsPersisted    = "isPersisted"
	attrNeedGenerateID = "needGenerateId"
)

// KeyPart is one named value of a Key.
type KeyPart struct {
	Name  string
	Value string
}

// Key is an ordered multi-part identifier. Part names are unique and compared
// case-insensitively. A key is assigned when every part has a value; a
// persisted key is always assigned and never needs id generation.
type Key struct {
	parts          []KeyPart
	persisted      bool
	needGenerateID bool
}

// NewKey returns an unassigned key template with the given part names.
func NewKey(names ...string) (*Key, error) {
	if len(names) == 0 {
		return nil, NewFault(ReasonInvalidKey, "NewKey", "key requires at least one part")
	}
	parts := make([]KeyPart, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, NewFault(ReasonInvalidKey, "NewKey", "part name must not be empty")
		}
		for _, p := range parts {
			if strings.EqualFold(p.Name, n) {
				return nil, NewFault(ReasonInvalidKey, "NewKey", "duplicate part name %q", n)
			}
		}
		parts = append(parts, KeyPart{Name: n})
	}
	return &Key{parts: parts, needGenerateID: true}, nil
}

// NewAssignedKey returns a key with every part assigned but not yet persisted.
func NewAssignedKey(names []string, values []string) (*Key, error) {
	k, err := NewKey(names...)
	if err != nil {
		return nil, err
	}
	if err := k.Assign(values...); err != nil {
		return nil, err
	}
	return k, nil
}

// NewPersistedKey returns an assigned key flagged as existing in storage.
func NewPersistedKey(names []string, values []string) (*Key, error) {
	k, err := NewAssignedKey(names, values)
	if err != nil {
		return nil, err
	}
	k.persisted = true
	return k, nil
}

// MustKey is NewKey for static definitions; it panics on invalid names.
func MustKey(names ...string) *Key {
	k, err := NewKey(names...)
	if err != nil {
		panic(err)
	}
	return k
}

// PartCount returns the number of parts.
func (k *Key) PartCount() int { return len(k.parts) }

// Names returns the part names in definition order.
func (k *Key) Names() []string {
	out := make([]string, len(k.parts))
	for i, p := range k.parts {
		out[i] = p.Name
	}
	return out
}

// Values returns the part values in definition order.
func (k *Key) Values() []string {
	out := make([]string, len(k.parts))
	for i, p := range k.parts {
		out[i] = p.Value
	}
	return out
}

// Part returns the value of the named part, empty when unassigned.
func (k *Key) Part(name string) (string, error) {
	for _, p := range k.parts {
		if strings.EqualFold(p.Name, name) {
			return p.Value, nil
		}
	}
	return "", NewFault(ReasonInvalidKey, "Key.Part", "unknown key part %q", name)
}

// Assign sets every part at once. The key is left untouched when the value
// count differs from the part count or any value is empty.
func (k *Key) Assign(values ...string) error {
	if len(values) != len(k.parts) {
		return NewFault(ReasonInvalidKey, "Key.Assign", "expected %d values, got %d", len(k.parts), len(values))
	}
	for i, v := range values {
		if v == "" {
			return NewFault(ReasonInvalidKey, "Key.Assign", "value for part %q is empty", k.parts[i].Name)
		}
	}
	for i, v := range values {
		k.parts[i].Value = v
	}
	k.needGenerateID = false
	return nil
}

// Generate fills every empty part using gen and assigns the result.
func (k *Key) Generate(gen func(part string) string) error {
	if gen == nil {
		return NewFault(ReasonInvalidArgument, "Key.Generate", "generator is nil")
	}
	values := k.Values()
	for i, v := range values {
		if v == "" {
			values[i] = gen(k.parts[i].Name)
		}
	}
	return k.Assign(values...)
}

// Clear resets the key to an unassigned, unpersisted template.
func (k *Key) Clear() {
	for i := range k.parts {
		k.parts[i].Value = ""
	}
	k.persisted = false
	k.needGenerateID = true
}

// IsAssigned reports whether every part has a value.
func (k *Key) IsAssigned() bool {
	for _, p := range k.parts {
		if p.Value == "" {
			return false
		}
	}
	return true
}

// IsPersisted reports whether the key identifies a stored row.
func (k *Key) IsPersisted() bool { return k.persisted }

// NeedGenerateID reports whether storage must generate the key values.
func (k *Key) NeedGenerateID() bool { return k.needGenerateID }

// SetPersisted flags the key as stored. Unassigned keys cannot be persisted.
func (k *Key) SetPersisted(persisted bool) error {
	if persisted && !k.IsAssigned() {
		return NewFault(ReasonInvalidState, "Key.SetPersisted", "unassigned key %s cannot be persisted", k.String())
	}
	k.persisted = persisted
	if persisted {
		k.needGenerateID = false
	}
	return nil
}

// IsSameType compares part names only.
func (k *Key) IsSameType(other *Key) bool {
	if other == nil || len(k.parts) != len(other.parts) {
		return false
	}
	for i := range k.parts {
		if !strings.EqualFold(k.parts[i].Name, other.parts[i].Name) {
			return false
		}
	}
	return true
}

// Equal compares shape and values; lifecycle flags are ignored.
func (k *Key) Equal(other *Key) bool {
	if !k.IsSameType(other) {
		return false
	}
	for i := range k.parts {
		if k.parts[i].Value != other.parts[i].Value {
			return false
		}
	}
	return true
}

// Hash is consistent with Equal.
func (k *Key) Hash() uint64 {
	d := xxhash.New()
	for _, p := range k.parts {
		_, _ = d.WriteString(foldName(p.Name))
		_, _ = d.WriteString("=")
		_, _ = d.WriteString(p.Value)
		_, _ = d.WriteString(";")
	}
	return d.Sum64()
}

// Clone returns an independent copy including lifecycle flags.
func (k *Key) Clone() *Key {
	out := &Key{parts: make([]KeyPart, len(k.parts)), persisted: k.persisted, needGenerateID: k.needGenerateID}
	copy(out.parts, k.parts)
	return out
}

// valueEscaper keeps rendered keys unambiguous: distinct keys of one shape
// never share a String.
var valueEscaper = strings.NewReplacer("%", "%25", ";", "%3B", "=", "%3D")

// String renders the key as name=value pairs in definition order. Values are
// escaped so the result can serve as a document id.
func (k *Key) String() string {
	var b strings.Builder
	for i, p := range k.parts {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(foldName(p.Name))
		b.WriteByte('=')
		_, _ = valueEscaper.WriteString(&b, p.Value)
	}
	return b.String()
}

// foldName returns the case-folded form of a name. Names that
// strings.EqualFold treats as equal fold to the same string, so hashes built
// from it agree with case-insensitive equality.
func foldName(s string) string {
	return cases.Fold().String(s)
}

// ToElement serializes the key. Flags are emitted only when they differ from
// what a reader would infer.
func (k *Key) ToElement() *Element {
	el := NewElement(NodeKey)
	if !k.persisted {
		el.SetAttr(attrIsPersisted, "no")
		if k.needGenerateID != !k.IsAssigned() {
			el.SetAttr(attrNeedGenerateID, yesNo(k.needGenerateID))
		}
	}
	for _, p := range k.parts {
		el.AddText(p.Name, p.Value)
	}
	return el
}

// KeyFromElement reconstructs a key. With a template the incoming part names
// must match it exactly; without one the element defines the key's shape.
func KeyFromElement(el *Element, template *Key) (*Key, error) {
	if el == nil || el.Name != NodeKey {
		return nil, NewFault(ReasonMalformedElement, "KeyFromElement", "expected %s element", NodeKey)
	}
	if len(el.Children) == 0 {
		return nil, NewFault(ReasonMalformedElement, "KeyFromElement", "key has no parts")
	}
	names := make([]string, len(el.Children))
	for i, c := range el.Children {
		names[i] = c.Name
	}
	k, err := NewKey(names...)
	if err != nil {
		return nil, err
	}
	if template != nil && !template.IsSameType(k) {
		return nil, NewFault(ReasonInvalidKey, "KeyFromElement", "key parts [%s] do not match [%s]",
			strings.Join(names, ","), strings.Join(template.Names(), ","))
	}
	if template != nil {
		k = template.Clone()
	}
	for i, c := range el.Children {
		k.parts[i].Value = c.Text
	}

	k.persisted = true
	if v, ok := el.Attr(attrIsPersisted); ok {
		k.persisted = parseYes(v)
	}
	if k.persisted {
		if !k.IsAssigned() {
			return nil, NewFault(ReasonInvalidKey, "KeyFromElement", "persisted key %s is not assigned", k.String())
		}
		k.needGenerateID = false
		return k, nil
	}
	k.needGenerateID = !k.IsAssigned()
	if v, ok := el.Attr(attrNeedGenerateID); ok {
		k.needGenerateID = parseYes(v)
	}
	return k, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func parseYes(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true", "1", "y":
		return true
	}
	return false
}
