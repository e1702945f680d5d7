package domain

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// Attr is a single element attribute.
type Attr struct {
	Name  string
	Value string
}

// Element is the structured value exchanged between components, collections
// and processors. Textual XML is produced from it only at external boundaries
// (see EncodeXML / DecodeXML).
type Element struct {
	Name     string
	Attrs    []Attr
	Text     string
	Children []*Element
}

// NewElement returns an empty element with the given name.
func NewElement(name string) *Element {
	return &Element{Name: name}
}

// SetAttr sets or replaces an attribute and returns the element for chaining.
func (e *Element) SetAttr(name, value string) *Element {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs[i].Value = value
			return e
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
	return e
}

// Attr returns the attribute value and whether it was present.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Add appends children, skipping nils.
func (e *Element) Add(children ...*Element) *Element {
	for _, c := range children {
		if c != nil {
			e.Children = append(e.Children, c)
		}
	}
	return e
}

// AddText appends a text-only child.
func (e *Element) AddText(name, text string) *Element {
	e.Children = append(e.Children, &Element{Name: name, Text: text})
	return e
}

// Child returns the first child with the given name or nil.
func (e *Element) Child(name string) *Element {
	for _, c := range e.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns all children with the given name in document order.
func (e *Element) ChildrenNamed(name string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// ChildText returns the text of the first child with the given name.
func (e *Element) ChildText(name string) string {
	if c := e.Child(name); c != nil {
		return c.Text
	}
	return ""
}

// Clone deep-copies the element tree.
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	out := &Element{Name: e.Name, Text: e.Text}
	if len(e.Attrs) > 0 {
		out.Attrs = append([]Attr(nil), e.Attrs...)
	}
	for _, c := range e.Children {
		out.Children = append(out.Children, c.Clone())
	}
	return out
}

// Equal compares two trees structurally. Attribute order is ignored.
func (e *Element) Equal(other *Element) bool {
	if e == nil || other == nil {
		return e == other
	}
	if e.Name != other.Name || e.Text != other.Text || len(e.Attrs) != len(other.Attrs) || len(e.Children) != len(other.Children) {
		return false
	}
	for _, a := range e.Attrs {
		v, ok := other.Attr(a.Name)
		if !ok || v != a.Value {
			return false
		}
	}
	for i := range e.Children {
		if !e.Children[i].Equal(other.Children[i]) {
			return false
		}
	}
	return true
}

// EncodeXML writes the element tree as XML text.
func EncodeXML(w io.Writer, el *Element) error {
	if el == nil {
		return NewFault(ReasonInvalidArgument, "EncodeXML", "element is nil")
	}
	enc := xml.NewEncoder(w)
	if err := encodeElement(enc, el); err != nil {
		return err
	}
	return enc.Flush()
}

// MarshalXML renders the element tree to bytes.
func MarshalXML(el *Element) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeXML(&buf, el); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeElement(enc *xml.Encoder, el *Element) error {
	start := xml.StartElement{Name: xml.Name{Local: el.Name}}
	for _, a := range el.Attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if el.Text != "" {
		if err := enc.EncodeToken(xml.CharData(el.Text)); err != nil {
			return err
		}
	}
	for _, c := range el.Children {
		if err := encodeElement(enc, c); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// DecodeXML parses a single XML document into an element tree. Whitespace-only
// text around child elements is dropped; leaf text is kept verbatim.
func DecodeXML(r io.Reader) (*Element, error) {
	dec := xml.NewDecoder(r)
	var (
		stack []*Element
		texts []*strings.Builder
		root  *Element
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, WrapFault(err, ReasonMalformedElement, "DecodeXML", "parse xml")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if root != nil && len(stack) == 0 {
				return nil, NewFault(ReasonMalformedElement, "DecodeXML", "multiple root elements")
			}
			el := &Element{Name: t.Name.Local}
			for _, a := range t.Attr {
				el.Attrs = append(el.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			} else {
				root = el
			}
			stack = append(stack, el)
			texts = append(texts, &strings.Builder{})
		case xml.CharData:
			if len(texts) > 0 {
				texts[len(texts)-1].Write(t)
			}
		case xml.EndElement:
			el := stack[len(stack)-1]
			text := texts[len(texts)-1].String()
			if len(el.Children) > 0 {
				text = strings.TrimSpace(text)
			}
			el.Text = text
			stack = stack[:len(stack)-1]
			texts = texts[:len(texts)-1]
		}
	}
	if root == nil {
		return nil, NewFault(ReasonMalformedElement, "DecodeXML", "document has no root element")
	}
	if len(stack) != 0 {
		return nil, NewFault(ReasonMalformedElement, "DecodeXML", "unterminated element %s", stack[len(stack)-1].Name)
	}
	return root, nil
}

// UnmarshalXML parses bytes into an element tree.
func UnmarshalXML(data []byte) (*Element, error) {
	return DecodeXML(bytes.NewReader(data))
}
