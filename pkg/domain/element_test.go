package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElementXMLRoundTrip(t *testing.T) {
	el := NewElement("PSXFolder").SetAttr("state", "new")
	el.AddText("name", "a < b & c")
	el.Add(NewElement("PSXPropertyList"))

	data, err := MarshalXML(el)
	require.NoError(t, err)

	got, err := UnmarshalXML(data)
	require.NoError(t, err)
	assert.True(t, el.Equal(got), "got %s", data)
}

func TestDecodeXMLTrimsLayoutWhitespace(t *testing.T) {
	doc := `<root a="1">
	  <leaf>  keep me  </leaf>
	</root>`
	got, err := DecodeXML(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "", got.Text)
	assert.Equal(t, "  keep me  ", got.ChildText("leaf"))
	v, ok := got.Attr("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestDecodeXMLErrors(t *testing.T) {
	_, err := DecodeXML(strings.NewReader(""))
	assert.True(t, IsReason(err, ReasonMalformedElement))

	_, err = DecodeXML(strings.NewReader("<a></b>"))
	assert.True(t, IsReason(err, ReasonMalformedElement))

	_, err = DecodeXML(strings.NewReader("<a/><b/>"))
	assert.True(t, IsReason(err, ReasonMalformedElement))
}

func TestElementEqualIgnoresAttributeOrder(t *testing.T) {
	a := NewElement("x").SetAttr("p", "1").SetAttr("q", "2")
	b := NewElement("x").SetAttr("q", "2").SetAttr("p", "1")
	assert.True(t, a.Equal(b))

	c := a.Clone()
	c.SetAttr("p", "3")
	assert.False(t, a.Equal(c))
	v, _ := a.Attr("p")
	assert.Equal(t, "1", v, "clone must not alias attributes")
}

func TestFaultMatching(t *testing.T) {
	err := WrapFault(assert.AnError, ReasonProcessing, "Save", "write failed")
	assert.ErrorIs(t, err, &Fault{Reason: ReasonProcessing})
	assert.NotErrorIs(t, err, &Fault{Reason: ReasonInvalidKey})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "Save: processing: write failed")

	inner := NewFault(ReasonInvalidKey, "Key.Assign", "bad")
	assert.Same(t, inner, WrapFault(inner, ReasonProcessing, "Save", "ignored"))
	assert.Nil(t, WrapFault(nil, ReasonProcessing, "", ""))

	assert.True(t, IsArgument(inner))
	assert.False(t, IsConfiguration(inner))
	assert.True(t, IsConfiguration(NewFault(ReasonDuplicateProcessor, "", "x")))
	assert.True(t, IsResolution(NewFault(ReasonNoConstructor, "", "x")))
}
