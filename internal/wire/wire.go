// Package wire defines the XML documents exchanged between the peer HTTP API
// and the remote processor.
package wire

import (
	"strconv"

	"cmsstore/internal/core"
	"cmsstore/pkg/domain"
)

// ContentType is the media type of every request and response body.
const ContentType = "application/xml"

// Peer API routes. Load and DeleteKeys take the component type in the
// "type" query parameter.
const (
	PathSave       = "/api/v1/components/save"
	PathDelete     = "/api/v1/components/delete"
	PathLoad       = "/api/v1/components/load"
	PathDeleteKeys = "/api/v1/keys/delete"
	PathHealth     = "/healthz"

	QueryType = "type"
)

// Element names.
const (
	NodeComponentList = "PSXComponentList"
	NodeKeyList       = "PSXKeyList"
	NodeSaveResults   = "PSXSaveResults"
	NodeDeleteResults = "PSXDeleteResults"
	NodeFault         = "PSXFault"

	nodeSaved   = "saved"
	nodeRemoved = "removed"

	attrAll    = "all"
	attrIndex  = "index"
	attrCount  = "count"
	attrReason = "reason"
)

// ComponentList renders components in order.
func ComponentList(components []domain.Component) *domain.Element {
	el := domain.NewElement(NodeComponentList)
	for _, c := range components {
		el.Add(domain.Marshal(c))
	}
	return el
}

func expect(el *domain.Element, name, op string) error {
	if el == nil || el.Name != name {
		return domain.NewFault(domain.ReasonMalformedElement, op, "expected %s element", name)
	}
	return nil
}

// DecodeComponentList decodes every member of a component list.
func DecodeComponentList(cat *domain.Catalog, el *domain.Element) ([]domain.Component, error) {
	if err := expect(el, NodeComponentList, "wire.DecodeComponentList"); err != nil {
		return nil, err
	}
	out := make([]domain.Component, 0, len(el.Children))
	for _, child := range el.Children {
		c, err := cat.Decode(child)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// KeyList renders keys. A nil slice is sent as all="yes".
func KeyList(keys []*domain.Key) *domain.Element {
	el := domain.NewElement(NodeKeyList)
	if keys == nil {
		el.SetAttr(attrAll, "yes")
		return el
	}
	for _, k := range keys {
		el.Add(k.ToElement())
	}
	return el
}

// DecodeKeyList returns the keys in el, or nil when it asks for all.
func DecodeKeyList(el *domain.Element) ([]*domain.Key, error) {
	if err := expect(el, NodeKeyList, "wire.DecodeKeyList"); err != nil {
		return nil, err
	}
	if v, _ := el.Attr(attrAll); v == "yes" {
		return nil, nil
	}
	keys := make([]*domain.Key, 0, len(el.Children))
	for _, child := range el.Children {
		k, err := domain.KeyFromElement(child, nil)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Saved pairs a stored component with its position in the request.
type Saved struct {
	Index     int
	Component domain.Component
}

func statAttrs(el *domain.Element, s core.SaveStats) {
	el.SetAttr("inserted", strconv.Itoa(s.Inserted))
	el.SetAttr("updated", strconv.Itoa(s.Updated))
	el.SetAttr("deleted", strconv.Itoa(s.Deleted))
	el.SetAttr("skipped", strconv.Itoa(s.Skipped))
	el.SetAttr("errored", strconv.Itoa(s.Errored))
}

func intAttr(el *domain.Element, name string) (int, error) {
	v, ok := el.Attr(name)
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.WrapFault(err, domain.ReasonMalformedElement, "wire", name)
	}
	return n, nil
}

// SaveResults renders save statistics and the stored components.
func SaveResults(stats core.SaveStats, saved []Saved) *domain.Element {
	el := domain.NewElement(NodeSaveResults)
	statAttrs(el, stats)
	for _, s := range saved {
		item := domain.NewElement(nodeSaved).SetAttr(attrIndex, strconv.Itoa(s.Index))
		item.Add(domain.Marshal(s.Component))
		el.Add(item)
	}
	return el
}

// SavedEntry is a decoded saved element: the request index and the stored
// rendering of the component.
type SavedEntry struct {
	Index   int
	Element *domain.Element
}

// DecodeSaveResults reads what SaveResults wrote.
func DecodeSaveResults(el *domain.Element) (core.SaveStats, []SavedEntry, error) {
	var stats core.SaveStats
	if err := expect(el, NodeSaveResults, "wire.DecodeSaveResults"); err != nil {
		return stats, nil, err
	}
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"inserted", &stats.Inserted},
		{"updated", &stats.Updated},
		{"deleted", &stats.Deleted},
		{"skipped", &stats.Skipped},
		{"errored", &stats.Errored},
	} {
		n, err := intAttr(el, f.name)
		if err != nil {
			return stats, nil, err
		}
		*f.dst = n
	}
	var entries []SavedEntry
	for _, child := range el.ChildrenNamed(nodeSaved) {
		idx, err := intAttr(child, attrIndex)
		if err != nil {
			return stats, nil, err
		}
		if len(child.Children) != 1 {
			return stats, nil, domain.NewFault(domain.ReasonMalformedElement, "wire.DecodeSaveResults", "saved entry %d has no component", idx)
		}
		entries = append(entries, SavedEntry{Index: idx, Element: child.Children[0]})
	}
	return stats, entries, nil
}

// DeleteResults renders a delete count and the request positions that were removed.
func DeleteResults(count int, removed []int) *domain.Element {
	el := domain.NewElement(NodeDeleteResults).SetAttr(attrCount, strconv.Itoa(count))
	for _, i := range removed {
		el.Add(domain.NewElement(nodeRemoved).SetAttr(attrIndex, strconv.Itoa(i)))
	}
	return el
}

// DecodeDeleteResults reads what DeleteResults wrote.
func DecodeDeleteResults(el *domain.Element) (int, []int, error) {
	if err := expect(el, NodeDeleteResults, "wire.DecodeDeleteResults"); err != nil {
		return 0, nil, err
	}
	count, err := intAttr(el, attrCount)
	if err != nil {
		return 0, nil, err
	}
	var removed []int
	for _, child := range el.ChildrenNamed(nodeRemoved) {
		i, err := intAttr(child, attrIndex)
		if err != nil {
			return 0, nil, err
		}
		removed = append(removed, i)
	}
	return count, removed, nil
}

// Fault renders err. Errors outside the fault family travel as processing faults.
func Fault(err error) *domain.Element {
	el := domain.NewElement(NodeFault)
	reason, ok := domain.ReasonOf(err)
	if !ok {
		reason = domain.ReasonProcessing
	}
	el.SetAttr(attrReason, string(reason))
	el.Text = err.Error()
	return el
}

// DecodeFault rebuilds the fault carried by el.
func DecodeFault(op string, el *domain.Element) error {
	if err := expect(el, NodeFault, "wire.DecodeFault"); err != nil {
		return err
	}
	reason, _ := el.Attr(attrReason)
	if reason == "" {
		reason = string(domain.ReasonProcessing)
	}
	return &domain.Fault{Reason: domain.Reason(reason), Op: op, Message: el.Text}
}
