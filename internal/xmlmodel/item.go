// Package xmlmodel implements the generic tagged-tree object model (component A)
// over a compiled controller-project XML description. It knows nothing about
// symbols, data types, or pragmas — it only reconstructs the tree shape,
// attribute maps, and per-tag child indexing that the rest of the pipeline
// builds on.
package xmlmodel

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Item is a polymorphic node over the project XML. Subclassing by tag name
// happens one layer up (internal/tctypes); Item itself stays generic so that
// unknown tags never lose information — their children remain traversable.
type Item struct {
	Tag      string
	Attrs    map[string]string
	Text     string
	Parent   *Item
	Children []*Item

	byTag map[string][]*Item
}

// Parse reads a compiled project XML document and returns its root Item.
// Namespace prefixes ("{uri}tag") are stripped from tag names; attribute
// names are matched case-exactly and are never normalized.
func Parse(r io.Reader) (*Item, error) {
	dec := xml.NewDecoder(r)

	var root *Item
	stack := []*Item{}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xmlmodel: malformed xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			item := &Item{
				Tag:   stripNamespace(t.Name.Local),
				Attrs: make(map[string]string, len(t.Attr)),
				byTag: make(map[string][]*Item),
			}
			for _, a := range t.Attr {
				item.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				item.Parent = parent
				parent.Children = append(parent.Children, item)
				parent.byTag[item.Tag] = append(parent.byTag[item.Tag], item)
			}
			stack = append(stack, item)
			if root == nil {
				root = item
			}
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("xmlmodel: malformed xml: unmatched end element %q", t.Name.Local)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("xmlmodel: malformed xml: no root element")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("xmlmodel: malformed xml: unclosed elements at end of document")
	}
	return root, nil
}

func stripNamespace(name string) string {
	if i := strings.LastIndexByte(name, '}'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Attr returns the named attribute's raw value and whether it was present.
func (it *Item) Attr(name string) (string, bool) {
	v, ok := it.Attrs[name]
	return v, ok
}

// AttrOr returns the named attribute's value, or def if absent.
func (it *Item) AttrOr(name, def string) string {
	if v, ok := it.Attrs[name]; ok {
		return v
	}
	return def
}

// ChildrenByTag returns the children matching tag, indexed during Parse, in
// document order. The slice is owned by the tree; callers must not mutate it.
func (it *Item) ChildrenByTag(tag string) []*Item {
	return it.byTag[tag]
}

// FirstChildByTag returns the first child with the given tag, or nil.
func (it *Item) FirstChildByTag(tag string) *Item {
	children := it.byTag[tag]
	if len(children) == 0 {
		return nil
	}
	return children[0]
}

// TrimmedText returns Text with leading/trailing whitespace removed.
func (it *Item) TrimmedText() string {
	return strings.TrimSpace(it.Text)
}

// Path returns the dotted chain of tag names from the root to this item,
// used only for diagnostics (it is not the record tcname).
func (it *Item) Path() string {
	var parts []string
	for n := it; n != nil; n = n.Parent {
		parts = append(parts, n.Tag)
	}
	// reverse
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}
