package xmldoc

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// ErrMalformed reports unparsable document input.
var ErrMalformed = errors.New("malformed document")

// Parse reads raw markup into an element tree and returns its root element.
// Child insertion order is preserved exactly as it will be on serialization.
func Parse(raw string) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformed)
	}
	return root, nil
}

// Serialize renders an element subtree back to markup. The input element is
// copied first, so serializing never detaches it from its current tree.
func Serialize(el *etree.Element) (string, error) {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	raw, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("serialize document: %w", err)
	}
	return raw, nil
}

// ChildElement returns the first direct child with the given local tag name,
// ignoring namespace prefixes. Returns nil if absent.
func ChildElement(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}

// ChildElements returns all direct children with the given local tag name.
func ChildElements(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			out = append(out, child)
		}
	}
	return out
}

// FindLink returns the first direct link child whose rel attribute matches.
// Publishers emit both plain <link> and namespaced <atom:link>; either is
// accepted.
func FindLink(el *etree.Element, rel string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == "link" && child.SelectAttrValue("rel", "") == rel {
			return child
		}
	}
	return nil
}

// NewLink builds a <link rel="..." href="..."> element.
func NewLink(rel, href string) *etree.Element {
	link := etree.NewElement("link")
	link.CreateAttr("rel", rel)
	link.CreateAttr("href", href)
	return link
}

// Lang returns the element's own xml:lang attribute, or the empty string.
func Lang(el *etree.Element) string {
	return el.SelectAttrValue("xml:lang", "")
}

// SetLang sets the element's xml:lang attribute.
func SetLang(el *etree.Element, lang string) {
	el.CreateAttr("xml:lang", lang)
}
