// Package domtree defines the compact structural representation of a page
// (DomTree) and the serializers that produce it, either from a live page
// through an injected script or from raw html.
package domtree

import (
	"fmt"
	"strings"
)

// TextTag is the tag of text leaves.
const TextTag = "#text"

// MaxDepth is the maximum nesting level that is serialized. Anything
// deeper is cut off.
const MaxDepth = 30

// Rect is an element's bounding box in integer css pixels.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d@%d,%d", r.Width, r.Height, r.X, r.Y)
}

// A Node is either an element or, if Tag is TextTag, a text leaf
// carrying Value.
type Node struct {
	Tag       string            `json:"tag"`
	Value     string            `json:"value,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	CSS       map[string]string `json:"cssSubset,omitempty"`
	Rect      *Rect             `json:"rect,omitempty"`
	Hidden    bool              `json:"hidden,omitempty"`
	FormValue *string           `json:"formValue,omitempty"`
	Children  []*Node           `json:"children,omitempty"`
}

func (n *Node) IsText() bool {
	return n != nil && n.Tag == TextTag
}

// Key returns the stable identity of an element: its id or, if absent,
// its data-testid. Empty if neither exists.
func (n *Node) Key() string {
	if n == nil || n.IsText() {
		return ""
	}
	if id := n.Attrs["id"]; id != "" {
		return "#" + id
	}
	if tid := n.Attrs["data-testid"]; tid != "" {
		return fmt.Sprintf("[data-testid=%q]", tid)
	}
	return ""
}

// Label is a short css-like description of the element used in change
// lists, eg. button#submit.btn.primary
func (n *Node) Label() string {
	if n == nil {
		return ""
	}
	if n.IsText() {
		return TextTag
	}
	var sb strings.Builder
	sb.WriteString(n.Tag)
	if id := n.Attrs["id"]; id != "" {
		sb.WriteString("#" + id)
	} else if tid := n.Attrs["data-testid"]; tid != "" {
		sb.WriteString(fmt.Sprintf("[data-testid=%q]", tid))
	}
	for _, cl := range strings.Fields(n.Attrs["class"]) {
		sb.WriteString("." + cl)
	}
	return sb.String()
}

// Text returns the concatenated text of all text leaves below n.
func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	if n.IsText() {
		return n.Value
	}
	parts := []string{}
	for _, c := range n.Children {
		if t := c.Text(); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Walk calls fn for n and all its descendants in document order. If fn
// returns false the children of that node are not visited.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// CountElements returns the number of element (non text) nodes in the tree.
func (n *Node) CountElements() int {
	count := 0
	n.Walk(func(c *Node) bool {
		if !c.IsText() {
			count++
		}
		return true
	})
	return count
}
