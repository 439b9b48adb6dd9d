package domtree

import (
	"math"
	"strings"
)

// RawRect is the unrounded bounding box as reported by the browser.
type RawRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RawNode is the shape returned by the in-page serializer script before
// normalization. StyleError and RectError are set when the respective
// extraction failed for this node.
type RawNode struct {
	Tag        string            `json:"tag"`
	Value      string            `json:"value,omitempty"`
	Attrs      map[string]string `json:"attrs,omitempty"`
	CSS        map[string]string `json:"css,omitempty"`
	Rect       *RawRect          `json:"rect,omitempty"`
	Hidden     bool              `json:"hidden,omitempty"`
	FormValue  *string           `json:"formValue,omitempty"`
	StyleError string            `json:"styleError,omitempty"`
	RectError  string            `json:"rectError,omitempty"`
	Children   []*RawNode        `json:"children,omitempty"`
}

// Normalize turns a raw tree into a DomTree applying all serialization
// rules. It returns nil if the root itself is dropped.
func Normalize(raw *RawNode) *Node {
	return normalize(raw, 0)
}

func normalize(raw *RawNode, depth int) *Node {
	if raw == nil || depth > MaxDepth {
		return nil
	}
	if raw.Tag == TextTag {
		v := collapseWhitespace(raw.Value)
		if v == "" {
			return nil
		}
		return &Node{Tag: TextTag, Value: v}
	}
	tag := strings.ToLower(raw.Tag)
	if tag == "" || skipTags[tag] || isToolElement(raw.Attrs) {
		return nil
	}

	n := &Node{Tag: tag, Hidden: raw.Hidden}
	for k, v := range raw.Attrs {
		if !IsAllowedAttr(k) {
			continue
		}
		if n.Attrs == nil {
			n.Attrs = map[string]string{}
		}
		n.Attrs[strings.ToLower(k)] = v
	}
	if raw.FormValue != nil {
		fv := *raw.FormValue
		n.FormValue = &fv
	}

	if IsContentTag(tag) && !raw.Hidden {
		// a failed extraction leaves the field out, the node is kept
		if raw.StyleError == "" {
			for prop, v := range raw.CSS {
				if !cssPropertySet[prop] || v == "" || IsBoringValue(v) {
					continue
				}
				if n.CSS == nil {
					n.CSS = map[string]string{}
				}
				n.CSS[prop] = strings.TrimSpace(v)
			}
		}
		if raw.RectError == "" && raw.Rect != nil {
			n.Rect = &Rect{
				X:      roundPx(raw.Rect.X),
				Y:      roundPx(raw.Rect.Y),
				Width:  roundPx(raw.Rect.Width),
				Height: roundPx(raw.Rect.Height),
			}
		}
	}

	for _, rc := range raw.Children {
		if c := normalize(rc, depth+1); c != nil {
			n.Children = append(n.Children, c)
		}
	}
	return n
}

func roundPx(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Round(f))
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ToRaw converts a DomTree back into the raw shape. Normalizing the result
// yields an equal tree.
func ToRaw(n *Node) *RawNode {
	if n == nil {
		return nil
	}
	raw := &RawNode{
		Tag:       n.Tag,
		Value:     n.Value,
		Attrs:     n.Attrs,
		CSS:       n.CSS,
		Hidden:    n.Hidden,
		FormValue: n.FormValue,
	}
	if n.Rect != nil {
		raw.Rect = &RawRect{X: float64(n.Rect.X), Y: float64(n.Rect.Y), Width: float64(n.Rect.Width), Height: float64(n.Rect.Height)}
	}
	for _, c := range n.Children {
		raw.Children = append(raw.Children, ToRaw(c))
	}
	return raw
}
