// Package compare diffs captured screens: DOM trees structurally and API
// exchanges by endpoint. Both produce a similarity score in [0, 100].
package compare

import "fmt"

type ChangeKind string

const (
	Added    ChangeKind = "added"
	Removed  ChangeKind = "removed"
	Modified ChangeKind = "modified"
)

// Category groups changes by their likely visual impact.
type Category string

const (
	CategoryStyle     Category = "style"
	CategoryLayout    Category = "layout"
	CategoryContent   Category = "content"
	CategoryAttribute Category = "attribute"
	CategoryStructure Category = "structure"
)

// A Change is a single difference between two DOM trees.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	Category Category   `json:"category"`
	Element  string     `json:"element"`
	Property string     `json:"property,omitempty"`
	Old      string     `json:"old,omitempty"`
	New      string     `json:"new,omitempty"`
	Diff     string     `json:"diff,omitempty"`
}

func (c Change) String() string {
	switch c.Kind {
	case Added, Removed:
		return fmt.Sprintf("%s %s", c.Kind, c.Element)
	}
	s := fmt.Sprintf("%s %s %s: %q -> %q", c.Kind, c.Element, c.Property, c.Old, c.New)
	if c.Diff != "" {
		s += " (" + c.Diff + ")"
	}
	return s
}

// StyleBreaking reports whether c changes how an existing element looks
// or where it sits.
func (c Change) StyleBreaking() bool {
	return c.Kind == Modified && (c.Category == CategoryStyle || c.Category == CategoryLayout)
}

// score turns matched and total units into a percentage. Nothing to
// compare counts as identical.
func score(matched, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(matched) / float64(total) * 100
}
