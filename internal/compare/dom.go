package compare

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/jakopako/flowcheck/internal/domtree"
)

// maxLabelSegments is the number of ancestor labels kept in element paths.
const maxLabelSegments = 4

type DOMResult struct {
	HasChanges      bool     `json:"hasChanges"`
	SimilarityScore float64  `json:"similarityScore"`
	Matched         int      `json:"matched"`
	Total           int      `json:"total"`
	Changes         []Change `json:"changes"`
}

// StyleBreaking reports whether any change modifies the style or layout
// of an element present in both trees.
func (r DOMResult) StyleBreaking() bool {
	for _, c := range r.Changes {
		if c.StyleBreaking() {
			return true
		}
	}
	return false
}

// CountByKind returns the number of added, removed and modified changes.
func (r DOMResult) CountByKind() (added, removed, modified int) {
	for _, c := range r.Changes {
		switch c.Kind {
		case Added:
			added++
		case Removed:
			removed++
		case Modified:
			modified++
		}
	}
	return
}

// domDiff accumulates units and changes. Every element present in both
// trees contributes one unit for its presence plus one per compared
// property. Nodes present on one side only contribute, all unmatched, the
// units they would have contributed if matched, so removing a node never
// scores higher than changing it.
type domDiff struct {
	matched int
	total   int
	changes []Change
}

// CompareDOM diffs oldTree against newTree. Elements are matched by id or
// data-testid first, the rest by tag and position among siblings of the
// same tag.
func CompareDOM(oldTree, newTree *domtree.Node) DOMResult {
	d := &domDiff{changes: []Change{}}
	switch {
	case oldTree == nil && newTree == nil:
	case oldTree == nil:
		d.unmatched(Added, newTree, nil)
	case newTree == nil:
		d.unmatched(Removed, oldTree, nil)
	case oldTree.Tag != newTree.Tag:
		d.unmatched(Removed, oldTree, nil)
		d.unmatched(Added, newTree, nil)
	default:
		d.node(oldTree, newTree, nil)
	}
	return DOMResult{
		HasChanges:      len(d.changes) > 0,
		SimilarityScore: score(d.matched, d.total),
		Matched:         d.matched,
		Total:           d.total,
		Changes:         d.changes,
	}
}

func elementPath(parents []string, n *domtree.Node) string {
	segments := append(append([]string{}, parents...), n.Label())
	if len(segments) > maxLabelSegments {
		segments = segments[len(segments)-maxLabelSegments:]
	}
	return strings.Join(segments, " > ")
}

func (d *domDiff) unit(equal bool) {
	d.total++
	if equal {
		d.matched++
	}
}

func (d *domDiff) unmatched(kind ChangeKind, n *domtree.Node, parents []string) {
	n.Walk(func(sub *domtree.Node) bool {
		d.total += units(sub)
		return true
	})
	c := Change{Kind: kind, Category: CategoryStructure, Element: elementPath(parents, n)}
	if n.IsText() {
		if kind == Added {
			c.New = n.Value
		} else {
			c.Old = n.Value
		}
	}
	d.changes = append(d.changes, c)
}

// units returns the number of units n contributes when matched.
func units(n *domtree.Node) int {
	if n.IsText() {
		return 2
	}
	u := 1 + len(n.CSS) + len(n.Attrs)
	if n.Hidden {
		u++
	}
	if n.Rect != nil {
		u++
	}
	if n.FormValue != nil {
		u++
	}
	return u
}

func (d *domDiff) modified(cat Category, element, property, oldV, newV, diff string) {
	d.changes = append(d.changes, Change{
		Kind:     Modified,
		Category: cat,
		Element:  element,
		Property: property,
		Old:      oldV,
		New:      newV,
		Diff:     diff,
	})
}

func (d *domDiff) node(a, b *domtree.Node, parents []string) {
	el := elementPath(parents, b)
	if a.IsText() {
		d.unit(true)
		equal := a.Value == b.Value
		d.unit(equal)
		if !equal {
			d.modified(CategoryContent, el, "text", a.Value, b.Value, textDiff(a.Value, b.Value))
		}
		return
	}

	d.unit(true)
	d.compareMap(CategoryStyle, el, "", a.CSS, b.CSS)
	d.compareMap(CategoryAttribute, el, "@", a.Attrs, b.Attrs)

	if a.Hidden != b.Hidden {
		d.unit(false)
		d.modified(CategoryLayout, el, "hidden", fmt.Sprint(a.Hidden), fmt.Sprint(b.Hidden), "")
	} else if a.Hidden {
		d.unit(true)
	}

	if a.Rect != nil || b.Rect != nil {
		equal := a.Rect != nil && b.Rect != nil && *a.Rect == *b.Rect
		d.unit(equal)
		if !equal {
			d.modified(CategoryLayout, el, "rect", rectString(a.Rect), rectString(b.Rect), rectDiff(a.Rect, b.Rect))
		}
	}

	if a.FormValue != nil || b.FormValue != nil {
		equal := a.FormValue != nil && b.FormValue != nil && *a.FormValue == *b.FormValue
		d.unit(equal)
		if !equal {
			oldV, newV := deref(a.FormValue), deref(b.FormValue)
			d.modified(CategoryContent, el, "formValue", oldV, newV, textDiff(oldV, newV))
		}
	}

	d.children(a, b, append(parents, b.Label()))
}

// compareMap compares every key present on either side as one unit.
func (d *domDiff) compareMap(cat Category, el, prefix string, a, b map[string]string) {
	keys := map[string]bool{}
	for k := range a {
		keys[k] = true
	}
	for k := range b {
		keys[k] = true
	}
	for _, k := range slices.Sorted(maps.Keys(keys)) {
		oldV, okA := a[k]
		newV, okB := b[k]
		equal := okA && okB && oldV == newV
		d.unit(equal)
		if !equal {
			d.modified(cat, el, prefix+k, oldV, newV, "")
		}
	}
}

// children matches the children of two matched elements and recurses.
// Unmatched old children are reported first, then the new children in
// document order.
func (d *domDiff) children(a, b *domtree.Node, parents []string) {
	pairs := matchChildren(a.Children, b.Children)
	matchedOld := map[int]bool{}
	for _, j := range pairs {
		if j >= 0 {
			matchedOld[j] = true
		}
	}
	for i, c := range a.Children {
		if !matchedOld[i] {
			d.unmatched(Removed, c, parents)
		}
	}
	for i, c := range b.Children {
		if j := pairs[i]; j >= 0 {
			d.node(a.Children[j], c, parents)
		} else {
			d.unmatched(Added, c, parents)
		}
	}
}

// matchChildren returns for every new child the index of its old
// counterpart or -1.
func matchChildren(oldChildren, newChildren []*domtree.Node) []int {
	pairs := make([]int, len(newChildren))
	used := make([]bool, len(oldChildren))
	keyed := map[string]int{}
	for j, c := range oldChildren {
		if k := c.Key(); k != "" {
			if _, dup := keyed[k]; !dup {
				keyed[k] = j
			}
		}
	}
	for i, c := range newChildren {
		pairs[i] = -1
		if k := c.Key(); k != "" {
			if j, found := keyed[k]; found && !used[j] && oldChildren[j].Tag == c.Tag {
				pairs[i] = j
				used[j] = true
			}
		}
	}

	// positional fallback: the n-th unkeyed child of a tag matches the
	// n-th unkeyed old child of the same tag
	positions := map[string][]int{}
	for j, c := range oldChildren {
		if !used[j] && c.Key() == "" {
			positions[c.Tag] = append(positions[c.Tag], j)
		}
	}
	seen := map[string]int{}
	for i, c := range newChildren {
		if pairs[i] >= 0 || c.Key() != "" {
			continue
		}
		n := seen[c.Tag]
		seen[c.Tag]++
		if candidates := positions[c.Tag]; n < len(candidates) {
			pairs[i] = candidates[n]
			used[candidates[n]] = true
		}
	}
	return pairs
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func rectString(r *domtree.Rect) string {
	if r == nil {
		return ""
	}
	return r.String()
}

func rectDiff(a, b *domtree.Rect) string {
	if a == nil || b == nil {
		return ""
	}
	parts := []string{}
	for _, f := range []struct {
		name     string
		old, new int
	}{
		{"x", a.X, b.X},
		{"y", a.Y, b.Y},
		{"width", a.Width, b.Width},
		{"height", a.Height, b.Height},
	} {
		if f.old != f.new {
			parts = append(parts, fmt.Sprintf("%s%+d", f.name, f.new-f.old))
		}
	}
	return strings.Join(parts, " ")
}

func textDiff(a, b string) string {
	return fmt.Sprintf("edit distance %d", levenshtein.ComputeDistance(a, b))
}
