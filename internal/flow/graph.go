// Package flow models a captured section as a tree of screens. Screens are
// nodes, transitions are edges and the synthetic start node is the root.
package flow

import (
	"errors"
	"fmt"
	"strings"
)

// ScreenType is the kind of ui state a screen represents.
type ScreenType string

const (
	ScreenTypeStart ScreenType = "start"
	ScreenTypePage  ScreenType = "page"
	ScreenTypeModal ScreenType = "modal"
	ScreenTypeForm  ScreenType = "form"
	ScreenTypeList  ScreenType = "list"
)

// StartID is the id of the synthetic root node.
const StartID = "start"

var ErrNodeNotFound = errors.New("node not found")

// CycleError is returned when a reparent operation would introduce a cycle.
type CycleError struct {
	NodeID      string
	NewParentID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cannot move %s below %s: %s is the node itself or one of its descendants", e.NodeID, e.NewParentID, e.NewParentID)
}

type ScreenNode struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       ScreenType `json:"type"`
	URLPath    string     `json:"urlPath"`
	NestedPath string     `json:"nestedPath"`
	DomOrder   int        `json:"domOrder"`
}

type Edge struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Label       string `json:"label"`
	ActionCount int    `json:"actionCount"`
	APICount    int    `json:"apiCount"`
}

// Graph is the flow graph of a section. The zero value is not usable, use
// NewGraph.
type Graph struct {
	Nodes []*ScreenNode `json:"nodes"`
	Edges []*Edge       `json:"edges"`
}

func NewGraph() *Graph {
	return &Graph{
		Nodes: []*ScreenNode{
			{ID: StartID, Name: "Start", Type: ScreenTypeStart, NestedPath: StartID},
		},
		Edges: []*Edge{},
	}
}

func ValidScreenType(t ScreenType) bool {
	switch t {
	case ScreenTypeStart, ScreenTypePage, ScreenTypeModal, ScreenTypeForm, ScreenTypeList:
		return true
	}
	return false
}

func (g *Graph) Node(id string) (*ScreenNode, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// InboundEdge returns the single edge pointing to id, or nil for the root.
func (g *Graph) InboundEdge(id string) *Edge {
	for _, e := range g.Edges {
		if e.To == id {
			return e
		}
	}
	return nil
}

// Parent returns the id of the parent of id or "" for the root.
func (g *Graph) Parent(id string) string {
	if e := g.InboundEdge(id); e != nil {
		return e.From
	}
	return ""
}

// Children returns the ids of the direct children of id in edge order.
func (g *Graph) Children(id string) []string {
	children := []string{}
	for _, e := range g.Edges {
		if e.From == id {
			children = append(children, e.To)
		}
	}
	return children
}

// Descendants returns all ids below id in depth first order.
func (g *Graph) Descendants(id string) []string {
	result := []string{}
	visited := map[string]bool{id: true}
	var walk func(string)
	walk = func(cur string) {
		for _, c := range g.Children(cur) {
			if visited[c] {
				continue
			}
			visited[c] = true
			result = append(result, c)
			walk(c)
		}
	}
	walk(id)
	return result
}

func (g *Graph) isDescendant(id, ancestor string) bool {
	for _, d := range g.Descendants(ancestor) {
		if d == id {
			return true
		}
	}
	return false
}

// AddNode appends node below parentID and connects both with an edge
// labelled with the node's name.
func (g *Graph) AddNode(node ScreenNode, parentID string) (*ScreenNode, error) {
	if node.ID == "" {
		return nil, errors.New("node id must not be empty")
	}
	if strings.Contains(node.ID, "/") {
		return nil, fmt.Errorf("node id %q must not contain '/'", node.ID)
	}
	if _, found := g.Node(node.ID); found {
		return nil, fmt.Errorf("node %s already exists", node.ID)
	}
	if _, found := g.Node(parentID); !found {
		return nil, fmt.Errorf("parent %s: %w", parentID, ErrNodeNotFound)
	}
	if node.Type == "" {
		node.Type = ScreenTypePage
	}
	n := node
	n.DomOrder = g.nextDomOrder()
	g.Nodes = append(g.Nodes, &n)
	g.Edges = append(g.Edges, &Edge{From: parentID, To: n.ID, Label: n.Name})
	p, err := g.BuildNestedPath(n.ID)
	if err != nil {
		return nil, err
	}
	n.NestedPath = p
	return &n, nil
}

// nextDomOrder is one above the highest order in use, so orders stay
// unique after removals.
func (g *Graph) nextDomOrder() int {
	next := 0
	for _, n := range g.Nodes {
		next = max(next, n.DomOrder+1)
	}
	return next
}

// BuildNestedPath walks the parent chain of id up to the root and joins
// the ids with '/', root first.
func (g *Graph) BuildNestedPath(id string) (string, error) {
	if _, found := g.Node(id); !found {
		return "", fmt.Errorf("%s: %w", id, ErrNodeNotFound)
	}
	parts := []string{}
	seen := map[string]bool{}
	for cur := id; cur != ""; cur = g.Parent(cur) {
		if seen[cur] {
			return "", fmt.Errorf("cycle detected at node %s", cur)
		}
		seen[cur] = true
		parts = append(parts, cur)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/"), nil
}

// Reparent moves nodeID below newParentID. The nested paths of the node
// and all its descendants are recomputed. The graph is left untouched if
// an error is returned.
func (g *Graph) Reparent(nodeID, newParentID string) error {
	if nodeID == StartID {
		return errors.New("the start node cannot be moved")
	}
	if _, found := g.Node(nodeID); !found {
		return fmt.Errorf("%s: %w", nodeID, ErrNodeNotFound)
	}
	if _, found := g.Node(newParentID); !found {
		return fmt.Errorf("%s: %w", newParentID, ErrNodeNotFound)
	}
	if newParentID == nodeID || g.isDescendant(newParentID, nodeID) {
		return &CycleError{NodeID: nodeID, NewParentID: newParentID}
	}
	if g.Parent(nodeID) == newParentID {
		return nil
	}

	newEdge := &Edge{From: newParentID, To: nodeID}
	edges := make([]*Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if e.To == nodeID {
			newEdge.Label = e.Label
			newEdge.ActionCount = e.ActionCount
			newEdge.APICount = e.APICount
			continue
		}
		edges = append(edges, e)
	}
	g.Edges = append(edges, newEdge)
	return g.recomputeNestedPaths(nodeID)
}

// RemoveNode deletes id from the graph. Its children are attached to its
// parent, keeping their own subtrees.
func (g *Graph) RemoveNode(id string) error {
	if id == StartID {
		return errors.New("the start node cannot be removed")
	}
	if _, found := g.Node(id); !found {
		return fmt.Errorf("%s: %w", id, ErrNodeNotFound)
	}
	parent := g.Parent(id)
	children := g.Children(id)

	edges := make([]*Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if e.To == id {
			continue
		}
		if e.From == id {
			e.From = parent
		}
		edges = append(edges, e)
	}
	g.Edges = edges

	nodes := make([]*ScreenNode, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID != id {
			nodes = append(nodes, n)
		}
	}
	g.Nodes = nodes

	for _, c := range children {
		if err := g.recomputeNestedPaths(c); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) recomputeNestedPaths(id string) error {
	for _, cur := range append([]string{id}, g.Descendants(id)...) {
		n, _ := g.Node(cur)
		p, err := g.BuildNestedPath(cur)
		if err != nil {
			return err
		}
		n.NestedPath = p
	}
	return nil
}

// OrderedWalk returns the linear path through the graph starting at the
// root and following the first outbound edge of every node. Further
// outbound edges are not visited, see Branches.
func (g *Graph) OrderedWalk() []*ScreenNode {
	result := []*ScreenNode{}
	visited := map[string]bool{}
	for cur := StartID; cur != "" && !visited[cur]; {
		visited[cur] = true
		n, found := g.Node(cur)
		if !found {
			break
		}
		result = append(result, n)
		children := g.Children(cur)
		if len(children) == 0 {
			break
		}
		cur = children[0]
	}
	return result
}

// Branches returns the ids of all nodes with more than one outbound edge.
func (g *Graph) Branches() []string {
	counts := map[string]int{}
	for _, e := range g.Edges {
		counts[e.From]++
	}
	result := []string{}
	for _, n := range g.Nodes {
		if counts[n.ID] > 1 {
			result = append(result, n.ID)
		}
	}
	return result
}

// ScreensByPath returns the captured screens whose url path equals p, in
// capture order.
func (g *Graph) ScreensByPath(p string) []*ScreenNode {
	result := []*ScreenNode{}
	for _, n := range g.Nodes {
		if n.Type != ScreenTypeStart && n.URLPath == p {
			result = append(result, n)
		}
	}
	return result
}

// Validate checks the tree invariants: a single root, exactly one inbound
// edge for every other node, no dangling edges and every node reachable
// from the root.
func (g *Graph) Validate() error {
	if _, found := g.Node(StartID); !found {
		return fmt.Errorf("start node: %w", ErrNodeNotFound)
	}
	inbound := map[string]int{}
	for _, e := range g.Edges {
		if _, found := g.Node(e.From); !found {
			return fmt.Errorf("edge %s -> %s: source %w", e.From, e.To, ErrNodeNotFound)
		}
		if _, found := g.Node(e.To); !found {
			return fmt.Errorf("edge %s -> %s: target %w", e.From, e.To, ErrNodeNotFound)
		}
		inbound[e.To]++
	}
	if inbound[StartID] != 0 {
		return errors.New("start node must not have an inbound edge")
	}
	for _, n := range g.Nodes {
		if n.ID != StartID && inbound[n.ID] != 1 {
			return fmt.Errorf("node %s has %d inbound edges, expected 1", n.ID, inbound[n.ID])
		}
	}
	reachable := len(g.Descendants(StartID)) + 1
	if reachable != len(g.Nodes) {
		return fmt.Errorf("%d of %d nodes are not reachable from the start node", len(g.Nodes)-reachable, len(g.Nodes))
	}
	return nil
}
