package flow

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// buildGraph creates start -> login -> home -> settings and home -> profile
func buildGraph(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	steps := []struct {
		node   ScreenNode
		parent string
	}{
		{ScreenNode{ID: "login", Name: "Login", URLPath: "/login"}, StartID},
		{ScreenNode{ID: "home", Name: "Home", URLPath: "/home"}, "login"},
		{ScreenNode{ID: "settings", Name: "Settings", Type: ScreenTypeForm, URLPath: "/settings"}, "home"},
		{ScreenNode{ID: "profile", Name: "Profile", Type: ScreenTypeModal, URLPath: "/home"}, "home"},
	}
	for _, s := range steps {
		if _, err := g.AddNode(s.node, s.parent); err != nil {
			t.Fatalf("AddNode(%s): %v", s.node.ID, err)
		}
	}
	return g
}

func nestedPath(t *testing.T, g *Graph, id string) string {
	t.Helper()
	n, found := g.Node(id)
	if !found {
		t.Fatalf("node %s not found", id)
	}
	return n.NestedPath
}

func TestAddNode(t *testing.T) {
	g := buildGraph(t)
	tests := []struct {
		id       string
		expected string
	}{
		{"login", "start/login"},
		{"home", "start/login/home"},
		{"settings", "start/login/home/settings"},
		{"profile", "start/login/home/profile"},
	}
	for _, tc := range tests {
		if got := nestedPath(t, g, tc.id); got != tc.expected {
			t.Errorf("nested path of %s = %q; want %q", tc.id, got, tc.expected)
		}
	}
	login, _ := g.Node("login")
	if login.Type != ScreenTypePage {
		t.Errorf("expected default type page, got %s", login.Type)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("expected valid graph: %v", err)
	}
}

func TestAddNodeErrors(t *testing.T) {
	g := buildGraph(t)
	tests := []struct {
		name   string
		node   ScreenNode
		parent string
	}{
		{"duplicate id", ScreenNode{ID: "login"}, StartID},
		{"empty id", ScreenNode{}, StartID},
		{"slash in id", ScreenNode{ID: "a/b"}, StartID},
		{"unknown parent", ScreenNode{ID: "x"}, "nope"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := g.AddNode(tc.node, tc.parent); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestReparent(t *testing.T) {
	g := buildGraph(t)
	if err := g.Reparent("home", StartID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tests := []struct {
		id       string
		expected string
	}{
		{"login", "start/login"},
		{"home", "start/home"},
		{"settings", "start/home/settings"},
		{"profile", "start/home/profile"},
	}
	for _, tc := range tests {
		if got := nestedPath(t, g, tc.id); got != tc.expected {
			t.Errorf("nested path of %s = %q; want %q", tc.id, got, tc.expected)
		}
	}
	inbound := 0
	for _, e := range g.Edges {
		if e.To == "home" {
			inbound++
			if e.From != StartID {
				t.Errorf("expected inbound edge from start, got %s", e.From)
			}
			if e.Label != "Home" {
				t.Errorf("expected edge label to be kept, got %q", e.Label)
			}
		}
	}
	if inbound != 1 {
		t.Fatalf("expected exactly one inbound edge, got %d", inbound)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("expected valid graph: %v", err)
	}
}

func TestReparentCycle(t *testing.T) {
	tests := []struct {
		name      string
		node      string
		newParent string
	}{
		{"onto itself", "home", "home"},
		{"onto child", "login", "home"},
		{"onto grandchild", "login", "settings"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := buildGraph(t)
			before, _ := json.Marshal(g)
			err := g.Reparent(tc.node, tc.newParent)
			var cycleErr *CycleError
			if !errors.As(err, &cycleErr) {
				t.Fatalf("expected CycleError, got %v", err)
			}
			after, _ := json.Marshal(g)
			if diff := cmp.Diff(string(before), string(after)); diff != "" {
				t.Fatalf("graph changed after failed reparent:\n%s", diff)
			}
		})
	}
}

func TestReparentUnknown(t *testing.T) {
	g := buildGraph(t)
	if err := g.Reparent("ghost", StartID); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
	if err := g.Reparent(StartID, "login"); err == nil {
		t.Fatalf("expected moving start to fail")
	}
}

func TestRemoveNode(t *testing.T) {
	g := buildGraph(t)
	if err := g.RemoveNode("home"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, found := g.Node("home"); found {
		t.Fatalf("expected home to be removed")
	}
	if got := nestedPath(t, g, "settings"); got != "start/login/settings" {
		t.Errorf("settings nested path = %q", got)
	}
	if got := g.Children("login"); !cmp.Equal(got, []string{"settings", "profile"}) {
		t.Errorf("unexpected children of login: %v", got)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("expected valid graph: %v", err)
	}
}

func TestDomOrderUniqueAfterRemove(t *testing.T) {
	g := buildGraph(t)
	if err := g.RemoveNode("home"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, err := g.AddNode(ScreenNode{ID: "help", URLPath: "/help"}, "login")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := map[int]string{}
	for _, other := range g.Nodes {
		if id, dup := seen[other.DomOrder]; dup {
			t.Fatalf("%s and %s share order %d", id, other.ID, other.DomOrder)
		}
		seen[other.DomOrder] = other.ID
	}
	profile, _ := g.Node("profile")
	if n.DomOrder <= profile.DomOrder {
		t.Errorf("expected help (%d) to be ordered after profile (%d)", n.DomOrder, profile.DomOrder)
	}
}

func TestReparentOntoSameParent(t *testing.T) {
	g := buildGraph(t)
	before, _ := json.Marshal(g)
	if err := g.Reparent("settings", "home"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after, _ := json.Marshal(g)
	if diff := cmp.Diff(string(before), string(after)); diff != "" {
		t.Fatalf("graph changed:\n%s", diff)
	}
	if got := g.Children("home"); !cmp.Equal(got, []string{"settings", "profile"}) {
		t.Errorf("unexpected children of home: %v", got)
	}
}

func TestOrderedWalkAndBranches(t *testing.T) {
	g := buildGraph(t)
	ids := []string{}
	for _, n := range g.OrderedWalk() {
		ids = append(ids, n.ID)
	}
	expected := []string{StartID, "login", "home", "settings"}
	if diff := cmp.Diff(expected, ids); diff != "" {
		t.Fatalf("unexpected walk (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"home"}, g.Branches()); diff != "" {
		t.Fatalf("unexpected branches (-want +got):\n%s", diff)
	}
}

func TestScreensByPath(t *testing.T) {
	g := buildGraph(t)
	screens := g.ScreensByPath("/home")
	if len(screens) != 2 || screens[0].ID != "home" || screens[1].ID != "profile" {
		t.Fatalf("unexpected screens for /home: %v", screens)
	}
}

func TestValidateDetectsBrokenTree(t *testing.T) {
	g := buildGraph(t)
	g.Edges = append(g.Edges, &Edge{From: "login", To: "settings"})
	if err := g.Validate(); err == nil {
		t.Fatalf("expected two inbound edges to be rejected")
	}
}
