package main

import "github.com/jakopako/flowcheck/internal/flow"

// treeNode is the nested form of a flow graph printed by the show command.
type treeNode struct {
	ID       string          `yaml:"id"`
	Name     string          `yaml:"name,omitempty"`
	Type     flow.ScreenType `yaml:"type"`
	Path     string          `yaml:"path,omitempty"`
	Actions  int             `yaml:"actions,omitempty"`
	APIs     int             `yaml:"apis,omitempty"`
	Children []treeNode      `yaml:"children,omitempty"`
}

func buildTree(g *flow.Graph, id string) treeNode {
	t := treeNode{ID: id}
	if n, found := g.Node(id); found {
		t.Name = n.Name
		t.Type = n.Type
		t.Path = n.URLPath
	}
	if e := g.InboundEdge(id); e != nil {
		t.Actions = e.ActionCount
		t.APIs = e.APICount
	}
	for _, c := range g.Children(id) {
		t.Children = append(t.Children, buildTree(g, c))
	}
	return t
}
