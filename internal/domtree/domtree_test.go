package domtree

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const loginPage = `<!DOCTYPE html>
<html>
<head><title>Login</title><script>var x = 1;</script><style>.a{}</style><link rel="stylesheet" href="/a.css"></head>
<body>
  <div id="app" data-v-7ba5bd90 onclick="go()">
    <h1 class="title">Sign in</h1>
    <form action="/login" method="post">
      <input id="email" type="email" value="a@b.c" placeholder="Email">
      <input id="password" type="password" value="secret">
      <input id="remember" type="checkbox" checked>
      <select name="lang"><option value="en">English</option><option value="de" selected>Deutsch</option></select>
      <button id="submit" type="submit" data-testid="login-btn">Login</button>
    </form>
    <div class="empty">

    </div>
    <div hidden><span>secret panel</span></div>
    <div id="__flowcheck-overlay"><p>tool ui</p></div>
  </div>
  <noscript>enable js</noscript>
</body>
</html>`

func find(n *Node, pred func(*Node) bool) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if found != nil {
			return false
		}
		if pred(c) {
			found = c
			return false
		}
		return true
	})
	return found
}

func byID(id string) func(*Node) bool {
	return func(n *Node) bool { return n.Attrs["id"] == id }
}

func TestFromHTMLIdempotent(t *testing.T) {
	a, err := FromHTML(loginPage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := FromHTML(loginPage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("serializing the same document twice differs (-first +second):\n%s", diff)
	}
}

func TestFromHTMLSkipsNoise(t *testing.T) {
	n, err := FromHTML(loginPage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, tag := range []string{"script", "style", "noscript", "link"} {
		if f := find(n, func(c *Node) bool { return c.Tag == tag }); f != nil {
			t.Errorf("expected no %s node in tree", tag)
		}
	}
	if f := find(n, byID("__flowcheck-overlay")); f != nil {
		t.Errorf("expected tool overlay to be skipped")
	}
	app := find(n, byID("app"))
	if app == nil {
		t.Fatalf("expected #app in tree")
	}
	if _, ok := app.Attrs["onclick"]; ok {
		t.Errorf("event handler attribute should be dropped")
	}
	if _, ok := app.Attrs["data-v-7ba5bd90"]; ok {
		t.Errorf("framework scoped style marker should be dropped")
	}
	empty := find(n, func(c *Node) bool { return c.Attrs["class"] == "empty" })
	if empty == nil {
		t.Fatalf("expected empty div in tree")
	}
	if empty.Children != nil {
		t.Errorf("expected whitespace-only container to have no children, got %d", len(empty.Children))
	}
}

func TestFromHTMLFormValues(t *testing.T) {
	n, err := FromHTML(loginPage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tests := []struct {
		name     string
		pred     func(*Node) bool
		expected string
	}{
		{"text input", byID("email"), "a@b.c"},
		{"password is masked", byID("password"), "********"},
		{"checkbox", byID("remember"), "true"},
		{"select", func(c *Node) bool { return c.Tag == "select" }, "de"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			el := find(n, tc.pred)
			if el == nil {
				t.Fatalf("element not found")
			}
			if el.FormValue == nil {
				t.Fatalf("expected form value")
			}
			if *el.FormValue != tc.expected {
				t.Fatalf("got form value %q, want %q", *el.FormValue, tc.expected)
			}
		})
	}
}

func TestFromHTMLHidden(t *testing.T) {
	n, err := FromHTML(loginPage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hidden := find(n, func(c *Node) bool { return c.Hidden })
	if hidden == nil || hidden.Tag != "div" {
		t.Fatalf("expected the hidden div to be marked hidden")
	}
}

func TestNormalizeStylesAndRect(t *testing.T) {
	raw := &RawNode{
		Tag: "html",
		Children: []*RawNode{
			{
				Tag: "button",
				CSS: map[string]string{
					"color":            "rgb(59, 130, 246)",
					"background-color": "rgba(0, 0, 0, 0)",
					"position":         "static",
					"margin":           "0px",
					"z-index":          "auto",
					"font-size":        "14px",
					"not-tracked":      "1px",
				},
				Rect: &RawRect{X: 10.4, Y: 20.6, Width: 99.5, Height: 31.2},
			},
			{
				Tag:  "div",
				CSS:  map[string]string{"color": "red"},
				Rect: &RawRect{X: 1, Y: 1, Width: 1, Height: 1},
			},
			{
				Tag:    "span",
				Hidden: true,
				CSS:    map[string]string{"color": "red"},
				Rect:   &RawRect{},
			},
		},
	}
	n := Normalize(raw)
	btn := n.Children[0]
	expectedCSS := map[string]string{"color": "rgb(59, 130, 246)", "font-size": "14px"}
	if diff := cmp.Diff(expectedCSS, btn.CSS); diff != "" {
		t.Errorf("unexpected button css (-want +got):\n%s", diff)
	}
	expectedRect := &Rect{X: 10, Y: 21, Width: 100, Height: 31}
	if diff := cmp.Diff(expectedRect, btn.Rect); diff != "" {
		t.Errorf("unexpected button rect (-want +got):\n%s", diff)
	}
	div := n.Children[1]
	if div.CSS != nil || div.Rect != nil {
		t.Errorf("wrapper elements must not carry css or rect")
	}
	span := n.Children[2]
	if !span.Hidden || span.CSS != nil || span.Rect != nil {
		t.Errorf("hidden elements must be marked and carry no css or rect")
	}
}

func TestNormalizeSwallowsNodeFailures(t *testing.T) {
	raw := &RawNode{
		Tag: "html",
		Children: []*RawNode{
			{Tag: "p", StyleError: "boom", CSS: map[string]string{"color": "red"}, Rect: &RawRect{Width: 5, Height: 5}},
			{Tag: "p", RectError: "boom", CSS: map[string]string{"color": "red"}, Rect: &RawRect{Width: 5, Height: 5}},
		},
	}
	n := Normalize(raw)
	if len(n.Children) != 2 {
		t.Fatalf("expected both nodes to survive, got %d", len(n.Children))
	}
	if n.Children[0].CSS != nil || n.Children[0].Rect == nil {
		t.Errorf("style failure should only drop css")
	}
	if n.Children[1].Rect != nil || n.Children[1].CSS == nil {
		t.Errorf("rect failure should only drop rect")
	}
}

func TestNormalizeDepthCap(t *testing.T) {
	root := &RawNode{Tag: "html"}
	cur := root
	for i := 0; i < MaxDepth+10; i++ {
		next := &RawNode{Tag: "div"}
		cur.Children = []*RawNode{next}
		cur = next
	}
	n := Normalize(root)
	depth := 0
	for c := n; len(c.Children) > 0; c = c.Children[0] {
		depth++
	}
	if depth != MaxDepth {
		t.Fatalf("expected tree to be cut at depth %d, got %d", MaxDepth, depth)
	}
}

func TestNormalizeCollapsesText(t *testing.T) {
	raw := &RawNode{Tag: "p", Children: []*RawNode{
		{Tag: TextTag, Value: "  Hello \n   world  "},
		{Tag: TextTag, Value: " \n\t "},
	}}
	n := Normalize(raw)
	if len(n.Children) != 1 {
		t.Fatalf("expected whitespace-only text to be omitted, got %d children", len(n.Children))
	}
	if n.Children[0].Value != "Hello world" {
		t.Fatalf("got %q", n.Children[0].Value)
	}
}

func TestIsAllowedAttr(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"id", true},
		{"class", true},
		{"aria-label", true},
		{"data-testid", true},
		{"onclick", false},
		{"onMouseOver", false},
		{"data-v-12ab", false},
		{"_ngcontent-c12", false},
		{"_nghost-c3", false},
		{"style", false},
		{"data-random", false},
	}
	for _, tc := range tests {
		if got := IsAllowedAttr(tc.name); got != tc.expected {
			t.Errorf("IsAllowedAttr(%q) = %v; want %v", tc.name, got, tc.expected)
		}
	}
}

type fakeEvaluator struct {
	result string
	err    error
	expr   string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, expr string, res any) error {
	f.expr = expr
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.result), res)
}

func TestSerialize(t *testing.T) {
	ev := &fakeEvaluator{result: `{"tag":"html","children":[{"tag":"body","children":[
		{"tag":"button","attrs":{"id":"go","onclick":"x()"},"css":{"color":"rgb(1, 2, 3)","display":"inline-block"},
		 "rect":{"x":0.2,"y":0.7,"width":80.49,"height":20.5},"children":[{"tag":"#text","value":" Go "}]}]}]}`}
	n, err := Serialize(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(ev.expr, `"font-size"`) || !strings.Contains(ev.expr, `"button"`) {
		t.Errorf("expected rule sets to be embedded in the script")
	}
	btn := find(n, byID("go"))
	if btn == nil {
		t.Fatalf("expected button in tree")
	}
	if btn.Rect == nil || *btn.Rect != (Rect{X: 0, Y: 1, Width: 80, Height: 21}) {
		t.Errorf("unexpected rect %v", btn.Rect)
	}
	if btn.Text() != "Go" {
		t.Errorf("unexpected text %q", btn.Text())
	}
	if _, ok := btn.Attrs["onclick"]; ok {
		t.Errorf("event handler attribute should be dropped")
	}
}

func TestSerializeError(t *testing.T) {
	ev := &fakeEvaluator{err: errors.New("target closed")}
	if _, err := Serialize(context.Background(), ev); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	n, err := FromHTML(loginPage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var back Node
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(n, &back); diff != "" {
		t.Fatalf("tree changed after json round trip (-before +after):\n%s", diff)
	}
}

func TestToRawRoundTrip(t *testing.T) {
	n, err := FromHTML(loginPage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	btn := find(n, byID("submit"))
	btn.CSS = map[string]string{"color": "rgb(59, 130, 246)"}
	btn.Rect = &Rect{X: 10, Y: 20, Width: 120, Height: 40}
	if diff := cmp.Diff(n, Normalize(ToRaw(n))); diff != "" {
		t.Fatalf("tree changed after raw round trip (-before +after):\n%s", diff)
	}
}
