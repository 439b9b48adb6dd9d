package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jakopako/flowcheck/internal/actions"
	"github.com/jakopako/flowcheck/internal/apitrack"
	"github.com/jakopako/flowcheck/internal/domtree"
	"github.com/jakopako/flowcheck/internal/flow"
	"golang.org/x/sync/errgroup"
)

const (
	domFilename     = "dom.json"
	htmlFilename    = "page.html"
	actionsFilename = "actions.json"
	apisFilename    = "apis.json"
	metaFilename    = "meta.json"
)

// SessionInfo is written when a capture session stops.
type SessionInfo struct {
	ID          string    `json:"id"`
	Section     string    `json:"section"`
	BaseURL     string    `json:"baseUrl"`
	StartedAt   time.Time `json:"startedAt"`
	StoppedAt   time.Time `json:"stoppedAt"`
	ScreenCount int       `json:"screenCount"`
	APICount    int       `json:"apiCount"`
	ActionCount int       `json:"actionCount"`
}

// ScreenMeta summarizes a screen bundle.
type ScreenMeta struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        flow.ScreenType `json:"type"`
	URL         string          `json:"url"`
	URLPath     string          `json:"urlPath"`
	CapturedAt  time.Time       `json:"capturedAt"`
	ActionCount int             `json:"actionCount"`
	APICount    int             `json:"apiCount"`
	DedupCount  int             `json:"dedupCount"`
	Elements    int             `json:"elements"`
}

// Bundle holds all artifacts of one screen.
type Bundle struct {
	Meta    ScreenMeta
	DOM     *domtree.Node
	HTML    string
	Actions []actions.Event
	APIs    []*apitrack.Exchange
}

type Section struct {
	Name string
	Dir  string
}

func (s *Section) Exists() (bool, error) {
	return PathExists(filepath.Join(s.Dir, graphFilename))
}

func (s *Section) SaveGraph(g *flow.Graph) error {
	if err := WriteJSON(filepath.Join(s.Dir, graphFilename), g); err != nil {
		return fmt.Errorf("failed to save flow graph of section %s: %w", s.Name, err)
	}
	return nil
}

func (s *Section) LoadGraph() (*flow.Graph, error) {
	g := &flow.Graph{}
	if err := ReadJSON(filepath.Join(s.Dir, graphFilename), g); err != nil {
		return nil, fmt.Errorf("failed to load flow graph of section %s: %w", s.Name, err)
	}
	return g, nil
}

func (s *Section) SaveSession(info *SessionInfo) error {
	return WriteJSON(filepath.Join(s.Dir, sessionFilename), info)
}

func (s *Section) LoadSession() (*SessionInfo, error) {
	info := &SessionInfo{}
	if err := ReadJSON(filepath.Join(s.Dir, sessionFilename), info); err != nil {
		return nil, err
	}
	return info, nil
}

// ScreenDir returns the bundle directory of a nested path.
func (s *Section) ScreenDir(nestedPath string) string {
	return filepath.Join(s.Dir, screensDirname, filepath.FromSlash(nestedPath))
}

// WriteScreen writes all files of a bundle. The files are independent and
// written concurrently.
func (s *Section) WriteScreen(ctx context.Context, node *flow.ScreenNode, b *Bundle) error {
	dir := s.ScreenDir(node.NestedPath)
	if err := EnsureDir(dir); err != nil {
		return err
	}
	if b.Actions == nil {
		b.Actions = []actions.Event{}
	}
	if b.APIs == nil {
		b.APIs = []*apitrack.Exchange{}
	}
	b.Meta.ActionCount = len(b.Actions)
	b.Meta.APICount = len(b.APIs)
	b.Meta.DedupCount = countDeduplicated(b.APIs)
	b.Meta.Elements = b.DOM.CountElements()

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { return WriteJSON(filepath.Join(dir, domFilename), b.DOM) })
	g.Go(func() error { return os.WriteFile(filepath.Join(dir, htmlFilename), []byte(b.HTML), 0644) })
	g.Go(func() error { return WriteJSON(filepath.Join(dir, actionsFilename), b.Actions) })
	g.Go(func() error { return WriteJSON(filepath.Join(dir, apisFilename), b.APIs) })
	g.Go(func() error { return WriteJSON(filepath.Join(dir, metaFilename), b.Meta) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to write screen %s: %w", node.ID, err)
	}
	return nil
}

// LoadScreen reads the bundle of node. A missing page.html is not an
// error.
func (s *Section) LoadScreen(node *flow.ScreenNode) (*Bundle, error) {
	dir := s.ScreenDir(node.NestedPath)
	b := &Bundle{DOM: &domtree.Node{}}
	if err := ReadJSON(filepath.Join(dir, metaFilename), &b.Meta); err != nil {
		return nil, fmt.Errorf("failed to load screen %s: %w", node.ID, err)
	}
	if err := ReadJSON(filepath.Join(dir, domFilename), b.DOM); err != nil {
		return nil, fmt.Errorf("failed to load screen %s: %w", node.ID, err)
	}
	if err := ReadJSON(filepath.Join(dir, actionsFilename), &b.Actions); err != nil {
		return nil, fmt.Errorf("failed to load screen %s: %w", node.ID, err)
	}
	apis, err := s.LoadAPIs(node)
	if err != nil {
		return nil, err
	}
	b.APIs = apis
	html, err := os.ReadFile(filepath.Join(dir, htmlFilename))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	b.HTML = string(html)
	return b, nil
}

func (s *Section) LoadAPIs(node *flow.ScreenNode) ([]*apitrack.Exchange, error) {
	apis := []*apitrack.Exchange{}
	if err := ReadJSON(filepath.Join(s.ScreenDir(node.NestedPath), apisFilename), &apis); err != nil {
		return nil, fmt.Errorf("failed to load apis of screen %s: %w", node.ID, err)
	}
	return apis, nil
}

// AppendAPIs adds exchanges to the stored api list of node and updates its
// meta counters. It returns the updated meta.
func (s *Section) AppendAPIs(node *flow.ScreenNode, exchanges []*apitrack.Exchange) (*ScreenMeta, error) {
	dir := s.ScreenDir(node.NestedPath)
	apis, err := s.LoadAPIs(node)
	if err != nil {
		return nil, err
	}
	apis = append(apis, exchanges...)
	meta := &ScreenMeta{}
	if err := ReadJSON(filepath.Join(dir, metaFilename), meta); err != nil {
		return nil, err
	}
	meta.APICount = len(apis)
	meta.DedupCount = countDeduplicated(apis)
	if err := WriteJSON(filepath.Join(dir, apisFilename), apis); err != nil {
		return nil, err
	}
	if err := WriteJSON(filepath.Join(dir, metaFilename), meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// AllAPIs returns the stored exchanges of every screen of g in graph
// order.
func (s *Section) AllAPIs(g *flow.Graph) ([]*apitrack.Exchange, error) {
	all := []*apitrack.Exchange{}
	for _, n := range g.Nodes {
		if n.ID == flow.StartID {
			continue
		}
		apis, err := s.LoadAPIs(n)
		if err != nil {
			return nil, err
		}
		all = append(all, apis...)
	}
	return all, nil
}

// MoveScreenDir moves a bundle directory, including the directories of
// all nested screens.
func (s *Section) MoveScreenDir(oldNestedPath, newNestedPath string) error {
	if oldNestedPath == newNestedPath {
		return nil
	}
	from, to := s.ScreenDir(oldNestedPath), s.ScreenDir(newNestedPath)
	if ok, err := PathExists(to); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("cannot move %s: %s already exists", oldNestedPath, newNestedPath)
	}
	if err := EnsureDir(filepath.Dir(to)); err != nil {
		return err
	}
	return os.Rename(from, to)
}

// ReparentScreen moves screen id below newParentID in the stored graph
// and moves its bundle directory accordingly.
func (s *Section) ReparentScreen(id, newParentID string) (*flow.Graph, error) {
	g, err := s.LoadGraph()
	if err != nil {
		return nil, err
	}
	node, found := g.Node(id)
	if !found {
		return nil, fmt.Errorf("%s: %w", id, flow.ErrNodeNotFound)
	}
	oldPath := node.NestedPath
	if err := g.Reparent(id, newParentID); err != nil {
		return nil, err
	}
	if err := s.MoveScreenDir(oldPath, node.NestedPath); err != nil {
		return nil, err
	}
	return g, s.SaveGraph(g)
}

// DeleteScreen removes screen id from the stored graph. Its children are
// attached to its parent and their directories moved along, then the
// bundle of id is deleted.
func (s *Section) DeleteScreen(id string) (*flow.Graph, error) {
	g, err := s.LoadGraph()
	if err != nil {
		return nil, err
	}
	node, found := g.Node(id)
	if !found {
		return nil, fmt.Errorf("%s: %w", id, flow.ErrNodeNotFound)
	}
	dir := s.ScreenDir(node.NestedPath)
	oldPaths := map[string]string{}
	for _, c := range g.Children(id) {
		cn, _ := g.Node(c)
		oldPaths[c] = cn.NestedPath
	}
	if err := g.RemoveNode(id); err != nil {
		return nil, err
	}
	for c, oldPath := range oldPaths {
		cn, _ := g.Node(c)
		if err := s.MoveScreenDir(oldPath, cn.NestedPath); err != nil {
			return nil, err
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return nil, err
	}
	return g, s.SaveGraph(g)
}

func countDeduplicated(apis []*apitrack.Exchange) int {
	n := 0
	for _, ex := range apis {
		if ex.Deduplicated {
			n++
		}
	}
	return n
}
