// Package capture runs capture sessions: a browser the operator drives by
// hand while network traffic and interactions are tracked, and screens are
// frozen into a section on request.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jakopako/flowcheck/internal/actions"
	"github.com/jakopako/flowcheck/internal/apitrack"
	"github.com/jakopako/flowcheck/internal/browser"
	"github.com/jakopako/flowcheck/internal/domtree"
	"github.com/jakopako/flowcheck/internal/flow"
	"github.com/jakopako/flowcheck/internal/log"
	"github.com/jakopako/flowcheck/internal/storage"
	"github.com/jakopako/flowcheck/internal/utils"
)

var ErrNoActiveSession = errors.New("no active capture session")

// Options configure a capture session.
type Options struct {
	Section       string
	BaseURL       string
	FlushInterval time.Duration
	SettleIdle    time.Duration
	SettleTimeout time.Duration
	Denylist      []string
}

// ScreenRequest describes the screen to freeze. ID is derived from Name
// if empty, ParentID defaults to the previously captured screen.
type ScreenRequest struct {
	ID       string
	Name     string
	Type     flow.ScreenType
	ParentID string
}

// A Session holds everything a running capture needs. Only one goroutine
// at a time may call its capture methods, the mutex enforces that.
type Session struct {
	ID        string
	StartedAt time.Time

	mu             sync.Mutex
	opts           Options
	section        *storage.Section
	graph          *flow.Graph
	driver         browser.Driver
	tracker        *apitrack.Tracker
	recorder       *actions.Recorder
	dedup          *apitrack.Deduplicator
	lastScreen     string
	stopRecorder   context.CancelFunc
	recorderDone   chan struct{}
	logger         *slog.Logger
	assignedLate   int
	capturedScreen int
}

func newSession(ctx context.Context, section *storage.Section, driver browser.Driver, opts Options) (*Session, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("section", section.Name))
	s := &Session{
		ID:         uuid.NewString(),
		StartedAt:  time.Now(),
		opts:       opts,
		section:    section,
		driver:     driver,
		tracker:    apitrack.NewTracker(apitrack.NewFilter(opts.Denylist), logger),
		recorder:   actions.NewRecorder(opts.FlushInterval),
		dedup:      apitrack.NewDeduplicator(),
		lastScreen: flow.StartID,
		logger:     logger,
	}

	exists, err := section.Exists()
	if err != nil {
		return nil, err
	}
	if exists {
		g, err := section.LoadGraph()
		if err != nil {
			return nil, err
		}
		apis, err := section.AllAPIs(g)
		if err != nil {
			return nil, err
		}
		s.dedup.Seed(apis)
		s.graph = g
		if walk := g.OrderedWalk(); len(walk) > 0 {
			s.lastScreen = walk[len(walk)-1].ID
		}
		logger.Info(fmt.Sprintf("continuing section with %d screens", len(g.Nodes)-1))
	} else {
		s.graph = flow.NewGraph()
		if err := section.SaveGraph(s.graph); err != nil {
			return nil, err
		}
	}

	driver.OnNetworkEvent(s.tracker.Handle)
	driver.OnAction(func(batch []actions.Event) {
		for _, ev := range batch {
			if ev.Kind == actions.KindNavigation {
				s.tracker.SetPageURL(ev.URL)
			}
		}
		s.recorder.RecordBatch(batch)
	})

	rctx, cancel := context.WithCancel(context.Background())
	s.stopRecorder = cancel
	s.recorderDone = make(chan struct{})
	go func() {
		s.recorder.Run(rctx)
		close(s.recorderDone)
	}()

	if opts.BaseURL != "" {
		if err := driver.Navigate(ctx, opts.BaseURL, browser.NavigateOptions{WaitUntil: browser.WaitDOMReady}); err != nil {
			s.teardown()
			return nil, err
		}
	}
	return s, nil
}

func (s *Session) Graph() *flow.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph
}

func (s *Session) Section() *storage.Section {
	return s.section
}

func (s *Session) Driver() browser.Driver {
	return s.driver
}

func (s *Session) Tracker() *apitrack.Tracker {
	return s.tracker
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

func (s *Session) uniqueID(base string) string {
	if base == "" {
		base = "screen"
	}
	id := base
	for i := 2; ; i++ {
		if _, found := s.graph.Node(id); !found {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, i)
	}
}

// CaptureScreen freezes the current page into a new screen. Completed
// exchanges issued from the current page go to the new screen. Other
// completed exchanges are appended to the latest earlier screen with a
// matching path or stay pending.
func (s *Session) CaptureScreen(ctx context.Context, req ScreenRequest) (*flow.ScreenNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// validate before anything is frozen, a rejected request must not
	// consume pending actions or exchanges
	parent := req.ParentID
	if parent == "" {
		parent = s.lastScreen
	}
	if _, found := s.graph.Node(parent); !found {
		return nil, fmt.Errorf("parent %s: %w", parent, flow.ErrNodeNotFound)
	}
	screenType := req.Type
	if screenType == "" {
		screenType = flow.ScreenTypePage
	}
	if !flow.ValidScreenType(screenType) || screenType == flow.ScreenTypeStart {
		return nil, fmt.Errorf("invalid screen type %q", screenType)
	}
	if req.ID != "" {
		if _, found := s.graph.Node(req.ID); found {
			return nil, fmt.Errorf("screen %s already exists", req.ID)
		}
	}

	if !s.tracker.Settle(ctx, s.opts.SettleIdle, s.opts.SettleTimeout) {
		s.logger.Warn(fmt.Sprintf("network did not settle, %d requests still in flight", s.tracker.InFlight()))
	}
	pageURL, err := s.driver.CurrentURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read the current url: %w", err)
	}
	pagePath := utils.URLPath(pageURL)
	dom, err := domtree.Serialize(ctx, s.driver)
	if err != nil {
		return nil, err
	}
	html, err := s.driver.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read the page html: %w", err)
	}
	events := s.recorder.Drain()
	frozen, remaining := s.tracker.Freeze(pagePath)
	relevant, commit := s.dedup.Stage(frozen)
	// a screen that cannot be stored gives back what it consumed
	rollback := func() {
		s.recorder.Requeue(events)
		s.tracker.Requeue(frozen)
	}

	name := req.Name
	if name == "" {
		name = pagePath
	}
	id := req.ID
	if id == "" {
		id = s.uniqueID(slug(name))
	}
	node, err := s.graph.AddNode(flow.ScreenNode{ID: id, Name: name, Type: screenType, URLPath: pagePath}, parent)
	if err != nil {
		rollback()
		return nil, err
	}
	if e := s.graph.InboundEdge(node.ID); e != nil {
		e.ActionCount = len(events)
		e.APICount = len(relevant)
	}

	bundle := &storage.Bundle{
		Meta: storage.ScreenMeta{
			ID:         node.ID,
			Name:       node.Name,
			Type:       node.Type,
			URL:        pageURL,
			URLPath:    pagePath,
			CapturedAt: time.Now(),
		},
		DOM:     dom,
		HTML:    html,
		Actions: events,
		APIs:    relevant,
	}
	if err := s.section.WriteScreen(ctx, node, bundle); err != nil {
		s.graph.RemoveNode(node.ID)
		rollback()
		return nil, err
	}
	commit()
	s.logger.Info(fmt.Sprintf("captured screen %s (%s) with %d actions and %d apis", node.ID, pagePath, len(events), len(relevant)))

	s.assignRetroactively(node, remaining)

	if err := s.section.SaveGraph(s.graph); err != nil {
		return nil, err
	}
	s.lastScreen = node.ID
	s.capturedScreen++
	return node, nil
}

// assignRetroactively appends late exchanges to earlier screens of the
// same path. A failed write is logged and the group stays pending.
func (s *Session) assignRetroactively(current *flow.ScreenNode, remaining []*apitrack.Exchange) {
	for origin, group := range apitrack.GroupByOrigin(remaining) {
		target := s.latestScreenBefore(origin, current)
		if target == nil {
			continue
		}
		staged, commit := s.dedup.Stage(group)
		meta, err := s.section.AppendAPIs(target, staged)
		if err != nil {
			s.logger.Warn(fmt.Sprintf("failed to assign %d late apis to screen %s", len(group), target.ID), slog.String("err", err.Error()))
			continue
		}
		commit()
		if e := s.graph.InboundEdge(target.ID); e != nil {
			e.APICount = meta.APICount
		}
		s.tracker.Release(group)
		s.assignedLate += len(group)
		s.logger.Info(fmt.Sprintf("assigned %d late apis to screen %s", len(group), target.ID))
	}
}

func (s *Session) latestScreenBefore(urlPath string, current *flow.ScreenNode) *flow.ScreenNode {
	var target *flow.ScreenNode
	for _, n := range s.graph.ScreensByPath(urlPath) {
		if current != nil && n.ID == current.ID {
			continue
		}
		if target == nil || n.DomOrder > target.DomOrder {
			target = n
		}
	}
	return target
}

// finish assigns what is still pending, writes the session info and
// closes the browser.
func (s *Session) finish(ctx context.Context) (*storage.SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopRecorder()
	<-s.recorderDone
	if left := s.recorder.Drain(); len(left) > 0 {
		s.logger.Info(fmt.Sprintf("discarding %d actions recorded after the last screen", len(left)))
	}
	s.tracker.Settle(ctx, s.opts.SettleIdle, s.opts.SettleTimeout)
	s.assignRetroactively(nil, s.tracker.Pending())
	if left := s.tracker.Pending(); len(left) > 0 {
		s.logger.Info(fmt.Sprintf("discarding %d apis without a matching screen", len(left)))
	}
	graphErr := s.section.SaveGraph(s.graph)

	info := &storage.SessionInfo{
		ID:          s.ID,
		Section:     s.section.Name,
		BaseURL:     s.opts.BaseURL,
		StartedAt:   s.StartedAt,
		StoppedAt:   time.Now(),
		ScreenCount: len(s.graph.Nodes) - 1,
	}
	for _, e := range s.graph.Edges {
		info.ActionCount += e.ActionCount
		info.APICount += e.APICount
	}
	sessionErr := s.section.SaveSession(info)
	closeErr := s.driver.Close()
	s.tracker.Reset()
	if err := errors.Join(graphErr, sessionErr); err != nil {
		return nil, err
	}
	if closeErr != nil {
		s.logger.Warn("failed to close the browser", slog.String("err", closeErr.Error()))
	}
	return info, nil
}

// teardown drops the session without finalizing the section.
func (s *Session) teardown() {
	s.stopRecorder()
	<-s.recorderDone
	s.recorder.Reset()
	s.tracker.Reset()
	if err := s.driver.Close(); err != nil {
		s.logger.Warn("failed to close the browser", slog.String("err", err.Error()))
	}
}

// Stats returns the number of screens captured and of exchanges assigned
// after their screen was frozen, both for this session only.
func (s *Session) Stats() (screens, late int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturedScreen, s.assignedLate
}
