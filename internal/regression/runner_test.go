package regression

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jakopako/flowcheck/internal/actions"
	"github.com/jakopako/flowcheck/internal/apitrack"
	"github.com/jakopako/flowcheck/internal/browser"
	"github.com/jakopako/flowcheck/internal/capture"
	"github.com/jakopako/flowcheck/internal/checkpoint"
	"github.com/jakopako/flowcheck/internal/compare"
	"github.com/jakopako/flowcheck/internal/domtree"
	"github.com/jakopako/flowcheck/internal/flow"
	"github.com/jakopako/flowcheck/internal/log"
	"github.com/jakopako/flowcheck/internal/report"
	"github.com/jakopako/flowcheck/internal/storage"
	"github.com/stretchr/testify/require"
)

const (
	baseURL  = "https://app.test"
	loginURL = "https://app.test/login"
	homeURL  = "https://app.test/home"
	blue     = "#3b82f6"
	red      = "#ef4444"

	loginHTML = `<html><body><form><input id="email"><button id="submit">Sign in</button></form></body></html>`
	homeHTML  = `<html><body><h1 id="title">Welcome</h1></body></html>`
)

func loginDOM(color string) *domtree.Node {
	return &domtree.Node{Tag: "html", Children: []*domtree.Node{
		{Tag: "body", Children: []*domtree.Node{
			{Tag: "form", Children: []*domtree.Node{
				{Tag: "input", Attrs: map[string]string{"id": "email"}},
				{Tag: "button", Attrs: map[string]string{"id": "submit"}, CSS: map[string]string{"color": color}, Children: []*domtree.Node{
					{Tag: domtree.TextTag, Value: "Sign in"},
				}},
			}},
		}},
	}}
}

func finishedExchange(id, url, body string) []apitrack.NetworkEvent {
	return []apitrack.NetworkEvent{
		{Kind: apitrack.EventRequestSent, RequestID: id, Method: "GET", URL: url, ResourceType: "Fetch"},
		{Kind: apitrack.EventResponseReceived, RequestID: id, Status: 200},
		{Kind: apitrack.EventLoadingFinished, RequestID: id, Body: body},
	}
}

// writeSection stores start -> login -> home. The second config call of
// login is stored deduplicated against the first.
func writeSection(t *testing.T, store *storage.Store, withBranch bool) *storage.Section {
	t.Helper()
	ctx := context.Background()
	sec := store.Section("demo")
	g := flow.NewGraph()

	login, err := g.AddNode(flow.ScreenNode{ID: "login", Name: "Login", Type: flow.ScreenTypeForm, URLPath: "/login"}, flow.StartID)
	require.NoError(t, err)
	loginActions := []actions.Event{{Kind: actions.KindNavigation, URL: loginURL}}
	g.InboundEdge("login").ActionCount = len(loginActions)
	require.NoError(t, sec.WriteScreen(ctx, login, &storage.Bundle{
		Meta:    storage.ScreenMeta{ID: "login", Name: "Login", URL: loginURL, URLPath: "/login"},
		DOM:     loginDOM(blue),
		HTML:    loginHTML,
		Actions: loginActions,
		APIs: []*apitrack.Exchange{
			{ID: "c1", Method: "GET", URL: "https://app.test/api/config", OriginPath: "/login", Status: 200, ResponseBody: `{"theme":"dark"}`},
			{ID: "c2", Method: "GET", URL: "https://app.test/api/config", OriginPath: "/login", Status: 200, Deduplicated: true, DedupOf: "c1"},
		},
	}))

	home, err := g.AddNode(flow.ScreenNode{ID: "home", Name: "Home", URLPath: "/home"}, "login")
	require.NoError(t, err)
	homeActions := []actions.Event{
		{Kind: actions.KindInput, Selector: "#email", Value: "a"},
		{Kind: actions.KindInput, Selector: "#email", Value: "ab"},
		{Kind: actions.KindClick, Selector: "#submit"},
		{Kind: actions.KindNavigation, URL: homeURL},
	}
	g.InboundEdge("home").ActionCount = len(homeActions)
	homeDOM, err := domtree.FromHTML(homeHTML)
	require.NoError(t, err)
	require.NoError(t, sec.WriteScreen(ctx, home, &storage.Bundle{
		Meta:    storage.ScreenMeta{ID: "home", Name: "Home", URL: homeURL, URLPath: "/home"},
		DOM:     homeDOM,
		HTML:    homeHTML,
		Actions: homeActions,
		APIs: []*apitrack.Exchange{
			{ID: "f1", Method: "GET", URL: "https://app.test/api/feed", OriginPath: "/home", Status: 200, ResponseBody: `[{"id":1}]`},
		},
	}))

	if withBranch {
		forgot, err := g.AddNode(flow.ScreenNode{ID: "forgot", Name: "Forgot password", URLPath: "/forgot"}, "login")
		require.NoError(t, err)
		require.NoError(t, sec.WriteScreen(ctx, forgot, &storage.Bundle{DOM: homeDOM}))
	}
	require.NoError(t, sec.SaveGraph(g))
	return sec
}

// liveSite serves the login page with the given button color.
func liveSite(color string) *browser.Mock {
	m := browser.NewMock()
	m.AddPage(&browser.MockPage{
		URL:     loginURL,
		HTML:    loginHTML,
		DOM:     loginDOM(color),
		Network: finishedExchange("cfg", "https://app.test/api/config", `{"theme":"light"}`),
	})
	m.AddPage(&browser.MockPage{
		URL:     homeURL,
		HTML:    homeHTML,
		Network: finishedExchange("feed", "https://app.test/api/feed", `[{"id":2}]`),
	})
	m.OnCall("click #submit", homeURL)
	return m
}

func testOptions() Options {
	return Options{BaseURL: baseURL, SettleIdle: 5 * time.Millisecond, SettleTimeout: 50 * time.Millisecond}
}

func run(t *testing.T, sec *storage.Section, m *browser.Mock, cp checkpoint.Checkpoint) *report.TestReport {
	t.Helper()
	rep, err := NewRunner(sec, m, cp, testOptions()).Run(context.Background())
	require.NoError(t, err)
	return rep
}

func TestColorRegression(t *testing.T) {
	sec := writeSection(t, storage.New(t.TempDir()), false)
	m := liveSite(red)
	rep := run(t, sec, m, nil)

	require.Len(t, rep.Screens, 2)
	login := rep.Screens[0]
	require.Equal(t, report.StatusFailed, login.Status)
	require.NotNil(t, login.Comparison)
	require.Len(t, login.Comparison.DOM.Changes, 1)
	change := login.Comparison.DOM.Changes[0]
	require.Equal(t, compare.Modified, change.Kind)
	require.Equal(t, compare.CategoryStyle, change.Category)
	require.Equal(t, "color", change.Property)
	require.Equal(t, blue, change.Old)
	require.Equal(t, red, change.New)
	require.False(t, login.Comparison.API.HasChanges)
	require.Less(t, login.Comparison.Score, 100.0)
	require.Greater(t, login.Comparison.Score, 0.0)

	home := rep.Screens[1]
	require.Equal(t, report.StatusPassed, home.Status)
	require.Equal(t, 100.0, home.Comparison.Score)
	require.Equal(t, 2, home.Replay.ActionsReplayed)
	require.Equal(t, homeURL, home.LiveURL)

	require.Equal(t, report.OverallFailed, rep.Summary.Status)
	require.Equal(t, []string{"navigate https://app.test/login", "fill #email ab", "click #submit"}, m.Calls())
}

func TestAllPassed(t *testing.T) {
	sec := writeSection(t, storage.New(t.TempDir()), true)
	rep := run(t, sec, liveSite(blue), nil)

	require.Len(t, rep.Screens, 2)
	for _, s := range rep.Screens {
		require.Equal(t, report.StatusPassed, s.Status, s.ScreenID)
		require.Empty(t, s.Errors)
	}
	require.Equal(t, report.OverallPassed, rep.Summary.Status)
	require.Equal(t, []string{"login"}, rep.Summary.Branches)
	require.Equal(t, 100.0, rep.Summary.AverageScore)
	require.False(t, rep.FinishedAt.IsZero())
}

func brokenReplay(color string) *browser.Mock {
	m := liveSite(color)
	m.FailOn("fill #email ab", errors.New("node detached"))
	m.FailOn("click #submit", errors.New("node detached"))
	return m
}

// formSite serves a login form whose submit posts to /api/login. The post
// completes only after the browser already shows home.
func formSite() *browser.Mock {
	m := browser.NewMock()
	m.AddPage(&browser.MockPage{
		URL:     loginURL,
		HTML:    loginHTML,
		Network: finishedExchange("cfg", "https://app.test/api/config", `{"theme":"dark"}`),
	})
	homeNetwork := []apitrack.NetworkEvent{
		{Kind: apitrack.EventRequestSent, RequestID: "auth", Method: "POST", URL: "https://app.test/api/login", ResourceType: "Fetch", PageURL: loginURL},
		{Kind: apitrack.EventResponseReceived, RequestID: "auth", Status: 200},
		{Kind: apitrack.EventLoadingFinished, RequestID: "auth", Body: `{"token":"abc"}`},
	}
	m.AddPage(&browser.MockPage{
		URL:     homeURL,
		HTML:    homeHTML,
		Network: append(homeNetwork, finishedExchange("feed", "https://app.test/api/feed", `[{"id":1}]`)...),
	})
	m.OnCall("click #submit", homeURL)
	return m
}

func TestCaptureThenReplayUnchangedSite(t *testing.T) {
	ctx := context.Background()
	store := storage.New(t.TempDir())
	m := formSite()
	mgr := capture.NewManager(store, func(context.Context) (browser.Driver, error) { return m, nil })
	s, err := mgr.Start(ctx, capture.Options{Section: "demo", BaseURL: loginURL, SettleTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	login, err := s.CaptureScreen(ctx, capture.ScreenRequest{Name: "Login", Type: flow.ScreenTypeForm})
	require.NoError(t, err)
	m.EmitActions([]actions.Event{
		{Kind: actions.KindInput, Selector: "#email", Value: "ab"},
		{Kind: actions.KindClick, Selector: "#submit"},
	})
	require.NoError(t, m.Click(ctx, "#submit"))
	_, err = s.CaptureScreen(ctx, capture.ScreenRequest{Name: "Home"})
	require.NoError(t, err)
	_, err = mgr.Stop(ctx)
	require.NoError(t, err)

	sec := store.Section("demo")
	stored, err := sec.LoadAPIs(login)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, "https://app.test/api/login", stored[1].URL)

	live := formSite()
	rep := run(t, sec, live, nil)
	require.Len(t, rep.Screens, 2)
	for _, res := range rep.Screens {
		require.Equal(t, report.StatusPassed, res.Status, res.ScreenID)
		require.False(t, res.Comparison.API.HasChanges, res.ScreenID)
		require.Equal(t, 100.0, res.Comparison.Score, res.ScreenID)
	}
	require.Equal(t, report.OverallPassed, rep.Summary.Status)
	require.Equal(t, []string{"navigate https://app.test/login", "fill #email ab", "click #submit"}, live.Calls())
}

func TestLateAPIChangeIsReported(t *testing.T) {
	sec := writeSection(t, storage.New(t.TempDir()), false)
	m := liveSite(blue)
	// the submit fires a call from login that was never captured
	p, _ := m.Page(homeURL)
	p.Network = append([]apitrack.NetworkEvent{
		{Kind: apitrack.EventRequestSent, RequestID: "track", Method: "POST", URL: "https://app.test/api/track", ResourceType: "XHR", PageURL: loginURL},
		{Kind: apitrack.EventResponseReceived, RequestID: "track", Status: 204},
		{Kind: apitrack.EventLoadingFinished, RequestID: "track"},
	}, p.Network...)
	rep := run(t, sec, m, nil)

	login := rep.Screens[0]
	require.Equal(t, report.StatusWarning, login.Status)
	require.True(t, login.Comparison.API.HasChanges)
	require.Equal(t, report.StatusPassed, rep.Screens[1].Status)
	require.Equal(t, report.OverallWarning, rep.Summary.Status)
}

func TestSkipOnURLMismatch(t *testing.T) {
	sec := writeSection(t, storage.New(t.TempDir()), false)
	rep := run(t, sec, brokenReplay(blue), checkpoint.Fixed(checkpoint.Skip))

	home := rep.Screens[1]
	require.Equal(t, report.StatusSkipped, home.Status)
	require.Equal(t, "skip", home.Decision)
	require.Nil(t, home.Comparison)
	require.Equal(t, 0, home.Replay.ActionsReplayed)
	require.Len(t, home.Replay.Skipped, 2)
	require.Equal(t, report.OverallPassed, rep.Summary.Status)
}

func TestContinueAfterOperatorFix(t *testing.T) {
	ctx := context.Background()
	sec := writeSection(t, storage.New(t.TempDir()), false)
	m := brokenReplay(blue)
	ch := checkpoint.NewChannel()
	requests := make(chan checkpoint.Request, 1)
	go func() {
		req := <-ch.Requests()
		requests <- req
		// the operator logs in by hand
		m.Navigate(ctx, homeURL, browser.NavigateOptions{})
		ch.Resolve(ctx, checkpoint.Continue)
	}()

	rep := run(t, sec, m, ch)
	req := <-requests
	require.Equal(t, "home", req.ScreenID)
	require.Equal(t, homeURL, req.TargetURL)
	require.Equal(t, loginURL, req.CurrentURL)
	require.Contains(t, req.Reason, "expected path /home")

	home := rep.Screens[1]
	require.Equal(t, report.StatusPassed, home.Status)
	require.Equal(t, "continue", home.Decision)
}

func TestCheckpointTimeout(t *testing.T) {
	sec := writeSection(t, storage.New(t.TempDir()), false)
	cp := checkpoint.WithTimeout(checkpoint.NewChannel(), 20*time.Millisecond)
	rep := run(t, sec, brokenReplay(blue), cp)

	home := rep.Screens[1]
	require.Equal(t, report.StatusError, home.Status)
	require.Contains(t, home.Errors[0], "checkpoint timed out")
	require.Equal(t, report.OverallFailed, rep.Summary.Status)
}

func TestErrorAfterRetry(t *testing.T) {
	sec := writeSection(t, storage.New(t.TempDir()), false)
	m := liveSite(blue)
	p, _ := m.Page(loginURL)
	// a document that serializes to nothing
	p.DOM = &domtree.Node{Tag: "script"}
	rep := run(t, sec, m, checkpoint.Fixed(checkpoint.Continue))

	login := rep.Screens[0]
	require.Equal(t, report.StatusError, login.Status)
	require.Equal(t, "continue", login.Decision)
	require.Len(t, login.Errors, 2)
	// the run goes on with the next screen
	require.Equal(t, report.StatusPassed, rep.Screens[1].Status)
	require.Equal(t, report.OverallFailed, rep.Summary.Status)
}

func TestNavigationFailure(t *testing.T) {
	sec := writeSection(t, storage.New(t.TempDir()), false)
	m := liveSite(blue)
	m.FailOn("navigate "+loginURL, errors.New("net::ERR_CONNECTION_REFUSED"))
	rep := run(t, sec, m, checkpoint.Fixed(checkpoint.Skip))

	require.Len(t, rep.Screens, 2)
	require.Equal(t, report.StatusSkipped, rep.Screens[0].Status)
	require.Contains(t, rep.Screens[0].Errors[0], "navigation failed")
	require.Equal(t, report.StatusSkipped, rep.Screens[1].Status)
}

func TestDebugDump(t *testing.T) {
	debug, dir := log.Debug, log.DebugDir
	defer func() { log.Debug, log.DebugDir = debug, dir }()
	log.Debug = true
	log.DebugDir = t.TempDir()

	sec := writeSection(t, storage.New(t.TempDir()), false)
	rep := run(t, sec, liveSite(blue), nil)

	b, err := os.ReadFile(filepath.Join(log.DebugDir, rep.TestRunID, "start", "login", "live.html"))
	require.NoError(t, err)
	require.Equal(t, loginHTML, string(b))
}

func TestClassify(t *testing.T) {
	styleChange := compare.Change{Kind: compare.Modified, Category: compare.CategoryStyle, Element: "button", Property: "color"}
	textChange := compare.Change{Kind: compare.Modified, Category: compare.CategoryContent, Element: "h1", Property: "text"}
	tests := []struct {
		name   string
		result compare.Result
		below  float64
		want   report.Status
	}{
		{name: "no changes", result: compare.Result{Score: 100}, want: report.StatusPassed},
		{name: "style change", result: compare.Result{DOM: compare.DOMResult{HasChanges: true, Changes: []compare.Change{styleChange}}, Score: 95}, want: report.StatusFailed},
		{name: "content change", result: compare.Result{DOM: compare.DOMResult{HasChanges: true, Changes: []compare.Change{textChange}}, Score: 95}, below: 90, want: report.StatusWarning},
		{name: "content change below threshold", result: compare.Result{DOM: compare.DOMResult{HasChanges: true, Changes: []compare.Change{textChange}}, Score: 80}, below: 90, want: report.StatusFailed},
		{name: "api change", result: compare.Result{API: compare.APIResult{HasChanges: true}, Score: 75}, want: report.StatusWarning},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.result, tc.below))
		})
	}
}

func TestCheck(t *testing.T) {
	store := storage.New(t.TempDir())
	sec := writeSection(t, store, false)
	require.NoError(t, Check(sec))

	empty := store.Section("empty")
	require.NoError(t, empty.SaveGraph(flow.NewGraph()))
	require.ErrorIs(t, Check(empty), ErrNothingToTest)
}
