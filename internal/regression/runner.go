// Package regression replays a captured section against a live site and
// compares every screen with its capture.
package regression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jakopako/flowcheck/internal/actions"
	"github.com/jakopako/flowcheck/internal/apitrack"
	"github.com/jakopako/flowcheck/internal/browser"
	"github.com/jakopako/flowcheck/internal/checkpoint"
	"github.com/jakopako/flowcheck/internal/compare"
	"github.com/jakopako/flowcheck/internal/domtree"
	"github.com/jakopako/flowcheck/internal/flow"
	"github.com/jakopako/flowcheck/internal/log"
	"github.com/jakopako/flowcheck/internal/report"
	"github.com/jakopako/flowcheck/internal/storage"
	"github.com/jakopako/flowcheck/internal/utils"
)

const (
	defaultSettleIdle    = 500 * time.Millisecond
	defaultSettleTimeout = 10 * time.Second
)

// Options configure a regression run.
type Options struct {
	BaseURL           string
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	// ActionDelay is slept after every replayed action.
	ActionDelay   time.Duration
	SettleIdle    time.Duration
	SettleTimeout time.Duration
	// FailBelowScore fails screens whose similarity is below it, even if
	// no style or layout changed.
	FailBelowScore float64
	Denylist       []string
}

type Runner struct {
	section    *storage.Section
	driver     browser.Driver
	checkpoint checkpoint.Checkpoint
	opts       Options
	tracker    *apitrack.Tracker
	replayer   *actions.Replayer
	bodies     apitrack.BodyIndex
	logger     *slog.Logger
	debugDir   string
	// compared holds the latest compared screen per live url path.
	compared map[string]*screenState
}

// screenState keeps what a compared screen needs to be compared again when
// exchanges issued from it complete after the browser moved on.
type screenState struct {
	id     string
	index  int
	path   string
	bundle *storage.Bundle
	dom    *domtree.Node
	live   []*apitrack.Exchange
}

func NewRunner(section *storage.Section, driver browser.Driver, cp checkpoint.Checkpoint, opts Options) *Runner {
	if opts.SettleIdle <= 0 {
		opts.SettleIdle = defaultSettleIdle
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = defaultSettleTimeout
	}
	if cp == nil {
		cp = checkpoint.Fixed(checkpoint.Skip)
	}
	return &Runner{
		section:    section,
		driver:     driver,
		checkpoint: cp,
		opts:       opts,
		replayer:   &actions.Replayer{Timeout: opts.ActionTimeout, Delay: opts.ActionDelay},
	}
}

// Run tests every screen of the section's main path in order. Failures of
// a single screen are recorded in the report, the run only stops early
// if ctx is cancelled or the section cannot be read.
func (r *Runner) Run(ctx context.Context) (*report.TestReport, error) {
	rep := report.New(r.section.Name, r.opts.BaseURL)
	r.logger = log.LoggerFromContext(ctx).With(slog.String("section", r.section.Name))
	ctx = log.ContextWithLogger(ctx, r.logger)
	r.debugDir = filepath.Join(log.DebugDir, rep.TestRunID)
	r.compared = map[string]*screenState{}

	g, err := r.section.LoadGraph()
	if err != nil {
		return nil, err
	}
	stored, err := r.section.AllAPIs(g)
	if err != nil {
		return nil, err
	}
	r.bodies = apitrack.NewBodyIndex(stored)

	r.tracker = apitrack.NewTracker(apitrack.NewFilter(r.opts.Denylist), r.logger)
	r.driver.OnNetworkEvent(r.tracker.Handle)
	r.driver.OnAction(func(batch []actions.Event) {
		for _, ev := range batch {
			if ev.Kind == actions.KindNavigation {
				r.tracker.SetPageURL(ev.URL)
			}
		}
	})

	branches := g.Branches()
	for _, b := range branches {
		r.logger.Warn(fmt.Sprintf("screen %s has %d children, only the first one is tested", b, len(g.Children(b))))
	}

	walk := g.OrderedWalk()
	first := true
	for _, node := range walk {
		if node.ID == flow.StartID {
			continue
		}
		res, state := r.runScreen(ctx, g, node, first)
		first = false
		rep.Add(res)
		r.assignLate(rep)
		if state != nil {
			state.index = len(rep.Screens) - 1
			r.compared[state.path] = state
		}
		if err := ctx.Err(); err != nil {
			rep.Finish(branches)
			return rep, err
		}
		r.logger.Info(fmt.Sprintf("screen %s %s", node.ID, res.Status), slog.Float64("score", res.Score()))
	}
	rep.Finish(branches)
	return rep, nil
}

// assignLate hands exchanges that completed after their page was compared
// to the latest compared screen with the same path and compares that
// screen again. Exchanges without such a screen are dropped.
func (r *Runner) assignLate(rep *report.TestReport) {
	pending := r.tracker.Pending()
	for origin, group := range apitrack.GroupByOrigin(pending) {
		st, found := r.compared[origin]
		if !found {
			continue
		}
		st.live = append(st.live, group...)
		comparison := compare.Screen(st.bundle.DOM, st.dom, r.bodies.Resolve(st.bundle.APIs), st.live)
		res := rep.Screens[st.index]
		res.Comparison = &comparison
		res.Status = Classify(comparison, r.opts.FailBelowScore)
		rep.Replace(st.index, res)
		r.logger.Info(fmt.Sprintf("assigned %d late apis to screen %s, now %s", len(group), st.id, res.Status), slog.Float64("score", comparison.Score))
	}
	r.tracker.Release(pending)
}

func ms(d time.Duration) int64 {
	return d.Milliseconds()
}

func (r *Runner) runScreen(ctx context.Context, g *flow.Graph, node *flow.ScreenNode, first bool) (report.ScreenResult, *screenState) {
	started := time.Now()
	res := report.ScreenResult{
		ScreenID:   node.ID,
		Name:       node.Name,
		NestedPath: node.NestedPath,
		URLPath:    node.URLPath,
	}
	defer func() {
		res.Timings.Total = ms(time.Since(started))
	}()
	logger := r.logger.With(slog.String("screen", node.ID))
	ctx = log.ContextWithLogger(ctx, logger)

	bundle, err := r.section.LoadScreen(node)
	if err != nil {
		res.Status = report.StatusError
		res.Errors = append(res.Errors, err.Error())
		return res, nil
	}

	var reason string
	if first {
		t := time.Now()
		if err := r.navigate(ctx, node.URLPath); err != nil {
			reason = err.Error()
			res.Errors = append(res.Errors, reason)
		}
		res.Timings.Navigate = ms(time.Since(t))
	}

	replayed := 0
	if e := g.InboundEdge(node.ID); e != nil && e.ActionCount > 0 && reason == "" {
		t := time.Now()
		result, err := r.replayer.Replay(ctx, r.driver, bundle.Actions)
		res.Timings.Replay = ms(time.Since(t))
		res.Replay = &result
		if err != nil {
			res.Status = report.StatusError
			res.Errors = append(res.Errors, err.Error())
			return res, nil
		}
		replayed = result.ActionsReplayed
	}

	if reason == "" && replayed == 0 {
		current, err := r.driver.CurrentURL(ctx)
		switch {
		case err != nil:
			reason = fmt.Sprintf("failed to read the current url: %v", err)
		case utils.URLPath(current) != node.URLPath:
			reason = fmt.Sprintf("expected path %s but the browser is at %s", node.URLPath, utils.URLPath(current))
		}
	}

	if reason != "" {
		if !r.confirm(ctx, node, reason, &res) {
			return res, nil
		}
	}

	comparison, state, err := r.captureAndCompare(ctx, node, bundle, &res)
	if err != nil {
		logger.Warn("capture failed", slog.String("err", err.Error()))
		res.Errors = append(res.Errors, err.Error())
		if !r.confirm(ctx, node, "capture failed: "+err.Error(), &res) {
			return res, nil
		}
		comparison, state, err = r.captureAndCompare(ctx, node, bundle, &res)
		if err != nil {
			res.Status = report.StatusError
			res.Errors = append(res.Errors, err.Error())
			return res, nil
		}
	}
	res.Comparison = &comparison
	res.Status = Classify(comparison, r.opts.FailBelowScore)
	return res, state
}

// confirm asks the operator how to go on. It returns true if the screen
// should be captured, otherwise res holds the final status.
func (r *Runner) confirm(ctx context.Context, node *flow.ScreenNode, reason string, res *report.ScreenResult) bool {
	target, _ := utils.JoinURL(r.opts.BaseURL, node.URLPath)
	current, _ := r.driver.CurrentURL(ctx)
	req := checkpoint.Request{
		ScreenID:   node.ID,
		ScreenName: node.Name,
		TargetURL:  target,
		CurrentURL: current,
		Reason:     reason,
	}
	r.logger.Warn(fmt.Sprintf("waiting for the operator: %s", reason), slog.String("screen", node.ID))
	t := time.Now()
	d, err := r.checkpoint.Wait(ctx, req)
	res.Timings.Checkpoint += ms(time.Since(t))
	if err != nil {
		res.Status = report.StatusError
		res.Errors = append(res.Errors, err.Error())
		return false
	}
	res.Decision = string(d)
	if d == checkpoint.Skip {
		res.Status = report.StatusSkipped
		return false
	}
	return true
}

func (r *Runner) navigate(ctx context.Context, urlPath string) error {
	target, err := utils.JoinURL(r.opts.BaseURL, urlPath)
	if err != nil {
		return fmt.Errorf("invalid url for path %s: %w", urlPath, err)
	}
	r.tracker.SetPageURL(target)
	opts := browser.NavigateOptions{WaitUntil: browser.WaitLoad, Timeout: r.opts.NavigationTimeout}
	if err := r.driver.Navigate(ctx, target, opts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// captureAndCompare serializes the live page after the network settled
// and compares it with the stored bundle. Exchanges of other pages stay
// pending for assignLate.
func (r *Runner) captureAndCompare(ctx context.Context, node *flow.ScreenNode, bundle *storage.Bundle, res *report.ScreenResult) (compare.Result, *screenState, error) {
	t := time.Now()
	if !r.tracker.Settle(ctx, r.opts.SettleIdle, r.opts.SettleTimeout) {
		r.logger.Warn(fmt.Sprintf("network did not settle, %d requests still in flight", r.tracker.InFlight()), slog.String("screen", node.ID))
	}
	liveURL, err := r.driver.CurrentURL(ctx)
	if err != nil {
		return compare.Result{}, nil, fmt.Errorf("failed to read the current url: %w", err)
	}
	res.LiveURL = liveURL
	dom, err := domtree.Serialize(ctx, r.driver)
	if err != nil {
		return compare.Result{}, nil, err
	}
	html, err := r.driver.HTML(ctx)
	if err != nil {
		return compare.Result{}, nil, fmt.Errorf("failed to read the page html: %w", err)
	}
	livePath := utils.URLPath(liveURL)
	live, _ := r.tracker.Freeze(livePath)
	res.Timings.Capture = ms(time.Since(t))
	if log.Debug {
		r.dumpHTML(node, html)
	}

	t = time.Now()
	result := compare.Screen(bundle.DOM, dom, r.bodies.Resolve(bundle.APIs), live)
	res.Timings.Compare = ms(time.Since(t))
	state := &screenState{id: node.ID, path: livePath, bundle: bundle, dom: dom, live: live}
	return result, state, nil
}

func (r *Runner) dumpHTML(node *flow.ScreenNode, html string) {
	dir := filepath.Join(r.debugDir, filepath.FromSlash(node.NestedPath))
	if err := storage.EnsureDir(dir); err != nil {
		r.logger.Debug("failed to create debug dir", slog.String("err", err.Error()))
		return
	}
	p := filepath.Join(dir, "live.html")
	if err := os.WriteFile(p, []byte(html), 0644); err != nil {
		r.logger.Debug("failed to write live html", slog.String("err", err.Error()))
		return
	}
	r.logger.Debug(fmt.Sprintf("wrote live html to %s", p))
}

// Classify turns a comparison into a screen status.
func Classify(c compare.Result, failBelowScore float64) report.Status {
	switch {
	case !c.HasChanges():
		return report.StatusPassed
	case c.DOM.StyleBreaking() || c.Score < failBelowScore:
		return report.StatusFailed
	default:
		return report.StatusWarning
	}
}

// ErrNothingToTest is returned by Check for sections without screens.
var ErrNothingToTest = errors.New("section has no screens")

// Check verifies that section can be tested: the graph is a valid tree
// and every screen on the main path has a bundle.
func Check(section *storage.Section) error {
	g, err := section.LoadGraph()
	if err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return err
	}
	walk := g.OrderedWalk()
	if len(walk) <= 1 {
		return ErrNothingToTest
	}
	var errs []error
	for _, n := range walk[1:] {
		if _, err := section.LoadScreen(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
