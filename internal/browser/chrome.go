package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/jakopako/flowcheck/internal/actions"
	"github.com/jakopako/flowcheck/internal/apitrack"
	"github.com/jakopako/flowcheck/internal/domtree"
	"github.com/jakopako/flowcheck/internal/log"
)

// ActionBinding is the name of the function the recorder script reports
// its batches to.
const ActionBinding = "__flowcheckActions"

// Chrome drives a single tab of a chrome instance it either launched
// itself or attached to through a remote debugging url.
type Chrome struct {
	cfg         *Config
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *slog.Logger

	mu             sync.RWMutex
	currentURL     string
	mainFrame      cdp.FrameID
	netHandlers    []func(apitrack.NetworkEvent)
	actionHandlers []func([]actions.Event)
	bindings       map[string]func(string)
	closed         bool
}

func NewChrome(ctx context.Context, cfg *Config) (*Chrome, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("driver", string(CHROME_DRIVER_TYPE)))
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if cfg.RemoteURL != "" {
		logger.Debug(fmt.Sprintf("attaching to remote browser at %s", cfg.RemoteURL))
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	} else {
		width, height := cfg.WindowWidth, cfg.WindowHeight
		if width == 0 || height == 0 {
			// desktop view, some pages hide elements on small screens
			width, height = 1920, 1080
		}
		opts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.WindowSize(width, height),
			chromedp.Flag("headless", cfg.Headless),
		)
		if cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
		}
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	tabCtx, cancel := chromedp.NewContext(allocCtx)
	c := &Chrome{
		cfg:         cfg,
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		ctx:         tabCtx,
		cancel:      cancel,
		logger:      logger,
		bindings:    map[string]func(string){},
	}
	chromedp.ListenTarget(tabCtx, c.handleEvent)

	setup := []chromedp.Action{
		network.Enable(),
		page.Enable(),
		runtime.Enable(),
	}
	if log.Debug {
		setup = append(setup, chromedp.ActionFunc(func(ctx context.Context) error {
			protocolVersion, product, revision, userAgent, jsVersion, err := cdpbrowser.GetVersion().Do(ctx)
			if err != nil {
				logger.Warn("failed to get chrome version", slog.String("err", err.Error()))
				return nil
			}
			logger.Debug(fmt.Sprintf("chrome version: protocolVersion=%s, product=%s, revision=%s, userAgent=%s, jsVersion=%s",
				protocolVersion, product, revision, userAgent, jsVersion))
			return nil
		}))
	}
	if cfg.RecordActions {
		interval := cfg.FlushInterval
		if interval == 0 {
			interval = actions.DefaultFlushInterval
		}
		script := actions.RecorderScript(ActionBinding, domtree.ToolMarkerAttr, domtree.ToolIDPrefix, interval)
		c.bindings[ActionBinding] = c.dispatchActions
		setup = append(setup,
			runtime.AddBinding(ActionBinding),
			chromedp.ActionFunc(func(ctx context.Context) error {
				_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
				return err
			}),
		)
	}
	// the first run allocates the tab, it must not use a context with a
	// deadline or the tab is closed when it expires
	if err := chromedp.Run(tabCtx, setup...); err != nil {
		cancel()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return c, nil
}

func (c *Chrome) handleEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		c.mu.RLock()
		pageURL := c.currentURL
		c.mu.RUnlock()
		if pageURL == "" {
			pageURL = e.DocumentURL
		}
		c.emitNetwork(apitrack.NetworkEvent{
			Kind:         apitrack.EventRequestSent,
			RequestID:    string(e.RequestID),
			Method:       e.Request.Method,
			URL:          e.Request.URL + e.Request.URLFragment,
			Headers:      flattenHeaders(e.Request.Headers),
			Body:         postData(e.Request),
			ResourceType: string(e.Type),
			PageURL:      pageURL,
			Time:         time.Now(),
		})
	case *network.EventResponseReceived:
		c.emitNetwork(apitrack.NetworkEvent{
			Kind:      apitrack.EventResponseReceived,
			RequestID: string(e.RequestID),
			Status:    int(e.Response.Status),
			Headers:   flattenHeaders(e.Response.Headers),
			Time:      time.Now(),
		})
	case *network.EventLoadingFinished:
		// fetching the body is a cdp call and must not happen on the
		// listener goroutine
		id := e.RequestID
		finished := time.Now()
		go func() {
			body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(c.ctx, chromedp.FromContext(c.ctx).Target))
			if err != nil {
				c.logger.Debug(fmt.Sprintf("no response body for request %s: %v", id, err))
			}
			c.emitNetwork(apitrack.NetworkEvent{
				Kind:      apitrack.EventLoadingFinished,
				RequestID: string(id),
				Body:      string(body),
				Time:      finished,
			})
		}()
	case *network.EventLoadingFailed:
		c.emitNetwork(apitrack.NetworkEvent{
			Kind:      apitrack.EventLoadingFailed,
			RequestID: string(e.RequestID),
			ErrorText: e.ErrorText,
			Time:      time.Now(),
		})
	case *page.EventFrameNavigated:
		if e.Frame == nil || e.Frame.ParentID != "" {
			return
		}
		u := e.Frame.URL + e.Frame.URLFragment
		c.mu.Lock()
		c.mainFrame = e.Frame.ID
		c.currentURL = u
		c.mu.Unlock()
		c.emitActions([]actions.Event{{Kind: actions.KindNavigation, URL: u, Time: time.Now().UnixMilli()}})
	case *page.EventNavigatedWithinDocument:
		c.mu.Lock()
		isMain := e.FrameID == c.mainFrame
		if isMain {
			c.currentURL = e.URL
		}
		c.mu.Unlock()
		if isMain {
			c.emitActions([]actions.Event{{Kind: actions.KindNavigation, URL: e.URL, Time: time.Now().UnixMilli()}})
		}
	case *runtime.EventBindingCalled:
		c.mu.RLock()
		fn, found := c.bindings[e.Name]
		c.mu.RUnlock()
		if found {
			go fn(e.Payload)
		}
	}
}

func flattenHeaders(h network.Headers) map[string]string {
	if len(h) == 0 {
		return nil
	}
	m := make(map[string]string, len(h))
	for k, v := range h {
		m[strings.ToLower(k)] = fmt.Sprint(v)
	}
	return m
}

func postData(r *network.Request) string {
	if r == nil || !r.HasPostData {
		return ""
	}
	var sb strings.Builder
	for _, e := range r.PostDataEntries {
		b, err := base64.StdEncoding.DecodeString(e.Bytes)
		if err != nil {
			continue
		}
		sb.Write(b)
	}
	return sb.String()
}

func (c *Chrome) dispatchActions(payload string) {
	var batch []actions.Event
	if err := json.Unmarshal([]byte(payload), &batch); err != nil {
		c.logger.Debug(fmt.Sprintf("ignoring malformed action batch: %v", err))
		return
	}
	c.emitActions(batch)
}

func (c *Chrome) emitNetwork(ev apitrack.NetworkEvent) {
	c.mu.RLock()
	handlers := c.netHandlers
	c.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (c *Chrome) emitActions(batch []actions.Event) {
	c.mu.RLock()
	handlers := c.actionHandlers
	c.mu.RUnlock()
	for _, h := range handlers {
		h(batch)
	}
}

func (c *Chrome) OnNetworkEvent(handler func(apitrack.NetworkEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.netHandlers = append(c.netHandlers, handler)
}

func (c *Chrome) OnAction(handler func([]actions.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actionHandlers = append(c.actionHandlers, handler)
}

// run executes tasks on the tab bounded by timeout and by ctx.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, tasks ...chromedp.Action) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	tctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(tctx, tasks...)
	if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Chrome) actionTimeout() time.Duration {
	if c.cfg.ActionTimeout > 0 {
		return c.cfg.ActionTimeout
	}
	return defaultActionTimeout
}

func (c *Chrome) Navigate(ctx context.Context, url string, opts NavigateOptions) error {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.cfg.NavigationTimeout
	}
	if timeout == 0 {
		timeout = defaultNavigationTimeout
	}
	c.logger.Debug(fmt.Sprintf("navigating to %s", url), slog.String("wait", string(opts.WaitUntil)))
	tasks := []chromedp.Action{chromedp.Navigate(url)}
	switch opts.WaitUntil {
	case WaitDOMReady:
		tasks = append(tasks, chromedp.WaitReady("body", chromedp.ByQuery))
	case WaitNetworkIdle:
		tasks = append(tasks, chromedp.WaitReady("body", chromedp.ByQuery), chromedp.Sleep(500*time.Millisecond))
	}
	if err := c.run(ctx, timeout, tasks...); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) WaitVisible(ctx context.Context, selector string) error {
	err := c.run(ctx, c.actionTimeout(), chromedp.WaitVisible(selector, chromedp.ByQuery))
	if errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %s", ErrSelectorNotFound, selector)
	}
	return err
}

// clickNode clicks the first node matching selector count times.
func (c *Chrome) clickNode(ctx context.Context, selector string, count int) error {
	return c.run(ctx, c.actionTimeout(), chromedp.ActionFunc(func(ctx context.Context) error {
		var nodes []*cdp.Node
		if err := chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)).Do(ctx); err != nil {
			return err
		}
		if len(nodes) == 0 {
			return fmt.Errorf("%w: %s", ErrSelectorNotFound, selector)
		}
		c.logger.Debug(fmt.Sprintf("clicking on node with selector: %s", selector))
		return chromedp.MouseClickNode(nodes[0], chromedp.ClickCount(count)).Do(ctx)
	}))
}

func (c *Chrome) Click(ctx context.Context, selector string) error {
	return c.clickNode(ctx, selector, 1)
}

func (c *Chrome) DoubleClick(ctx context.Context, selector string) error {
	return c.clickNode(ctx, selector, 2)
}

func (c *Chrome) Fill(ctx context.Context, selector, value string) error {
	return c.run(ctx, c.actionTimeout(),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (c *Chrome) SelectOption(ctx context.Context, selector, value string) error {
	expr := fmt.Sprintf(`(() => {
  const el = document.querySelector(%q);
  if (!el) return false;
  el.value = %q;
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));
  return true;
})()`, selector, value)
	var ok bool
	if err := c.run(ctx, c.actionTimeout(), chromedp.Evaluate(expr, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrSelectorNotFound, selector)
	}
	return nil
}

var keys = map[string]string{
	"Enter":  kb.Enter,
	"Escape": kb.Escape,
	"Tab":    kb.Tab,
	"End":    kb.End,
}

func (c *Chrome) PressKey(ctx context.Context, selector, key string) error {
	k, found := keys[key]
	if !found {
		k = key
	}
	tasks := []chromedp.Action{}
	if selector != "" {
		tasks = append(tasks, chromedp.Focus(selector, chromedp.ByQuery))
	}
	tasks = append(tasks, chromedp.KeyEvent(k))
	return c.run(ctx, c.actionTimeout(), tasks...)
}

func (c *Chrome) ScrollTo(ctx context.Context, selector string, x, y int) error {
	if selector != "" {
		return c.run(ctx, c.actionTimeout(), chromedp.ScrollIntoView(selector, chromedp.ByQuery))
	}
	var res any
	return c.run(ctx, c.actionTimeout(), chromedp.Evaluate(fmt.Sprintf("window.scrollTo(%d, %d)", x, y), &res))
}

func (c *Chrome) Evaluate(ctx context.Context, expr string, res any) error {
	return c.run(ctx, c.actionTimeout(), chromedp.Evaluate(expr, res))
}

func (c *Chrome) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := c.run(ctx, c.actionTimeout(), chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

func (c *Chrome) HTML(ctx context.Context) (string, error) {
	var body string
	err := c.run(ctx, c.actionTimeout(), chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		body, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	return body, err
}

func (c *Chrome) Expose(ctx context.Context, name string, fn func(payload string)) error {
	c.mu.Lock()
	c.bindings[name] = fn
	c.mu.Unlock()
	return c.run(ctx, c.actionTimeout(), runtime.AddBinding(name))
}

func (c *Chrome) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.cancelAlloc()
	return nil
}
