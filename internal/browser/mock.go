package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jakopako/flowcheck/internal/actions"
	"github.com/jakopako/flowcheck/internal/apitrack"
	"github.com/jakopako/flowcheck/internal/domtree"
	"github.com/jakopako/flowcheck/internal/utils"
)

// MockPage is a page served by the Mock driver.
type MockPage struct {
	URL  string
	HTML string
	// DOM overrides the tree derived from HTML, eg. to provide styles.
	DOM *domtree.Node
	// Network is emitted, in order, whenever the page is loaded. Events
	// without PageURL are issued from this page.
	Network []apitrack.NetworkEvent
}

// Mock is an in-memory driver. Pages are looked up by url path, the
// presence of selectors is checked against the page html. Interactions
// are recorded in Calls and may trigger transitions to other pages.
type Mock struct {
	mu             sync.Mutex
	pages          map[string]*MockPage
	transitions    map[string]string
	failures       map[string]error
	current        *MockPage
	currentURL     string
	calls          []string
	netHandlers    []func(apitrack.NetworkEvent)
	actionHandlers []func([]actions.Event)
	bindings       map[string]func(string)
	closed         bool
}

func NewMock() *Mock {
	return &Mock{
		pages:       map[string]*MockPage{},
		transitions: map[string]string{},
		failures:    map[string]error{},
		bindings:    map[string]func(string){},
	}
}

// AddPage registers p under the path of its url.
func (m *Mock) AddPage(p *MockPage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[utils.URLPath(p.URL)] = p
}

// Page returns the page registered for the path of u.
func (m *Mock) Page(u string) (*MockPage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, found := m.pages[utils.URLPath(u)]
	return p, found
}

// OnCall makes the interaction call (eg. "click #submit") load the page
// at url.
func (m *Mock) OnCall(call, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[call] = url
}

// FailOn makes the interaction or navigation call fail with err.
// Navigation calls are named "navigate <url>".
func (m *Mock) FailOn(call string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[call] = err
}

// Calls returns all interactions in the order they happened.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.calls...)
}

// Emit delivers a network event to the registered handlers.
func (m *Mock) Emit(ev apitrack.NetworkEvent) {
	m.mu.Lock()
	handlers := append([]func(apitrack.NetworkEvent){}, m.netHandlers...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// EmitActions delivers a batch of recorded interactions.
func (m *Mock) EmitActions(batch []actions.Event) {
	m.mu.Lock()
	handlers := append([]func([]actions.Event){}, m.actionHandlers...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(batch)
	}
}

// Call invokes a function exposed through Expose as the page would.
func (m *Mock) Call(name, payload string) error {
	m.mu.Lock()
	fn, found := m.bindings[name]
	m.mu.Unlock()
	if !found {
		return fmt.Errorf("no binding named %s", name)
	}
	fn(payload)
	return nil
}

// record registers call and returns the url it transitions to or the
// failure configured for it.
func (m *Mock) record(call string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	if err, found := m.failures[call]; found {
		return "", err
	}
	m.calls = append(m.calls, call)
	return m.transitions[call], nil
}

func (m *Mock) load(u string) error {
	m.mu.Lock()
	p, found := m.pages[utils.URLPath(u)]
	if !found {
		m.mu.Unlock()
		return fmt.Errorf("page %s not found", u)
	}
	m.current = p
	m.currentURL = u
	m.mu.Unlock()

	m.EmitActions([]actions.Event{{Kind: actions.KindNavigation, URL: u, Time: time.Now().UnixMilli()}})
	for _, ev := range p.Network {
		if ev.PageURL == "" {
			ev.PageURL = u
		}
		m.Emit(ev)
	}
	return nil
}

func (m *Mock) interact(call string) error {
	target, err := m.record(call)
	if err != nil {
		return err
	}
	if target != "" {
		return m.load(target)
	}
	return nil
}

func (m *Mock) Navigate(ctx context.Context, url string, opts NavigateOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := m.record("navigate " + url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return m.load(url)
}

func (m *Mock) document() (*goquery.Document, error) {
	m.mu.Lock()
	p := m.current
	m.mu.Unlock()
	if p == nil {
		return nil, errors.New("no page loaded")
	}
	return goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
}

func (m *Mock) WaitVisible(ctx context.Context, selector string) error {
	doc, err := m.document()
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%w: %s", ErrSelectorNotFound, selector)
	}
	return nil
}

func (m *Mock) Click(ctx context.Context, selector string) error {
	return m.interact("click " + selector)
}

func (m *Mock) DoubleClick(ctx context.Context, selector string) error {
	return m.interact("dblclick " + selector)
}

func (m *Mock) Fill(ctx context.Context, selector, value string) error {
	return m.interact(fmt.Sprintf("fill %s %s", selector, value))
}

func (m *Mock) SelectOption(ctx context.Context, selector, value string) error {
	return m.interact(fmt.Sprintf("select %s %s", selector, value))
}

func (m *Mock) PressKey(ctx context.Context, selector, key string) error {
	return m.interact(fmt.Sprintf("key %s %s", selector, key))
}

func (m *Mock) ScrollTo(ctx context.Context, selector string, x, y int) error {
	if selector != "" {
		return m.interact("scroll " + selector)
	}
	return m.interact(fmt.Sprintf("scroll %d,%d", x, y))
}

// Evaluate only understands the dom serializer script. Every other
// expression is a no-op.
func (m *Mock) Evaluate(ctx context.Context, expr string, res any) error {
	if expr != domtree.Script() {
		return nil
	}
	m.mu.Lock()
	p := m.current
	m.mu.Unlock()
	if p == nil {
		return errors.New("no page loaded")
	}
	tree := p.DOM
	if tree == nil {
		var err error
		if tree, err = domtree.FromHTML(p.HTML); err != nil {
			return err
		}
	}
	b, err := json.Marshal(domtree.ToRaw(tree))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, res)
}

func (m *Mock) CurrentURL(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentURL, nil
}

func (m *Mock) HTML(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return "", errors.New("no page loaded")
	}
	return m.current.HTML, nil
}

func (m *Mock) OnNetworkEvent(handler func(apitrack.NetworkEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.netHandlers = append(m.netHandlers, handler)
}

func (m *Mock) OnAction(handler func([]actions.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actionHandlers = append(m.actionHandlers, handler)
}

func (m *Mock) Expose(ctx context.Context, name string, fn func(payload string)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings[name] = fn
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
