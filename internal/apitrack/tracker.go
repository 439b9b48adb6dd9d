package apitrack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jakopako/flowcheck/internal/utils"
)

// Tracker folds raw network events into exchanges. Requests are indexed by
// the transport request id while in flight. Once finished or failed they
// are moved to the pending list where they wait for a screen freeze.
//
// Handle may be called from the driver's listener goroutine while the
// capture code calls Freeze, all methods are safe for concurrent use.
type Tracker struct {
	mu           sync.Mutex
	filter       *Filter
	pageURL      string
	inflight     map[string]*Exchange
	pending      []*Exchange
	lastActivity time.Time
	dropped      int
	logger       *slog.Logger
	now          func() time.Time
}

func NewTracker(filter *Filter, logger *slog.Logger) *Tracker {
	if filter == nil {
		filter = NewFilter(DefaultDenylist)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		filter:   filter,
		inflight: map[string]*Exchange{},
		pending:  []*Exchange{},
		logger:   logger.With(slog.String("component", "apitrack")),
		now:      time.Now,
	}
}

// SetPageURL sets the page used as origin for requests whose event does
// not name one.
func (t *Tracker) SetPageURL(u string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pageURL = u
}

// Handle applies one network event. Events for unknown or filtered
// requests are ignored.
func (t *Tracker) Handle(ev NetworkEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts := ev.Time
	if ts.IsZero() {
		ts = t.now()
	}
	t.lastActivity = ts

	switch ev.Kind {
	case EventRequestSent:
		t.handleSent(ev, ts)
	case EventResponseReceived:
		ex, found := t.inflight[ev.RequestID]
		if !found {
			return
		}
		if ex.state != StateSent {
			t.logger.Debug(fmt.Sprintf("ignoring response for request %s in state %s", ev.RequestID, ex.state))
			return
		}
		ex.Status = ev.Status
		ex.ResHeaders = ev.Headers
		ex.state = StateResponded
	case EventLoadingFinished:
		ex, found := t.inflight[ev.RequestID]
		if !found {
			return
		}
		// cached responses may finish without a response notification
		ex.ResponseBody = ev.Body
		ex.Duration = ts.Sub(ex.StartTime()).Milliseconds()
		ex.state = StateFinished
		t.complete(ev.RequestID, ex)
	case EventLoadingFailed:
		ex, found := t.inflight[ev.RequestID]
		if !found {
			return
		}
		ex.Failed = true
		ex.ErrorText = ev.ErrorText
		ex.Duration = ts.Sub(ex.StartTime()).Milliseconds()
		ex.state = StateFailed
		t.complete(ev.RequestID, ex)
	default:
		t.logger.Debug(fmt.Sprintf("ignoring network event of kind %q", ev.Kind))
	}
}

func (t *Tracker) handleSent(ev NetworkEvent, ts time.Time) {
	if skip, reason := t.filter.Skip(ev.URL, ev.ResourceType); skip {
		t.dropped++
		t.logger.Debug(fmt.Sprintf("not tracking %s: %s", utils.ShortenString(ev.URL, 80), reason))
		return
	}
	if ex, found := t.inflight[ev.RequestID]; found {
		// redirects reuse the request id, the exchange follows the new location
		ex.URL = ev.URL
		ex.Method = strings.ToUpper(ev.Method)
		return
	}
	page := ev.PageURL
	if page == "" {
		page = t.pageURL
	}
	t.inflight[ev.RequestID] = &Exchange{
		ID:           uuid.NewString(),
		Method:       strings.ToUpper(ev.Method),
		URL:          ev.URL,
		OriginPath:   utils.URLPath(page),
		ResourceType: strings.ToLower(ev.ResourceType),
		ReqHeaders:   ev.Headers,
		RequestBody:  ev.Body,
		Time:         ts.UnixMilli(),
		state:        StateSent,
	}
}

func (t *Tracker) complete(requestID string, ex *Exchange) {
	delete(t.inflight, requestID)
	t.pending = append(t.pending, ex)
}

// InFlight returns the number of requests that have not completed yet.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// Dropped returns the number of requests that were filtered out.
func (t *Tracker) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Pending returns a snapshot of the completed exchanges that are not yet
// assigned to a screen.
func (t *Tracker) Pending() []*Exchange {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Exchange{}, t.pending...)
}

// Freeze partitions the pending exchanges by origin. Exchanges issued from
// pagePath are returned as relevant and removed from the pending list. All
// others are returned as remaining and stay pending until Release is
// called for them.
func (t *Tracker) Freeze(pagePath string) (relevant, remaining []*Exchange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	relevant = []*Exchange{}
	remaining = []*Exchange{}
	for _, ex := range t.pending {
		if ex.OriginPath == pagePath {
			relevant = append(relevant, ex)
		} else {
			remaining = append(remaining, ex)
		}
	}
	t.pending = append([]*Exchange{}, remaining...)
	return relevant, remaining
}

// Release removes the given exchanges from the pending list.
func (t *Tracker) Release(exchanges []*Exchange) {
	if len(exchanges) == 0 {
		return
	}
	ids := make(map[string]bool, len(exchanges))
	for _, ex := range exchanges {
		ids[ex.ID] = true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := make([]*Exchange, 0, len(t.pending))
	for _, ex := range t.pending {
		if !ids[ex.ID] {
			kept = append(kept, ex)
		}
	}
	t.pending = kept
}

// Requeue puts exchanges returned by Freeze back in front of the pending
// list, eg. when the screen they were frozen for could not be stored.
func (t *Tracker) Requeue(exchanges []*Exchange) {
	if len(exchanges) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(append([]*Exchange{}, exchanges...), t.pending...)
}

// Reset drops all in flight and pending state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight = map[string]*Exchange{}
	t.pending = []*Exchange{}
	t.dropped = 0
}

// Settle blocks until no request has been in flight for idle or until
// timeout passed. It returns false if the network did not settle in time,
// which callers treat as a soft failure.
func (t *Tracker) Settle(ctx context.Context, idle, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		t.mu.Lock()
		quiet := len(t.inflight) == 0 && t.now().Sub(t.lastActivity) >= idle
		t.mu.Unlock()
		if quiet {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// GroupByOrigin groups exchanges by their origin path keeping the order
// within each group.
func GroupByOrigin(exchanges []*Exchange) map[string][]*Exchange {
	groups := map[string][]*Exchange{}
	for _, ex := range exchanges {
		groups[ex.OriginPath] = append(groups[ex.OriginPath], ex)
	}
	return groups
}
