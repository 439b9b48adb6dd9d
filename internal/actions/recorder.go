package actions

import (
	"context"
	"sync"
	"time"
)

// DefaultFlushInterval is the default time box for recorder batches.
const DefaultFlushInterval = 500 * time.Millisecond

// A Recorder buffers incoming events and moves them to the recorded list
// in batches, either on every tick of Run or on an explicit Flush.
// Consecutive input events on the same selector collapse into the last
// one, across batch boundaries too.
type Recorder struct {
	mu       sync.Mutex
	buf      []Event
	recorded []Event
	interval time.Duration
	now      func() time.Time
}

func NewRecorder(interval time.Duration) *Recorder {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Recorder{
		interval: interval,
		now:      time.Now,
	}
}

// Record adds ev to the current batch. Unknown kinds are ignored.
func (r *Recorder) Record(ev Event) {
	if !Known(ev.Kind) {
		return
	}
	if ev.Time == 0 {
		ev.Time = r.now().UnixMilli()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = appendCoalesced(r.buf, ev)
}

// RecordBatch adds several events, eg. a batch delivered by the page.
func (r *Recorder) RecordBatch(events []Event) {
	for _, ev := range events {
		r.Record(ev)
	}
}

func appendCoalesced(list []Event, ev Event) []Event {
	if n := len(list); n > 0 && ev.Kind == KindInput && list[n-1].Kind == KindInput && list[n-1].Selector == ev.Selector {
		list[n-1] = ev
		return list
	}
	return append(list, ev)
}

// Flush moves the current batch to the recorded list.
func (r *Recorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.buf {
		r.recorded = appendCoalesced(r.recorded, ev)
	}
	r.buf = nil
}

// Run flushes on every tick until ctx is done.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Flush()
			return
		case <-ticker.C:
			r.Flush()
		}
	}
}

// Drain flushes and returns everything recorded so far. The recorder
// starts over empty.
func (r *Recorder) Drain() []Event {
	r.Flush()
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.recorded
	r.recorded = nil
	if events == nil {
		events = []Event{}
	}
	return events
}

// Requeue puts drained events back in front of everything recorded since.
func (r *Recorder) Requeue(events []Event) {
	if len(events) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	restored := append([]Event{}, events...)
	for _, ev := range r.recorded {
		restored = appendCoalesced(restored, ev)
	}
	r.recorded = restored
}

// Len returns the number of recorded and buffered events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recorded) + len(r.buf)
}

// Reset drops all recorded and buffered events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = nil
	r.recorded = nil
}
