// Package actions records user interactions during capture and replays
// the relevant subset of them against a live page.
package actions

import "fmt"

// Kind is the type of a recorded user interaction.
type Kind string

const (
	KindClick      Kind = "click"
	KindDblClick   Kind = "dblclick"
	KindInput      Kind = "input"
	KindChange     Kind = "change"
	KindKeydown    Kind = "keydown"
	KindSelect     Kind = "select"
	KindScroll     Kind = "scroll"
	KindNavigation Kind = "navigation"
	// informational only, never replayed
	KindFocus  Kind = "focus"
	KindBlur   Kind = "blur"
	KindSubmit Kind = "submit"
	KindHover  Kind = "hover"
)

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// An Event is one recorded interaction. Which fields are meaningful
// depends on Kind.
type Event struct {
	Kind     Kind      `json:"type"`
	Selector string    `json:"selector,omitempty"`
	Value    string    `json:"value,omitempty"`
	Text     string    `json:"text,omitempty"`
	Key      string    `json:"key,omitempty"`
	Position *Position `json:"position,omitempty"`
	URL      string    `json:"url,omitempty"`
	// Time in epoch milliseconds.
	Time int64 `json:"time"`
}

func (e Event) String() string {
	switch e.Kind {
	case KindInput, KindChange, KindSelect:
		return fmt.Sprintf("%s %s=%q", e.Kind, e.Selector, e.Value)
	case KindKeydown:
		return fmt.Sprintf("%s %s on %s", e.Kind, e.Key, e.Selector)
	case KindScroll:
		if e.Position != nil {
			return fmt.Sprintf("%s %s to %d,%d", e.Kind, e.Selector, e.Position.X, e.Position.Y)
		}
		return fmt.Sprintf("%s %s", e.Kind, e.Selector)
	case KindNavigation:
		return fmt.Sprintf("%s %s", e.Kind, e.URL)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.Selector)
}

// Replayable reports whether events of kind k are executed during replay.
func Replayable(k Kind) bool {
	switch k {
	case KindInput, KindChange, KindKeydown, KindClick, KindDblClick, KindSelect, KindScroll, KindNavigation:
		return true
	case KindFocus, KindBlur, KindSubmit, KindHover:
		return false
	}
	return false
}

// Known reports whether k is a kind the recorder produces.
func Known(k Kind) bool {
	switch k {
	case KindInput, KindChange, KindKeydown, KindClick, KindDblClick, KindSelect, KindScroll, KindNavigation,
		KindFocus, KindBlur, KindSubmit, KindHover:
		return true
	}
	return false
}

func isValueKind(k Kind) bool {
	return k == KindInput || k == KindChange
}

// Optimize reduces a recorded sequence to what is needed to reach the
// same final state: non replayable kinds are dropped, runs of input and
// change events on the same selector keep only the last one and so do
// runs of scroll events.
func Optimize(events []Event) []Event {
	result := []Event{}
	for _, ev := range events {
		if !Replayable(ev.Kind) {
			continue
		}
		if n := len(result); n > 0 {
			last := result[n-1]
			if isValueKind(ev.Kind) && isValueKind(last.Kind) && ev.Selector == last.Selector {
				result[n-1] = ev
				continue
			}
			if ev.Kind == KindScroll && last.Kind == KindScroll {
				result[n-1] = ev
				continue
			}
		}
		result = append(result, ev)
	}
	return result
}
