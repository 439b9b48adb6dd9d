// Package apitrack follows network traffic of a page, keeps every request
// in a small state machine until it completed and hands the completed
// exchanges to whoever captures a screen.
package apitrack

import (
	"time"

	"github.com/jakopako/flowcheck/internal/utils"
)

// State is the lifecycle state of a tracked request.
type State int

const (
	StateSent State = iota
	StateResponded
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSent:
		return "sent"
	case StateResponded:
		return "responded"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Final reports whether no further transition is possible.
func (s State) Final() bool {
	return s == StateFinished || s == StateFailed
}

// An Exchange is one request/response pair as it is stored with a screen.
type Exchange struct {
	ID           string            `json:"id"`
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	OriginPath   string            `json:"originPath"`
	ResourceType string            `json:"resourceType,omitempty"`
	ReqHeaders   map[string]string `json:"reqHeaders,omitempty"`
	RequestBody  string            `json:"requestBody,omitempty"`
	Status       int               `json:"status"`
	ResHeaders   map[string]string `json:"resHeaders,omitempty"`
	ResponseBody string            `json:"responseBody,omitempty"`
	// Duration in milliseconds between request start and completion.
	Duration int64 `json:"duration"`
	// Time of the request start in epoch milliseconds.
	Time         int64  `json:"time"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
	DedupHash    string `json:"dedupHash,omitempty"`
	DedupOf      string `json:"dedupOf,omitempty"`
	Failed       bool   `json:"failed,omitempty"`
	ErrorText    string `json:"errorText,omitempty"`

	state State
}

func (e *Exchange) State() State {
	return e.state
}

// Path is the url path of the exchange without host and query.
func (e *Exchange) Path() string {
	return utils.URLPath(e.URL)
}

func (e *Exchange) StartTime() time.Time {
	return time.UnixMilli(e.Time)
}
