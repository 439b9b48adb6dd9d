package apitrack

import "time"

// EventKind is the type of a raw network event emitted by a browser driver.
type EventKind string

const (
	EventRequestSent      EventKind = "requestSent"
	EventResponseReceived EventKind = "responseReceived"
	EventLoadingFinished  EventKind = "loadingFinished"
	EventLoadingFailed    EventKind = "loadingFailed"
)

// A NetworkEvent is the transport independent form of the browser's
// network notifications. Which fields are set depends on Kind:
// requestSent carries Method, URL, Headers, Body (request body),
// ResourceType and PageURL; responseReceived carries Status and Headers
// (response headers); loadingFinished carries Body (response body);
// loadingFailed carries ErrorText.
type NetworkEvent struct {
	Kind         EventKind
	RequestID    string
	Method       string
	URL          string
	Headers      map[string]string
	Body         string
	Status       int
	ResourceType string
	ErrorText    string
	PageURL      string
	Time         time.Time
}
