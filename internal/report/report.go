// Package report holds the result of a regression run and renders it.
package report

import (
	"time"

	"github.com/google/uuid"
	"github.com/jakopako/flowcheck/internal/actions"
	"github.com/jakopako/flowcheck/internal/compare"
)

// Status is the outcome of a single screen.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Overall is the outcome of a whole run.
type Overall string

const (
	OverallPassed  Overall = "PASSED"
	OverallWarning Overall = "WARNING"
	OverallFailed  Overall = "FAILED"
)

// Timings are in milliseconds.
type Timings struct {
	Navigate   int64 `json:"navigate,omitempty"`
	Replay     int64 `json:"replay,omitempty"`
	Checkpoint int64 `json:"checkpoint,omitempty"`
	Capture    int64 `json:"capture,omitempty"`
	Compare    int64 `json:"compare,omitempty"`
	Total      int64 `json:"total"`
}

type ScreenResult struct {
	ScreenID   string          `json:"screenId"`
	Name       string          `json:"name"`
	NestedPath string          `json:"nestedPath"`
	URLPath    string          `json:"urlPath"`
	LiveURL    string          `json:"liveUrl,omitempty"`
	Status     Status          `json:"status"`
	Comparison *compare.Result `json:"comparison,omitempty"`
	Replay     *actions.Result `json:"replay,omitempty"`
	// Decision is the operator's checkpoint decision, if one was asked for.
	Decision string   `json:"decision,omitempty"`
	Timings  Timings  `json:"timings"`
	Errors   []string `json:"errors,omitempty"`
}

// Score returns the similarity score or -1 if the screen was not compared.
func (r ScreenResult) Score() float64 {
	if r.Comparison == nil {
		return -1
	}
	return r.Comparison.Score
}

type Summary struct {
	Status  Overall `json:"status"`
	Total   int     `json:"total"`
	Passed  int     `json:"passed"`
	Failed  int     `json:"failed"`
	Warning int     `json:"warning"`
	Error   int     `json:"error"`
	Skipped int     `json:"skipped"`
	// AverageScore is the mean score of all compared screens.
	AverageScore float64 `json:"averageScore"`
	// Branches are screens with more than one child. Only the first child
	// of each was tested.
	Branches []string `json:"branches,omitempty"`
}

type TestReport struct {
	TestRunID  string         `json:"testRunId"`
	Section    string         `json:"section"`
	BaseURL    string         `json:"baseUrl"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Screens    []ScreenResult `json:"screens"`
	Summary    Summary        `json:"summary"`
}

func New(section, baseURL string) *TestReport {
	return &TestReport{
		TestRunID: uuid.NewString(),
		Section:   section,
		BaseURL:   baseURL,
		StartedAt: time.Now(),
		Screens:   []ScreenResult{},
		Summary:   Summary{Status: OverallPassed},
	}
}

// Add appends the result of a screen and updates the summary.
func (r *TestReport) Add(res ScreenResult) {
	r.Screens = append(r.Screens, res)
	r.summarize()
}

// Replace overwrites the result at index i, eg. after late exchanges
// changed its comparison, and updates the summary.
func (r *TestReport) Replace(i int, res ScreenResult) {
	r.Screens[i] = res
	r.summarize()
}

// Finish stamps the end of the run.
func (r *TestReport) Finish(branches []string) {
	r.FinishedAt = time.Now()
	r.Summary.Branches = branches
	r.summarize()
}

func (r *TestReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *TestReport) summarize() {
	s := Summary{Branches: r.Summary.Branches, Total: len(r.Screens)}
	var scoreSum float64
	compared := 0
	for i := range r.Screens {
		switch r.Screens[i].Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusWarning:
			s.Warning++
		case StatusError:
			s.Error++
		case StatusSkipped:
			s.Skipped++
		}
		if score := r.Screens[i].Score(); score >= 0 {
			scoreSum += score
			compared++
		}
	}
	if compared > 0 {
		s.AverageScore = scoreSum / float64(compared)
	}
	s.Status = OverallOf(s)
	r.Summary = s
}

// OverallOf derives the run status from the screen counts.
func OverallOf(s Summary) Overall {
	switch {
	case s.Failed > 0 || s.Error > 0:
		return OverallFailed
	case s.Warning > 0:
		return OverallWarning
	default:
		return OverallPassed
	}
}
