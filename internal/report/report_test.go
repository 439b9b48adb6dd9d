package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/goodsign/monday"
	"github.com/google/go-cmp/cmp"
	"github.com/jakopako/flowcheck/internal/compare"
)

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Overall
	}{
		{name: "empty", want: OverallPassed},
		{name: "all passed", statuses: []Status{StatusPassed, StatusPassed}, want: OverallPassed},
		{name: "skipped only", statuses: []Status{StatusSkipped}, want: OverallPassed},
		{name: "warning", statuses: []Status{StatusPassed, StatusWarning, StatusSkipped}, want: OverallWarning},
		{name: "failed wins", statuses: []Status{StatusWarning, StatusFailed}, want: OverallFailed},
		{name: "error fails", statuses: []Status{StatusPassed, StatusError}, want: OverallFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := New("demo", "https://app.test")
			for i, s := range tc.statuses {
				r.Add(ScreenResult{ScreenID: string(rune('a' + i)), Status: s})
			}
			if r.Summary.Status != tc.want {
				t.Errorf("expected %s, got %s", tc.want, r.Summary.Status)
			}
			if r.Summary.Total != len(tc.statuses) {
				t.Errorf("expected %d screens, got %d", len(tc.statuses), r.Summary.Total)
			}
		})
	}
}

func TestReplace(t *testing.T) {
	r := New("demo", "https://app.test")
	r.Add(ScreenResult{ScreenID: "login", Status: StatusWarning, Comparison: &compare.Result{Score: 75}})
	r.Add(ScreenResult{ScreenID: "home", Status: StatusPassed, Comparison: &compare.Result{Score: 100}})
	if r.Summary.Status != OverallWarning {
		t.Fatalf("expected %s, got %s", OverallWarning, r.Summary.Status)
	}

	r.Replace(0, ScreenResult{ScreenID: "login", Status: StatusPassed, Comparison: &compare.Result{Score: 100}})
	want := Summary{Status: OverallPassed, Total: 2, Passed: 2, AverageScore: 100}
	if diff := cmp.Diff(want, r.Summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func sampleReport() *TestReport {
	r := New("demo", "https://app.test")
	r.StartedAt = time.Date(2024, time.October, 3, 9, 30, 0, 0, time.UTC)
	r.Add(ScreenResult{
		ScreenID: "login",
		Name:     "Login",
		URLPath:  "/login",
		Status:   StatusPassed,
		Comparison: &compare.Result{
			DOM:   compare.DOMResult{SimilarityScore: 100},
			API:   compare.APIResult{SimilarityScore: 100},
			Score: 100,
		},
	})
	r.Add(ScreenResult{
		ScreenID: "home",
		Name:     "Home <main>",
		URLPath:  "/home",
		Status:   StatusFailed,
		Comparison: &compare.Result{
			DOM: compare.DOMResult{
				HasChanges:      true,
				SimilarityScore: 80,
				Changes: []compare.Change{
					{Kind: compare.Modified, Category: compare.CategoryStyle, Element: "button#submit", Property: "color", Old: "rgb(59, 130, 246)", New: "rgb(239, 68, 68)"},
				},
			},
			API: compare.APIResult{
				HasChanges:      true,
				SimilarityScore: 60,
				Removed:         []compare.Endpoint{{Method: "GET", Path: "/api/feed"}},
			},
			Score: 70,
		},
	})
	r.Add(ScreenResult{ScreenID: "settings", Name: "Settings", URLPath: "/settings", Status: StatusSkipped, Decision: "skip"})
	r.Finish([]string{"home"})
	r.FinishedAt = r.StartedAt.Add(90 * time.Second)
	return r
}

func TestSummary(t *testing.T) {
	r := sampleReport()
	want := Summary{
		Status:       OverallFailed,
		Total:        3,
		Passed:       1,
		Failed:       1,
		Skipped:      1,
		AverageScore: 85,
		Branches:     []string{"home"},
	}
	if diff := cmp.Diff(want, r.Summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	lines := r.SummaryLines()
	wantLines := []string{
		"FAILED: section demo against https://app.test",
		"3 screens: 1 passed, 1 failed, 0 warning, 0 error, 1 skipped",
		"average similarity 85.0%",
		"took 1m30s",
		"only the first path was tested from the branching screens home",
	}
	if diff := cmp.Diff(wantLines, lines); diff != "" {
		t.Errorf("summary lines mismatch (-want +got):\n%s", diff)
	}
}

func TestScreenLines(t *testing.T) {
	r := sampleReport()
	want := []string{
		`modified button#submit color: "rgb(59, 130, 246)" -> "rgb(239, 68, 68)"`,
		"api removed: GET /api/feed",
	}
	if diff := cmp.Diff(want, r.Screens[1].ScreenLines()); diff != "" {
		t.Errorf("screen lines mismatch (-want +got):\n%s", diff)
	}
	if got := r.Screens[2].ScreenLines(); len(got) != 0 {
		t.Errorf("expected no lines for a skipped screen, got %v", got)
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	sampleReport().WriteTable(&buf)
	out := buf.String()
	for _, s := range []string{"Login", "/home", "skipped", "100.0", "70.0", "85.0"} {
		if !strings.Contains(out, s) {
			t.Errorf("expected table to contain %q:\n%s", s, out)
		}
	}
}

func TestWriteHTML(t *testing.T) {
	tests := []struct {
		locale monday.Locale
		want   string
	}{
		{locale: "", want: "Thursday, 3 October 2024 09:30:00"},
		{locale: monday.LocaleDeDE, want: "Donnerstag, 3 Oktober 2024 09:30:00"},
	}
	for _, tc := range tests {
		var buf bytes.Buffer
		if err := sampleReport().WriteHTML(&buf, tc.locale); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, tc.want) {
			t.Errorf("expected html to contain %q", tc.want)
		}
		if !strings.Contains(out, "Home &lt;main&gt;") {
			t.Errorf("expected screen names to be escaped")
		}
		if !strings.Contains(out, `<td class="failed">failed</td>`) {
			t.Errorf("expected a failed status cell")
		}
		if !strings.Contains(out, "operator: skip") {
			t.Errorf("expected the checkpoint decision to be shown")
		}
	}
}
