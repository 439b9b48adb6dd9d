package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// SummaryLines returns the run summary as human readable lines.
func (r *TestReport) SummaryLines() []string {
	s := r.Summary
	lines := []string{
		fmt.Sprintf("%s: section %s against %s", s.Status, r.Section, r.BaseURL),
		fmt.Sprintf("%d screens: %d passed, %d failed, %d warning, %d error, %d skipped", s.Total, s.Passed, s.Failed, s.Warning, s.Error, s.Skipped),
		fmt.Sprintf("average similarity %.1f%%", s.AverageScore),
	}
	if d := r.Duration(); d > 0 {
		lines = append(lines, fmt.Sprintf("took %s", d.Round(1e6)))
	}
	if len(s.Branches) > 0 {
		lines = append(lines, fmt.Sprintf("only the first path was tested from the branching screens %s", strings.Join(s.Branches, ", ")))
	}
	return lines
}

// ScreenLines returns one line per change or error of a screen.
func (res ScreenResult) ScreenLines() []string {
	lines := []string{}
	for _, e := range res.Errors {
		lines = append(lines, "error: "+e)
	}
	if res.Comparison == nil {
		return lines
	}
	for _, c := range res.Comparison.DOM.Changes {
		lines = append(lines, c.String())
	}
	for _, ep := range res.Comparison.API.Added {
		lines = append(lines, "api added: "+ep.String())
	}
	for _, ep := range res.Comparison.API.Removed {
		lines = append(lines, "api removed: "+ep.String())
	}
	for _, m := range res.Comparison.API.Modified {
		for _, c := range m.Changes {
			lines = append(lines, fmt.Sprintf("api %s: %s", m.Endpoint, c))
		}
	}
	return lines
}

func formatScore(score float64) string {
	if score < 0 {
		return "-"
	}
	return strconv.FormatFloat(score, 'f', 1, 64)
}

// WriteTable renders one row per screen.
func (r *TestReport) WriteTable(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Screen", "Path", "Status", "Score", "Changes"})

	red := []tablewriter.Colors{{tablewriter.Normal, tablewriter.FgRedColor}, {tablewriter.Normal, tablewriter.FgRedColor}, {tablewriter.Normal, tablewriter.FgRedColor}, {tablewriter.Normal, tablewriter.FgRedColor}, {tablewriter.Normal, tablewriter.FgRedColor}}
	yellow := []tablewriter.Colors{{tablewriter.Normal, tablewriter.FgYellowColor}, {tablewriter.Normal, tablewriter.FgYellowColor}, {tablewriter.Normal, tablewriter.FgYellowColor}, {tablewriter.Normal, tablewriter.FgYellowColor}, {tablewriter.Normal, tablewriter.FgYellowColor}}
	for i := range r.Screens {
		res := &r.Screens[i]
		changes := 0
		if res.Comparison != nil {
			changes = len(res.Comparison.DOM.Changes) + len(res.Comparison.API.Added) + len(res.Comparison.API.Removed) + len(res.Comparison.API.Modified)
		}
		row := []string{res.Name, res.URLPath, string(res.Status), formatScore(res.Score()), strconv.Itoa(changes)}
		switch res.Status {
		case StatusFailed, StatusError:
			table.Rich(row, red)
		case StatusWarning, StatusSkipped:
			table.Rich(row, yellow)
		default:
			table.Append(row)
		}
	}
	table.SetFooter([]string{"total", strconv.Itoa(r.Summary.Total), string(r.Summary.Status), formatScore(r.Summary.AverageScore), ""})
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT})
	table.SetBorder(false)
	table.Render()
}
