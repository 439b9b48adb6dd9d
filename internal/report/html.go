package report

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/goodsign/monday"
)

const DefaultLocale = monday.LocaleEnUS

const dateLayout = "Monday, 2 January 2006 15:04:05"

const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>flowcheck {{.Report.Section}} {{.Report.Summary.Status}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #111827; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 4px 8px; border-bottom: 1px solid #e5e7eb; vertical-align: top; }
.passed, .PASSED { color: #15803d; }
.warning, .WARNING, .skipped { color: #b45309; }
.failed, .FAILED, .error { color: #b91c1c; }
ul { margin: 0; padding-left: 1.2em; }
</style>
</head>
<body>
<h1>Section {{.Report.Section}} <span class="{{.Report.Summary.Status}}">{{.Report.Summary.Status}}</span></h1>
<p>Run {{.Report.TestRunID}} against {{.Report.BaseURL}}<br>
started {{date .Report.StartedAt}}{{if not .Report.FinishedAt.IsZero}}, finished {{date .Report.FinishedAt}}{{end}}</p>
<ul>{{range .Report.SummaryLines}}<li>{{.}}</li>{{end}}</ul>
<h2>Screens</h2>
<table>
<tr><th>Screen</th><th>Path</th><th>Status</th><th>Score</th><th>Time</th><th>Details</th></tr>
{{range .Report.Screens}}<tr>
<td>{{.Name}}<br><small>{{.NestedPath}}</small></td>
<td>{{.URLPath}}</td>
<td class="{{.Status}}">{{.Status}}{{if .Decision}}<br><small>operator: {{.Decision}}</small>{{end}}</td>
<td>{{score .Score}}</td>
<td>{{.Timings.Total}} ms</td>
<td><ul>{{range .ScreenLines}}<li>{{.}}</li>{{end}}</ul></td>
</tr>
{{end}}</table>
</body>
</html>
`

// WriteHTML renders the report as a standalone html page with dates
// formatted for locale.
func (r *TestReport) WriteHTML(w io.Writer, locale monday.Locale) error {
	if locale == "" {
		locale = DefaultLocale
	}
	funcs := template.FuncMap{
		"date": func(t time.Time) string {
			return monday.Format(t, dateLayout, locale)
		},
		"score": formatScore,
	}
	tmpl, err := template.New("report").Funcs(funcs).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse the report template: %w", err)
	}
	return tmpl.Execute(w, struct{ Report *TestReport }{r})
}
