package reporting

import (
	"html/template"
	"os"
	"path/filepath"

	"github.com/covergate/covergate/coverage"
)

// HTMLSink writes the hyperlinked coverage report to index.html.
type HTMLSink struct{}

func (s *HTMLSink) Name() string { return FormatHTML }

const htmlReport = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Coverage Report {{.RunID}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 0.4em 0.8em; text-align: right; }
th { background: #eee; }
td.path { text-align: left; font-family: monospace; }
.pass { background: #e6ffe6; }
.fail { background: #ffe6e6; }
.low { color: #a00; font-weight: bold; }
</style>
</head>
<body>
<h1 class="{{if .Passed}}pass{{else}}fail{{end}}">Coverage Report</h1>
<p>Run {{.RunID}} &middot; {{.Timestamp.Format "2006-01-02 15:04:05 MST"}} &middot; {{.Duration}}</p>
{{if .Violations}}
<h2>Threshold Violations</h2>
<ul>
{{range .Violations}}<li class="low">{{.Error}}</li>
{{end}}</ul>
{{end}}
{{if .Leaks}}
<h2>Leaked Handles</h2>
<ul>
{{range .Leaks}}<li class="low">{{.Kind}} {{.Name}} opened at {{.File}}:{{.Line}}</li>
{{end}}</ul>
{{end}}
<h2>Files</h2>
<table>
<tr><th>File</th><th>Statements</th><th>Branches</th><th>Functions</th><th>Lines</th></tr>
{{range .Rows}}<tr>
<td class="path"><a href="#{{.Path}}">{{.Path}}</a></td>
<td>{{.Statements}}</td><td>{{.Branches}}</td><td>{{.Functions}}</td><td>{{.Lines}}</td>
</tr>
{{end}}<tr>
<th>TOTAL</th><th>{{.TotalRow.Statements}}</th><th>{{.TotalRow.Branches}}</th><th>{{.TotalRow.Functions}}</th><th>{{.TotalRow.Lines}}</th>
</tr>
</table>
</body>
</html>
`

type htmlRow struct {
	Path       string
	Statements string
	Branches   string
	Functions  string
	Lines      string
}

type htmlView struct {
	*ReportData
	Rows     []htmlRow
	TotalRow htmlRow
}

func (s *HTMLSink) Write(dir string, data *ReportData) error {
	tmpl, err := template.New("report").Parse(htmlReport)
	if err != nil {
		return err
	}

	view := htmlView{ReportData: data, TotalRow: rowOf("TOTAL", data.Totals)}
	for _, fc := range data.Files {
		view.Rows = append(view.Rows, rowOf(fc.Path, fc.Metrics))
	}

	f, err := os.Create(filepath.Join(dir, "index.html"))
	if err != nil {
		return err
	}
	defer f.Close()
	return tmpl.Execute(f, view)
}

func rowOf(path string, m map[string]coverage.Tally) htmlRow {
	return htmlRow{
		Path:       path,
		Statements: pct(m[coverage.MetricStatements]),
		Branches:   pct(m[coverage.MetricBranches]),
		Functions:  pct(m[coverage.MetricFunctions]),
		Lines:      pct(m[coverage.MetricLines]),
	}
}
