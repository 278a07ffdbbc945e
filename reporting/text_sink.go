package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/covergate/covergate/coverage"
)

// SummarySink writes the plain-text per-file coverage table to summary.txt.
type SummarySink struct{}

func (s *SummarySink) Name() string { return FormatSummary }

func (s *SummarySink) Write(dir string, data *ReportData) error {
	f, err := os.Create(filepath.Join(dir, "summary.txt"))
	if err != nil {
		return err
	}
	defer f.Close()

	t := table.NewWriter()
	t.SetOutputMirror(f)
	t.SetTitle(fmt.Sprintf("Coverage Summary (%s)", data.RunID))

	t.AppendHeader(table.Row{"File", "Stmts", "Branch", "Funcs", "Lines"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "File", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Stmts", Align: text.AlignRight},
		{Name: "Branch", Align: text.AlignRight},
		{Name: "Funcs", Align: text.AlignRight},
		{Name: "Lines", Align: text.AlignRight},
	})

	for _, fc := range data.Files {
		t.AppendRow(table.Row{
			fc.Path,
			pct(fc.Metrics[coverage.MetricStatements]),
			pct(fc.Metrics[coverage.MetricBranches]),
			pct(fc.Metrics[coverage.MetricFunctions]),
			pct(fc.Metrics[coverage.MetricLines]),
		})
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		pct(data.Totals[coverage.MetricStatements]),
		pct(data.Totals[coverage.MetricBranches]),
		pct(data.Totals[coverage.MetricFunctions]),
		pct(data.Totals[coverage.MetricLines]),
	})

	t.Render()
	return nil
}

// TextSummarySink writes the compact totals block to text-summary.txt.
type TextSummarySink struct{}

func (s *TextSummarySink) Name() string { return FormatTextSummary }

func (s *TextSummarySink) Write(dir string, data *ReportData) error {
	f, err := os.Create(filepath.Join(dir, "text-summary.txt"))
	if err != nil {
		return err
	}
	defer f.Close()

	for _, name := range []string{
		coverage.MetricStatements,
		coverage.MetricBranches,
		coverage.MetricFunctions,
		coverage.MetricLines,
	} {
		t := data.Totals[name]
		if _, err := fmt.Fprintf(f, "%-12s: %s ( %d/%d )\n", name, pct(t), t.Covered, t.Total); err != nil {
			return err
		}
	}

	for _, v := range data.Violations {
		if _, err := fmt.Fprintf(f, "VIOLATION   : %s\n", v.Error()); err != nil {
			return err
		}
	}
	return nil
}

func pct(t coverage.Tally) string {
	return fmt.Sprintf("%.2f%%", t.Percent())
}
