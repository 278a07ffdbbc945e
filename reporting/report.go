// Package reporting renders the merged coverage report and run verdict into
// the configured persisted formats under the coverage directory.
package reporting

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/covergate/covergate/coverage"
	"github.com/covergate/covergate/types"
)

// Report format names accepted in the suite's coverage.reports list.
const (
	FormatSummary     = "summary"
	FormatTextSummary = "text-summary"
	FormatLCOV        = "lcov"
	FormatHTML        = "html"
	FormatJSON        = "json"
)

// FileCoverage is one source file's metrics, precomputed for every sink.
type FileCoverage struct {
	Path    string
	Metrics map[string]coverage.Tally
}

// ReportData contains the structured data every report format renders from.
type ReportData struct {
	RunID     string
	Timestamp time.Time
	Duration  time.Duration
	Passed    bool

	Stats      types.RunStats
	Files      []FileCoverage
	Totals     map[string]coverage.Tally
	Violations []*types.ThresholdViolation
	Leaks      []types.Leak

	agg *coverage.Aggregate
}

// Build assembles ReportData from the run verdict and the frozen aggregate.
// Files are ordered by path so every sink is deterministic.
func Build(verdict *types.RunVerdict, agg *coverage.Aggregate) *ReportData {
	data := &ReportData{
		RunID:      verdict.RunID,
		Timestamp:  verdict.Start,
		Duration:   verdict.WallClockTime,
		Passed:     verdict.Passed,
		Stats:      verdict.Stats,
		Violations: verdict.Violations,
		Leaks:      verdict.Leaks,
		Totals:     make(map[string]coverage.Tally),
		agg:        agg,
	}

	paths := make([]string, 0, len(agg.Files))
	for p := range agg.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		tallies := agg.Files[p].Tallies()
		data.Files = append(data.Files, FileCoverage{Path: p, Metrics: tallies})
		for name, t := range tallies {
			total := data.Totals[name]
			total.Covered += t.Covered
			total.Total += t.Total
			data.Totals[name] = total
		}
	}
	return data
}

// Sink renders one report format into the coverage directory.
type Sink interface {
	Name() string
	Write(dir string, data *ReportData) error
}

// WriteAll renders every requested format. Unknown format names are an
// error; a sink failure stops the remaining sinks.
func WriteAll(dir string, formats []string, data *ReportData) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating coverage dir: %w", err)
	}
	for _, f := range formats {
		sink, err := sinkFor(f)
		if err != nil {
			return err
		}
		if err := sink.Write(dir, data); err != nil {
			return fmt.Errorf("writing %s report: %w", sink.Name(), err)
		}
	}
	return nil
}

func sinkFor(format string) (Sink, error) {
	switch format {
	case FormatSummary:
		return &SummarySink{}, nil
	case FormatTextSummary:
		return &TextSummarySink{}, nil
	case FormatLCOV:
		return &LCOVSink{}, nil
	case FormatHTML:
		return &HTMLSink{}, nil
	case FormatJSON:
		return &JSONSink{}, nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}
