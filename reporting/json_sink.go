package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/covergate/covergate/coverage"
)

// JSONSink writes the structured-data report to coverage-final.json.
type JSONSink struct{}

func (s *JSONSink) Name() string { return FormatJSON }

type jsonMetric struct {
	Covered int     `json:"covered"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

type jsonFile struct {
	Path       string                `json:"path"`
	Metrics    map[string]jsonMetric `json:"metrics"`
	Statements map[string]uint64     `json:"statements"`
	Branches   map[string]uint64     `json:"branches"`
	Functions  map[string]uint64     `json:"functions"`
	Lines      map[string]uint64     `json:"lines"`
}

type jsonViolation struct {
	Pattern string  `json:"pattern"`
	Metric  string  `json:"metric"`
	Actual  float64 `json:"actual"`
	Minimum float64 `json:"minimum"`
}

type jsonLeak struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
	File string `json:"file"`
	Line int    `json:"line"`
}

type jsonReport struct {
	RunID      string                `json:"runId"`
	Timestamp  string                `json:"timestamp"`
	DurationMS int64                 `json:"durationMs"`
	Passed     bool                  `json:"passed"`
	Totals     map[string]jsonMetric `json:"totals"`
	Files      []jsonFile            `json:"files"`
	Violations []jsonViolation       `json:"violations"`
	Leaks      []jsonLeak            `json:"leaks"`
}

func (s *JSONSink) Write(dir string, data *ReportData) error {
	report := jsonReport{
		RunID:      data.RunID,
		Timestamp:  data.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
		DurationMS: data.Duration.Milliseconds(),
		Passed:     data.Passed,
		Totals:     toJSONMetrics(data.Totals),
		Violations: []jsonViolation{},
		Leaks:      []jsonLeak{},
	}

	for _, fc := range data.Files {
		cs := data.agg.Files[fc.Path]
		if cs == nil {
			continue
		}
		report.Files = append(report.Files, jsonFile{
			Path:       fc.Path,
			Metrics:    toJSONMetrics(fc.Metrics),
			Statements: cs.Statements,
			Branches:   cs.Branches,
			Functions:  cs.Functions,
			Lines:      cs.Lines,
		})
	}
	for _, v := range data.Violations {
		report.Violations = append(report.Violations, jsonViolation{
			Pattern: v.Pattern,
			Metric:  v.Metric,
			Actual:  v.Actual,
			Minimum: v.Minimum,
		})
	}
	for _, l := range data.Leaks {
		report.Leaks = append(report.Leaks, jsonLeak(l))
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "coverage-final.json"), out, 0o644)
}

func toJSONMetrics(m map[string]coverage.Tally) map[string]jsonMetric {
	out := make(map[string]jsonMetric, len(m))
	for name, t := range m {
		out[name] = jsonMetric{Covered: t.Covered, Total: t.Total, Percent: t.Percent()}
	}
	return out
}
