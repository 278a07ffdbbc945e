package coverage

import (
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/covergate/covergate/types"
)

// Metric names, in the order reports present them.
const (
	MetricStatements = "statements"
	MetricBranches   = "branches"
	MetricFunctions  = "functions"
	MetricLines      = "lines"
)

// MetricNames lists every metric in presentation order.
var MetricNames = []string{MetricStatements, MetricBranches, MetricFunctions, MetricLines}

// Thresholds holds the required minimum percentage per metric. A zero
// minimum never fails.
type Thresholds struct {
	Statements float64 `yaml:"statements"`
	Branches   float64 `yaml:"branches"`
	Functions  float64 `yaml:"functions"`
	Lines      float64 `yaml:"lines"`
}

// PatternRule scopes minimums to files matching a glob pattern. The implicit
// global rule has pattern "**" and always applies; explicit rules apply in
// addition to it, never instead of it.
type PatternRule struct {
	Pattern string
	Min     Thresholds
}

// GlobalPattern is the pattern of the implicit rule covering every file.
const GlobalPattern = "**"

// Tally is covered/total for one metric across one or more files.
type Tally struct {
	Covered int
	Total   int
}

// Percent returns the coverage percentage; an empty tally is vacuously 100.
func (t Tally) Percent() float64 {
	if t.Total == 0 {
		return 100
	}
	return float64(t.Covered) / float64(t.Total) * 100
}

// RuleResult is the evaluation of one rule over its matching files.
type RuleResult struct {
	Rule       PatternRule
	Files      []string
	Metrics    map[string]Tally
	Violations []*types.ThresholdViolation
}

// Passed reports whether every metric met its minimum.
func (r *RuleResult) Passed() bool { return len(r.Violations) == 0 }

// Evaluation is the full coverage verdict for a run: one result per rule,
// global rule first. Pure function of the frozen aggregate and the rules.
type Evaluation struct {
	Rules  []*RuleResult
	Global *RuleResult
}

// Passed is the logical AND of all rule verdicts.
func (e *Evaluation) Passed() bool {
	for _, r := range e.Rules {
		if !r.Passed() {
			return false
		}
	}
	return true
}

// Violations flattens every rule's violations, global rule first.
func (e *Evaluation) Violations() []*types.ThresholdViolation {
	var out []*types.ThresholdViolation
	for _, r := range e.Rules {
		out = append(out, r.Violations...)
	}
	return out
}

// Evaluate applies the global rule plus every explicit override to the
// frozen aggregate. When a file matches more than one explicit pattern, all
// matching rules are evaluated; none silently shadows another.
func Evaluate(agg *Aggregate, global Thresholds, overrides []PatternRule) *Evaluation {
	rules := append([]PatternRule{{Pattern: GlobalPattern, Min: global}}, overrides...)

	files := make([]string, 0, len(agg.Files))
	for f := range agg.Files {
		files = append(files, f)
	}
	sort.Strings(files)

	ev := &Evaluation{}
	for _, rule := range rules {
		rr := &RuleResult{Rule: rule, Metrics: make(map[string]Tally)}
		for _, f := range files {
			if rule.Pattern != GlobalPattern {
				ok, err := doublestar.Match(rule.Pattern, f)
				if err != nil || !ok {
					continue
				}
			}
			rr.Files = append(rr.Files, f)
			cs := agg.Files[f]
			addTally(rr.Metrics, MetricStatements, cs.Statements)
			addTally(rr.Metrics, MetricBranches, cs.Branches)
			addTally(rr.Metrics, MetricFunctions, cs.Functions)
			addTally(rr.Metrics, MetricLines, cs.Lines)
		}
		rr.Violations = violations(rule, rr.Metrics)
		ev.Rules = append(ev.Rules, rr)
	}
	ev.Global = ev.Rules[0]
	return ev
}

func addTally(metrics map[string]Tally, name string, counts map[string]uint64) {
	t := metrics[name]
	for _, c := range counts {
		t.Total++
		if c > 0 {
			t.Covered++
		}
	}
	metrics[name] = t
}

func violations(rule PatternRule, metrics map[string]Tally) []*types.ThresholdViolation {
	mins := []struct {
		name string
		min  float64
	}{
		{MetricStatements, rule.Min.Statements},
		{MetricBranches, rule.Min.Branches},
		{MetricFunctions, rule.Min.Functions},
		{MetricLines, rule.Min.Lines},
	}
	var out []*types.ThresholdViolation
	for _, m := range mins {
		if m.min <= 0 {
			continue
		}
		pct := metrics[m.name].Percent()
		if pct < m.min {
			out = append(out, &types.ThresholdViolation{
				Pattern: rule.Pattern,
				Metric:  m.name,
				Actual:  pct,
				Minimum: m.min,
			})
		}
	}
	return out
}
