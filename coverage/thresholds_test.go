package coverage

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// coveredSet builds a counter set for file with total statement positions of
// which covered are hit once. Branch, function and line maps stay empty so
// those metrics are vacuously satisfied.
func coveredSet(file string, covered, total int) *CounterSet {
	keys := make([]string, total)
	for i := range keys {
		keys[i] = file + ":" + strconv.Itoa(i+1)
	}
	cs := NewCounterSet(file, keys, nil, nil, nil)
	for i := 0; i < covered; i++ {
		cs.Statements[keys[i]]++
	}
	return cs
}

func TestTallyPercent(t *testing.T) {
	assert.Equal(t, float64(100), Tally{}.Percent(), "empty tally is vacuously full")
	assert.Equal(t, float64(50), Tally{Covered: 1, Total: 2}.Percent())
	assert.Equal(t, float64(0), Tally{Covered: 0, Total: 4}.Percent())
}

func TestEvaluateGlobalRule(t *testing.T) {
	agg := NewAggregate()
	agg.Merge(coveredSet("src/a.cg", 3, 4)) // 75%
	agg.Merge(coveredSet("src/b.cg", 1, 4)) // 25%
	agg.Freeze()

	// 4 of 8 statements covered across the run.
	ev := Evaluate(agg, Thresholds{Statements: 50}, nil)
	assert.True(t, ev.Passed())
	assert.Empty(t, ev.Violations())
	assert.Equal(t, Tally{Covered: 4, Total: 8}, ev.Global.Metrics[MetricStatements])

	ev = Evaluate(agg, Thresholds{Statements: 60}, nil)
	assert.False(t, ev.Passed())
	require.Len(t, ev.Violations(), 1)
	v := ev.Violations()[0]
	assert.Equal(t, GlobalPattern, v.Pattern)
	assert.Equal(t, MetricStatements, v.Metric)
	assert.Equal(t, float64(50), v.Actual)
	assert.Equal(t, float64(60), v.Minimum)
}

func TestEvaluateOverrideAdditionallyConstrains(t *testing.T) {
	agg := NewAggregate()
	agg.Merge(coveredSet("src/core/a.cg", 4, 4))
	agg.Merge(coveredSet("src/misc/b.cg", 0, 4))
	agg.Freeze()

	overrides := []PatternRule{
		{Pattern: "src/core/**", Min: Thresholds{Statements: 90}},
	}

	// The global rule passes at 50%, the override passes at 100%.
	ev := Evaluate(agg, Thresholds{Statements: 40}, overrides)
	assert.True(t, ev.Passed())

	// A passing override never rescues a failing global rule.
	ev = Evaluate(agg, Thresholds{Statements: 80}, overrides)
	assert.False(t, ev.Passed())
	require.Len(t, ev.Violations(), 1)
	assert.Equal(t, GlobalPattern, ev.Violations()[0].Pattern)
}

func TestEvaluateOverrideScopesFiles(t *testing.T) {
	agg := NewAggregate()
	agg.Merge(coveredSet("src/core/a.cg", 1, 4)) // 25%
	agg.Merge(coveredSet("src/misc/b.cg", 4, 4))
	agg.Freeze()

	ev := Evaluate(agg, Thresholds{}, []PatternRule{
		{Pattern: "src/core/**", Min: Thresholds{Statements: 50}},
	})
	assert.False(t, ev.Passed())
	require.Len(t, ev.Violations(), 1)
	assert.Equal(t, "src/core/**", ev.Violations()[0].Pattern)
	assert.Equal(t, float64(25), ev.Violations()[0].Actual)

	require.Len(t, ev.Rules, 2)
	assert.Equal(t, []string{"src/core/a.cg"}, ev.Rules[1].Files)
}

func TestEvaluateOverlappingOverrides(t *testing.T) {
	agg := NewAggregate()
	agg.Merge(coveredSet("src/core/a.cg", 2, 4)) // 50%
	agg.Freeze()

	// Both explicit rules match the same file; each is evaluated.
	ev := Evaluate(agg, Thresholds{}, []PatternRule{
		{Pattern: "src/**", Min: Thresholds{Statements: 40}},
		{Pattern: "src/core/**", Min: Thresholds{Statements: 75}},
	})
	assert.False(t, ev.Passed())
	require.Len(t, ev.Violations(), 1)
	assert.Equal(t, "src/core/**", ev.Violations()[0].Pattern)
}

func TestEvaluateZeroMinimumNeverFails(t *testing.T) {
	agg := NewAggregate()
	agg.Merge(coveredSet("src/a.cg", 0, 4))
	agg.Freeze()

	ev := Evaluate(agg, Thresholds{}, nil)
	assert.True(t, ev.Passed())
}

func TestEvaluateEmptyAggregate(t *testing.T) {
	agg := NewAggregate()
	agg.Freeze()

	// No instrumentable positions at all: vacuously 100%.
	ev := Evaluate(agg, Thresholds{Statements: 100, Lines: 100}, nil)
	assert.True(t, ev.Passed())
	assert.Equal(t, float64(100), ev.Global.Metrics[MetricStatements].Percent())
}

func TestEvaluateNonMatchingOverrideIsVacuous(t *testing.T) {
	agg := NewAggregate()
	agg.Merge(coveredSet("src/a.cg", 0, 4))
	agg.Freeze()

	ev := Evaluate(agg, Thresholds{}, []PatternRule{
		{Pattern: "pkg/**", Min: Thresholds{Statements: 100}},
	})
	assert.True(t, ev.Passed(), "a rule matching no files has empty tallies")
}
