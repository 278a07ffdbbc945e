package covergate

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covergate/covergate/coverage"
	"github.com/covergate/covergate/exitcodes"
	"github.com/covergate/covergate/runner"
	"github.com/covergate/covergate/types"
)

func passingResult() *runner.Result {
	return &runner.Result{
		RunID: "run-1",
		Files: map[string]*types.FileResult{},
		Stats: types.RunStats{Files: 1, Total: 2, Passed: 2},
	}
}

func failingEval() *coverage.Evaluation {
	rr := &coverage.RuleResult{
		Rule: coverage.PatternRule{Pattern: coverage.GlobalPattern},
		Violations: []*types.ThresholdViolation{
			{Pattern: coverage.GlobalPattern, Metric: "lines", Actual: 10, Minimum: 80},
		},
	}
	return &coverage.Evaluation{Rules: []*coverage.RuleResult{rr}, Global: rr}
}

func TestBuildVerdict(t *testing.T) {
	t.Run("all green", func(t *testing.T) {
		v := buildVerdict(passingResult(), nil, nil)
		assert.True(t, v.Passed)
		assert.True(t, v.TestsPass)
		assert.True(t, v.CoverPass)
		assert.Equal(t, exitcodes.Success, exitCodeFor(v))
	})

	t.Run("test failure", func(t *testing.T) {
		res := passingResult()
		res.Stats.Failed = 1
		v := buildVerdict(res, nil, nil)
		assert.False(t, v.Passed)
		assert.False(t, v.TestsPass)
		assert.Equal(t, exitcodes.TestFailure, exitCodeFor(v))
	})

	t.Run("timeout counts as test failure", func(t *testing.T) {
		res := passingResult()
		res.Stats.TimedOut = 1
		v := buildVerdict(res, nil, nil)
		assert.False(t, v.TestsPass)
		assert.Equal(t, exitcodes.TestFailure, exitCodeFor(v))
	})

	t.Run("coverage failure", func(t *testing.T) {
		v := buildVerdict(passingResult(), failingEval(), nil)
		assert.False(t, v.Passed)
		assert.True(t, v.TestsPass)
		assert.False(t, v.CoverPass)
		require.Len(t, v.Violations, 1)
		assert.Equal(t, exitcodes.CoverageFailure, exitCodeFor(v))
	})

	t.Run("test failure wins over coverage failure", func(t *testing.T) {
		res := passingResult()
		res.Stats.Failed = 1
		v := buildVerdict(res, failingEval(), nil)
		assert.Equal(t, exitcodes.TestFailure, exitCodeFor(v))
	})

	t.Run("deprecated usage fails the run", func(t *testing.T) {
		res := passingResult()
		res.DeprecatedFailure = true
		v := buildVerdict(res, nil, nil)
		assert.False(t, v.TestsPass)
	})

	t.Run("leaks do not change the verdict", func(t *testing.T) {
		leaks := []types.Leak{{Kind: "timer", Name: "t1"}}
		v := buildVerdict(passingResult(), nil, leaks)
		assert.True(t, v.Passed)
		assert.Len(t, v.Leaks, 1)
	})
}

func TestTypedErrors(t *testing.T) {
	runtimeErr := NewRuntimeError(errors.New("boom"))
	assert.True(t, IsRuntimeError(runtimeErr))
	assert.True(t, IsRuntimeError(fmt.Errorf("wrapped: %w", runtimeErr)))
	assert.False(t, IsRuntimeError(errors.New("boom")))
	assert.False(t, IsRuntimeError(nil))

	testErr := NewTestFailureError("2 of 5 cases failed")
	assert.True(t, IsTestFailureError(testErr))
	assert.False(t, IsTestFailureError(runtimeErr))
	assert.Contains(t, testErr.Error(), "2 of 5 cases failed")

	covErr := NewCoverageFailureError("1 threshold violations")
	assert.True(t, IsCoverageFailureError(covErr))
	assert.False(t, IsCoverageFailureError(testErr))
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(t.Context(), nil, "test", func(error) {})
	require.Error(t, err)
}
