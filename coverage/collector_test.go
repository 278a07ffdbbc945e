package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSet(file string) *CounterSet {
	return NewCounterSet(file,
		[]string{file + ":1", file + ":2", file + ":3"},
		[]string{file + ":2:0", file + ":2:1"},
		[]string{file + ":1"},
		[]string{file + ":1", file + ":2", file + ":3"},
	)
}

func TestNewCounterSetZeroFilled(t *testing.T) {
	cs := sampleSet("a.cg")

	assert.Len(t, cs.Statements, 3)
	assert.Len(t, cs.Branches, 2)
	assert.Len(t, cs.Functions, 1)
	for _, v := range cs.Statements {
		assert.Zero(t, v)
	}

	tallies := cs.Tallies()
	assert.Equal(t, Tally{Covered: 0, Total: 3}, tallies[MetricStatements])
	assert.Equal(t, Tally{Covered: 0, Total: 2}, tallies[MetricBranches])
}

func TestCounterSetHits(t *testing.T) {
	cs := sampleSet("a.cg")
	cs.Hit("a.cg:1", "a.cg:1")
	cs.Hit("a.cg:1", "a.cg:1")
	cs.HitBranch("a.cg:2:0")
	cs.HitFunc("a.cg:1")

	assert.Equal(t, uint64(2), cs.Statements["a.cg:1"])
	assert.Equal(t, uint64(2), cs.Lines["a.cg:1"])
	assert.Equal(t, uint64(1), cs.Branches["a.cg:2:0"])
	assert.Equal(t, uint64(0), cs.Branches["a.cg:2:1"])

	tallies := cs.Tallies()
	assert.Equal(t, Tally{Covered: 1, Total: 3}, tallies[MetricStatements])
	assert.Equal(t, Tally{Covered: 1, Total: 2}, tallies[MetricBranches])
	assert.Equal(t, Tally{Covered: 1, Total: 1}, tallies[MetricFunctions])
}

func TestAggregateMergeSums(t *testing.T) {
	a := sampleSet("a.cg")
	a.Hit("a.cg:1", "a.cg:1")
	b := sampleSet("a.cg")
	b.Hit("a.cg:1", "a.cg:1")
	b.Hit("a.cg:2", "a.cg:2")

	agg := NewAggregate()
	agg.Merge(a)
	agg.Merge(b)

	merged := agg.Files["a.cg"]
	require.NotNil(t, merged)
	assert.Equal(t, uint64(2), merged.Statements["a.cg:1"])
	assert.Equal(t, uint64(1), merged.Statements["a.cg:2"])
	assert.Equal(t, uint64(0), merged.Statements["a.cg:3"])
}

func TestAggregateMergeOrderIndependent(t *testing.T) {
	makeSets := func() []*CounterSet {
		a := sampleSet("a.cg")
		a.Hit("a.cg:1", "a.cg:1")
		a.HitBranch("a.cg:2:0")
		b := sampleSet("a.cg")
		b.Hit("a.cg:2", "a.cg:2")
		c := sampleSet("b.cg")
		c.Hit("b.cg:3", "b.cg:3")
		return []*CounterSet{a, b, c}
	}

	forward := NewAggregate()
	for _, cs := range makeSets() {
		forward.Merge(cs)
	}

	backward := NewAggregate()
	sets := makeSets()
	for i := len(sets) - 1; i >= 0; i-- {
		backward.Merge(sets[i])
	}

	assert.Equal(t, forward.Files, backward.Files)
}

func TestAggregateMergeDoesNotAliasInput(t *testing.T) {
	cs := sampleSet("a.cg")
	agg := NewAggregate()
	agg.Merge(cs)

	cs.Hit("a.cg:1", "a.cg:1")
	assert.Equal(t, uint64(0), agg.Files["a.cg"].Statements["a.cg:1"])
}

func TestAggregateFrozenPanics(t *testing.T) {
	agg := NewAggregate()
	agg.Merge(sampleSet("a.cg"))
	agg.Freeze()

	assert.Panics(t, func() { agg.Merge(sampleSet("b.cg")) })
}
