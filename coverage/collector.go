// Package coverage merges per-file instrumentation counters and judges the
// merged report against path-pattern-scoped minimum thresholds.
package coverage

// CounterSet holds per-position execution counts for one source file. The
// zero-count keys are pre-created from the file's instrumentation template,
// so covered/total ratios fall out of the map itself.
type CounterSet struct {
	File       string
	Statements map[string]uint64
	Branches   map[string]uint64
	Functions  map[string]uint64
	Lines      map[string]uint64
}

// NewCounterSet builds a zero-filled CounterSet from instrumentation keys.
func NewCounterSet(file string, statements, branches, functions, lines []string) *CounterSet {
	return &CounterSet{
		File:       file,
		Statements: zeroed(statements),
		Branches:   zeroed(branches),
		Functions:  zeroed(functions),
		Lines:      zeroed(lines),
	}
}

func zeroed(keys []string) map[string]uint64 {
	m := make(map[string]uint64, len(keys))
	for _, k := range keys {
		m[k] = 0
	}
	return m
}

// Hit increments a statement counter and its line counter.
func (cs *CounterSet) Hit(key, lineKey string) {
	cs.Statements[key]++
	cs.Lines[lineKey]++
}

// HitBranch increments one branch arm counter.
func (cs *CounterSet) HitBranch(key string) { cs.Branches[key]++ }

// HitFunc increments a function-boundary counter.
func (cs *CounterSet) HitFunc(key string) { cs.Functions[key]++ }

// Aggregate is the merged coverage report for a whole run, keyed by source
// file. Merging is serialized by the collecting goroutine; after Freeze the
// aggregate must not be mutated.
type Aggregate struct {
	Files  map[string]*CounterSet
	frozen bool
}

// NewAggregate returns an empty aggregate.
func NewAggregate() *Aggregate {
	return &Aggregate{Files: make(map[string]*CounterSet)}
}

// Merge folds cs into the aggregate. Per-position counts are summed, so the
// operation is commutative and associative: arrival order across workers
// does not affect the final report.
func (a *Aggregate) Merge(cs *CounterSet) {
	if a.frozen {
		panic("coverage: merge into frozen aggregate")
	}
	existing, ok := a.Files[cs.File]
	if !ok {
		a.Files[cs.File] = clone(cs)
		return
	}
	sumInto(existing.Statements, cs.Statements)
	sumInto(existing.Branches, cs.Branches)
	sumInto(existing.Functions, cs.Functions)
	sumInto(existing.Lines, cs.Lines)
}

// Freeze marks the aggregate immutable. The Threshold evaluator and the
// report sinks only ever see frozen aggregates.
func (a *Aggregate) Freeze() { a.frozen = true }

func sumInto(dst, src map[string]uint64) {
	for k, v := range src {
		dst[k] += v
	}
}

func clone(cs *CounterSet) *CounterSet {
	out := &CounterSet{
		File:       cs.File,
		Statements: make(map[string]uint64, len(cs.Statements)),
		Branches:   make(map[string]uint64, len(cs.Branches)),
		Functions:  make(map[string]uint64, len(cs.Functions)),
		Lines:      make(map[string]uint64, len(cs.Lines)),
	}
	sumInto(out.Statements, cs.Statements)
	sumInto(out.Branches, cs.Branches)
	sumInto(out.Functions, cs.Functions)
	sumInto(out.Lines, cs.Lines)
	return out
}

// Tallies computes covered/total per metric for one file's counter set.
func (cs *CounterSet) Tallies() map[string]Tally {
	return map[string]Tally{
		MetricStatements: tallyOf(cs.Statements),
		MetricBranches:   tallyOf(cs.Branches),
		MetricFunctions:  tallyOf(cs.Functions),
		MetricLines:      tallyOf(cs.Lines),
	}
}

func tallyOf(counts map[string]uint64) Tally {
	var t Tally
	for _, c := range counts {
		t.Total++
		if c > 0 {
			t.Covered++
		}
	}
	return t
}
