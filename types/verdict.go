package types

import "time"

// RunStats aggregates case counts across every file in a run.
type RunStats struct {
	Files    int
	Total    int
	Passed   int
	Failed   int
	TimedOut int
	Errored  int
}

// Leak describes one OS-level resource still open after teardown.
type Leak struct {
	Kind string // timer, socket, file
	Name string
	File string // best-effort attribution to the opening file
	Line int
}

// RunVerdict is the final aggregate outcome of one run. It is constructed
// exactly once, at the very end of the run, and never mutated afterwards.
type RunVerdict struct {
	RunID     string
	Passed    bool
	TestsPass bool // every case passed
	CoverPass bool // every threshold rule satisfied

	Stats      RunStats
	Files      map[string]*FileResult
	Violations []*ThresholdViolation
	Leaks      []Leak

	Duration      time.Duration // sum of per-file durations
	WallClockTime time.Duration
	Start         time.Time
}

// FailedFiles returns the paths of files with at least one non-passing case,
// sorted input order is the caller's concern (Files is keyed by path).
func (v *RunVerdict) FailedFiles() []string {
	var out []string
	for path, fr := range v.Files {
		if fr.Failed() {
			out = append(out, path)
		}
	}
	return out
}
