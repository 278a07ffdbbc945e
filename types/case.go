package types

import (
	"strings"
	"time"
)

// CaseStatus represents the possible states of a single test case execution.
type CaseStatus string

const (
	CaseStatusPass    CaseStatus = "pass"
	CaseStatusFail    CaseStatus = "fail"
	CaseStatusTimeout CaseStatus = "timeout"
	CaseStatusError   CaseStatus = "error"
)

// TestCase is one named case inside a discovered test file, in discovery order.
type TestCase struct {
	Name string
	Line int
}

// TestFile is a discovered unit of work. It is immutable once discovery for a
// run has completed; execution state lives in the WorkerTask that owns it.
type TestFile struct {
	// Path is relative to the run's root directory and doubles as the
	// result key, so aggregation is independent of completion order.
	Path string

	// Pattern is the testMatch glob that selected this file.
	Pattern string

	// Cases are the nominal cases, known only after a successful transform.
	// A file that fails to load reports every nominal case as failed.
	Cases []TestCase
}

// CaseResult captures the outcome of one executed (or failed-to-load) case.
type CaseResult struct {
	Name     string
	Status   CaseStatus
	Error    error
	Duration time.Duration
	Calls    int // statements executed, for diagnostics
}

// FileResult holds the ordered case results for one test file.
type FileResult struct {
	File     TestFile
	Cases    []CaseResult
	Status   CaseStatus
	Duration time.Duration

	// LoadError is set when the file never reached case execution
	// (transform failure or an unresolved import).
	LoadError error
}

// Failed reports whether any case in the file did not pass.
func (fr *FileResult) Failed() bool {
	if fr.LoadError != nil {
		return true
	}
	for _, c := range fr.Cases {
		if c.Status != CaseStatusPass {
			return true
		}
	}
	return false
}

// FailedCases returns the names of all non-passing cases.
func (fr *FileResult) FailedCases() []string {
	var out []string
	for _, c := range fr.Cases {
		if c.Status != CaseStatusPass {
			out = append(out, c.Name)
		}
	}
	return out
}

// DisplayName returns a short name for the file suitable for table rows.
func DisplayName(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) <= 2 {
		return path
	}
	return ".../" + strings.Join(parts[len(parts)-2:], "/")
}
