package types

import (
	"errors"
	"fmt"
)

// UnresolvedModuleError indicates an import that matched no alias rule and no
// literal path. It fails the importing file's load, never the whole run.
type UnresolvedModuleError struct {
	Spec     string // the import string as written
	Importer string // file containing the import
}

func (e *UnresolvedModuleError) Error() string {
	return fmt.Sprintf("unresolved module %q imported from %s", e.Spec, e.Importer)
}

// TransformError indicates the source could not be translated to an
// executable form. Every nominal case in the file is reported failed.
type TransformError struct {
	Path string
	Line int
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// CaseTimeoutError indicates one case exceeded its wall-clock bound.
type CaseTimeoutError struct {
	Case    string
	Timeout string
}

func (e *CaseTimeoutError) Error() string {
	return fmt.Sprintf("case %q exceeded timeout of %s", e.Case, e.Timeout)
}

// CaseAssertionError indicates a failed test expectation.
type CaseAssertionError struct {
	Case string
	Line int
	Msg  string
}

func (e *CaseAssertionError) Error() string {
	return fmt.Sprintf("assertion failed at line %d in case %q: %s", e.Line, e.Case, e.Msg)
}

// ThresholdViolation indicates an aggregate coverage metric fell below a
// rule's minimum. It fails the run after all files complete.
type ThresholdViolation struct {
	Pattern string
	Metric  string
	Actual  float64
	Minimum float64
}

func (e *ThresholdViolation) Error() string {
	return fmt.Sprintf("coverage for %s (%.2f%%) does not meet threshold (%.2f%%) for %q",
		e.Metric, e.Actual, e.Minimum, e.Pattern)
}

// DeprecatedAPIUsageError indicates use of a disallowed deprecated facility.
type DeprecatedAPIUsageError struct {
	API  string
	Case string
	Line int
}

func (e *DeprecatedAPIUsageError) Error() string {
	return fmt.Sprintf("deprecated API %q used at line %d in case %q", e.API, e.Line, e.Case)
}

// IsTimeout reports whether err is or wraps a CaseTimeoutError.
func IsTimeout(err error) bool {
	var te *CaseTimeoutError
	return err != nil && errors.As(err, &te)
}

// IsUnresolvedModule reports whether err is or wraps an UnresolvedModuleError.
func IsUnresolvedModule(err error) bool {
	var ue *UnresolvedModuleError
	return err != nil && errors.As(err, &ue)
}

// IsTransform reports whether err is or wraps a TransformError.
func IsTransform(err error) bool {
	var te *TransformError
	return err != nil && errors.As(err, &te)
}
