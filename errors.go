package covergate

import (
	"errors"
	"fmt"
)

// RuntimeError represents an operational error that should lead to exit
// code 3. Examples include configuration errors and fatal setup failures.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError represents a failure from test cases (exit code 1)
type TestFailureError struct {
	Message string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Message)
}

// NewTestFailureError creates a new TestFailureError
func NewTestFailureError(message string) *TestFailureError {
	return &TestFailureError{Message: message}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}

// CoverageFailureError represents an unmet coverage threshold (exit code 2)
type CoverageFailureError struct {
	Message string
}

func (e *CoverageFailureError) Error() string {
	return fmt.Sprintf("coverage failure: %s", e.Message)
}

// NewCoverageFailureError creates a new CoverageFailureError
func NewCoverageFailureError(message string) *CoverageFailureError {
	return &CoverageFailureError{Message: message}
}

// IsCoverageFailureError checks if the error is or wraps a CoverageFailureError
func IsCoverageFailureError(err error) bool {
	var covErr *CoverageFailureError
	return err != nil && errors.As(err, &covErr)
}
