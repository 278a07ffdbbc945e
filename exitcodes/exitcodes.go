// Package exitcodes defines the standard exit codes used by covergate.
package exitcodes

// Exit code constants used by covergate:
//
// * Success (0): all cases passed and every coverage threshold was met
// * TestFailure (1): one or more cases failed
// * CoverageFailure (2): all cases passed but a coverage threshold was not met
// * RuntimeErr (3): fatal setup errors, panics or other runtime failures
const (
	Success         = 0
	TestFailure     = 1
	CoverageFailure = 2
	RuntimeErr      = 3
)
