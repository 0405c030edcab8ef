// Package exitcodes defines the standard exit codes used by testrun.
package exitcodes

// Exit code constants used by testrun:
//
// * Success (0): every generated test execution passed
// * TestFailure (1): one or more test executions failed
// * RuntimeErr (2): configuration or session setup errors, panics, timeouts
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
