// Package exitcodes defines the standard exit codes used by repo-acceptor.
package exitcodes

// Exit code constants used by repo-acceptor
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every repository's test suite passes
// * TestFailure (1): Used when one or more repositories fail their tests
// * RuntimeErr (2): Used for runtime errors such as panics, an unreachable
// sandbox runtime, or configuration failures
const (
	Success     = 0 // All repositories pass
	TestFailure = 1 // One or more repositories failed
	RuntimeErr  = 2 // Runtime errors or timeouts
)
