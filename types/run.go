package types

import (
	"fmt"
	"time"
)

// Status represents the overall outcome of a repository run or a batch
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
)

// Outcome represents the result of a single test inside the sandbox
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
	OutcomeUnknown Outcome = "unknown"
)

// NormalizeOutcome maps an arbitrary outcome string from a results artifact
// onto the known outcome set. Anything unrecognized becomes OutcomeUnknown.
func NormalizeOutcome(s string) Outcome {
	switch Outcome(s) {
	case OutcomePassed, OutcomeFailed, OutcomeSkipped, OutcomeError:
		return Outcome(s)
	default:
		return OutcomeUnknown
	}
}

// TestOutcome is one entry of a results artifact's test_details array.
type TestOutcome struct {
	NodeID  string  `json:"node_id"`
	Outcome Outcome `json:"outcome"`
}

// TestReport holds the structured counts a harness run writes to its results
// artifact. Missing fields stay at their zero values, so a partially written
// artifact degrades to "zero tests" rather than an error.
type TestReport struct {
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Errored  int           `json:"error"`
	Total    int           `json:"total"`
	Duration float64       `json:"duration"`
	Tests    []TestOutcome `json:"test_details"`

	// Error is set when the artifact itself was missing or unreadable.
	// It is never populated from artifact content.
	Error string `json:"error_message,omitempty"`
}

// Successful reports whether the run the report describes counts as a pass.
// The rule is deliberate: a report with no tests proves nothing, so total
// must be positive, and any failed or errored test fails the run. The
// sandbox process exit code plays no part in this.
func (r *TestReport) Successful() bool {
	if r == nil || r.Error != "" {
		return false
	}
	return r.Total > 0 && r.Failed == 0 && r.Errored == 0
}

// FailedTests returns the node IDs of tests that did not pass or skip.
func (r *TestReport) FailedTests() []string {
	if r == nil {
		return nil
	}
	var failed []string
	for _, t := range r.Tests {
		if t.Outcome == OutcomeFailed || t.Outcome == OutcomeError {
			failed = append(failed, t.NodeID)
		}
	}
	return failed
}

// RunResult captures the outcome of one repository's trip through the
// pipeline: clone, sandbox execution, and results ingestion.
type RunResult struct {
	RepoName string        `json:"repo_name"`
	Success  bool          `json:"success"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"output,omitempty"`
	Stderr   string        `json:"error_output,omitempty"`
	Report   *TestReport   `json:"results_data,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`

	// Error describes a pipeline-level failure (clone failure, sandbox
	// unavailable, build failure) as opposed to a test failure.
	Error string `json:"error,omitempty"`
}

// Status maps the boolean success onto the display status set.
func (r *RunResult) Status() Status {
	if r.Success {
		return StatusPass
	}
	return StatusFail
}

// FailureNote returns the most specific description of why a run was not
// successful, or an empty string for a successful run.
func (r *RunResult) FailureNote() string {
	if r.Success {
		return ""
	}
	if r.Error != "" {
		return r.Error
	}
	if r.Report != nil {
		if r.Report.Error != "" {
			return r.Report.Error
		}
		if r.Report.Total == 0 {
			return "no tests were run"
		}
		return fmt.Sprintf("%d failed, %d errored of %d tests", r.Report.Failed, r.Report.Errored, r.Report.Total)
	}
	return "no results recorded"
}
