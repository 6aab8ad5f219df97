package runner

import (
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/repo-acceptor/types"
)

// BatchResult is the outcome of one full pass over a repository sequence.
// Results appear in the exact order of the input names. TotalCount always
// equals the number of names handed to the batch, even when every clone
// failed; an aborted batch carries no per-repository results and a
// batch-level Error instead.
type BatchResult struct {
	RunID   string             `json:"run_id"`
	Org     string             `json:"org"`
	Results []*types.RunResult `json:"results"`

	SuccessCount int `json:"success_count"`
	TotalCount   int `json:"total_count"`

	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`

	// Error records a batch-level fatal condition, such as the sandbox
	// runtime being unreachable at the liveness probe.
	Error string `json:"error,omitempty"`
}

// finish freezes the counts and timing once all repositories have been
// processed.
func (b *BatchResult) finish() {
	b.TotalCount = len(b.Results)
	b.SuccessCount = 0
	for _, r := range b.Results {
		if r.Success {
			b.SuccessCount++
		}
	}
	b.End = time.Now()
	b.Duration = b.End.Sub(b.Start)
}

// Aborted reports whether the batch never ran its repositories.
func (b *BatchResult) Aborted() bool {
	return b.Error != ""
}

// Status collapses the batch to the display status set: pass only when
// every repository passed and the batch itself completed.
func (b *BatchResult) Status() types.Status {
	if b.Aborted() || b.SuccessCount != b.TotalCount {
		return types.StatusFail
	}
	return types.StatusPass
}

// String renders the one-line summary the batch always produces.
func (b *BatchResult) String() string {
	if b.Aborted() {
		return fmt.Sprintf("Batch %s aborted: %s", b.RunID, b.Error)
	}
	return fmt.Sprintf("Successfully tested %d/%d repositories", b.SuccessCount, b.TotalCount)
}
