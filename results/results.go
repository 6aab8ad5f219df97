// Package results ingests the JSON artifacts harness runs write and turns
// them into structured reports.
package results

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum-optimism/infra/repo-acceptor/types"
)

// Parse extracts a TestReport from a raw results artifact. It is purely
// structural: absent numeric fields default to zero, an absent test_details
// array defaults to empty, and unknown fields are ignored, so a partially
// written artifact degrades to a report of zero tests instead of failing.
// Only malformed JSON returns an error.
func Parse(raw []byte) (*types.TestReport, error) {
	var report types.TestReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("failed to parse results artifact: %w", err)
	}

	for i, test := range report.Tests {
		report.Tests[i].Outcome = types.NormalizeOutcome(string(test.Outcome))
	}

	// Error is reserved for ingest-level problems, never artifact content.
	report.Error = ""

	return &report, nil
}
