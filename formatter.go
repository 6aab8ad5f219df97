package rat

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/repo-acceptor/runner"
	"github.com/ethereum-optimism/infra/repo-acceptor/types"
)

// ResultFormatter is responsible for formatting and displaying batch results.
type ResultFormatter interface {
	FormatResults(batch *runner.BatchResult) error
}

// ConsoleResultFormatter implements the ResultFormatter interface.
type ConsoleResultFormatter struct {
	logger log.Logger
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter.
func NewConsoleResultFormatter(logger log.Logger) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger: logger,
	}
}

// FormatResults renders the batch as a table: one row per repository,
// failed test node IDs as tree rows underneath, a TOTAL footer, and a
// style keyed to the overall batch status.
func (f *ConsoleResultFormatter) FormatResults(batch *runner.BatchResult) error {
	f.logger.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Repository Acceptance Results (%s)", formatDuration(batch.Duration)))

	t.AppendHeader(table.Row{
		"Repository", "Duration", "Tests", "Passed", "Failed", "Errors", "Skipped", "Status", "Note",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Repository", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Errors", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Note", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	var totalTests, totalPassed, totalFailed, totalErrored, totalSkipped int
	for _, result := range batch.Results {
		report := result.Report
		if report == nil || report.Error != "" {
			t.AppendRow(table.Row{
				result.RepoName,
				formatDuration(result.Duration),
				"-", "-", "-", "-", "-",
				getResultString(result.Status()),
				result.FailureNote(),
			})
			continue
		}

		t.AppendRow(table.Row{
			result.RepoName,
			formatDuration(result.Duration),
			report.Total,
			report.Passed,
			report.Failed,
			report.Errored,
			report.Skipped,
			getResultString(result.Status()),
			result.FailureNote(),
		})
		totalTests += report.Total
		totalPassed += report.Passed
		totalFailed += report.Failed
		totalErrored += report.Errored
		totalSkipped += report.Skipped

		// Failing tests as tree rows under their repository
		failed := report.FailedTests()
		for i, nodeID := range failed {
			prefix := "├──"
			if i == len(failed)-1 {
				prefix = "└──"
			}
			t.AppendRow(table.Row{
				fmt.Sprintf("%s %s", prefix, nodeID),
				"", "", "", "", "", "",
				getResultString(types.StatusFail),
				"",
			})
		}
	}

	if batch.Status() == types.StatusPass {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		formatDuration(batch.Duration),
		totalTests,
		totalPassed,
		totalFailed,
		totalErrored,
		totalSkipped,
		getResultString(batch.Status()),
		fmt.Sprintf("%d/%d repositories", batch.SuccessCount, batch.TotalCount),
	})

	t.Render()
	return nil
}

// getResultString returns a string representing the run result
func getResultString(status types.Status) string {
	if status == types.StatusPass {
		return "✓ pass"
	}
	return "✗ fail"
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
