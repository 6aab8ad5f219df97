// Package reporting writes the per-run report files: a batch summary, one
// log per repository, and a machine-readable batch record.
package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
	"github.com/hashicorp/go-multierror"

	"github.com/ethereum-optimism/infra/repo-acceptor/runner"
	"github.com/ethereum-optimism/infra/repo-acceptor/types"
)

// FileReporter writes reports under a base directory, one subdirectory per
// run. Reporting is best-effort: callers log the aggregated error and move
// on, a report that could not be written never fails a batch.
type FileReporter struct {
	baseDir string
	log     log.Logger
}

// NewFileReporter creates a reporter and its base directory.
func NewFileReporter(baseDir string, logger log.Logger) (*FileReporter, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("report base directory is required")
	}
	if logger == nil {
		logger = log.New()
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", baseDir, err)
	}
	return &FileReporter{baseDir: baseDir, log: logger}, nil
}

// RunDir returns the report directory for a run.
func (r *FileReporter) RunDir(runID string) string {
	return filepath.Join(r.baseDir, "run-"+runID)
}

// Write persists the full report set for one batch: summary.log,
// batch.json, and one <repo>.log per repository. Individual file failures
// are collected and the rest still written.
func (r *FileReporter) Write(batch *runner.BatchResult) error {
	dir := r.RunDir(batch.RunID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory %s: %w", dir, err)
	}

	var errs *multierror.Error
	if err := r.writeSummary(dir, batch); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := r.writeBatchJSON(dir, batch); err != nil {
		errs = multierror.Append(errs, err)
	}
	for _, result := range batch.Results {
		if err := r.writeRepoLog(dir, result); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if errs.ErrorOrNil() == nil {
		r.log.Info("Batch report written", "run_id", batch.RunID, "dir", dir)
	}
	return errs.ErrorOrNil()
}

func (r *FileReporter) writeSummary(dir string, batch *runner.BatchResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Run ID:       %s\n", batch.RunID)
	fmt.Fprintf(&b, "Organization: %s\n", batch.Org)
	fmt.Fprintf(&b, "Started:      %s\n", batch.Start.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Duration:     %.1fs\n", batch.Duration.Seconds())
	fmt.Fprintf(&b, "\n%s\n", batch.String())

	if !batch.Aborted() {
		b.WriteString("\n")
		for _, result := range batch.Results {
			note := result.FailureNote()
			if note != "" {
				note = " (" + note + ")"
			}
			fmt.Fprintf(&b, "[%s] %s%s\n", result.Status(), result.RepoName, note)
		}
	}

	path := filepath.Join(dir, "summary.log")
	if err := os.WriteFile(path, []byte(stripansi.Strip(b.String())), 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

func (r *FileReporter) writeBatchJSON(dir string, batch *runner.BatchResult) error {
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal batch record: %w", err)
	}
	path := filepath.Join(dir, "batch.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write batch record: %w", err)
	}
	return nil
}

func (r *FileReporter) writeRepoLog(dir string, result *types.RunResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", result.RepoName)
	fmt.Fprintf(&b, "Status:     %s\n", result.Status())
	fmt.Fprintf(&b, "Exit code:  %d\n", result.ExitCode)
	fmt.Fprintf(&b, "Duration:   %.1fs\n", result.Duration.Seconds())
	if note := result.FailureNote(); note != "" {
		fmt.Fprintf(&b, "Failure:    %s\n", note)
	}
	if report := result.Report; report != nil && report.Error == "" {
		fmt.Fprintf(&b, "Tests:      %d total, %d passed, %d failed, %d skipped, %d errored\n",
			report.Total, report.Passed, report.Failed, report.Skipped, report.Errored)
		for _, nodeID := range report.FailedTests() {
			fmt.Fprintf(&b, "  failed: %s\n", nodeID)
		}
	}

	b.WriteString("\n=== STDOUT ===\n")
	b.WriteString(stripansi.Strip(result.Stdout))
	b.WriteString("\n=== STDERR ===\n")
	b.WriteString(stripansi.Strip(result.Stderr))
	b.WriteString("\n")

	path := filepath.Join(dir, safeFilename(result.RepoName)+".log")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write repository log for %s: %w", result.RepoName, err)
	}
	return nil
}

// safeFilename replaces path-hostile characters so a repository name can
// serve as a file name.
func safeFilename(s string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return replacer.Replace(s)
}
