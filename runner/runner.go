// Package runner drives the test pipeline across a batch of repositories:
// clone, sandboxed execution, result collection, and the final summary.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/repo-acceptor/types"
)

// WorkspaceManager is the slice of the workspace layer the batch runner
// needs: cloning and locating working copies.
type WorkspaceManager interface {
	Clone(ctx context.Context, remoteURL, repoName string) bool
	Path(repoName string) string
}

// SandboxRunner executes one repository's tests in the sandbox.
type SandboxRunner interface {
	CheckAvailable(ctx context.Context) error
	Run(ctx context.Context, repoName, repoPath string) *types.RunResult
}

// Runner orchestrates the pipeline. Execution is strictly sequential: the
// sandbox is the shared heavyweight resource, and concurrent runs would
// race on its build cache and on the workspace root.
type Runner struct {
	workspace WorkspaceManager
	sandbox   SandboxRunner
	org       string
	log       log.Logger
	tracer    trace.Tracer
}

// Config holds configuration for creating a batch runner.
type Config struct {
	Workspace WorkspaceManager
	Sandbox   SandboxRunner
	Org       string
	Log       log.Logger
}

// NewRunner creates a batch runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Workspace == nil {
		return nil, fmt.Errorf("workspace manager is required")
	}
	if cfg.Sandbox == nil {
		return nil, fmt.Errorf("sandbox runner is required")
	}
	if cfg.Org == "" {
		return nil, fmt.Errorf("organization is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &Runner{
		workspace: cfg.Workspace,
		sandbox:   cfg.Sandbox,
		org:       cfg.Org,
		log:       cfg.Log,
		tracer:    otel.Tracer("batch runner"),
	}, nil
}

// CloneURL builds the remote URL for a repository of the configured
// organization.
func (r *Runner) CloneURL(repoName string) string {
	return fmt.Sprintf("https://github.com/%s/%s.git", r.org, repoName)
}

// RunBatch runs the pipeline over every repository name, in order.
// The sandbox runtime is probed once up front; when it is down the batch
// is abandoned before any clone, since cloning without an execution target
// is wasted work. Past the probe, one repository's failure never aborts
// the rest: clone failures, sandbox failures, and even panics convert to
// that repository's RunResult and the loop continues.
func (r *Runner) RunBatch(ctx context.Context, repoNames []string) (*BatchResult, error) {
	batch := &BatchResult{
		RunID: uuid.New().String(),
		Org:   r.org,
		Start: time.Now(),
	}
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("batch %s", batch.RunID))
	defer span.End()

	r.log.Info("Starting batch", "run_id", batch.RunID, "org", r.org, "repos", len(repoNames))

	if err := r.sandbox.CheckAvailable(ctx); err != nil {
		r.log.Error("Sandbox runtime unavailable, aborting batch", "run_id", batch.RunID, "err", err)
		batch.Error = fmt.Sprintf("sandbox unavailable: %v", err)
		batch.finish()
		return batch, fmt.Errorf("sandbox unavailable: %w", err)
	}

	for _, name := range repoNames {
		result := r.runRepo(ctx, name)
		batch.Results = append(batch.Results, result)
		r.log.Info("Repository processed",
			"run_id", batch.RunID,
			"repo", name,
			"status", result.Status(),
			"note", result.FailureNote())
	}

	batch.finish()
	r.log.Info("Batch completed",
		"run_id", batch.RunID,
		"successful", batch.SuccessCount,
		"total", batch.TotalCount,
		"duration", batch.Duration)
	return batch, nil
}

// runRepo takes one repository through clone and sandbox execution. A
// panic anywhere in the pipeline becomes that repository's failed result.
func (r *Runner) runRepo(ctx context.Context, repoName string) (result *types.RunResult) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("repo %s", repoName))
	defer span.End()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Panic while processing repository", "repo", repoName, "panic", rec)
			result = &types.RunResult{
				RepoName: repoName,
				ExitCode: -1,
				Error:    fmt.Sprintf("panic while processing repository: %v", rec),
				Duration: time.Since(start),
			}
		}
	}()

	if !r.workspace.Clone(ctx, r.CloneURL(repoName), repoName) {
		return &types.RunResult{
			RepoName: repoName,
			ExitCode: -1,
			Error:    "Failed to clone repository",
			Duration: time.Since(start),
		}
	}

	return r.sandbox.Run(ctx, repoName, r.workspace.Path(repoName))
}
