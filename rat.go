// Package rat is the Repository Acceptance Tester: it discovers the
// repositories of an organization, clones each one, runs its tests inside
// a compose sandbox, and aggregates the outcomes into a batch summary.
package rat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/ethereum-optimism/infra/repo-acceptor/discovery"
	"github.com/ethereum-optimism/infra/repo-acceptor/exitcodes"
	"github.com/ethereum-optimism/infra/repo-acceptor/metrics"
	"github.com/ethereum-optimism/infra/repo-acceptor/reporting"
	"github.com/ethereum-optimism/infra/repo-acceptor/runner"
	"github.com/ethereum-optimism/infra/repo-acceptor/sandbox"
	"github.com/ethereum-optimism/infra/repo-acceptor/types"
	"github.com/ethereum-optimism/infra/repo-acceptor/workspace"
)

// rat implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &rat{}

// rat wires the pipeline together and owns its lifecycle.
type rat struct {
	ctx     context.Context
	config  *Config
	version string

	target    discovery.Target
	source    *discovery.SourceConfig
	discovery *discovery.Client
	workspace *workspace.Manager
	sandbox   *sandbox.Runner
	runner    *runner.Runner
	reporter  *reporting.FileReporter
	formatter ResultFormatter
	scheduler BatchScheduler
	result    *runner.BatchResult

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*rat, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating repo-acceptor with config",
		"org", config.Org,
		"orgURL", config.OrgURL,
		"workDir", config.WorkDir,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	var source *discovery.SourceConfig
	if config.SourceConfig != "" {
		var err error
		source, err = discovery.LoadSourceConfig(config.SourceConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load source config: %w", err)
		}
	}

	target, err := discovery.Resolve(config.Org, config.OrgURL, source)
	if err != nil {
		return nil, err
	}

	wsManager, err := workspace.NewManager(workspace.Config{
		BaseDir: config.WorkDir,
		Log:     config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace manager: %w", err)
	}

	sbRunner, err := sandbox.NewRunner(sandbox.Config{
		ComposeFile:   config.ComposeFile,
		Service:       config.ComposeService,
		HarnessDir:    config.HarnessDir,
		HarnessScript: config.HarnessScript,
		ResultsDir:    config.ResultsDir,
		RunTimeout:    config.SandboxTimeout,
		Log:           config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox runner: %w", err)
	}

	batchRunner, err := runner.NewRunner(runner.Config{
		Workspace: wsManager,
		Sandbox:   sbRunner,
		Org:       target.Org,
		Log:       config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create batch runner: %w", err)
	}

	reporter, err := reporting.NewFileReporter(config.OutDir, config.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create reporter: %w", err)
	}

	config.Log.Info("rat.New: created pipeline", "org", target.Org)

	return &rat{
		ctx:              ctx,
		config:           config,
		version:          version,
		target:           target,
		source:           source,
		discovery:        discovery.NewClient(config.GithubToken, config.Log),
		workspace:        wsManager,
		sandbox:          sbRunner,
		runner:           batchRunner,
		reporter:         reporter,
		formatter:        NewConsoleResultFormatter(config.Log),
		scheduler:        NewDefaultBatchScheduler(config.RunInterval, config.RunOnce, config.Log),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs batches once or periodically at the configured interval.
// Start implements the cliapp.Lifecycle interface.
func (n *rat) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			n.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	n.ctx = ctx
	n.running.Store(true)

	if n.config.RunOnce {
		n.config.Log.Info("Starting repo-acceptor in run-once mode")
	} else {
		n.config.Log.Info("Starting repo-acceptor in continuous mode", "interval", n.config.RunInterval)
	}

	n.scheduler.RegisterCallback(n.runBatch)
	if err := n.scheduler.Start(ctx); err != nil {
		n.config.Log.Error("Runtime error running batch", "error", err)
		return NewRuntimeError(err)
	}

	// If in run-once mode, trigger shutdown and return
	if n.config.RunOnce {
		n.config.Log.Info("Batch completed, exiting (run-once mode)")

		if n.result != nil && n.result.Status() == types.StatusFail {
			n.config.Log.Warn("Run-once batch completed with failures, returning exit code 1")
			return NewTestFailureError(n.result.String())
		}

		// Only need to call this when we're in run-once mode and the batch passed
		go func() {
			n.shutdownCallback(nil)
		}()
		return nil // Success (exit code 0)
	}

	n.config.Log.Debug("repo-acceptor started successfully")
	return nil
}

// runBatch discovers the repository set, runs the pipeline over it, and
// publishes results to the console, the report files, and metrics.
func (n *rat) runBatch() error {
	repoNames, err := n.discoverRepos()
	if err != nil {
		metrics.RecordErrorDetails("discovery failed", err)
		return err
	}
	n.config.Log.Info("Running batch", "org", n.target.Org, "repos", len(repoNames))

	result, err := n.runner.RunBatch(n.ctx, repoNames)
	n.result = result
	if err != nil {
		// Batch-level fatal, such as the sandbox runtime being down.
		metrics.RecordErrorDetails("batch aborted", err)
		return err
	}

	if err := n.formatter.FormatResults(result); err != nil {
		n.config.Log.Error("Error formatting results", "error", err)
	}
	fmt.Println(result.String())

	if err := n.reporter.Write(result); err != nil {
		n.config.Log.Warn("Failed to write batch report", "run_id", result.RunID, "error", err)
	}

	for _, r := range result.Results {
		metrics.RecordRepoResult(n.target.Org, result.RunID, r.RepoName, r.Status())
	}
	metrics.RecordBatch(
		n.target.Org,
		result.RunID,
		result.Status(),
		result.TotalCount,
		result.SuccessCount,
		result.TotalCount-result.SuccessCount,
		result.Duration,
	)

	n.config.Log.Info("Batch run completed", "run_id", result.RunID, "status", result.Status())
	return nil
}

// discoverRepos resolves the repository sequence for one batch: a pinned
// list from the source config, a single repository from a repo URL, or the
// organization's full listing. Exclusions are applied here; the batch
// runner never sees them.
func (n *rat) discoverRepos() ([]string, error) {
	var names []string
	switch {
	case n.source != nil && len(n.source.Repos) > 0:
		names = n.source.Repos
	case n.target.Repo != "":
		names = []string{n.target.Repo}
	default:
		var err error
		names, err = n.discovery.ListRepositories(n.ctx, n.target.Org)
		if err != nil {
			return nil, err
		}
	}
	return discovery.FilterExcluded(names, n.source.EffectiveExcludes()), nil
}

// Stop stops the repo-acceptor service and cleans up the sandbox and the
// workspaces. Cleanup is best-effort and never escalates.
// Stop implements the cliapp.Lifecycle interface.
func (n *rat) Stop(ctx context.Context) error {
	n.config.Log.Info("Stopping repo-acceptor")

	// Check if we're already stopped
	if !n.running.Load() {
		n.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	// Update running state first to prevent new batch runs
	n.running.Store(false)

	if err := n.scheduler.Stop(); err != nil {
		n.config.Log.Error("Error stopping scheduler", "error", err)
	}

	if err := n.sandbox.Down(ctx); err != nil {
		n.config.Log.Warn("Failed to tear down sandbox", "error", err)
	}
	if n.config.KeepWorkspaces {
		n.config.Log.Info("Keeping workspaces", "dir", n.workspace.Root())
	} else if err := n.workspace.RemoveAll(ctx); err != nil {
		n.config.Log.Warn("Failed to remove workspaces", "error", err)
	}

	n.config.Log.Info("repo-acceptor stopped successfully")
	return nil
}

// Stopped returns true if the repo-acceptor service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (n *rat) Stopped() bool {
	return !n.running.Load()
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (n *rat) WaitForShutdown(ctx context.Context) error {
	return n.scheduler.WaitForShutdown(ctx)
}
