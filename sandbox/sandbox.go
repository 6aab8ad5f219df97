// Package sandbox drives the containerized test environment: image build,
// harness execution with the workspace mounted, and retrieval of the
// results artifact each run leaves behind.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/repo-acceptor/results"
	"github.com/ethereum-optimism/infra/repo-acceptor/types"
)

// Fixed in-sandbox paths the harness contract is built around. The harness
// script resolves the repository, shared scripts, and output location at
// these mounts regardless of where they live on the host.
const (
	repoMount    = "/workspace/current_repo"
	scriptsMount = "/workspace/test_scripts"
	resultsMount = "/workspace/results"
	harnessMount = "/workspace/docker_test_script.sh"
)

// DefaultProbeTimeout bounds the one-time liveness probe of the container
// runtime. A runtime that cannot answer `docker version` within this window
// is treated as down.
const DefaultProbeTimeout = 10 * time.Second

// Runner executes one repository's tests inside the compose service.
type Runner struct {
	dockerBinary  string
	composeFile   string
	projectDir    string
	service       string
	harnessDir    string
	harnessScript string
	resultsDir    string
	probeTimeout  time.Duration
	runTimeout    time.Duration
	log           log.Logger
}

// Config holds configuration for creating a new sandbox runner.
type Config struct {
	DockerBinary  string // defaults to "docker"
	ComposeFile   string // compose file defining the test-runner service
	ProjectDir    string // working directory for compose commands, defaults to the compose file's directory
	Service       string // compose service name, defaults to "test-runner"
	HarnessDir    string // host directory of shared test scripts
	HarnessScript string // host path of the harness entrypoint script
	ResultsDir    string // host directory that collects per-repository results
	ProbeTimeout  time.Duration
	RunTimeout    time.Duration // 0 means unbounded
	Log           log.Logger
}

// NewRunner creates a sandbox runner and the host-side results directory.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.ComposeFile == "" {
		return nil, fmt.Errorf("compose file is required")
	}
	if cfg.HarnessDir == "" {
		return nil, fmt.Errorf("harness scripts directory is required")
	}
	if cfg.HarnessScript == "" {
		return nil, fmt.Errorf("harness script is required")
	}
	if cfg.ResultsDir == "" {
		return nil, fmt.Errorf("results directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.DockerBinary == "" {
		cfg.DockerBinary = "docker"
	}
	if cfg.Service == "" {
		cfg.Service = "test-runner"
	}
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = filepath.Dir(cfg.ComposeFile)
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}

	if err := os.MkdirAll(cfg.ResultsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory %s: %w", cfg.ResultsDir, err)
	}

	return &Runner{
		dockerBinary:  cfg.DockerBinary,
		composeFile:   cfg.ComposeFile,
		projectDir:    cfg.ProjectDir,
		service:       cfg.Service,
		harnessDir:    cfg.HarnessDir,
		harnessScript: cfg.HarnessScript,
		resultsDir:    cfg.ResultsDir,
		probeTimeout:  cfg.ProbeTimeout,
		runTimeout:    cfg.RunTimeout,
		log:           cfg.Log,
	}, nil
}

// CheckAvailable probes the container runtime once with a short timeout.
// Callers check this at batch start and never per repository.
func (r *Runner) CheckAvailable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.dockerBinary, "version")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("sandbox runtime did not respond within %v", r.probeTimeout)
		}
		return fmt.Errorf("sandbox runtime is not available: %w", err)
	}
	return nil
}

// Build prepares the sandbox image. The build is idempotent and safe to
// repeat for every repository; the runtime's layer cache absorbs the cost.
func (r *Runner) Build(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, r.dockerBinary, "compose", "-f", r.composeFile, "build", r.service)
	cmd.Dir = r.projectDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return err
	}
	return nil
}

// Down tears the compose environment and its volumes down. Best-effort
// cleanup at shutdown.
func (r *Runner) Down(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, r.dockerBinary, "compose", "-f", r.composeFile, "down", "-v")
	cmd.Dir = r.projectDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return err
	}
	return nil
}

// ArtifactPath returns where the harness is expected to leave the results
// artifact for a repository.
func (r *Runner) ArtifactPath(repoName string) string {
	return filepath.Join(r.resultsDir, repoName, repoName+"_results.json")
}

// Run executes the repository's tests in the sandbox and ingests the
// results artifact. The returned result is always complete; every failure
// mode is recorded in it rather than raised. Success is decided by the
// artifact's counts alone, never by the container exit code.
func (r *Runner) Run(ctx context.Context, repoName, repoPath string) *types.RunResult {
	result := &types.RunResult{RepoName: repoName, ExitCode: -1}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
	}()

	r.log.Info("Building sandbox image", "repo", repoName)
	if err := r.Build(ctx); err != nil {
		r.log.Error("Sandbox build failed", "repo", repoName, "err", err)
		result.Error = fmt.Sprintf("Docker compose failed: %v", err)
		return result
	}

	repoResultsDir := filepath.Join(r.resultsDir, repoName)
	if err := os.MkdirAll(repoResultsDir, 0755); err != nil {
		result.Error = fmt.Sprintf("failed to create results directory: %v", err)
		return result
	}

	runCtx := ctx
	if r.runTimeout != 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.runTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, r.dockerBinary, r.runArgs(repoName, repoPath, repoResultsDir)...)
	cmd.Dir = r.projectDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Info("Executing tests in sandbox", "repo", repoName)
	r.log.Debug("Running sandbox command", "command", cmd.String(), "dir", cmd.Dir, "timeout", r.runTimeout)

	runErr := cmd.Run()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// The process never ran; there is no artifact to look for.
			r.log.Error("Failed to launch sandbox", "repo", repoName, "err", runErr)
			result.ExitCode = -1
			result.Error = fmt.Sprintf("Docker compose failed: %v", runErr)
			return result
		}
		// A non-zero exit is a normal outcome; the artifact decides.
		if runCtx.Err() == context.DeadlineExceeded {
			r.log.Warn("Sandbox run timed out", "repo", repoName, "timeout", r.runTimeout)
			result.Error = fmt.Sprintf("sandbox run timed out after %v", r.runTimeout)
		}
	}

	result.Report = r.readArtifact(repoName)
	result.Success = result.Report.Successful()

	if result.Report.Error == "" {
		r.log.Info("Test run analyzed",
			"repo", repoName,
			"total", result.Report.Total,
			"failed", result.Report.Failed,
			"errors", result.Report.Errored,
			"success", result.Success)
	}
	return result
}

// readArtifact loads and parses the repository's results artifact. The
// process may have exited non-zero or been killed; a crashing or hung
// harness can still have flushed partial results, so the artifact is
// always consulted.
func (r *Runner) readArtifact(repoName string) *types.TestReport {
	path := r.ArtifactPath(repoName)

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.log.Warn("Results artifact not found", "repo", repoName, "path", path)
			return &types.TestReport{Error: "Results file not created"}
		}
		r.log.Warn("Results artifact not readable", "repo", repoName, "path", path, "err", err)
		return &types.TestReport{Error: fmt.Sprintf("Failed to read results file: %v", err)}
	}

	report, err := results.Parse(raw)
	if err != nil {
		r.log.Warn("Results artifact is malformed", "repo", repoName, "path", path, "err", err)
		return &types.TestReport{Error: fmt.Sprintf("Failed to parse JSON: %v", err)}
	}
	return report
}

// runArgs assembles the compose invocation for one repository: the cloned
// repository, the shared scripts, the per-repository results directory,
// and the harness entrypoint, all at their fixed in-sandbox paths.
func (r *Runner) runArgs(repoName, repoPath, repoResultsDir string) []string {
	return []string{
		"compose", "-f", r.composeFile,
		"run", "--rm",
		"-v", repoPath + ":" + repoMount,
		"-v", r.harnessDir + ":" + scriptsMount,
		"-v", repoResultsDir + ":" + resultsMount,
		"-v", r.harnessScript + ":" + harnessMount,
		r.service,
		"bash", harnessMount, repoName,
	}
}
