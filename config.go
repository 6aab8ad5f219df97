package rat

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/repo-acceptor/flags"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	Org          string // Explicit organization; takes precedence over OrgURL
	OrgURL       string // GitHub URL the organization may be derived from
	GithubToken  string
	SourceConfig string // Optional source config file pinning repos/excludes

	WorkDir        string // Directory repositories are cloned into
	ResultsDir     string // Directory the sandbox writes results artifacts into
	HarnessDir     string // Shared test scripts mounted into the sandbox
	HarnessScript  string // Harness entrypoint script
	ComposeFile    string // Compose file defining the sandbox service
	ComposeService string // Compose service the tests run in

	RunInterval    time.Duration // Interval between batches
	RunOnce        bool          // Indicates if the service should exit after one batch
	SandboxTimeout time.Duration // Timeout for one sandbox run, 0 = unbounded
	OutDir         string        // Directory batch reports are written into
	KeepWorkspaces bool          // Keep workspaces instead of removing them at shutdown

	Log log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	cfg := &Config{
		Org:            ctx.String(flags.Org.Name),
		OrgURL:         ctx.String(flags.OrgURL.Name),
		GithubToken:    ctx.String(flags.GithubToken.Name),
		SourceConfig:   ctx.String(flags.SourceConfig.Name),
		WorkDir:        ctx.String(flags.WorkDir.Name),
		ResultsDir:     ctx.String(flags.ResultsDir.Name),
		HarnessDir:     ctx.String(flags.HarnessDir.Name),
		HarnessScript:  ctx.String(flags.HarnessScript.Name),
		ComposeFile:    ctx.String(flags.ComposeFile.Name),
		ComposeService: ctx.String(flags.ComposeService.Name),
		RunInterval:    runInterval,
		RunOnce:        runOnce,
		SandboxTimeout: ctx.Duration(flags.SandboxTimeout.Name),
		OutDir:         ctx.String(flags.OutDir.Name),
		KeepWorkspaces: ctx.Bool(flags.KeepWorkspaces.Name),
		Log:            log,
	}

	// The sandbox mounts these paths, so they must be absolute by the time
	// they reach a docker invocation.
	for _, path := range []*string{
		&cfg.WorkDir, &cfg.ResultsDir, &cfg.HarnessDir,
		&cfg.HarnessScript, &cfg.ComposeFile, &cfg.OutDir,
	} {
		abs, err := filepath.Abs(*path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for '%s': %w", *path, err)
		}
		*path = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the config can support a batch. Organization
// resolution is deferred to startup (it may come from the source config or
// the API), but the sandbox inputs must exist now: a missing harness would
// silently fail every repository.
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("work directory is required")
	}
	if c.ResultsDir == "" {
		return fmt.Errorf("results directory is required")
	}
	if c.OutDir == "" {
		return fmt.Errorf("output directory is required")
	}
	for _, path := range []string{c.HarnessDir, c.HarnessScript, c.ComposeFile} {
		if path == "" {
			return fmt.Errorf("harness directory, harness script and compose file are required")
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("sandbox input '%s' is not accessible: %w", path, err)
		}
	}
	if c.SourceConfig != "" {
		if _, err := os.Stat(c.SourceConfig); err != nil {
			return fmt.Errorf("source config '%s' is not accessible: %w", c.SourceConfig, err)
		}
	}
	return nil
}
