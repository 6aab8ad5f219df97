package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

const EnvVarPrefix = "REPO_ACCEPTOR"

var (
	Org = &cli.StringFlag{
		Name:    "org",
		Value:   "",
		EnvVars: append(opservice.PrefixEnvVar(EnvVarPrefix, "ORG"), "GITHUB_ORG"),
		Usage:   "GitHub organization whose repositories are tested (eg. 'my-org')",
	}
	OrgURL = &cli.StringFlag{
		Name:    "org-url",
		Value:   "",
		EnvVars: append(opservice.PrefixEnvVar(EnvVarPrefix, "ORG_URL"), "GITHUB_ORG_URL"),
		Usage:   "GitHub URL to derive the organization from; --org takes precedence",
	}
	GithubToken = &cli.StringFlag{
		Name:    "github-token",
		Value:   "",
		EnvVars: append(opservice.PrefixEnvVar(EnvVarPrefix, "GITHUB_TOKEN"), "GITHUB_TOKEN"),
		Usage:   "GitHub API token; optional for public organizations",
	}
	SourceConfig = &cli.StringFlag{
		Name:    "source-config",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SOURCE_CONFIG"),
		Usage:   "Path to a source config file pinning repositories and exclusions (eg. 'sources.yaml')",
	}
	WorkDir = &cli.StringFlag{
		Name:    "work-dir",
		Value:   "repos",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORK_DIR"),
		Usage:   "Directory repositories are cloned into",
	}
	ResultsDir = &cli.StringFlag{
		Name:    "results-dir",
		Value:   "results",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RESULTS_DIR"),
		Usage:   "Directory the sandbox writes results artifacts into",
	}
	HarnessDir = &cli.StringFlag{
		Name:    "harness-dir",
		Value:   "repo_test_scripts",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HARNESS_DIR"),
		Usage:   "Directory of shared test scripts mounted into the sandbox",
	}
	HarnessScript = &cli.StringFlag{
		Name:    "harness-script",
		Value:   "docker_test_script.sh",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HARNESS_SCRIPT"),
		Usage:   "Harness entrypoint script executed inside the sandbox",
	}
	ComposeFile = &cli.StringFlag{
		Name:    "compose-file",
		Value:   "docker-compose.yml",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COMPOSE_FILE"),
		Usage:   "Compose file defining the sandbox test-runner service",
	}
	ComposeService = &cli.StringFlag{
		Name:    "compose-service",
		Value:   "test-runner",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COMPOSE_SERVICE"),
		Usage:   "Compose service the tests run in",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between batches (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	SandboxTimeout = &cli.DurationFlag{
		Name:    "sandbox-timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SANDBOX_TIMEOUT"),
		Usage:   "Timeout for one repository's sandbox run. Set to 0 or omit for unbounded.",
	}
	OutDir = &cli.StringFlag{
		Name:    "out-dir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OUT_DIR"),
		Usage:   "Directory batch reports are written into",
	}
	KeepWorkspaces = &cli.BoolFlag{
		Name:    "keep-workspaces",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "KEEP_WORKSPACES"),
		Usage:   "Keep cloned workspaces instead of removing them at shutdown",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	Org,
	OrgURL,
	GithubToken,
	SourceConfig,
	WorkDir,
	ResultsDir,
	HarnessDir,
	HarnessScript,
	ComposeFile,
	ComposeService,
	RunInterval,
	SandboxTimeout,
	OutDir,
	KeepWorkspaces,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
