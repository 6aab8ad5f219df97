package flags

import (
	"testing"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestOptionalFlagsDontSetRequired asserts that all flags deemed optional set
// the Required field to false.
func TestOptionalFlagsDontSetRequired(t *testing.T) {
	for _, flag := range optionalFlags {
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok)
		require.False(t, reqFlag.IsRequired())
	}
}

// TestUniqueFlags asserts that all flag names are unique, to avoid accidental conflicts between the many flags.
func TestUniqueFlags(t *testing.T) {
	seenCLI := make(map[string]struct{})
	for _, flag := range Flags {
		name := flag.Names()[0]
		if _, ok := seenCLI[name]; ok {
			t.Errorf("duplicate flag %s", name)
			continue
		}
		seenCLI[name] = struct{}{}
	}
}

func TestHasEnvVar(t *testing.T) {
	for _, flag := range Flags {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()
			require.GreaterOrEqual(t, len(envFlags), 1, "flags should have at least one env var")
		})
	}
}

// TestEnvVarFormat asserts the primary env var of each flag follows the
// prefix convention. Flags carrying legacy aliases keep those as secondary
// env vars.
func TestEnvVarFormat(t *testing.T) {
	for _, flag := range Flags {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()

			expectedEnvVar := opservice.FlagNameToEnvVarName(flagName, EnvVarPrefix)
			require.Equal(t, expectedEnvVar, envFlags[0])
		})
	}
}

// TestLegacyEnvAliases asserts the discovery flags keep their original
// environment variable names alongside the prefixed ones.
func TestLegacyEnvAliases(t *testing.T) {
	assert.Contains(t, Org.EnvVars, "GITHUB_ORG")
	assert.Contains(t, OrgURL.EnvVars, "GITHUB_ORG_URL")
	assert.Contains(t, GithubToken.EnvVars, "GITHUB_TOKEN")
}

func TestRunIntervalDefaultsToRunOnce(t *testing.T) {
	app := &cli.App{
		Flags: []cli.Flag{RunInterval},
		Action: func(ctx *cli.Context) error {
			assert.Zero(t, ctx.Duration(RunInterval.Name))
			return nil
		},
	}
	require.NoError(t, app.Run([]string{"app"}))
}
