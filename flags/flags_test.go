package flags

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestUniqueFlags asserts that all flag names are unique, to avoid
// accidental conflicts between the many flags.
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
			envFlag, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "flag %s must support env vars", flagName)
			envVars := envFlag.GetEnvVars()
			require.NotEmpty(t, envVars, "flag %s must have an env var", flagName)
			require.True(t, strings.HasPrefix(envVars[0], EnvVarPrefix+"_"),
				"flag %s env var %s must start with %s_", flagName, envVars[0], EnvVarPrefix)
		})
	}
}

// TestClusterPoolSizeEnvAlias asserts that the bare CLUSTER_POOL_SIZE
// environment variable keeps working alongside the prefixed one.
func TestClusterPoolSizeEnvAlias(t *testing.T) {
	require.Contains(t, ClusterPoolSize.GetEnvVars(), "CLUSTER_POOL_SIZE")
	require.Contains(t, ClusterPoolSize.GetEnvVars(), EnvVarPrefix+"_CLUSTER_POOL_SIZE")
}

func TestFlagDefaults(t *testing.T) {
	app := cli.NewApp()
	app.Flags = Flags
	app.Action = func(ctx *cli.Context) error {
		require.Equal(t, 1, ctx.Int(Repeat.Name))
		require.Equal(t, "testlog", ctx.String(TmpDir.Name))
		require.Equal(t, -1, ctx.Int(ByteLimit.Name))
		require.False(t, ctx.Bool(Init.Name))
		require.Equal(t, 0, ctx.Int(Log2CompactionGroups.Name))
		require.Equal(t, "integrated", ctx.String(HostRunner.Name))
		return nil
	}
	require.NoError(t, app.Run([]string{"testrun"}))
}
