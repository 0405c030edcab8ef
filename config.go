package testrun

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/lsfreitas/testrun/flags"
	"github.com/lsfreitas/testrun/matrix"
	"github.com/lsfreitas/testrun/runner"
	"github.com/lsfreitas/testrun/session"
)

// Config holds the application configuration, built from the command line
// exactly once and immutable for the run.
type Config struct {
	TestDir              string   // suite tree root
	BuildDir             string   // build tree, fallback source of the mode axis
	TempDir              string   // root for all per-mode working directories
	Modes                []string // restricted mode axis; empty means "configured modes"
	RunID                string   // external correlation token, optional
	ByteLimit            int      // fault-injection parameter for auxiliary services
	GatherMetrics        bool     // gather resource-usage metrics during setup
	RandomSeed           string   // forwarded to native test execution
	IntegratedInit       bool     // this process performs one-time session setup
	CollectOnly          bool     // list the matrix, run nothing
	SaveLogOnSuccess     bool     // forwarded; no effect on core logic
	Coverage             bool
	CoverageModes        []string // restrict coverage processing; implies Coverage
	ClusterPoolSize      int      // forwarded to test instances
	ExtraCmdlineOptions  []string // forwarded opaquely to spawned test processes
	Repeat               int      // size of the iteration axis
	Log2CompactionGroups int      // forwarded opaquely
	ScyllaLogFilename    string   // diagnostic path, reported per test
	RunnerBinary         string
	HostRunner           matrix.HostRunner

	// Optional wiring overrides, used by tests and embedding callers.
	Services    []session.ServiceStarter
	Runner      runner.Runner
	Workers     session.WorkerIdentity
	HostCleanup session.CleanupFunc // drained by every worker on Finish

	Log zerolog.Logger
}

// NewConfig creates a new Config from the cli context. Validation failures
// are ConfigurationErrors and fail the run before any matrix generation.
func NewConfig(ctx *cli.Context, log zerolog.Logger) (*Config, error) {
	repeat := ctx.Int(flags.Repeat.Name)
	if repeat < 1 {
		return nil, NewConfigurationError(fmt.Errorf("repeat count must be positive, got %d", repeat))
	}

	modes := ctx.StringSlice(flags.Mode.Name)
	for _, mode := range modes {
		if !matrix.KnownMode(mode) {
			return nil, NewConfigurationError(fmt.Errorf("unknown mode %q, expected one of %s",
				mode, strings.Join(matrix.AllModes, ", ")))
		}
	}

	tempDir, err := filepath.Abs(ctx.String(flags.TmpDir.Name))
	if err != nil {
		return nil, NewConfigurationError(fmt.Errorf("failed to resolve temp directory: %w", err))
	}
	testDir, err := filepath.Abs(ctx.String(flags.TestDir.Name))
	if err != nil {
		return nil, NewConfigurationError(fmt.Errorf("failed to resolve test directory: %w", err))
	}
	buildDir, err := filepath.Abs(ctx.String(flags.BuildDir.Name))
	if err != nil {
		return nil, NewConfigurationError(fmt.Errorf("failed to resolve build directory: %w", err))
	}

	byteLimit := ctx.Int(flags.ByteLimit.Name)
	if !ctx.IsSet(flags.ByteLimit.Name) || byteLimit < 0 {
		byteLimit = rand.Intn(2000)
	}

	coverageModes := ctx.StringSlice(flags.CoverageMode.Name)
	for _, mode := range coverageModes {
		if !matrix.KnownMode(mode) {
			return nil, NewConfigurationError(fmt.Errorf("unknown coverage mode %q", mode))
		}
	}
	coverage := ctx.Bool(flags.Coverage.Name) || len(coverageModes) > 0

	hostRunner := matrix.HostRunner(ctx.String(flags.HostRunner.Name))
	switch hostRunner {
	case matrix.RunnerIntegrated, matrix.RunnerExternal:
	default:
		return nil, NewConfigurationError(fmt.Errorf("unknown host runner %q, expected %q or %q",
			hostRunner, matrix.RunnerIntegrated, matrix.RunnerExternal))
	}

	return &Config{
		TestDir:              testDir,
		BuildDir:             buildDir,
		TempDir:              tempDir,
		Modes:                modes,
		RunID:                ctx.String(flags.RunID.Name),
		ByteLimit:            byteLimit,
		GatherMetrics:        ctx.Bool(flags.GatherMetrics.Name),
		RandomSeed:           ctx.String(flags.RandomSeed.Name),
		IntegratedInit:       ctx.Bool(flags.Init.Name),
		CollectOnly:          ctx.Bool(flags.CollectOnly.Name),
		SaveLogOnSuccess:     ctx.Bool(flags.SaveLogOnSuccess.Name),
		Coverage:             coverage,
		CoverageModes:        coverageModes,
		ClusterPoolSize:      ctx.Int(flags.ClusterPoolSize.Name),
		ExtraCmdlineOptions:  strings.Fields(ctx.String(flags.ExtraCmdlineOptions.Name)),
		Repeat:               repeat,
		Log2CompactionGroups: ctx.Int(flags.Log2CompactionGroups.Name),
		ScyllaLogFilename:    ctx.String(flags.ScyllaLogFilename.Name),
		RunnerBinary:         ctx.String(flags.RunnerBinary.Name),
		HostRunner:           hostRunner,
		Log:                  log,
	}, nil
}

// EffectiveModes returns the mode axis for the run: the explicit --mode
// selection, or the modes the build tree is configured for.
func (c *Config) EffectiveModes() []string {
	if len(c.Modes) > 0 {
		return c.Modes
	}
	return matrix.ConfiguredModes(c.BuildDir)
}
