package flags

import (
	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "TESTRUN"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	Mode = &cli.StringSliceFlag{
		Name:    "mode",
		EnvVars: prefixEnvVars("MODE"),
		Usage:   "Run only tests for given build mode(s)",
	}
	TestDir = &cli.StringFlag{
		Name:    "testdir",
		Value:   "test",
		EnvVars: prefixEnvVars("TESTDIR"),
		Usage:   "Path to the suite tree from which to discover tests",
	}
	BuildDir = &cli.StringFlag{
		Name:    "builddir",
		Value:   "build",
		EnvVars: prefixEnvVars("BUILDDIR"),
		Usage:   "Path to the build tree; its per-mode subdirectories are the fallback mode axis",
	}
	TmpDir = &cli.StringFlag{
		Name:    "tmpdir",
		Value:   "testlog",
		EnvVars: prefixEnvVars("TMPDIR"),
		Usage:   "Path to temporary test data and log files. The data is further segregated per build mode.",
	}
	RunID = &cli.StringFlag{
		Name:    "run-id",
		EnvVars: prefixEnvVars("RUN_ID"),
		Usage:   "Run id for the test run; replaces the iteration number in final test names",
	}
	ByteLimit = &cli.IntFlag{
		Name:    "byte-limit",
		Value:   -1,
		EnvVars: prefixEnvVars("BYTE_LIMIT"),
		Usage:   "Specific byte limit for failure injection (random by default)",
	}
	GatherMetrics = &cli.BoolFlag{
		Name:    "gather-metrics",
		EnvVars: prefixEnvVars("GATHER_METRICS"),
		Usage:   "Switch on gathering resource usage metrics",
	}
	RandomSeed = &cli.StringFlag{
		Name:    "random-seed",
		EnvVars: prefixEnvVars("RANDOM_SEED"),
		Usage:   "Random number generator seed to be forwarded to native test execution",
	}
	Init = &cli.BoolFlag{
		Name:    "init",
		EnvVars: prefixEnvVars("INIT"),
		Usage:   "Perform one-time session setup in this process: prepare directories and start auxiliary services",
	}
	CollectOnly = &cli.BoolFlag{
		Name:    "collect-only",
		EnvVars: prefixEnvVars("COLLECT_ONLY"),
		Usage:   "List the expanded execution matrix without running tests or session setup",
	}
	SaveLogOnSuccess = &cli.BoolFlag{
		Name:    "save-log-on-success",
		EnvVars: prefixEnvVars("SAVE_LOG_ON_SUCCESS"),
		Usage:   "Save test log output on success",
	}
	Coverage = &cli.BoolFlag{
		Name:    "coverage",
		EnvVars: prefixEnvVars("COVERAGE"),
		Usage:   "Route coverage profiles to per-suite directories under tmpdir/<mode>/coverage",
	}
	CoverageMode = &cli.StringSliceFlag{
		Name:    "coverage-mode",
		EnvVars: prefixEnvVars("COVERAGE_MODE"),
		Usage:   "Collect and process coverage only for the modes specified. Implies: --coverage",
	}
	ClusterPoolSize = &cli.IntFlag{
		Name:    "cluster-pool-size",
		EnvVars: append(prefixEnvVars("CLUSTER_POOL_SIZE"), "CLUSTER_POOL_SIZE"),
		Usage:   "Set the cluster pool size for test instances. The CLUSTER_POOL_SIZE environment variable can be used to achieve the same.",
	}
	ExtraCmdlineOptions = &cli.StringFlag{
		Name:    "extra-cmdline-options",
		EnvVars: prefixEnvVars("EXTRA_CMDLINE_OPTIONS"),
		Usage:   "Extra options forwarded to spawned test processes. Options should be space separated.",
	}
	Repeat = &cli.IntFlag{
		Name:    "repeat",
		Value:   1,
		EnvVars: prefixEnvVars("REPEAT"),
		Usage:   "Number of times to repeat test execution",
	}
	Log2CompactionGroups = &cli.IntFlag{
		Name:    "x-log2-compaction-groups",
		Value:   0,
		EnvVars: prefixEnvVars("X_LOG2_COMPACTION_GROUPS"),
		Usage:   "Controls the number of compaction groups used by the tests. Value of 3 implies 8 groups.",
	}
	ScyllaLogFilename = &cli.StringFlag{
		Name:    "scylla-log-filename",
		EnvVars: prefixEnvVars("SCYLLA_LOG_FILENAME"),
		Usage:   "Path to a log file of a ScyllaDB node, reported for diagnostic purposes",
	}
	HostRunner = &cli.StringFlag{
		Name:    "host-runner",
		Value:   "integrated",
		EnvVars: prefixEnvVars("HOST_RUNNER"),
		Usage:   "Who parametrizes discovered tests: 'integrated' (this process) or 'external' (the host runner performs its own parametrization)",
	}
	RunnerBinary = &cli.StringFlag{
		Name:    "runner-binary",
		Value:   "pytest",
		EnvVars: prefixEnvVars("RUNNER_BINARY"),
		Usage:   "Test driver binary spawned for each execution",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "The lowest log level that will be output",
	}
	LogFormat = &cli.StringFlag{
		Name:    "log-format",
		Value:   "console",
		EnvVars: prefixEnvVars("LOG_FORMAT"),
		Usage:   "Format the log output. Supported formats: 'console', 'json'",
	}
)

var Flags = []cli.Flag{
	Mode,
	TestDir,
	BuildDir,
	TmpDir,
	RunID,
	ByteLimit,
	GatherMetrics,
	RandomSeed,
	Init,
	CollectOnly,
	SaveLogOnSuccess,
	Coverage,
	CoverageMode,
	ClusterPoolSize,
	ExtraCmdlineOptions,
	Repeat,
	Log2CompactionGroups,
	ScyllaLogFilename,
	HostRunner,
	RunnerBinary,
	LogLevel,
	LogFormat,
}
