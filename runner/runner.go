// Package runner is the boundary to the host test runner. testrun hands it
// fully-labeled executions and consumes the per-execution results; ordering
// and parallelism policy belong to the host, the default implementation
// simply spawns one test process per execution.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"

	"github.com/lsfreitas/testrun/matrix"
)

// Status represents the possible states of a test execution.
type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusSkip  Status = "skip"
	StatusError Status = "error"
)

// ExecutionResult captures the outcome of a single execution.
type ExecutionResult struct {
	Execution matrix.Execution
	Name      string // final reported name, set by the rewrite pass
	Status    Status
	Duration  time.Duration
	Err       error
}

// Stats tracks result counts for a run.
type Stats struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
}

// Result captures the complete run results.
type Result struct {
	RunID      string
	Executions []*ExecutionResult
	Stats      Stats
	Status     Status
	Duration   time.Duration
}

// String returns a single-line summary of the run.
func (r *Result) String() string {
	return fmt.Sprintf("run %s: %d executions, %d passed, %d failed, %d skipped (%s) [%.1fs]",
		r.RunID, r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Skipped, r.Status, r.Duration.Seconds())
}

// Runner executes one labeled test execution. A returned error is a runtime
// error of the runner itself, not a test failure.
type Runner interface {
	Run(ctx context.Context, ex matrix.Execution) (*ExecutionResult, error)
}

// Config holds configuration for the exec-based runner.
type Config struct {
	Log              zerolog.Logger
	Binary           string // test interpreter/driver to spawn
	WorkDir          string // suite root; item paths are relative to it
	TempDir          string
	ExtraOptions     []string // forwarded opaquely to the spawned process
	ClusterPoolSize  int
	RandomSeed       string
	CompactionGroups int // log2 of the compaction group count, forwarded
	SaveLogOnSuccess bool
	Timeout          time.Duration
}

// execRunner spawns the configured binary once per execution.
type execRunner struct {
	config Config
}

// NewExecRunner creates the default process-spawning runner.
func NewExecRunner(cfg Config) (Runner, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("runner binary is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &execRunner{config: cfg}, nil
}

// Run implements Runner.
func (r *execRunner) Run(ctx context.Context, ex matrix.Execution) (*ExecutionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	args := append([]string{}, r.config.ExtraOptions...)
	args = append(args, filepath.Join(ex.Item.Suite, ex.Item.File))

	cmd := exec.CommandContext(ctx, r.config.Binary, args...)
	cmd.Dir = r.config.WorkDir
	cmd.Env = append(os.Environ(),
		"TESTRUN_MODE="+ex.Cell.Mode,
		"TESTRUN_ITERATION="+strconv.Itoa(ex.Cell.Iteration),
		"TESTRUN_TEST="+ex.Item.Name,
		"TESTRUN_TMPDIR="+r.config.TempDir,
	)
	if r.config.ClusterPoolSize > 0 {
		cmd.Env = append(cmd.Env, "CLUSTER_POOL_SIZE="+strconv.Itoa(r.config.ClusterPoolSize))
	}
	if r.config.RandomSeed != "" {
		cmd.Env = append(cmd.Env, "TESTRUN_RANDOM_SEED="+r.config.RandomSeed)
	}
	if r.config.CompactionGroups > 0 {
		cmd.Env = append(cmd.Env, "TESTRUN_X_LOG2_COMPACTION_GROUPS="+strconv.Itoa(r.config.CompactionGroups))
	}

	r.config.Log.Debug().
		Str("execution", ex.Name).
		Str("command", shellescape.QuoteCommand(append([]string{r.config.Binary}, args...))).
		Msg("spawning test process")

	start := time.Now()
	err := cmd.Run()
	result := &ExecutionResult{
		Execution: ex,
		Name:      ex.Name,
		Duration:  time.Since(start),
	}

	switch {
	case err == nil:
		result.Status = StatusPass
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.Status = StatusError
		result.Err = fmt.Errorf("test process timed out after %s: %w", r.config.Timeout, ctx.Err())
	case ctx.Err() != nil:
		// The outer run context was canceled (interrupt, Stop).
		result.Status = StatusError
		result.Err = fmt.Errorf("test process interrupted: %w", ctx.Err())
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			result.Status = StatusFail
			result.Err = err
		} else {
			// Anything but a plain test failure is a runner runtime error.
			return nil, fmt.Errorf("running %s: %w", ex.Name, err)
		}
	}
	return result, nil
}

// Aggregate folds per-execution results into the run-level result.
func Aggregate(runID string, executions []*ExecutionResult, duration time.Duration) *Result {
	result := &Result{
		RunID:      runID,
		Executions: executions,
		Duration:   duration,
		Status:     StatusPass,
	}
	for _, ex := range executions {
		result.Stats.Total++
		switch ex.Status {
		case StatusPass:
			result.Stats.Passed++
		case StatusSkip:
			result.Stats.Skipped++
		default:
			result.Stats.Failed++
		}
	}
	switch {
	case result.Stats.Failed > 0:
		result.Status = StatusFail
	case result.Stats.Total == result.Stats.Skipped && result.Stats.Total > 0:
		result.Status = StatusSkip
	}
	return result
}
