// Package testrun orchestrates one test run: it expands the configured
// build modes and repeat count into an execution matrix, labels every
// generated execution with a reversible identity, delegates execution to
// the host runner and guarantees session setup and teardown around the
// whole thing.
package testrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.uber.org/multierr"

	"github.com/lsfreitas/testrun/identity"
	"github.com/lsfreitas/testrun/matrix"
	"github.com/lsfreitas/testrun/metrics"
	"github.com/lsfreitas/testrun/runner"
	"github.com/lsfreitas/testrun/session"
	"github.com/lsfreitas/testrun/suite"
)

// Orchestrator ties the components of one run together. It is created from
// a fully-populated Config by the host CLI; there are no implicit
// registration hooks.
type Orchestrator struct {
	config    *Config
	version   string
	registry  *suite.Registry
	generator *matrix.Generator
	session   *session.Manager
	runner    runner.Runner
	result    *runner.Result

	generatedRunID string

	running atomic.Bool

	// Async lifecycle, populated by Start.
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// New creates an orchestrator from config.
func New(cfg *Config, version string) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	registry, err := suite.NewRegistry(suite.Config{
		Log:  cfg.Log,
		Root: cfg.TestDir,
	})
	if err != nil {
		return nil, NewConfigurationError(fmt.Errorf("failed to create suite registry: %w", err))
	}

	generator, err := matrix.NewGenerator(matrix.Config{
		Log:        cfg.Log,
		Modes:      cfg.EffectiveModes(),
		Repeat:     cfg.Repeat,
		HostRunner: cfg.HostRunner,
	})
	if err != nil {
		return nil, NewConfigurationError(err)
	}

	mgr := session.NewManager(session.Config{
		Log:            cfg.Log,
		TempDir:        cfg.TempDir,
		Modes:          generator.Modes(),
		ByteLimit:      cfg.ByteLimit,
		Coverage:       cfg.Coverage,
		GatherMetrics:  cfg.GatherMetrics,
		IntegratedInit: cfg.IntegratedInit,
		CollectOnly:    cfg.CollectOnly,
		Workers:        cfg.Workers,
		Services:       cfg.Services,
		HostCleanup:    cfg.HostCleanup,
	})

	testRunner := cfg.Runner
	if testRunner == nil {
		testRunner, err = runner.NewExecRunner(runner.Config{
			Log:              cfg.Log,
			Binary:           cfg.RunnerBinary,
			WorkDir:          cfg.TestDir,
			TempDir:          cfg.TempDir,
			ExtraOptions:     cfg.ExtraCmdlineOptions,
			ClusterPoolSize:  cfg.ClusterPoolSize,
			RandomSeed:       cfg.RandomSeed,
			CompactionGroups: cfg.Log2CompactionGroups,
			SaveLogOnSuccess: cfg.SaveLogOnSuccess,
		})
		if err != nil {
			return nil, NewConfigurationError(err)
		}
	}

	return &Orchestrator{
		config:    cfg,
		version:   version,
		registry:  registry,
		generator: generator,
		session:   mgr,
		runner:    testRunner,
	}, nil
}

// Result returns the result of the last run, nil before the first one.
func (o *Orchestrator) Result() *runner.Result {
	return o.result
}

// Session exposes the session manager, mainly for artifact registration by
// embedding callers.
func (o *Orchestrator) Session() *session.Manager {
	return o.session
}

// Running reports whether a run is in flight.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Start launches Run on a background goroutine. Use Stop or WaitForShutdown
// to collect the outcome; callers that do not need the service shape can
// call Run directly.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.running.Load() {
		return errors.New("orchestrator already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	go func() {
		defer close(o.done)
		o.runErr = o.Run(runCtx)
	}()
	return nil
}

// Stop cancels an in-flight run and waits for it to wind down. Session
// teardown still happens inside Run before the done channel closes.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if o.done == nil {
		return nil
	}
	o.cancel()
	select {
	case <-o.done:
		return o.runErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopped reports whether a Start-launched run has finished.
func (o *Orchestrator) Stopped() bool {
	if o.done == nil {
		return false
	}
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// WaitForShutdown blocks until a Start-launched run finishes or ctx is
// canceled, returning the run's error.
func (o *Orchestrator) WaitForShutdown(ctx context.Context) error {
	if o.done == nil {
		return nil
	}
	select {
	case <-o.done:
		return o.runErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes the whole orchestration once: session setup, matrix
// expansion, test execution, the identity rewrite pass and session
// teardown. Teardown runs on every exit path, including setup failures and
// cancellation, so artifacts registered before an interrupt are never
// orphaned.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	if !o.running.CompareAndSwap(false, true) {
		return errors.New("orchestrator already running")
	}
	defer o.running.Store(false)

	logger := o.config.Log
	start := time.Now()

	defer func() {
		// Teardown must not run under the possibly-canceled run context.
		if terr := o.session.Finish(context.WithoutCancel(ctx)); terr != nil {
			failures := multierr.Errors(terr)
			metrics.RecordTeardownFailures(o.runID(), len(failures))
			logger.Warn().Int("failures", len(failures)).Err(terr).Msg("session teardown reported failures")
		}
	}()

	if err := o.session.Start(ctx); err != nil {
		metrics.RecordError("session_setup")
		logger.Error().Err(err).Msg("session setup failed, no tests will run")
		return err
	}

	items, err := o.registry.Discover()
	if err != nil {
		metrics.RecordError("suite_discovery")
		return NewConfigurationError(err)
	}
	executions := o.generator.Parametrize(items)
	metrics.RecordMatrix(o.runID(), len(o.generator.Cells()))

	logger.Info().
		Int("items", len(items)).
		Int("executions", len(executions)).
		Strs("modes", o.generator.Modes()).
		Msg("execution matrix expanded")

	if o.config.CollectOnly {
		o.printCollectedTable(executions)
		return nil
	}

	results := make([]*runner.ExecutionResult, 0, len(executions))
	for _, ex := range executions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result, err := o.runner.Run(ctx, ex)
		if err != nil {
			metrics.RecordError("runner_runtime")
			return fmt.Errorf("runtime error running %s: %w", ex.Name, err)
		}
		results = append(results, result)
		metrics.RecordExecution(o.runID(), ex.Cell.Mode, string(result.Status))
	}

	if err := o.rewriteNames(results); err != nil {
		return err
	}

	o.result = runner.Aggregate(o.runID(), results, time.Since(start))
	o.printResultsTable()
	fmt.Println(o.result.String())
	metrics.RecordRun(o.runID(), string(o.result.Status), o.result.Duration)
	logger.Info().Str("run_id", o.result.RunID).Str("status", string(o.result.Status)).Msg("test run completed")

	if o.result.Status == runner.StatusFail {
		return NewTestFailureError(o.result.String())
	}
	return nil
}

// runID is the correlation id used for reporting: the externally supplied
// one when present, a generated one otherwise.
func (o *Orchestrator) runID() string {
	if o.config.RunID != "" {
		return o.config.RunID
	}
	if id := o.session.SessionID(); id != "" {
		return id
	}
	if o.generatedRunID == "" {
		o.generatedRunID = uuid.NewString()
	}
	return o.generatedRunID
}

// rewriteNames moves every execution's identity token to its final suffix
// position. Names without a token pass through untouched; a name with more
// than one token is a configuration error. All rewrite errors are collected
// so one bad name does not hide another.
func (o *Orchestrator) rewriteNames(results []*runner.ExecutionResult) error {
	var errs error
	for _, result := range results {
		name, err := identity.Rewrite(result.Name, o.config.RunID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		result.Name = name
		if o.config.ScyllaLogFilename != "" {
			o.config.Log.Info().
				Str("test", result.Name).
				Str("scylla_log", o.config.ScyllaLogFilename).
				Msg("ScyllaDB log file")
		}
	}
	if errs != nil {
		metrics.RecordError("identity_rewrite")
		return NewConfigurationError(errs)
	}
	return nil
}

// printCollectedTable lists the expanded matrix without running anything.
func (o *Orchestrator) printCollectedTable(executions []matrix.Execution) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Collected %d executions", len(executions)))
	t.AppendHeader(table.Row{"Execution", "Mode", "Iteration"})
	for _, ex := range executions {
		mode := ex.Cell.Mode
		iteration := fmt.Sprintf("%d", ex.Cell.Iteration+1)
		if ex.Item.Kind == suite.KindNative {
			mode, iteration = "-", "-"
		}
		t.AppendRow(table.Row{ex.Name, mode, iteration})
	}
	t.Render()
}

// printResultsTable prints the per-execution results to the console.
func (o *Orchestrator) printResultsTable() {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Test Run Results (%.1fs)", o.result.Duration.Seconds()))

	t.AppendHeader(table.Row{"Execution", "Mode", "Duration", "Status", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Execution", WidthMax: 70, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, result := range o.result.Executions {
		errMsg := ""
		if result.Err != nil {
			errMsg = result.Err.Error()
		}
		t.AppendRow(table.Row{
			result.Name,
			result.Execution.Cell.Mode,
			fmt.Sprintf("%.1fs", result.Duration.Seconds()),
			statusString(result.Status),
			errMsg,
		})
	}

	if o.result.Status == runner.StatusPass {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else if o.result.Status == runner.StatusSkip {
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		fmt.Sprintf("%.1fs", o.result.Duration.Seconds()),
		fmt.Sprintf("%d pass / %d fail / %d skip", o.result.Stats.Passed, o.result.Stats.Failed, o.result.Stats.Skipped),
		"",
	})
	t.Render()
}

// statusString returns a colored string representing an execution result.
func statusString(status runner.Status) string {
	switch status {
	case runner.StatusPass:
		return "✓ pass"
	case runner.StatusSkip:
		return "- skip"
	default:
		return "✗ fail"
	}
}
