package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	testrun "github.com/lsfreitas/testrun"
	"github.com/lsfreitas/testrun/exitcodes"
	"github.com/lsfreitas/testrun/flags"
	"github.com/lsfreitas/testrun/service"
	"github.com/lsfreitas/testrun/session"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "testrun"
	app.Usage = "Mode/iteration test matrix orchestrator"
	app.Description = "testrun expands suites across build modes and repeat iterations, runs them and reports per-execution results"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			switch {
			case testrun.IsConfigurationError(err) || session.IsSetupError(err):
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			case testrun.IsTestFailureError(err):
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			default:
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "testrun: %v\n", err)
		os.Exit(exitcodes.RuntimeErr)
	}
}

func run(ctx *cli.Context) error {
	logger, err := setupLogger(ctx)
	if err != nil {
		return testrun.NewConfigurationError(err)
	}

	cfg, err := testrun.NewConfig(ctx, logger)
	if err != nil {
		return err
	}

	if cfg.GatherMetrics {
		svc := service.New()
		svc.Start(ctx.Context)
		defer svc.Shutdown()
	}

	orch, err := testrun.New(cfg, Version)
	if err != nil {
		return err
	}

	logger.Info().
		Str("version", Version).
		Strs("modes", cfg.EffectiveModes()).
		Int("repeat", cfg.Repeat).
		Msg("starting test run")

	return orch.Run(ctx.Context)
}

func setupLogger(ctx *cli.Context) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(ctx.String(flags.LogLevel.Name)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", ctx.String(flags.LogLevel.Name), err)
	}

	var out zerolog.Logger
	switch format := ctx.String(flags.LogFormat.Name); format {
	case "console":
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	case "json":
		out = zerolog.New(os.Stderr)
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q, expected console or json", format)
	}
	return out.Level(level).With().Timestamp().Logger(), nil
}
