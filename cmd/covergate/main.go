package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	covergate "github.com/covergate/covergate"
	"github.com/covergate/covergate/exitcodes"
	"github.com/covergate/covergate/flags"
	"github.com/covergate/covergate/logging"
	"github.com/covergate/covergate/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "covergate"
	app.Usage = "Test runner and coverage gate"
	app.Description = "covergate discovers test files, runs them in parallel and enforces coverage thresholds"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			switch {
			case covergate.IsRuntimeError(err):
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			case covergate.IsCoverageFailureError(err):
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.CoverageFailure))
			case covergate.IsTestFailureError(err):
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			default:
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			}
		}
	}

	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up open telemetry: %v\n", err)
		os.Exit(exitcodes.RuntimeErr)
	}
	defer otelShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "application failed: %v\n", err)
		os.Exit(exitcodes.RuntimeErr)
	}
}

func run(cliCtx *cli.Context) error {
	log := logging.NewLogger(cliCtx.String(flags.LogLevel.Name), cliCtx.String(flags.LogFormat.Name))

	cfg, err := covergate.NewConfig(cliCtx, log)
	if err != nil {
		return covergate.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	svc := service.New(log)
	svc.Start(cliCtx.Context)
	defer svc.Shutdown()

	appCtx, cancel := context.WithCancelCause(cliCtx.Context)
	defer cancel(nil)

	gate, err := covergate.New(appCtx, cfg, Version, cancel)
	if err != nil {
		return covergate.NewRuntimeError(fmt.Errorf("failed to create covergate: %w", err))
	}

	if err := gate.Start(appCtx); err != nil {
		return err
	}

	// Test failures and coverage failures surface through Start in run-once
	// mode. In continuous mode the service runs until interrupted.
	if cfg.RunOnce {
		return nil
	}

	<-appCtx.Done()
	if err := gate.Stop(context.Background()); err != nil {
		log.Error().Err(err).Msg("error stopping covergate")
	}
	return gate.WaitForShutdown(context.Background())
}
