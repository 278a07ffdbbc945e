package covergate

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/covergate/covergate/flags"
)

// Config holds the application configuration
type Config struct {
	RootDir           string        // Root directory from which test files are discovered
	SuiteFile         string        // Path to the suite config file
	Workers           string        // Worker pool size override, absolute or fractional ("50%")
	CaseTimeoutMillis int           // Per-case timeout override in milliseconds
	Coverage          bool          // Collect coverage and enforce thresholds
	ForceExit         bool          // Exit immediately once results are reported
	RunInterval       time.Duration // Interval between test runs
	RunOnce           bool          // Indicates if the service should exit after one test run
	OutputDir         string        // Directory for coverage reports and per-file logs
	Log               zerolog.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log zerolog.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	suiteFile := ctx.String(flags.SuiteConfig.Name)
	if suiteFile == "" {
		return nil, errors.New("suite config file is required")
	}
	absSuiteFile, err := filepath.Abs(suiteFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for suite config '%s': %w", suiteFile, err)
	}

	rootDir := ctx.String(flags.RootDir.Name)
	if rootDir == "" {
		rootDir = "."
	}
	absRootDir, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for root directory '%s': %w", rootDir, err)
	}

	outputDir := ctx.String(flags.OutputDir.Name)
	if outputDir == "" {
		outputDir = "coverage"
	}
	absOutputDir, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for output directory '%s': %w", outputDir, err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	return &Config{
		RootDir:           absRootDir,
		SuiteFile:         absSuiteFile,
		Workers:           ctx.String(flags.Workers.Name),
		CaseTimeoutMillis: ctx.Int(flags.CaseTimeout.Name),
		Coverage:          ctx.Bool(flags.Coverage.Name),
		ForceExit:         ctx.Bool(flags.ForceExit.Name),
		RunInterval:       runInterval,
		RunOnce:           runOnce,
		OutputDir:         absOutputDir,
		Log:               log,
	}, nil
}
