package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "COVERGATE"

func prefixEnvVar(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	RootDir = &cli.StringFlag{
		Name:    "root",
		Value:   ".",
		EnvVars: prefixEnvVar("ROOT"),
		Usage:   "Root directory from which test files are discovered",
	}
	SuiteConfig = &cli.StringFlag{
		Name:     "config",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVar("CONFIG"),
		Usage:    "Path to suite config file (eg. 'covergate.yaml')",
	}
	Workers = &cli.StringFlag{
		Name:    "workers",
		Value:   "",
		EnvVars: prefixEnvVar("WORKERS"),
		Usage:   "Worker pool size, absolute ('4') or a fraction of CPUs ('50%'). Overrides the suite config.",
	}
	CaseTimeout = &cli.IntFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: prefixEnvVar("TIMEOUT"),
		Usage:   "Per-case timeout in milliseconds. Overrides the suite config.",
	}
	Coverage = &cli.BoolFlag{
		Name:    "coverage",
		Value:   true,
		EnvVars: prefixEnvVar("COVERAGE"),
		Usage:   "Collect coverage and enforce thresholds",
	}
	ForceExit = &cli.BoolFlag{
		Name:    "force-exit",
		Value:   false,
		EnvVars: prefixEnvVar("FORCE_EXIT"),
		Usage:   "Exit immediately once results are reported, even if handles are still open",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVar("RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	OutputDir = &cli.StringFlag{
		Name:    "output-dir",
		Value:   "coverage",
		EnvVars: prefixEnvVar("OUTPUT_DIR"),
		Usage:   "Directory where coverage reports and per-file logs are written",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVar("LOG_LEVEL"),
		Usage:   "Log level (trace, debug, info, warn, error)",
	}
	LogFormat = &cli.StringFlag{
		Name:    "log-format",
		Value:   "console",
		EnvVars: prefixEnvVar("LOG_FORMAT"),
		Usage:   "Log format (console, json)",
	}
)

var requiredFlags = []cli.Flag{
	SuiteConfig,
}

var optionalFlags = []cli.Flag{
	RootDir,
	Workers,
	CaseTimeout,
	Coverage,
	ForceExit,
	RunInterval,
	OutputDir,
	LogLevel,
	LogFormat,
}

var Flags []cli.Flag

func init() {
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
