package covergate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/covergate/covergate/coverage"
	"github.com/covergate/covergate/exitcodes"
	"github.com/covergate/covergate/handles"
	"github.com/covergate/covergate/logging"
	"github.com/covergate/covergate/metrics"
	"github.com/covergate/covergate/registry"
	"github.com/covergate/covergate/reporting"
	"github.com/covergate/covergate/resolver"
	"github.com/covergate/covergate/runner"
	"github.com/covergate/covergate/transform"
	"github.com/covergate/covergate/types"
)

// gate runs the test suite, enforces coverage thresholds, and reports.
type gate struct {
	ctx      context.Context
	config   *Config
	version  string
	registry *registry.Registry
	verdict  *types.RunVerdict

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*gate, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug().
		Str("rootDir", config.RootDir).
		Str("suiteFile", config.SuiteFile).
		Dur("runInterval", config.RunInterval).
		Bool("runOnce", config.RunOnce).
		Msg("creating covergate")

	reg, err := registry.NewRegistry(registry.Config{
		Log:       config.Log,
		RootDir:   config.RootDir,
		SuiteFile: config.SuiteFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	// Command-line overrides win over the suite file.
	suite := reg.Suite()
	if config.Workers != "" {
		suite.Workers = config.Workers
	}
	if config.CaseTimeoutMillis > 0 {
		suite.CaseTimeoutMillis = config.CaseTimeoutMillis
	}
	if !config.Coverage {
		suite.Coverage.Enabled = false
	}
	if config.ForceExit {
		suite.ForceExit = true
	}

	config.Log.Info().
		Int("testFiles", len(reg.TestFiles())).
		Msg("created registry")

	return &gate{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the suite immediately and then, in continuous mode, again at
// every configured interval.
func (g *gate) Start(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			g.config.Log.Error().Interface("panic", r).Msg("runtime error occurred")
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	g.ctx = ctx
	g.done = make(chan struct{})
	g.running.Store(true)

	if g.config.RunOnce {
		g.config.Log.Info().Msg("starting covergate in run-once mode")
	} else {
		g.config.Log.Info().Dur("interval", g.config.RunInterval).Msg("starting covergate in continuous mode")
	}

	if err := g.runTests(); err != nil {
		g.config.Log.Error().Err(err).Msg("runtime error running tests")
		return NewRuntimeError(err)
	}

	if g.config.RunOnce {
		g.config.Log.Info().Msg("run completed, exiting (run-once mode)")

		if g.verdict != nil && !g.verdict.TestsPass {
			return NewTestFailureError(fmt.Sprintf("%d of %d cases failed",
				g.verdict.Stats.Failed, g.verdict.Stats.Total))
		}
		if g.verdict != nil && !g.verdict.CoverPass {
			return NewCoverageFailureError(fmt.Sprintf("%d threshold violations", len(g.verdict.Violations)))
		}

		go func() {
			g.shutdownCallback(nil)
		}()
		return nil
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.config.Log.Debug().Dur("interval", g.config.RunInterval).Msg("starting periodic test runner goroutine")

		for {
			select {
			case <-time.After(g.config.RunInterval):
				if !g.running.Load() {
					g.config.Log.Debug().Msg("service stopped, exiting periodic test runner")
					return
				}
				g.config.Log.Info().Msg("running periodic tests")
				if err := g.runTests(); err != nil {
					g.config.Log.Error().Err(err).Msg("error running periodic tests")
					metrics.RecordError("periodic_run")
				}

			case <-g.done:
				g.config.Log.Debug().Msg("done signal received, stopping periodic test runner")
				return

			case <-ctx.Done():
				g.config.Log.Debug().Msg("context canceled, stopping periodic test runner")
				g.running.Store(false)
				return
			}
		}
	}()
	g.config.Log.Debug().Msg("covergate started successfully")
	return nil
}

// runTests executes one full run: setup hook, parallel execution, threshold
// evaluation, teardown hook, leak detection, reports, console table.
func (g *gate) runTests() error {
	ctx := g.ctx
	suite := g.registry.Suite()

	workers, err := g.registry.WorkerCount()
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	tracker := handles.NewTracker()
	res := resolver.New(os.DirFS(g.config.RootDir), g.registry.AliasRules())

	fileLogger, err := logging.NewFileLogger(filepath.Join(g.config.OutputDir, "logs"), runID)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}

	testRunner, err := runner.NewRunner(runner.Config{
		Log:         g.config.Log,
		Registry:    g.registry,
		Resolver:    res,
		Cache:       transform.NewCache(suite.CacheDir),
		Tracker:     tracker,
		FileLogger:  fileLogger,
		RootDir:     g.config.RootDir,
		Concurrency: workers,
		RunID:       runID,
	})
	if err != nil {
		return fmt.Errorf("failed to create test runner: %w", err)
	}

	coordinator := runner.NewCoordinator(testRunner)
	tornDown := false
	teardown := func() {
		if tornDown {
			return
		}
		tornDown = true
		if err := coordinator.Teardown(ctx); err != nil {
			g.config.Log.Error().Err(err).Msg("global teardown failed")
			metrics.RecordError("teardown")
		}
	}
	defer teardown()

	if err := coordinator.Setup(ctx); err != nil {
		metrics.RecordError("setup")
		return err
	}

	result, err := testRunner.RunAll(ctx)
	if err != nil {
		metrics.RecordError("run")
		return err
	}

	var eval *coverage.Evaluation
	if suite.Coverage.Enabled {
		eval = coverage.Evaluate(result.Aggregate, suite.Coverage.Thresholds.Global, g.registry.ThresholdRules())
	}

	// Teardown runs before leak detection so that handles released by the
	// teardown hook do not count as leaks.
	teardown()

	var leaks []types.Leak
	if suite.DetectOpenHandles {
		leaks = tracker.Leaks()
		handles.Report(g.config.Log, leaks)
	}

	verdict := buildVerdict(result, eval, leaks)
	g.verdict = verdict

	if suite.Coverage.Enabled {
		dir := suite.Coverage.Dir
		if dir == "" {
			dir = g.config.OutputDir
		} else if !filepath.IsAbs(dir) {
			dir = filepath.Join(g.config.RootDir, dir)
		}
		data := reporting.Build(verdict, result.Aggregate)
		if err := reporting.WriteAll(dir, suite.Coverage.Reports, data); err != nil {
			metrics.RecordError("reporting")
			return fmt.Errorf("failed to write coverage reports: %w", err)
		}
		g.config.Log.Info().Str("dir", dir).Msg("coverage reports written")
	}

	g.printResultsTable(verdict, eval)
	g.emitMetrics(verdict, eval)

	g.config.Log.Info().
		Str("runID", runID).
		Bool("passed", verdict.Passed).
		Msg("test run completed")

	// A force-exit suite does not wait for anything still holding handles.
	if suite.ForceExit && tracker.OpenCount() > 0 {
		g.config.Log.Warn().Int("openHandles", tracker.OpenCount()).Msg("force exit with open handles")
		os.Exit(exitCodeFor(verdict))
	}
	return nil
}

// buildVerdict assembles the immutable run verdict from the raw result, the
// threshold evaluation and the leak report.
func buildVerdict(result *runner.Result, eval *coverage.Evaluation, leaks []types.Leak) *types.RunVerdict {
	testsPass := result.Stats.Failed == 0 &&
		result.Stats.TimedOut == 0 &&
		result.Stats.Errored == 0 &&
		!result.DeprecatedFailure

	coverPass := eval == nil || eval.Passed()

	v := &types.RunVerdict{
		RunID:         result.RunID,
		TestsPass:     testsPass,
		CoverPass:     coverPass,
		Passed:        testsPass && coverPass,
		Stats:         result.Stats,
		Files:         result.Files,
		Leaks:         leaks,
		Duration:      result.Duration,
		WallClockTime: result.WallClockTime,
		Start:         result.Start,
	}
	if eval != nil {
		v.Violations = eval.Violations()
	}
	return v
}

// exitCodeFor maps a verdict to the process exit code. Test failures win
// over coverage failures when both occurred.
func exitCodeFor(v *types.RunVerdict) int {
	switch {
	case v == nil:
		return exitcodes.RuntimeErr
	case !v.TestsPass:
		return exitcodes.TestFailure
	case !v.CoverPass:
		return exitcodes.CoverageFailure
	default:
		return exitcodes.Success
	}
}

// printResultsTable prints the per-file results and the coverage verdict to
// the console.
func (g *gate) printResultsTable(v *types.RunVerdict, eval *coverage.Evaluation) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Test Results (%s)", formatDuration(v.WallClockTime)))

	t.AppendHeader(table.Row{
		"File", "Cases", "Passed", "Failed", "Duration", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "File", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Cases", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, path := range sortedFilePaths(v.Files) {
		fr := v.Files[path]
		passed, failed := 0, 0
		for _, c := range fr.Cases {
			if c.Status == types.CaseStatusPass {
				passed++
			} else {
				failed++
			}
		}
		t.AppendRow(table.Row{
			types.DisplayName(path),
			len(fr.Cases),
			passed,
			failed,
			formatDuration(fr.Duration),
			resultString(!fr.Failed()),
			firstError(fr),
		})
	}

	if v.Passed {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		v.Stats.Total,
		v.Stats.Passed,
		v.Stats.Failed,
		formatDuration(v.Duration),
		resultString(v.Passed),
		"",
	})
	t.Render()

	if eval != nil {
		if eval.Global != nil {
			for _, m := range coverage.MetricNames {
				fmt.Printf("%-10s %6.2f%%\n", m, eval.Global.Metrics[m].Percent())
			}
		}
		for _, viol := range v.Violations {
			fmt.Println(viol.Error())
		}
	}
	for _, leak := range v.Leaks {
		fmt.Printf("open handle: %s %q opened at %s:%d\n", leak.Kind, leak.Name, leak.File, leak.Line)
	}
}

// emitMetrics records the run outcome with Prometheus.
func (g *gate) emitMetrics(v *types.RunVerdict, eval *coverage.Evaluation) {
	status := "pass"
	if !v.Passed {
		status = "fail"
	}
	metrics.RecordRun(v.RunID, status, v.Stats.Passed,
		v.Stats.Failed-v.Stats.TimedOut, v.Stats.TimedOut, v.WallClockTime)

	if eval != nil && eval.Global != nil {
		for _, m := range coverage.MetricNames {
			metrics.RecordCoverage(v.RunID, m, eval.Global.Metrics[m].Percent())
		}
	}

	if len(v.Leaks) > 0 {
		byKind := make(map[string]int)
		for _, l := range v.Leaks {
			byKind[l.Kind]++
		}
		metrics.RecordLeaks(v.RunID, byKind)
	}
}

// Stop stops the covergate service.
func (g *gate) Stop(ctx context.Context) error {
	g.config.Log.Info().Msg("stopping covergate")

	if !g.running.Load() {
		g.config.Log.Debug().Msg("service already stopped, nothing to do")
		return nil
	}

	g.running.Store(false)
	close(g.done)

	g.config.Log.Info().Msg("covergate stopped successfully")
	return nil
}

// Stopped returns true if the covergate service is stopped.
func (g *gate) Stopped() bool {
	return !g.running.Load()
}

// WaitForShutdown blocks until all goroutines have terminated. Useful in
// tests to ensure complete cleanup before moving to the next test.
func (g *gate) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		g.config.Log.Warn().Err(ctx.Err()).Msg("timed out waiting for goroutines to terminate")
		return ctx.Err()
	}
}

func sortedFilePaths(files map[string]*types.FileResult) []string {
	out := make([]string, 0, len(files))
	for p := range files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func firstLine(s string) string {
	if idx := strings.Index(s, "\n"); idx != -1 {
		return s[:idx]
	}
	if len(s) > 80 {
		return s[:70] + "..."
	}
	return s
}

// firstError extracts a one-line message from the first non-passing case.
func firstError(fr *types.FileResult) string {
	if fr.LoadError != nil {
		return firstLine(fr.LoadError.Error())
	}
	for _, c := range fr.Cases {
		if c.Status != types.CaseStatusPass && c.Error != nil {
			return firstLine(c.Error.Error())
		}
	}
	return ""
}

func resultString(pass bool) string {
	if pass {
		return "✓ pass"
	}
	return "✗ fail"
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
