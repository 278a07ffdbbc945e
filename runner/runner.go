// Package runner executes discovered test files across a bounded worker
// pool, isolating each file in its own WorkerTask and streaming results and
// coverage counters back to a single collecting goroutine.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/covergate/covergate/coverage"
	"github.com/covergate/covergate/handles"
	"github.com/covergate/covergate/logging"
	"github.com/covergate/covergate/registry"
	"github.com/covergate/covergate/resolver"
	"github.com/covergate/covergate/transform"
	"github.com/covergate/covergate/types"
)

// Config collects the collaborators a Runner needs. Everything here is
// read-only shared state for the lifetime of a run.
type Config struct {
	Log         zerolog.Logger
	Registry    *registry.Registry
	Resolver    *resolver.Resolver
	Cache       *transform.Cache
	Tracker     *handles.Tracker
	FileLogger  *logging.FileLogger
	RootDir     string
	Concurrency int

	// RunID, when set, is adopted instead of a fresh identifier. The caller
	// may need the id before construction, e.g. for log directories.
	RunID string
}

// Result is the raw outcome of executing every file: per-file case results
// keyed by file identity plus the frozen coverage aggregate.
type Result struct {
	RunID     string
	Files     map[string]*types.FileResult
	Aggregate *coverage.Aggregate
	Stats     types.RunStats

	// Duration is the sum of per-file durations; WallClockTime is the
	// elapsed time of the whole parallel run.
	Duration      time.Duration
	WallClockTime time.Duration
	Start         time.Time

	// DeprecatedFailure is set when a disallowed deprecated facility was
	// used and the suite is configured to fail on it.
	DeprecatedFailure bool
}

// Runner owns one run's worker pool.
type Runner struct {
	cfg    Config
	log    zerolog.Logger
	runID  string
	tracer trace.Tracer
}

// NewRunner validates the configuration and returns a Runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if cfg.Cache == nil {
		cfg.Cache = transform.NewCache("")
	}
	if cfg.Tracker == nil {
		cfg.Tracker = handles.NewTracker()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	return &Runner{
		cfg:    cfg,
		log:    cfg.Log.With().Str("component", "runner").Logger(),
		runID:  cfg.RunID,
		tracer: otel.Tracer("test runner"),
	}, nil
}

// RunID returns the identifier assigned to this run.
func (r *Runner) RunID() string { return r.runID }

// RunAll executes every discovered file and returns the collected result.
// A failure inside one file never aborts its siblings; only a cancelled
// context stops the run early.
func (r *Runner) RunAll(ctx context.Context) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, "run all tests")
	defer span.End()

	files := r.cfg.Registry.TestFiles()
	r.log.Info().
		Int("files", len(files)).
		Int("concurrency", r.cfg.Concurrency).
		Str("runID", r.runID).
		Msg("starting test run")

	result, err := r.executeParallel(ctx, files)
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str("runID", r.runID).
		Int("passed", result.Stats.Passed).
		Int("failed", result.Stats.Failed).
		Int("timedOut", result.Stats.TimedOut).
		Dur("wallClock", result.WallClockTime).
		Msg("test run complete")

	return result, nil
}

// accumulate folds one file outcome into the result. Called only from the
// collecting goroutine, so aggregate merges are serialized.
func (res *Result) accumulate(fr *types.FileResult, counters []*coverage.CounterSet, deprecated bool) {
	res.Files[fr.File.Path] = fr
	res.Duration += fr.Duration
	res.Stats.Files++
	if deprecated {
		res.DeprecatedFailure = true
	}
	if fr.LoadError != nil && len(fr.Cases) == 0 {
		// A file that never parsed has no nominal cases to enumerate;
		// count the load itself as one errored case.
		res.Stats.Total++
		res.Stats.Errored++
		res.Stats.Failed++
	}
	for _, c := range fr.Cases {
		res.Stats.Total++
		switch c.Status {
		case types.CaseStatusPass:
			res.Stats.Passed++
		case types.CaseStatusTimeout:
			res.Stats.TimedOut++
			res.Stats.Failed++
		case types.CaseStatusError:
			res.Stats.Errored++
			res.Stats.Failed++
		default:
			res.Stats.Failed++
		}
	}
	for _, cs := range counters {
		res.Aggregate.Merge(cs)
	}
}
