package runner

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/covergate/covergate/types"
)

// Coordinator runs the suite's once-only global setup before any WorkerTask
// is dispatched and the global teardown after everything else has finished.
// Setup failure aborts the run before dispatch; teardown runs on every exit
// path regardless, so externally acquired resources are always released.
type Coordinator struct {
	runner *Runner
	log    zerolog.Logger

	setupDone bool
}

// NewCoordinator returns a Coordinator bound to the runner's suite config.
func NewCoordinator(r *Runner) *Coordinator {
	return &Coordinator{
		runner: r,
		log:    r.cfg.Log.With().Str("component", "coordinator").Logger(),
	}
}

// Setup executes the globalSetup script, if configured. Its coverage is not
// part of the run's aggregate: hooks are scaffolding, not code under test.
func (c *Coordinator) Setup(ctx context.Context) error {
	path := c.runner.cfg.Registry.Suite().GlobalSetup
	if path == "" {
		c.setupDone = true
		return nil
	}
	c.log.Info().Str("script", path).Msg("running global setup")
	if err := c.runHook(ctx, path); err != nil {
		return fmt.Errorf("global setup failed: %w", err)
	}
	c.setupDone = true
	return nil
}

// Teardown executes the globalTeardown script, if configured. It is called
// even when setup or the run itself failed.
func (c *Coordinator) Teardown(ctx context.Context) error {
	path := c.runner.cfg.Registry.Suite().GlobalTeardown
	if path == "" {
		return nil
	}
	c.log.Info().Str("script", path).Msg("running global teardown")
	if err := c.runHook(ctx, path); err != nil {
		return fmt.Errorf("global teardown failed: %w", err)
	}
	return nil
}

// SetupDone reports whether setup has completed successfully.
func (c *Coordinator) SetupDone() bool { return c.setupDone }

// runHook executes a script's top-level statements in a throwaway task. Hook
// counters are discarded with the task.
func (c *Coordinator) runHook(ctx context.Context, path string) error {
	task := newWorkerTask(c.runner, types.TestFile{Path: path})
	if _, err := task.load(ctx, path); err != nil {
		return err
	}
	return nil
}
