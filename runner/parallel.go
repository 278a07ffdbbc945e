package runner

import (
	"context"
	"sync"
	"time"

	"github.com/covergate/covergate/coverage"
	"github.com/covergate/covergate/types"
)

// fileOutcome is what one WorkerTask streams back to the collector.
type fileOutcome struct {
	result     *types.FileResult
	counters   []*coverage.CounterSet
	deprecated bool
}

// executeParallel fans the files out over the worker pool and collects every
// outcome in a single goroutine. Results are keyed by file identity, so the
// final Result is independent of completion order.
func (r *Runner) executeParallel(ctx context.Context, files []types.TestFile) (*Result, error) {
	start := time.Now()
	result := &Result{
		RunID:     r.runID,
		Files:     make(map[string]*types.FileResult, len(files)),
		Aggregate: coverage.NewAggregate(),
		Start:     start,
	}

	if len(files) == 0 {
		r.log.Debug().Msg("no test files to execute")
		result.Aggregate.Freeze()
		return result, nil
	}

	bufferSize := min(r.cfg.Concurrency*2, 100)
	workChan := make(chan types.TestFile, bufferSize)
	outcomeChan := make(chan fileOutcome, bufferSize)

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go r.worker(ctx, &wg, i, workChan, outcomeChan)
	}

	go func() {
		defer close(workChan)
		for _, f := range files {
			select {
			case workChan <- f:
			case <-ctx.Done():
				r.log.Debug().Msg("context cancelled while dispatching files")
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomeChan)
	}()

	for outcome := range outcomeChan {
		result.accumulate(outcome.result, outcome.counters, outcome.deprecated)
	}

	result.WallClockTime = time.Since(start)
	result.Aggregate.Freeze()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// worker processes one file at a time until the work channel closes. A file
// whose load or execution fails is recorded and the worker moves on; sibling
// files are never aborted.
func (r *Runner) worker(ctx context.Context, wg *sync.WaitGroup, id int, workChan <-chan types.TestFile, outcomeChan chan<- fileOutcome) {
	defer wg.Done()

	log := r.log.With().Int("worker", id).Logger()
	log.Debug().Msg("worker starting")
	defer log.Debug().Msg("worker exiting")

	for {
		select {
		case file, ok := <-workChan:
			if !ok {
				return
			}
			log.Debug().Str("file", file.Path).Msg("executing test file")

			task := newWorkerTask(r, file)
			outcome := task.run(ctx)

			select {
			case outcomeChan <- outcome:
			case <-ctx.Done():
				log.Debug().Str("file", file.Path).Msg("context cancelled while reporting outcome")
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
