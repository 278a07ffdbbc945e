package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/covergate/covergate/coverage"
	"github.com/covergate/covergate/mockreg"
	"github.com/covergate/covergate/transform"
	"github.com/covergate/covergate/types"
)

// maxCallDepth bounds function recursion inside a script.
const maxCallDepth = 64

// loadedModule pairs an instrumented program with its live counter set and
// the modules its imports resolved to.
type loadedModule struct {
	prog     *transform.Program
	counters *coverage.CounterSet
	imports  map[string]*loadedModule
}

// workerTask owns the isolated execution context for one test file: its own
// module registry and its own mock registry. Nothing here is shared with
// sibling tasks; counters leave the task only through the collector.
type workerTask struct {
	runner  *Runner
	file    types.TestFile
	mocks   *mockreg.Registry
	modules map[string]*loadedModule
	loading map[string]bool

	curCase string
	output  strings.Builder
	stmts   int
	depUsed bool
}

func newWorkerTask(r *Runner, file types.TestFile) *workerTask {
	return &workerTask{
		runner:  r,
		file:    file,
		mocks:   mockreg.New(),
		modules: make(map[string]*loadedModule),
		loading: make(map[string]bool),
	}
}

// run executes the whole file: load, per-case execution with mock resets at
// every case boundary, and a final reset at file end.
func (t *workerTask) run(ctx context.Context) fileOutcome {
	start := time.Now()
	suite := t.runner.cfg.Registry.Suite()
	fr := &types.FileResult{File: t.file}

	mod, err := t.load(ctx, t.file.Path)
	if err != nil {
		// A load failure is reported as a test failure for every case
		// nominally contained in the file, never silently skipped.
		fr.LoadError = err
		fr.Status = types.CaseStatusError
		fr.Duration = time.Since(start)
		if mod != nil {
			for _, c := range mod.prog.CaseNames() {
				fr.Cases = append(fr.Cases, types.CaseResult{
					Name:   c.Name,
					Status: types.CaseStatusFail,
					Error:  err,
				})
			}
		}
		return fileOutcome{result: fr, counters: t.collectCounters()}
	}

	fr.File.Cases = mod.prog.CaseNames()
	timeout := suite.CaseTimeout()

	for _, c := range mod.prog.Cases {
		res := t.runCase(ctx, mod, c, timeout)
		fr.Cases = append(fr.Cases, res)
		fr.Duration += res.Duration

		t.mocks.Reset(suite.MockReset)

		if ctx.Err() != nil && !types.IsTimeout(res.Error) {
			break
		}
	}
	// Mocks never survive the file either.
	t.mocks.Reset(mockreg.ResetPolicy{ClearCalls: true, Restore: true})

	fr.Status = types.CaseStatusPass
	if fr.Failed() {
		fr.Status = types.CaseStatusFail
	}
	fr.Duration = time.Since(start)

	return fileOutcome{
		result:     fr,
		counters:   t.collectCounters(),
		deprecated: t.depUsed && suite.Deprecated.Fail,
	}
}

// collectCounters emits one CounterSet per module this task loaded, the test
// file's included.
func (t *workerTask) collectCounters() []*coverage.CounterSet {
	out := make([]*coverage.CounterSet, 0, len(t.modules))
	for _, m := range t.modules {
		out = append(out, m.counters)
	}
	return out
}

// load reads, transforms and initializes path plus its transitive imports.
// The module cache is task-local; concurrent tasks never share programs.
// On an import failure the partially parsed module is returned alongside the
// error so the caller can enumerate its nominal cases.
func (t *workerTask) load(ctx context.Context, path string) (*loadedModule, error) {
	if t.loading[path] {
		return nil, fmt.Errorf("import cycle through %s", path)
	}
	if m, ok := t.modules[path]; ok {
		return m, nil
	}
	t.loading[path] = true
	defer delete(t.loading, path)

	src, err := os.ReadFile(filepath.Join(t.runner.cfg.RootDir, filepath.FromSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	prog, err := t.runner.cfg.Cache.Load(path, src)
	if err != nil {
		return nil, err
	}

	tmpl := prog.Counters
	mod := &loadedModule{
		prog:     prog,
		counters: coverage.NewCounterSet(path, tmpl.Statements, tmpl.Branches, tmpl.Functions, tmpl.Lines),
		imports:  make(map[string]*loadedModule),
	}
	// Register before imports and init so self-referential calls resolve
	// and a module that parsed but failed to load still surfaces its zero
	// counters to the collector.
	t.modules[path] = mod

	for _, imp := range prog.Imports {
		resolved, rerr := t.runner.cfg.Resolver.Resolve(imp.Spec, path)
		if rerr != nil {
			return mod, rerr
		}
		dep, derr := t.load(ctx, resolved)
		if derr != nil {
			return mod, derr
		}
		mod.imports[imp.Name] = dep
	}

	if len(prog.Init) > 0 {
		sc := newScope()
		if err := t.execBlock(ctx, mod, prog.Init, sc, 0); err != nil {
			return mod, fmt.Errorf("module init of %s: %w", path, err)
		}
	}
	return mod, nil
}

// runCase executes one case under its independent wall-clock timeout.
// Exceeding the bound fails that case only; siblings still execute.
func (t *workerTask) runCase(ctx context.Context, mod *loadedModule, c *transform.Case, timeout time.Duration) types.CaseResult {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t.curCase = c.Name
	t.output.Reset()
	t.stmts = 0
	start := time.Now()

	err := t.execBlock(cctx, mod, c.Body, newScope(), 0)
	res := types.CaseResult{
		Name:     c.Name,
		Duration: time.Since(start),
		Calls:    t.stmts,
	}

	switch {
	case err == nil:
		res.Status = types.CaseStatusPass
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		res.Status = types.CaseStatusTimeout
		res.Error = &types.CaseTimeoutError{Case: c.Name, Timeout: timeout.String()}
	default:
		var ae *types.CaseAssertionError
		var de *types.DeprecatedAPIUsageError
		if errors.As(err, &ae) || errors.As(err, &de) {
			res.Status = types.CaseStatusFail
		} else {
			res.Status = types.CaseStatusError
		}
		res.Error = err
	}

	if fl := t.runner.cfg.FileLogger; fl != nil && t.output.Len() > 0 {
		if werr := fl.WriteCaseOutput(t.file.Path, c.Name, t.output.String()); werr != nil {
			t.runner.log.Warn().Err(werr).Str("case", c.Name).Msg("failed to write case output")
		}
	}
	return res
}

type scope struct {
	vars map[string]int64
}

func newScope() *scope { return &scope{vars: make(map[string]int64)} }

func (sc *scope) value(tok string) (int64, error) {
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return n, nil
	}
	if v, ok := sc.vars[tok]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("unknown value %q", tok)
}

func (t *workerTask) execBlock(ctx context.Context, mod *loadedModule, stmts []*transform.Stmt, sc *scope, depth int) error {
	for _, st := range stmts {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.stmts++
		mod.counters.Hit(st.Key, st.Key)

		switch st.Op {
		case transform.OpLet:
			v, err := sc.value(st.Args[1])
			if err != nil {
				return fmt.Errorf("line %d: %w", st.Line, err)
			}
			sc.vars[st.Args[0]] = v

		case transform.OpIf:
			v, err := sc.value(st.Args[0])
			if err != nil {
				return fmt.Errorf("line %d: %w", st.Line, err)
			}
			if v != 0 {
				mod.counters.HitBranch(st.ThenKey)
				if err := t.execBlock(ctx, mod, st.Then, sc, depth); err != nil {
					return err
				}
			} else {
				mod.counters.HitBranch(st.ElseKey)
				if err := t.execBlock(ctx, mod, st.Else, sc, depth); err != nil {
					return err
				}
			}

		case transform.OpCall:
			if err := t.call(ctx, mod, st.Args[0], st.Line, depth); err != nil {
				return err
			}

		case transform.OpAssert:
			if err := t.assert(st, sc); err != nil {
				return err
			}

		case transform.OpMock:
			t.mocks.Register(st.Args[0])

		case transform.OpSleep:
			d, _ := time.ParseDuration(st.Args[0]) // validated at transform time
			timer := time.NewTimer(d)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}

		case transform.OpOpen:
			t.runner.cfg.Tracker.Open(st.Args[0], st.Args[1], t.file.Path, st.Line)

		case transform.OpClose:
			t.runner.cfg.Tracker.Close(st.Args[0], t.file.Path)

		case transform.OpDeprecated:
			if err := t.deprecated(st); err != nil {
				return err
			}

		case transform.OpPrint:
			t.output.WriteString(st.Args[0])
			t.output.WriteByte('\n')

		default:
			return fmt.Errorf("line %d: unknown operation %q", st.Line, st.Op)
		}
	}
	return nil
}

// call dispatches a function invocation: an active mock swallows the call
// and records it; otherwise local functions come first, then imported ones
// through their alias namespace.
func (t *workerTask) call(ctx context.Context, mod *loadedModule, name string, line, depth int) error {
	if depth >= maxCallDepth {
		return fmt.Errorf("line %d: call depth exceeded calling %q", line, name)
	}
	if h, ok := t.mocks.Lookup(name); ok {
		h.Record(fmt.Sprintf("%s:%d", mod.prog.Path, line))
		return nil
	}

	target := mod
	fnName := name
	if alias, rest, found := strings.Cut(name, "."); found {
		dep, ok := mod.imports[alias]
		if !ok {
			return fmt.Errorf("line %d: unknown module alias %q", line, alias)
		}
		target = dep
		fnName = rest
	}

	fn, ok := target.prog.Func(fnName)
	if !ok {
		return fmt.Errorf("line %d: unknown function %q", line, name)
	}
	target.counters.HitFunc(fn.Key)
	return t.execBlock(ctx, target, fn.Body, newScope(), depth+1)
}

func (t *workerTask) assert(st *transform.Stmt, sc *scope) error {
	fail := func(msg string) error {
		return &types.CaseAssertionError{Case: t.curCase, Line: st.Line, Msg: msg}
	}

	switch st.Args[0] {
	case "calls":
		want, err := sc.value(st.Args[2])
		if err != nil {
			return fmt.Errorf("line %d: %w", st.Line, err)
		}
		var got int
		if h, ok := t.mocks.Lookup(st.Args[1]); ok {
			got = len(h.Calls)
		}
		if int64(got) != want {
			return fail(fmt.Sprintf("mock %q recorded %d call(s), want %d", st.Args[1], got, want))
		}
	case "true":
		v, err := sc.value(st.Args[1])
		if err != nil {
			return fmt.Errorf("line %d: %w", st.Line, err)
		}
		if v == 0 {
			return fail(fmt.Sprintf("%s is not true", st.Args[1]))
		}
	case "eq", "ne":
		a, err := sc.value(st.Args[1])
		if err != nil {
			return fmt.Errorf("line %d: %w", st.Line, err)
		}
		b, err := sc.value(st.Args[2])
		if err != nil {
			return fmt.Errorf("line %d: %w", st.Line, err)
		}
		if st.Args[0] == "eq" && a != b {
			return fail(fmt.Sprintf("%s != %s (%d != %d)", st.Args[1], st.Args[2], a, b))
		}
		if st.Args[0] == "ne" && a == b {
			return fail(fmt.Sprintf("%s == %s (%d)", st.Args[1], st.Args[2], a))
		}
	}
	return nil
}

// deprecated handles use of a disallowed deprecated facility. The suite
// either fails the case immediately or downgrades the usage to a warning.
func (t *workerTask) deprecated(st *transform.Stmt) error {
	cfg := t.runner.cfg.Registry.Suite().Deprecated
	name := st.Args[0]

	flagged := len(cfg.APIs) == 0
	for _, api := range cfg.APIs {
		if api == name {
			flagged = true
			break
		}
	}
	if !flagged {
		return nil
	}

	t.depUsed = true
	if cfg.Fail {
		return &types.DeprecatedAPIUsageError{API: name, Case: t.curCase, Line: st.Line}
	}
	t.runner.log.Warn().
		Str("api", name).
		Str("file", t.file.Path).
		Int("line", st.Line).
		Msg("deprecated API used")
	return nil
}
