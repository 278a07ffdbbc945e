// Package handles implements the open-handle detector: a run-wide ledger of
// asynchronous resources (timers, sockets, file descriptors) opened by code
// under test, reconciled at suite end against what was actually closed.
package handles

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/covergate/covergate/types"
)

// Handle kinds tracked by the detector.
const (
	KindTimer  = "timer"
	KindSocket = "socket"
	KindFile   = "file"
)

type entry struct {
	kind string
	name string
	file string
	line int
	seq  int
}

// Tracker is the process-wide handle ledger for one run. Workers open and
// close handles concurrently; the detector reads the ledger only after all
// workers have finished.
type Tracker struct {
	mu   sync.Mutex
	open map[string][]entry // keyed by file + name, one entry per outstanding acquisition
	seq  int
}

// NewTracker returns an empty tracker, snapshotted at suite start.
func NewTracker() *Tracker {
	return &Tracker{open: make(map[string][]entry)}
}

func key(file, name string) string { return file + "\x00" + name }

// Open records a resource acquisition attributed to file:line. Opening the
// same name twice records two acquisitions; each needs its own Close.
func (t *Tracker) Open(kind, name, file string, line int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	k := key(file, name)
	t.open[k] = append(t.open[k], entry{kind: kind, name: name, file: file, line: line, seq: t.seq})
}

// Close discharges the most recent outstanding acquisition of the handle.
// Closing an unknown handle is a no-op.
func (t *Tracker) Close(name, file string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key(file, name)
	stack := t.open[k]
	switch n := len(stack); n {
	case 0:
	case 1:
		delete(t.open, k)
	default:
		t.open[k] = stack[:n-1]
	}
}

// OpenCount returns the number of currently open handles.
func (t *Tracker) OpenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, stack := range t.open {
		n += len(stack)
	}
	return n
}

// Leaks reports every resource still open, in acquisition order. Called
// after teardown; anything reported was not present at suite start because
// the tracker itself is created at suite start.
func (t *Tracker) Leaks() []types.Leak {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := make([]entry, 0, len(t.open))
	for _, stack := range t.open {
		entries = append(entries, stack...)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	leaks := make([]types.Leak, 0, len(entries))
	for _, e := range entries {
		leaks = append(leaks, types.Leak{Kind: e.kind, Name: e.name, File: e.file, Line: e.line})
	}
	return leaks
}

// Report logs each leak as a warning attributed to the run. Returns true if
// any leaks were found, so the caller can apply the force-exit policy.
func Report(log zerolog.Logger, leaks []types.Leak) bool {
	for _, l := range leaks {
		log.Warn().
			Str("kind", l.Kind).
			Str("name", l.Name).
			Str("openedAt", l.File).
			Int("line", l.Line).
			Msg("resource still open after teardown")
	}
	return len(leaks) > 0
}
