// Package logging persists per-case captured output under the run's log
// directory, one file per case, with ANSI escapes stripped so CI artifacts
// stay grep-able.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
)

// FileLogger writes captured case output beneath baseDir/runID.
type FileLogger struct {
	dir string
	mu  sync.Mutex
}

// NewFileLogger creates the log directory for one run.
func NewFileLogger(baseDir, runID string) (*FileLogger, error) {
	dir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return &FileLogger{dir: dir}, nil
}

// Dir returns the run's log directory.
func (l *FileLogger) Dir() string { return l.dir }

// WriteCaseOutput appends one case's captured output to the file's log.
// Safe for concurrent use by all workers.
func (l *FileLogger) WriteCaseOutput(filePath, caseName, output string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	logPath := filepath.Join(l.dir, sanitize(filePath)+".log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening case log: %w", err)
	}
	defer f.Close()

	clean := stripansi.Strip(output)
	if !strings.HasSuffix(clean, "\n") {
		clean += "\n"
	}
	if _, err := fmt.Fprintf(f, "=== %s\n%s", caseName, clean); err != nil {
		return fmt.Errorf("writing case log: %w", err)
	}
	return nil
}

// sanitize flattens a slash path into a single log file name.
func sanitize(p string) string {
	p = strings.ReplaceAll(p, "/", "__")
	return strings.ReplaceAll(p, string(filepath.Separator), "__")
}
