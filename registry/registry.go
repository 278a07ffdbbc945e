// Package registry loads the suite configuration and discovers test files.
package registry

import (
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/covergate/covergate/coverage"
	"github.com/covergate/covergate/mockreg"
	"github.com/covergate/covergate/resolver"
	"github.com/covergate/covergate/types"
)

// DefaultCaseTimeout bounds a single case when the suite file does not say
// otherwise.
const DefaultCaseTimeout = 30 * time.Second

// AliasEntry is one symbolic-prefix mapping in the suite file.
type AliasEntry struct {
	Prefix string `yaml:"prefix"`
	Target string `yaml:"target"`
}

// OverrideEntry is one explicit threshold rule in the suite file.
type OverrideEntry struct {
	Pattern    string  `yaml:"pattern"`
	Statements float64 `yaml:"statements"`
	Branches   float64 `yaml:"branches"`
	Functions  float64 `yaml:"functions"`
	Lines      float64 `yaml:"lines"`
}

// CoverageConfig is the coverage section of the suite file.
type CoverageConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Dir        string   `yaml:"dir"`
	Reports    []string `yaml:"reports"`
	Thresholds struct {
		Global    coverage.Thresholds `yaml:"global"`
		Overrides []OverrideEntry     `yaml:"overrides"`
	} `yaml:"thresholds"`
}

// DeprecatedConfig lists disallowed deprecated facilities; Fail upgrades
// usage from a warning to a run failure.
type DeprecatedConfig struct {
	Fail bool     `yaml:"fail"`
	APIs []string `yaml:"apis"`
}

// SuiteConfig is the YAML suite file consumed at process start. All of it is
// read-only after load; workers share it freely.
type SuiteConfig struct {
	TestMatch         []string            `yaml:"testMatch"`
	Ignore            []string            `yaml:"ignore"`
	Coverage          CoverageConfig      `yaml:"coverage"`
	Aliases           []AliasEntry        `yaml:"aliases"`
	Workers           string              `yaml:"workers"`
	CaseTimeoutMillis int                 `yaml:"caseTimeoutMillis"`
	MockReset         mockreg.ResetPolicy `yaml:"mockReset"`
	GlobalSetup       string              `yaml:"globalSetup"`
	GlobalTeardown    string              `yaml:"globalTeardown"`
	CacheDir          string              `yaml:"cacheDir"`
	DetectOpenHandles bool                `yaml:"detectOpenHandles"`
	ForceExit         bool                `yaml:"forceExit"`
	Deprecated        DeprecatedConfig    `yaml:"deprecated"`
}

// Config contains registry construction parameters.
type Config struct {
	Log       zerolog.Logger
	RootDir   string
	SuiteFile string
}

// Registry holds the loaded suite configuration and the discovered test
// files for one run.
type Registry struct {
	config Config
	suite  *SuiteConfig
	files  []types.TestFile
	mu     sync.RWMutex
}

// NewRegistry loads the suite file and discovers test files under RootDir.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.SuiteFile == "" {
		return nil, fmt.Errorf("suite config file is required")
	}
	if cfg.RootDir == "" {
		cfg.RootDir = "."
	}

	suite, err := loadSuite(cfg.SuiteFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load suite config: %w", err)
	}

	r := &Registry{config: cfg, suite: suite}
	if err := r.discover(); err != nil {
		return nil, fmt.Errorf("failed to discover tests: %w", err)
	}

	cfg.Log.Debug().
		Int("files", len(r.files)).
		Strs("testMatch", suite.TestMatch).
		Msg("registry loaded")

	return r, nil
}

func loadSuite(path string) (*SuiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite file: %w", err)
	}

	suite := &SuiteConfig{
		MockReset: mockreg.ResetPolicy{ClearCalls: true, Restore: true},
	}
	if err := yaml.Unmarshal(data, suite); err != nil {
		return nil, fmt.Errorf("parsing suite file: %w", err)
	}
	if len(suite.TestMatch) == 0 {
		return nil, fmt.Errorf("suite file declares no testMatch patterns")
	}
	for _, o := range suite.Coverage.Thresholds.Overrides {
		if !doublestar.ValidatePattern(o.Pattern) {
			return nil, fmt.Errorf("bad threshold override pattern %q", o.Pattern)
		}
	}
	return suite, nil
}

// discover enumerates candidate test files for every testMatch pattern,
// filters the ignore globs, and records pattern provenance. The file list is
// immutable for the rest of the run.
func (r *Registry) discover() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fsys := os.DirFS(r.config.RootDir)
	seen := make(map[string]bool)
	var files []types.TestFile

	for _, pattern := range r.suite.TestMatch {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return fmt.Errorf("bad testMatch pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if seen[m] || r.ignored(m) {
				continue
			}
			if info, err := fs.Stat(fsys, m); err != nil || info.IsDir() {
				continue
			}
			seen[m] = true
			files = append(files, types.TestFile{Path: m, Pattern: pattern})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	r.files = files
	return nil
}

func (r *Registry) ignored(path string) bool {
	for _, pattern := range r.suite.Ignore {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

// TestFiles returns the discovered files in path order.
func (r *Registry) TestFiles() []types.TestFile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.files
}

// Suite returns the loaded suite configuration.
func (r *Registry) Suite() *SuiteConfig { return r.suite }

// CaseTimeout returns the per-case wall-clock bound.
func (s *SuiteConfig) CaseTimeout() time.Duration {
	if s.CaseTimeoutMillis <= 0 {
		return DefaultCaseTimeout
	}
	return time.Duration(s.CaseTimeoutMillis) * time.Millisecond
}

// AliasRules converts the suite's alias table for the resolver.
func (r *Registry) AliasRules() []resolver.AliasRule {
	rules := make([]resolver.AliasRule, 0, len(r.suite.Aliases))
	for _, a := range r.suite.Aliases {
		rules = append(rules, resolver.AliasRule{Prefix: a.Prefix, Target: a.Target})
	}
	return rules
}

// ThresholdRules converts the suite's override table for the evaluator.
func (r *Registry) ThresholdRules() []coverage.PatternRule {
	rules := make([]coverage.PatternRule, 0, len(r.suite.Coverage.Thresholds.Overrides))
	for _, o := range r.suite.Coverage.Thresholds.Overrides {
		rules = append(rules, coverage.PatternRule{
			Pattern: o.Pattern,
			Min: coverage.Thresholds{
				Statements: o.Statements,
				Branches:   o.Branches,
				Functions:  o.Functions,
				Lines:      o.Lines,
			},
		})
	}
	return rules
}

// WorkerCount resolves the suite's workers setting against the machine's
// available parallelism. A trailing '%' is a fraction of NumCPU, rounded
// down, minimum 1. Unset means every CPU; an explicit zero floors to 1.
func (r *Registry) WorkerCount() (int, error) {
	return ParseWorkers(r.suite.Workers, runtime.NumCPU())
}

// ParseWorkers parses an absolute ("4") or fractional ("50%") worker-pool
// size against numCPU.
func ParseWorkers(setting string, numCPU int) (int, error) {
	if setting == "" {
		return max(numCPU, 1), nil
	}
	if strings.HasSuffix(setting, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(setting, "%"), 64)
		if err != nil || pct <= 0 {
			return 0, fmt.Errorf("bad workers setting %q", setting)
		}
		n := int(float64(numCPU) * pct / 100)
		return max(n, 1), nil
	}
	n, err := strconv.Atoi(setting)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad workers setting %q", setting)
	}
	return max(n, 1), nil
}
