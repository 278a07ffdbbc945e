package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covergate/covergate/coverage"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRegistryDiscovery(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "tests/a_test.cg", "test \"a\" {\n}\n")
	writeFile(t, tmpDir, "tests/nested/b_test.cg", "test \"b\" {\n}\n")
	writeFile(t, tmpDir, "tests/skipped/c_test.cg", "test \"c\" {\n}\n")
	writeFile(t, tmpDir, "src/not_a_test.cg", "func f {\n}\n")

	suite := `
testMatch:
  - "tests/**/*_test.cg"
ignore:
  - "tests/skipped/**"
`
	configPath := filepath.Join(tmpDir, "covergate.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(suite), 0o644))

	reg, err := NewRegistry(Config{
		Log:       zerolog.Nop(),
		RootDir:   tmpDir,
		SuiteFile: configPath,
	})
	require.NoError(t, err)

	files := reg.TestFiles()
	require.Len(t, files, 2)
	assert.Equal(t, "tests/a_test.cg", files[0].Path)
	assert.Equal(t, "tests/nested/b_test.cg", files[1].Path)
	assert.Equal(t, "tests/**/*_test.cg", files[0].Pattern)
}

func TestRegistryDuplicatePatternsDedupe(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "tests/a_test.cg", "test \"a\" {\n}\n")

	suite := `
testMatch:
  - "tests/**/*_test.cg"
  - "tests/*_test.cg"
`
	configPath := filepath.Join(tmpDir, "covergate.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(suite), 0o644))

	reg, err := NewRegistry(Config{Log: zerolog.Nop(), RootDir: tmpDir, SuiteFile: configPath})
	require.NoError(t, err)
	assert.Len(t, reg.TestFiles(), 1)
}

func TestRegistryErrors(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("missing suite file", func(t *testing.T) {
		_, err := NewRegistry(Config{Log: zerolog.Nop(), RootDir: tmpDir, SuiteFile: filepath.Join(tmpDir, "nope.yaml")})
		require.Error(t, err)
	})

	t.Run("no testMatch", func(t *testing.T) {
		configPath := filepath.Join(tmpDir, "empty.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("workers: \"2\"\n"), 0o644))
		_, err := NewRegistry(Config{Log: zerolog.Nop(), RootDir: tmpDir, SuiteFile: configPath})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "testMatch")
	})

	t.Run("empty suite file path", func(t *testing.T) {
		_, err := NewRegistry(Config{Log: zerolog.Nop(), RootDir: tmpDir})
		require.Error(t, err)
	})

	t.Run("malformed override pattern", func(t *testing.T) {
		suite := `
testMatch:
  - "tests/**/*_test.cg"
coverage:
  thresholds:
    overrides:
      - pattern: "src/[broken"
        lines: 90
`
		configPath := filepath.Join(tmpDir, "broken.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte(suite), 0o644))
		_, err := NewRegistry(Config{Log: zerolog.Nop(), RootDir: tmpDir, SuiteFile: configPath})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "override pattern")
	})
}

func TestSuiteConfigParsing(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "tests/a_test.cg", "test \"a\" {\n}\n")

	suite := `
testMatch:
  - "tests/**/*_test.cg"
workers: "50%"
caseTimeoutMillis: 250
aliases:
  - prefix: "@lib/"
    target: "src/lib/"
coverage:
  enabled: true
  reports: [summary, lcov]
  thresholds:
    global:
      statements: 80
      lines: 70
    overrides:
      - pattern: "src/core/**"
        statements: 95
mockReset:
  clearCalls: true
  restoreMocks: false
globalSetup: "setup.cg"
globalTeardown: "teardown.cg"
detectOpenHandles: true
deprecated:
  fail: true
  apis: [legacyFetch]
`
	configPath := filepath.Join(tmpDir, "covergate.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(suite), 0o644))

	reg, err := NewRegistry(Config{Log: zerolog.Nop(), RootDir: tmpDir, SuiteFile: configPath})
	require.NoError(t, err)

	s := reg.Suite()
	assert.Equal(t, "50%", s.Workers)
	assert.Equal(t, 250*time.Millisecond, s.CaseTimeout())
	assert.True(t, s.Coverage.Enabled)
	assert.Equal(t, []string{"summary", "lcov"}, s.Coverage.Reports)
	assert.Equal(t, float64(80), s.Coverage.Thresholds.Global.Statements)
	assert.True(t, s.MockReset.ClearCalls)
	assert.False(t, s.MockReset.Restore)
	assert.Equal(t, "setup.cg", s.GlobalSetup)
	assert.True(t, s.DetectOpenHandles)
	assert.True(t, s.Deprecated.Fail)
	assert.Equal(t, []string{"legacyFetch"}, s.Deprecated.APIs)

	rules := reg.AliasRules()
	require.Len(t, rules, 1)
	assert.Equal(t, "@lib/", rules[0].Prefix)

	thresholds := reg.ThresholdRules()
	require.Len(t, thresholds, 1)
	assert.Equal(t, coverage.PatternRule{
		Pattern: "src/core/**",
		Min:     coverage.Thresholds{Statements: 95},
	}, thresholds[0])
}

func TestSuiteDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "tests/a_test.cg", "test \"a\" {\n}\n")

	configPath := filepath.Join(tmpDir, "covergate.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("testMatch:\n  - \"tests/**\"\n"), 0o644))

	reg, err := NewRegistry(Config{Log: zerolog.Nop(), RootDir: tmpDir, SuiteFile: configPath})
	require.NoError(t, err)

	s := reg.Suite()
	assert.Equal(t, DefaultCaseTimeout, s.CaseTimeout())
	// Mocks fully reset between cases unless the suite says otherwise.
	assert.True(t, s.MockReset.ClearCalls)
	assert.True(t, s.MockReset.Restore)
}

func TestParseWorkers(t *testing.T) {
	tests := []struct {
		name    string
		setting string
		numCPU  int
		want    int
		wantErr bool
	}{
		{name: "empty uses all CPUs", setting: "", numCPU: 8, want: 8},
		{name: "absolute", setting: "4", numCPU: 8, want: 4},
		{name: "absolute above CPUs", setting: "16", numCPU: 8, want: 16},
		{name: "zero floors to one", setting: "0", numCPU: 8, want: 1},
		{name: "half", setting: "50%", numCPU: 8, want: 4},
		{name: "fraction rounds down", setting: "50%", numCPU: 5, want: 2},
		{name: "tiny fraction floors to one", setting: "10%", numCPU: 4, want: 1},
		{name: "full", setting: "100%", numCPU: 3, want: 3},
		{name: "garbage", setting: "lots", wantErr: true, numCPU: 4},
		{name: "negative", setting: "-2", wantErr: true, numCPU: 4},
		{name: "negative percent", setting: "-50%", wantErr: true, numCPU: 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseWorkers(tc.setting, tc.numCPU)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
