package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	cache := NewCache(t.TempDir())
	src := []byte("test \"t\" {\n\tlet x 1\n}\n")

	prog, err := Parse("a.cg", src)
	require.NoError(t, err)
	require.NoError(t, cache.Put("a.cg", src, prog))

	got, ok := cache.Get("a.cg", src)
	require.True(t, ok)
	assert.Equal(t, prog.Counters, got.Counters)
	assert.Len(t, got.Cases, 1)
}

func TestCacheMissOnChangedSource(t *testing.T) {
	cache := NewCache(t.TempDir())
	src := []byte("test \"t\" {\n\tlet x 1\n}\n")

	prog, err := Parse("a.cg", src)
	require.NoError(t, err)
	require.NoError(t, cache.Put("a.cg", src, prog))

	_, ok := cache.Get("a.cg", []byte("test \"t\" {\n\tlet x 2\n}\n"))
	assert.False(t, ok, "changed content must miss")
}

func TestCacheKeyIncludesPath(t *testing.T) {
	cache := NewCache(t.TempDir())
	src := []byte("test \"t\" {\n\tlet x 1\n}\n")

	prog, err := Parse("a.cg", src)
	require.NoError(t, err)
	require.NoError(t, cache.Put("a.cg", src, prog))

	// Identical content at a different path carries different position keys,
	// so it must not reuse the artifact.
	_, ok := cache.Get("b.cg", src)
	assert.False(t, ok)
}

func TestCacheDisabled(t *testing.T) {
	cache := NewCache("")
	src := []byte("test \"t\" {\n\tlet x 1\n}\n")

	prog, err := Parse("a.cg", src)
	require.NoError(t, err)
	require.NoError(t, cache.Put("a.cg", src, prog))

	_, ok := cache.Get("a.cg", src)
	assert.False(t, ok)

	// Load still parses without a backing directory.
	got, err := cache.Load("a.cg", src)
	require.NoError(t, err)
	assert.Len(t, got.Cases, 1)
}

func TestCacheCorruptArtifactIsMiss(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir)
	src := []byte("test \"t\" {\n\tlet x 1\n}\n")

	prog, err := Parse("a.cg", src)
	require.NoError(t, err)
	require.NoError(t, cache.Put("a.cg", src, prog))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, entries[0].Name()), []byte("not json"), 0o644))

	_, ok := cache.Get("a.cg", src)
	assert.False(t, ok)

	// Load falls back to a fresh parse.
	got, err := cache.Load("a.cg", src)
	require.NoError(t, err)
	assert.Len(t, got.Cases, 1)
}
