package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Cache is a content-addressed store of compiled Programs, keyed by the
// sha256 of the source path plus raw source text. Artifacts survive across
// runs so unchanged files skip the transform step entirely. The path takes
// part in the key because position identifiers embed it; identical content
// at two locations must not share an artifact.
type Cache struct {
	dir string
}

// NewCache returns a Cache rooted at dir. An empty dir disables caching.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Get returns the cached Program, if present and readable. Any unreadable or
// corrupt artifact is treated as a miss.
func (c *Cache) Get(path string, src []byte) (*Program, bool) {
	if c.dir == "" {
		return nil, false
	}
	data, err := os.ReadFile(c.artifact(path, src))
	if err != nil {
		return nil, false
	}
	var prog Program
	if err := json.Unmarshal(data, &prog); err != nil {
		return nil, false
	}
	return &prog, true
}

// Put stores prog under the content hash of its path and source.
func (c *Cache) Put(path string, src []byte, prog *Program) error {
	if c.dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	data, err := json.Marshal(prog)
	if err != nil {
		return fmt.Errorf("encoding program: %w", err)
	}
	return os.WriteFile(c.artifact(path, src), data, 0o644)
}

func (c *Cache) artifact(path string, src []byte) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(src)
	return filepath.Join(c.dir, hex.EncodeToString(h.Sum(nil))+".json")
}

// Load runs src through the cache-then-parse pipeline. Cache write failures
// never fail the load.
func (c *Cache) Load(path string, src []byte) (*Program, error) {
	if prog, ok := c.Get(path, src); ok {
		return prog, nil
	}
	prog, err := Parse(path, src)
	if err != nil {
		return nil, err
	}
	_ = c.Put(path, src, prog)
	return prog, nil
}
