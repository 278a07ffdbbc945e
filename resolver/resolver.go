// Package resolver maps symbolic import prefixes used by test code to
// concrete module locations, without depending on the real filesystem layout.
package resolver

import (
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/covergate/covergate/types"
)

// AliasRule pairs a symbolic prefix with a real path prefix. Rules are
// checked in specificity order: the longest matching prefix wins.
type AliasRule struct {
	Prefix string
	Target string
}

// Resolver performs alias and literal import resolution. It is read-only
// after construction and safe for concurrent use by every worker.
type Resolver struct {
	rules []AliasRule
	fsys  fs.FS // rooted at the run's root directory
}

// New builds a Resolver over fsys. Rules are sorted most-specific-first once,
// at construction.
func New(fsys fs.FS, rules []AliasRule) *Resolver {
	sorted := make([]AliasRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Resolver{rules: sorted, fsys: fsys}
}

// Resolve maps an import spec written in importer to a concrete path relative
// to the run root. Alias prefixes are tried most-specific-first; a spec that
// matches no prefix falls through to literal resolution relative to the
// importing file. Returns an UnresolvedModuleError when neither succeeds.
func (r *Resolver) Resolve(spec, importer string) (string, error) {
	for _, rule := range r.rules {
		if strings.HasPrefix(spec, rule.Prefix) {
			p := path.Clean(rule.Target + strings.TrimPrefix(spec, rule.Prefix))
			if r.exists(p) {
				return p, nil
			}
			// The most specific matching rule decides; a miss on disk is
			// an unresolved module, not a fallthrough to the next rule.
			return "", &types.UnresolvedModuleError{Spec: spec, Importer: importer}
		}
	}

	// Literal path relative to the importing file.
	p := path.Clean(path.Join(path.Dir(importer), spec))
	if r.exists(p) {
		return p, nil
	}
	return "", &types.UnresolvedModuleError{Spec: spec, Importer: importer}
}

func (r *Resolver) exists(p string) bool {
	info, err := fs.Stat(r.fsys, p)
	return err == nil && !info.IsDir()
}
