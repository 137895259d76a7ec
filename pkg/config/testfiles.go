package config

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// SelectTestFiles filters paths by their base name. An empty selectGlobs
// keeps everything; otherwise a path must match at least one select glob.
// Paths matching any reject glob are then dropped. Order is preserved.
func SelectTestFiles(paths, selectGlobs, rejectGlobs []string) []string {
	var out []string
	for _, p := range paths {
		base := filepath.Base(p)
		if len(selectGlobs) > 0 && !matchAny(selectGlobs, base) {
			continue
		}
		if matchAny(rejectGlobs, base) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchAny(globs []string, name string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, name); err == nil && ok {
			return true
		}
	}
	return false
}
