package library

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/arduci/pkg/errors"
)

var (
	headerExts = map[string]bool{".h": true, ".hh": true, ".hpp": true, ".hxx": true, ".h++": true}
	sourceExts = map[string]bool{".c": true, ".cc": true, ".cpp": true, ".cxx": true, ".c++": true}
)

// IsHeader reports whether name has a C/C++ header extension (any case).
func IsHeader(name string) bool { return headerExts[strings.ToLower(filepath.Ext(name))] }

// IsSource reports whether name has a C/C++ source extension (any case).
func IsSource(name string) bool { return sourceExts[strings.ToLower(filepath.Ext(name))] }

// FileSet is the ordered, de-duplicated list of files belonging to a library.
type FileSet struct {
	Headers []string
	Sources []string
}

// All returns headers followed by sources.
func (fs FileSet) All() []string {
	out := make([]string, 0, len(fs.Headers)+len(fs.Sources))
	out = append(out, fs.Headers...)
	return append(out, fs.Sources...)
}

// HeaderDirs returns the unique parent directories of the headers, in
// discovery order.
func (fs FileSet) HeaderDirs() []string {
	return uniqueDirs(fs.Headers)
}

func uniqueDirs(files []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, f := range files {
		d := filepath.Dir(f)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	return dirs
}

type collector struct {
	base string // paths above base are not checked for dot-directories
	ex   *Exclusions
	seen map[string]bool
	fs   FileSet
}

func (c *collector) add(path string) {
	if c.seen[path] || c.ex.Contains(path) || hasHiddenPart(c.base, path) {
		return
	}
	name := filepath.Base(path)
	switch {
	case IsHeader(name):
		c.fs.Headers = append(c.fs.Headers, path)
	case IsSource(name):
		c.fs.Sources = append(c.fs.Sources, path)
	default:
		return
	}
	c.seen[path] = true
}

// Classify enumerates the library's headers and sources. Modern libraries
// are searched recursively under src/; Legacy libraries only at the root and
// directly inside utility/. Files under any exclusion root, including the
// library's own test directory, are dropped. A library that is not installed
// yields an empty FileSet.
func Classify(lib *Library, ex *Exclusions) (FileSet, error) {
	if !lib.Installed() {
		return FileSet{}, nil
	}
	c := &collector{base: lib.Path, ex: ex.ForLibrary(lib), seen: make(map[string]bool)}

	if lib.Layout() == Modern {
		if err := c.walk(filepath.Join(lib.Path, "src")); err != nil {
			return FileSet{}, err
		}
		return c.fs, nil
	}

	for _, dir := range []string{lib.Path, filepath.Join(lib.Path, "utility")} {
		if err := c.list(dir); err != nil {
			return FileSet{}, err
		}
	}
	return c.fs, nil
}

func (c *collector) walk(root string) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != root && (hidden(d.Name()) || c.ex.Contains(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		c.add(path)
		return nil
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidLibrary, err, "scan %s", root)
	}
	return nil
}

func (c *collector) list(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidLibrary, err, "list %s", dir)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		c.add(filepath.Join(dir, e.Name()))
	}
	return nil
}

func hasHiddenPart(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return hidden(filepath.Base(path))
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if hidden(part) {
			return true
		}
	}
	return false
}
