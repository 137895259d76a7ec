// Package library models Arduino libraries on disk and classifies their files.
//
// A [Library] is identified by its friendly name ("Adafruit GFX Library") and
// lives in a directory whose name maps spaces to underscores. Two layouts
// exist:
//
//   - [Modern] (1.5 format): a library.properties file and a src/ directory,
//     searched recursively
//   - [Legacy] (1.0 format): sources at the root and in utility/, with no
//     recursion
//
// [Classify] enumerates a library's headers and sources after removing
// anything under an exclusion root (the library's own test/ directory, user
// exclude dirs, vendored bundles). Nothing is cached here; callers that need
// per-run memoization keep it themselves (see package deps).
package library

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/matzehuels/arduci/pkg/errors"
)

// PropertiesFile is the metadata file of a Modern library.
const PropertiesFile = "library.properties"

// Layout is a library's source organization convention.
type Layout int

const (
	// Legacy libraries keep sources at the root and in utility/.
	Legacy Layout = iota
	// Modern libraries keep sources under src/ and have library.properties.
	Modern
)

func (l Layout) String() string {
	if l == Modern {
		return "modern"
	}
	return "legacy"
}

// Library is one library installation, present or not.
type Library struct {
	Name string // friendly name, may contain spaces
	Path string // absolute install path
}

// DirName maps a friendly library name to its on-disk directory name.
func DirName(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}

// New returns the library called name inside librariesDir. The library
// need not be installed.
func New(name, librariesDir string) *Library {
	return &Library{Name: name, Path: filepath.Join(librariesDir, DirName(name))}
}

// Local returns the library rooted at path, typically the library under
// test. Its name comes from library.properties, or the directory name.
func Local(path string) (*Library, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", path)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLibrary, err, "library directory %s", abs)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidLibrary, "%s is not a directory", abs)
	}

	lib := &Library{Name: filepath.Base(abs), Path: abs}
	props, err := lib.Properties()
	if err != nil {
		return nil, err
	}
	if props != nil && props.Name != "" {
		lib.Name = props.Name
	}
	return lib, nil
}

// Installed reports whether the install path exists.
func (l *Library) Installed() bool {
	info, err := os.Stat(l.Path)
	return err == nil && info.IsDir()
}

// Layout reports Modern when both src/ and library.properties exist.
func (l *Library) Layout() Layout {
	if isDir(filepath.Join(l.Path, "src")) && isFile(filepath.Join(l.Path, PropertiesFile)) {
		return Modern
	}
	return Legacy
}

// Properties parses library.properties. A missing file yields nil, nil.
func (l *Library) Properties() (*Properties, error) {
	return LoadProperties(filepath.Join(l.Path, PropertiesFile))
}

// TestDir is where the library keeps its unit tests.
func (l *Library) TestDir() string { return filepath.Join(l.Path, "test") }

// ExamplesDir is where the library keeps its example sketches.
func (l *Library) ExamplesDir() string { return filepath.Join(l.Path, "examples") }

// TestFiles returns the source files directly inside test/, sorted.
func TestFiles(lib *Library) ([]string, error) {
	entries, err := os.ReadDir(lib.TestDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLibrary, err, "list %s", lib.TestDir())
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || hidden(e.Name()) || !IsSource(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(lib.TestDir(), e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Examples returns every directory under examples/ that holds a sketch
// (.ino or .pde), sorted.
func Examples(lib *Library) ([]string, error) {
	root := lib.ExamplesDir()
	if !isDir(root) {
		return nil, nil
	}
	seen := make(map[string]bool)
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && hidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isSketch(d.Name()) {
			return nil
		}
		dir := filepath.Dir(path)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLibrary, err, "list examples in %s", root)
	}
	sort.Strings(dirs)
	return dirs, nil
}

func isSketch(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".ino" || ext == ".pde"
}

func hidden(name string) bool { return strings.HasPrefix(name, ".") }

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
