package library

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/arduci/pkg/host"
)

// Exclusions is a set of directories no classified file may descend from.
// A nil *Exclusions excludes nothing.
type Exclusions struct {
	roots []string
}

// NewExclusions builds the per-run exclusion roots for the library rooted at
// libDir. excludeDirs are relative to libDir and are ignored unless they
// exist; vendorRoots come from [VendorRoots].
func NewExclusions(libDir string, excludeDirs, vendorRoots []string) *Exclusions {
	ex := &Exclusions{}
	for _, d := range excludeDirs {
		p := filepath.Join(libDir, d)
		if isDir(p) {
			ex.add(p)
		}
	}
	for _, v := range vendorRoots {
		ex.add(v)
	}
	return ex
}

func (e *Exclusions) add(path string) {
	path = filepath.Clean(path)
	if !slices.Contains(e.roots, path) {
		e.roots = append(e.roots, path)
	}
}

// Roots returns the exclusion roots in insertion order.
func (e *Exclusions) Roots() []string {
	if e == nil {
		return nil
	}
	return slices.Clone(e.roots)
}

// ForLibrary returns a copy of e that also excludes lib's test directory.
func (e *Exclusions) ForLibrary(lib *Library) *Exclusions {
	out := &Exclusions{roots: e.Roots()}
	out.add(lib.TestDir())
	return out
}

// Contains reports whether path is an exclusion root or lies beneath one.
func (e *Exclusions) Contains(path string) bool {
	if e == nil {
		return false
	}
	path = filepath.Clean(path)
	for _, root := range e.roots {
		if isWithin(root, path) {
			return true
		}
	}
	return false
}

// isWithin reports whether path equals root or is a descendant of it.
func isWithin(root, path string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(root, string(filepath.Separator))+string(filepath.Separator))
}

// PackageManager reports where the host's package manager installed its
// dependency bundles. The returned invocation may be zero when nothing was
// run.
type PackageManager interface {
	InstalledPackageRoots(ctx context.Context) ([]string, host.Result, error)
}

// VendorRoots returns the package roots that lie strictly below workDir:
// bundles vendored into the working tree. A root equal to workDir is never
// returned, so running against the tool's own checkout excludes nothing it
// needs. A failing package manager means there is no vendor bundle. The
// package manager's invocation is returned for diagnostics.
func VendorRoots(ctx context.Context, pm PackageManager, workDir string, logger *log.Logger) ([]string, host.Result) {
	if pm == nil {
		return nil, host.Result{}
	}
	if logger == nil {
		logger = log.Default()
	}
	roots, inv, err := pm.InstalledPackageRoots(ctx)
	if err != nil {
		logger.Debug("no vendor bundle", "error", err)
		return nil, inv
	}

	workDir = filepath.Clean(workDir)
	var vendor []string
	for _, r := range roots {
		if !filepath.IsAbs(r) {
			r = filepath.Join(workDir, r)
		}
		r = filepath.Clean(r)
		if r != workDir && isWithin(workDir, r) && !slices.Contains(vendor, r) {
			vendor = append(vendor, r)
		}
	}
	return vendor, inv
}
