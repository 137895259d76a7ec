// Package deps resolves the transitive closure of Arduino library dependencies.
//
// # Overview
//
// A library declares its dependencies in the depends= line of its
// library.properties. [Resolver] walks those declarations depth-first,
// installing anything missing through an [Installer], and
// remembers every name it has seen for the rest of the run:
//
//   - a name is installed and read at most once per run
//   - cycles (A→B→A) and self-dependencies terminate
//   - an install failure is recorded, never fatal: the name stays in the
//     closure so the later compile step reports a clearer error
//
// # Usage
//
//	r := deps.NewResolver(installer, exclusions, deps.Options{Logger: logger})
//	col := r.Collect(ctx, lib, cfg.UnittestLibraries())
//	if col.Result.Partial() {
//	    logger.Warn("some dependencies failed to install", "failed", col.Result.Failed)
//	}
//	// col.HeaderDirs, col.Sources feed the build planner
package deps

import (
	"context"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/arduci/pkg/host"
	"github.com/matzehuels/arduci/pkg/library"
	"github.com/matzehuels/arduci/pkg/observability"
)

// Installer installs and inspects libraries by friendly name.
type Installer interface {
	// Install fetches and installs the named library.
	Install(ctx context.Context, name string) host.Result
	// IsInstalled reports whether the named library is present.
	IsInstalled(name string) bool
	// PropertiesOf reads the library's properties; nil when it has none.
	PropertiesOf(name string) (*library.Properties, error)
	// Library returns the on-disk location of the named library.
	Library(name string) *library.Library
}

// Options configures a Resolver.
type Options struct {
	Logger *log.Logger
}

// Result is the closure produced by one Resolve call.
type Result struct {
	Names       []string      // closure in discovery order
	Failed      []string      // names in Names whose install failed
	Invocations []Invocation // installs performed by this call
}

// Invocation is one install attempt of a named library.
type Invocation struct {
	Name   string
	Result host.Result
}

// Partial reports whether any dependency in the closure failed to install.
func (r *Result) Partial() bool { return len(r.Failed) > 0 }

// Edge is one declared dependency.
type Edge struct {
	From, To string
}

type entry struct {
	deps   []string
	failed bool
}

// Resolver computes dependency closures. It memoizes per name and is meant
// to live for exactly one run. It is not safe for concurrent use.
type Resolver struct {
	installer  Installer
	exclusions *library.Exclusions
	logger     *log.Logger

	resolved map[string]*entry
	files    map[string]library.FileSet
	edges    []Edge
}

// NewResolver creates a resolver that installs through installer and
// classifies files under exclusions.
func NewResolver(installer Installer, exclusions *library.Exclusions, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		installer:  installer,
		exclusions: exclusions,
		logger:     logger,
		resolved:   make(map[string]*entry),
		files:      make(map[string]library.FileSet),
	}
}

// Resolve returns the transitive closure of names, installing what is
// missing. Resolving the same names again performs no installs and returns
// the same Names and Failed.
func (r *Resolver) Resolve(ctx context.Context, names []string) *Result {
	return r.resolve(ctx, names, "")
}

// resolve walks names, never entering skip. The library under test is
// skipped so a dependency that points back at it does not install it.
func (r *Resolver) resolve(ctx context.Context, names []string, skip string) *Result {
	res := &Result{}
	visiting := map[string]bool{skip: true}
	for _, name := range names {
		r.visit(ctx, name, visiting, res)
	}
	return res
}

func (r *Resolver) visit(ctx context.Context, name string, visiting map[string]bool, res *Result) {
	if name == "" || visiting[name] {
		return
	}
	visiting[name] = true
	res.Names = append(res.Names, name)

	e := r.ensure(ctx, name, res)
	if e.failed {
		res.Failed = append(res.Failed, name)
	}
	for _, dep := range e.deps {
		r.visit(ctx, dep, visiting, res)
	}
}

// ensure installs and reads name once per Resolver.
func (r *Resolver) ensure(ctx context.Context, name string, res *Result) *entry {
	if e, ok := r.resolved[name]; ok {
		return e
	}
	installed := r.installer.IsInstalled(name)
	if !installed && ctx.Err() != nil {
		// Not memoized: a later Resolve with a live context may install it.
		return &entry{failed: true}
	}
	e := &entry{}
	r.resolved[name] = e

	if !installed {
		r.logger.Info("installing library", "name", name)
		observability.Install().OnInstallStart(ctx, name)
		start := time.Now()
		inv := r.installer.Install(ctx, name)
		observability.Install().OnInstallComplete(ctx, name, time.Since(start), inv.Err)

		res.Invocations = append(res.Invocations, Invocation{Name: name, Result: inv})
		if !inv.Success {
			e.failed = true
			r.logger.Warn("library install failed", "name", name, "command", inv.CommandLine())
			return e
		}
	}

	props, err := r.installer.PropertiesOf(name)
	if err != nil {
		r.logger.Warn("unreadable library properties", "name", name, "error", err)
		return e
	}
	if props != nil {
		for _, dep := range props.Depends {
			if dep == name || slices.Contains(e.deps, dep) {
				continue
			}
			e.deps = append(e.deps, dep)
			r.edges = append(r.edges, Edge{From: name, To: dep})
		}
	}
	return e
}

// Dependencies returns the memoized direct dependencies of name, or nil if
// name has not been resolved.
func (r *Resolver) Dependencies(name string) []string {
	if e, ok := r.resolved[name]; ok {
		return slices.Clone(e.deps)
	}
	return nil
}

// Files returns the classified files of name, computed once per run.
func (r *Resolver) Files(name string) library.FileSet {
	if fs, ok := r.files[name]; ok {
		return fs
	}
	fs, err := library.Classify(r.installer.Library(name), r.exclusions)
	if err != nil {
		r.logger.Warn("cannot classify library files", "name", name, "error", err)
	}
	r.files[name] = fs
	return fs
}

// Collection is everything the build needs from a library's dependencies.
type Collection struct {
	Root       string
	Names      []string // closure minus the root, in discovery order
	HeaderDirs []string // dependency include directories only
	Sources    []string
	Result     *Result
}

// Collect resolves aux plus the root library's declared dependencies and
// aggregates the resulting include directories and sources. The root's own
// directories are never part of the collection.
func (r *Resolver) Collect(ctx context.Context, root *library.Library, aux []string) *Collection {
	res := r.resolve(ctx, r.seeds(root, aux), root.Name)

	col := &Collection{Root: root.Name, Names: res.Names, Result: res}
	seenDir := make(map[string]bool)
	for _, name := range res.Names {
		fs := r.Files(name)
		for _, d := range fs.HeaderDirs() {
			if !seenDir[d] {
				seenDir[d] = true
				col.HeaderDirs = append(col.HeaderDirs, d)
			}
		}
		col.Sources = append(col.Sources, fs.Sources...)
	}
	return col
}

func (r *Resolver) seeds(root *library.Library, aux []string) []string {
	seeds := slices.Clone(aux)
	props, err := root.Properties()
	if err != nil {
		r.logger.Warn("unreadable library properties", "name", root.Name, "error", err)
		return seeds
	}
	if props != nil {
		seeds = append(seeds, props.Depends...)
	}
	return seeds
}
