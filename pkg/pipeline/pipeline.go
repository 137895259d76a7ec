// Package pipeline runs arduci's two workflows end to end.
//
// [Runner.Unittest] builds the mock runtime and every allowed test file for
// each selected (platform, compiler) pair, then runs the test executables.
// [Runner.CompileExamples] compiles the library's example sketches for real
// boards through arduino-cli.
//
// Both share one per-run [Workspace]: the library under test, its exclusion
// roots (computed once) and a memoizing dependency resolver.
//
// # Usage
//
//	runner := pipeline.NewRunner(pipeline.Runner{
//	    Installer: cli,
//	    Boards:    cli,
//	    Compiler:  build.HostCompiler{},
//	    Logger:    logger,
//	})
//	report, err := runner.Unittest(ctx, pipeline.Options{
//	    LibraryDir: ".",
//	    RuntimeDir: runtimeDir,
//	    Config:     cfg,
//	})
//	if err != nil {
//	    // fatal: unknown platform, missing runtime directory, ...
//	}
//	if report.Failed() > 0 {
//	    os.Exit(1)
//	}
//
// Execution is sequential: every test executable links against the runtime
// built immediately before it.
package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/arduci/pkg/build"
	"github.com/matzehuels/arduci/pkg/cache"
	"github.com/matzehuels/arduci/pkg/config"
	"github.com/matzehuels/arduci/pkg/deps"
	"github.com/matzehuels/arduci/pkg/errors"
	"github.com/matzehuels/arduci/pkg/host"
	"github.com/matzehuels/arduci/pkg/library"
)

// BoardTool installs board cores and compiles sketches for real hardware.
// *arduino.CLI implements it.
type BoardTool interface {
	InstallCore(ctx context.Context, pkg, url string) host.Result
	CompileSketch(ctx context.Context, fqbn, dir string) host.Result
	LinkLocal(lib *library.Library) error
}

// Runner holds the external collaborators of a run.
type Runner struct {
	Installer      deps.Installer
	Boards         BoardTool
	Compiler       build.Compiler
	Exec           host.Executor          // runs test executables
	PackageManager library.PackageManager // vendor bundle detection; optional
	Cache          cache.Cache            // sanitizer probe results
	Logger         *log.Logger
}

// NewRunner fills in defaults for the zero-valued fields of r.
func NewRunner(r Runner) *Runner {
	if r.Exec == nil {
		r.Exec = host.Exec{}
	}
	if r.Compiler == nil {
		r.Compiler = build.HostCompiler{Exec: r.Exec}
	}
	if r.Cache == nil {
		r.Cache = cache.NewMemoryCache()
	}
	if r.Logger == nil {
		r.Logger = log.Default()
	}
	return &r
}

// Options describes one run.
type Options struct {
	LibraryDir string         // library under test
	WorkDir    string         // vendor bundle detection; defaults to the current directory
	RuntimeDir string         // mock Arduino core (arduino/ and unittest/)
	BuildDir   string         // artifacts; defaults to LibraryDir
	Config     *config.Config // merged default and project tiers
	DryRun     bool           // plan only: no installs, no compiler, no tests
	Strict     bool           // example override warnings are fatal

	validated bool
}

// ValidateAndSetDefaults checks required fields and fills in defaults.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.LibraryDir == "" {
		o.LibraryDir = "."
	}
	if o.Config == nil {
		o.Config = config.Default()
	}
	if o.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidPath, err, "determine working directory")
		}
		o.WorkDir = wd
	}
	abs, err := filepath.Abs(o.WorkDir)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", o.WorkDir)
	}
	o.WorkDir = abs
	if o.BuildDir == "" {
		o.BuildDir = o.LibraryDir
	}
	if abs, err = filepath.Abs(o.BuildDir); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", o.BuildDir)
	}
	o.BuildDir = abs
	o.validated = true
	return nil
}

// Workspace is the per-run view of the library under test.
type Workspace struct {
	Library    *library.Library
	Properties *library.Properties
	Exclusions *library.Exclusions
	Resolver   *deps.Resolver

	// Invocations are the external commands run while preparing.
	Invocations []host.Result
}

// Prepare loads the library under test, computes its exclusion roots once
// and creates the run's dependency resolver.
func (r *Runner) Prepare(ctx context.Context, opts Options, logger *log.Logger) (*Workspace, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = r.Logger
	}
	lib, err := library.Local(opts.LibraryDir)
	if err != nil {
		return nil, err
	}
	props, err := lib.Properties()
	if err != nil {
		return nil, err
	}

	vendor, lookup := library.VendorRoots(ctx, r.PackageManager, opts.WorkDir, logger)
	if len(vendor) > 0 {
		logger.Debug("excluding vendor bundles", "roots", vendor)
	}
	ex := library.NewExclusions(lib.Path, opts.Config.ExcludeDirs(), vendor)

	installer := r.Installer
	if opts.DryRun {
		installer = dryRunInstaller{installer}
	}
	ws := &Workspace{
		Library:    lib,
		Properties: props,
		Exclusions: ex,
		Resolver:   deps.NewResolver(installer, ex, deps.Options{Logger: logger}),
	}
	if len(lookup.Command) > 0 {
		ws.Invocations = append(ws.Invocations, lookup)
	}
	return ws, nil
}

// dryRunInstaller reports missing libraries as failed instead of installing.
type dryRunInstaller struct{ deps.Installer }

func (d dryRunInstaller) Install(_ context.Context, name string) host.Result {
	return host.Result{
		Command:  []string{"install", name},
		ExitCode: -1,
		Stderr:   "not installed (dry run)",
		Err:      errors.New(errors.ErrCodeInstallFailed, "%s is not installed (dry run)", name),
	}
}
