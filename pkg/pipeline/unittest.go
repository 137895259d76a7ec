package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/arduci/pkg/build"
	"github.com/matzehuels/arduci/pkg/config"
	"github.com/matzehuels/arduci/pkg/deps"
	"github.com/matzehuels/arduci/pkg/host"
	"github.com/matzehuels/arduci/pkg/library"
	"github.com/matzehuels/arduci/pkg/observability"
	"github.com/matzehuels/arduci/pkg/platform"
)

// Unittest builds and runs the library's unit tests on every selected
// (platform, compiler) pair.
//
// The returned error is non-nil only for fatal conditions: an unknown
// platform, a missing mock runtime, an unreadable library or cancellation.
// Build and test failures are recorded in the report. The report is
// returned alongside a fatal error so callers can print its last
// invocation.
func (r *Runner) Unittest(ctx context.Context, opts Options) (*Report, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	report := newReport("")
	logger := r.Logger.With("run", report.RunID)

	rt := library.Runtime{Dir: opts.RuntimeDir}
	if err := rt.Validate(); err != nil {
		return report, err
	}

	ws, err := r.Prepare(ctx, opts, logger)
	if err != nil {
		return report, err
	}
	report.Library = ws.Library.Name
	for _, inv := range ws.Invocations {
		report.note(inv)
	}
	cfg := opts.Config

	platforms, err := platform.Select(cfg, cfg.UnittestPlatforms(), ws.Properties)
	if err != nil {
		return report, err
	}
	report.Platforms = platforms
	if len(platforms) == 0 {
		logger.Warn("no platforms selected for unit tests")
	}

	col := ws.Resolver.Collect(ctx, ws.Library, cfg.UnittestLibraries())
	recordInstalls(report, col.Result, logger)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	own, err := library.Classify(ws.Library, ws.Exclusions)
	if err != nil {
		return report, err
	}
	tests, err := library.TestFiles(ws.Library)
	if err != nil {
		return report, err
	}
	tests = cfg.AllowedTestFiles(tests)
	if len(tests) == 0 {
		logger.Warn("no test files selected", "dir", ws.Library.TestDir())
	}

	in := build.Inputs{
		Runtime:           rt,
		LibraryHeaderDirs: own.HeaderDirs(),
		LibrarySources:    own.Sources,
		DepHeaderDirs:     col.HeaderDirs,
		DepSources:        col.Sources,
	}
	planner := build.NewPlanner(r.Compiler, build.Options{
		BuildDir: opts.BuildDir,
		DryRun:   opts.DryRun,
		Cache:    r.Cache,
		Logger:   logger,
		OnInvoke: report.note,
	})

	for _, name := range platforms {
		for _, compiler := range cfg.Compilers() {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			c := &cycle{
				runner:   r,
				report:   report,
				planner:  planner,
				logger:   logger.With("platform", name, "compiler", compiler),
				platform: name,
				compiler: compiler,
				gcc:      cfg.GCCConfig(name),
				inputs:   in,
			}
			if err := c.run(ctx, tests); err != nil {
				return report, err
			}
		}
	}
	return report, nil
}

// recordInstalls adds one outcome per install invocation. A failed install
// is Skipped, not Failed: the build goes ahead and reports the real error.
func recordInstalls(report *Report, res *deps.Result, logger *log.Logger) {
	for _, inv := range res.Invocations {
		o := Outcome{Step: StepInstall, Name: inv.Name, Status: Passed, Result: inv.Result}
		if !inv.Result.Success {
			o.Status = Skipped
			o.Message = "install failed"
		}
		report.record(o)
	}
	if !res.Partial() {
		return
	}
	report.Partial = true
	for _, name := range res.Failed {
		if !slices.Contains(report.FailedDeps, name) {
			report.FailedDeps = append(report.FailedDeps, name)
		}
	}
	logger.Warn("continuing with missing dependencies", "failed", res.Failed)
}

// cycle is one (platform, compiler) pair: one shared runtime, then every
// test executable linked against it.
type cycle struct {
	runner   *Runner
	report   *Report
	planner  *build.Planner
	logger   *log.Logger
	platform string
	compiler string
	gcc      *config.GCC
	inputs   build.Inputs
}

func (c *cycle) outcome(step Step, name string) Outcome {
	return Outcome{Step: step, Platform: c.platform, Compiler: c.compiler, Name: name}
}

func (c *cycle) run(ctx context.Context, tests []string) error {
	c.planner.Reset()

	plan, err := c.planner.Plan(ctx, build.RuntimeTarget(), c.compiler, c.gcc, c.inputs)
	if err != nil {
		return err
	}
	c.logger.Info("building shared runtime", "artifact", plan.Output)
	if !c.build(ctx, StepRuntime, filepath.Base(plan.Output), plan) {
		c.logger.Error("shared runtime build failed", "command", plan.CommandLine())
		for _, t := range tests {
			o := c.outcome(StepBuild, filepath.Base(t))
			o.Status = Skipped
			o.Message = "shared runtime not built"
			c.report.record(o)
		}
		return nil
	}

	for _, t := range tests {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.test(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// build records the outcome of building plan and reports whether the
// artifact is usable.
func (c *cycle) build(ctx context.Context, step Step, name string, plan *build.Plan) bool {
	oc := c.planner.Build(ctx, plan)
	o := c.outcome(step, name)
	o.Plan, o.Result = plan, oc.Result
	switch {
	case !oc.Success:
		o.Status = Failed
		o.Message = "compilation failed"
	case oc.DryRun:
		o.Status = Skipped
		o.Message = "dry run"
	default:
		o.Status = Passed
	}
	c.report.record(o)
	return oc.Success
}

func (c *cycle) test(ctx context.Context, testFile string) error {
	name := filepath.Base(testFile)
	plan, err := c.planner.Plan(ctx, build.TestTarget(testFile), c.compiler, c.gcc, c.inputs)
	if err != nil {
		return err
	}
	if !c.build(ctx, StepBuild, name, plan) {
		c.logger.Error("test build failed", "test", name)
		return nil
	}
	if c.planner.DryRun() {
		return nil
	}

	exe := filepath.Base(plan.Output)
	c.logger.Info("running test", "test", name)
	observability.Build().OnTestStart(ctx, exe)
	start := time.Now()
	res := c.runner.Exec.Run(ctx, plan.Output, nil, host.Options{
		Dir: c.planner.BuildDir(),
		Env: libraryPathEnv(c.planner.BuildDir(), runtime.GOOS),
	})
	observability.Build().OnTestComplete(ctx, exe, time.Since(start), res.Err)

	o := c.outcome(StepTest, name)
	o.Result = res
	o.Status = Passed
	if !res.Success {
		o.Status = Failed
		o.Message = "exit status " + strconv.Itoa(res.ExitCode)
		c.logger.Error("test failed", "test", name, "exit", res.ExitCode)
	}
	c.report.record(o)
	return nil
}

// libraryPathEnv puts dir first on the dynamic loader path so test
// executables find the shared runtime.
func libraryPathEnv(dir, goos string) []string {
	key := "LD_LIBRARY_PATH"
	switch goos {
	case "darwin":
		key = "DYLD_LIBRARY_PATH"
	case "windows":
		key = "PATH"
	}
	val := dir
	if old := os.Getenv(key); old != "" {
		val = dir + string(os.PathListSeparator) + old
	}
	return []string{key + "=" + val}
}
