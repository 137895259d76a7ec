package pipeline

import (
	"context"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/arduci/pkg/config"
	"github.com/matzehuels/arduci/pkg/errors"
	"github.com/matzehuels/arduci/pkg/library"
	"github.com/matzehuels/arduci/pkg/platform"
)

// CompileExamples compiles every example sketch of the library for each of
// its compile platforms through arduino-cli.
//
// Each example may carry its own override file, layered on top of
// opts.Config. Warnings from those files are collected in the report; with
// opts.Strict they are fatal. A board package is installed at most once per
// run, whichever example first needs it.
func (r *Runner) CompileExamples(ctx context.Context, opts Options) (*Report, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if r.Boards == nil {
		return nil, errors.New(errors.ErrCodeInternal, "compiling examples requires a board tool")
	}
	report := newReport("")
	logger := r.Logger.With("run", report.RunID)

	ws, err := r.Prepare(ctx, opts, logger)
	if err != nil {
		return report, err
	}
	report.Library = ws.Library.Name
	for _, inv := range ws.Invocations {
		report.note(inv)
	}

	examples, err := library.Examples(ws.Library)
	if err != nil {
		return report, err
	}
	if len(examples) == 0 {
		logger.Warn("no examples found", "dir", ws.Library.ExamplesDir())
		return report, nil
	}

	if !opts.DryRun {
		if err := r.Boards.LinkLocal(ws.Library); err != nil {
			return report, err
		}
	}

	col := ws.Resolver.Collect(ctx, ws.Library, opts.Config.CompileLibraries())
	recordInstalls(report, col.Result, logger)

	cores := &coreInstaller{boards: r.Boards, report: report, logger: logger, dryRun: opts.DryRun, done: make(map[string]bool)}
	for _, dir := range examples {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := r.compileExample(ctx, ws, opts, dir, cores, report, logger); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (r *Runner) compileExample(ctx context.Context, ws *Workspace, opts Options, dir string, cores *coreInstaller, report *Report, logger *log.Logger) error {
	example := filepath.Base(dir)
	logger = logger.With("example", example)

	cfg, warnings, err := opts.Config.WithOverrideFile(dir)
	if err != nil {
		return err
	}
	report.Warnings = append(report.Warnings, warnings...)
	for _, w := range warnings {
		logger.Warn("ignoring configuration value", "field", w.Field, "problem", w.Message, "source", w.Source)
	}
	if opts.Strict {
		if err := config.WarningsError(warnings); err != nil {
			return err
		}
	}

	platforms, err := platform.Select(cfg, cfg.CompilePlatforms(), ws.Properties)
	if err != nil {
		return err
	}
	report.Platforms = appendUnique(report.Platforms, platforms...)
	if len(platforms) == 0 {
		logger.Warn("no platforms selected for example")
		return nil
	}

	res := ws.Resolver.Resolve(ctx, cfg.CompileLibraries())
	recordInstalls(report, res, logger)

	for _, pkg := range cfg.PackageIDs(platforms) {
		cores.ensure(ctx, pkg, cfg.PackageURL(pkg))
	}

	for _, name := range platforms {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, _ := cfg.Platform(name)
		o := Outcome{Step: StepCompile, Platform: name, Name: example}
		if p.Board == "" {
			o.Status = Skipped
			o.Message = "platform has no board"
			report.record(o)
			continue
		}
		if opts.DryRun {
			o.Status = Skipped
			o.Message = "dry run"
			report.record(o)
			continue
		}

		logger.Info("compiling example", "board", p.Board)
		o.Result = r.Boards.CompileSketch(ctx, p.Board, dir)
		o.Status = Passed
		if !o.Result.Success {
			o.Status = Failed
			o.Message = "compilation failed"
			logger.Error("example failed to compile", "board", p.Board, "command", o.Result.CommandLine())
		}
		report.record(o)
	}
	return nil
}

// coreInstaller installs each board package at most once per run.
type coreInstaller struct {
	boards BoardTool
	report *Report
	logger *log.Logger
	dryRun bool
	done   map[string]bool
}

func (c *coreInstaller) ensure(ctx context.Context, pkg, url string) {
	if c.done[pkg] {
		return
	}
	c.done[pkg] = true

	o := Outcome{Step: StepCore, Name: pkg}
	if c.dryRun {
		o.Status = Skipped
		o.Message = "dry run"
		c.report.record(o)
		return
	}
	c.logger.Info("installing board package", "package", pkg)
	o.Result = c.boards.InstallCore(ctx, pkg, url)
	o.Status = Passed
	if !o.Result.Success {
		// The compile step reports the missing core in context.
		o.Status = Skipped
		o.Message = "install failed"
		c.logger.Warn("board package install failed", "package", pkg, "command", o.Result.CommandLine())
	}
	c.report.record(o)
}

func appendUnique(list []string, items ...string) []string {
	for _, it := range items {
		if !slices.Contains(list, it) {
			list = append(list, it)
		}
	}
	return list
}
