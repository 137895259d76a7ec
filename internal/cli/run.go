package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/arduci/pkg/errors"
	"github.com/matzehuels/arduci/pkg/pipeline"
)

// unittestCommand creates the unittest command.
func (c *CLI) unittestCommand() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "unittest [library-dir]",
		Short: "Build and run the library's unit tests on the host",
		Long: `Build and run the library's unit tests on the host.

For every selected platform and compiler, unittest builds one shared runtime
from the mock Arduino core, the test harness, the library and all of its
dependencies, then builds and runs one executable per file in test/.
Missing dependencies are installed with arduino-cli first.

A test passes when its executable exits with status 0.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeLibraryDir,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.requireRuntime(); err != nil {
				return err
			}
			dir := libraryDir(args)
			cfg, _, err := c.loadConfig(dir, &f)
			if err != nil {
				return err
			}
			runner, err := c.newRunner(cmd.Context(), &f)
			if err != nil {
				return err
			}

			prog := newProgress(c.Logger)
			report, err := runner.Unittest(cmd.Context(), f.options(dir, cfg))
			if err != nil {
				return fatal(report, err)
			}
			prog.done(fmt.Sprintf("Ran %d tests", len(report.Filter(pipeline.StepTest))))
			printReport(report)
			return verdict(report)
		},
	}
	f.register(cmd)
	return cmd
}

// compileCommand creates the compile command.
func (c *CLI) compileCommand() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "compile [library-dir]",
		Short: "Compile the library's examples for real boards",
		Long: `Compile the library's examples for real boards with arduino-cli.

The library is linked into the arduino-cli libraries directory, board
packages are installed once per run, and every example under examples/ is
compiled for each selected platform. An example directory may carry its own
.arduino-ci.yml to narrow platforms or add libraries.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeLibraryDir,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := libraryDir(args)
			cfg, _, err := c.loadConfig(dir, &f)
			if err != nil {
				return err
			}
			runner, err := c.newRunner(cmd.Context(), &f)
			if err != nil {
				return err
			}

			prog := newProgress(c.Logger)
			report, err := runner.CompileExamples(cmd.Context(), f.options(dir, cfg))
			if err != nil {
				return fatal(report, err)
			}
			prog.done(fmt.Sprintf("Compiled %d examples", len(report.Filter(pipeline.StepCompile))))
			printReport(report)
			return verdict(report)
		},
	}
	f.register(cmd)
	return cmd
}

// planCommand creates the plan command.
func (c *CLI) planCommand() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "plan [library-dir]",
		Short: "Print the compiler invocations of a unittest run",
		Long: `Print the compiler invocations a unittest run would make, without
installing, compiling or running anything.

The compiler is still probed once for AddressSanitizer support, since that
decides which flags are planned.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeLibraryDir,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.requireRuntime(); err != nil {
				return err
			}
			f.dryRun = true
			dir := libraryDir(args)
			cfg, _, err := c.loadConfig(dir, &f)
			if err != nil {
				return err
			}
			runner, err := c.newRunner(cmd.Context(), &f)
			if err != nil {
				return err
			}
			report, err := runner.Unittest(cmd.Context(), f.options(dir, cfg))
			if err != nil {
				return fatal(report, err)
			}
			printPlans(report)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

// printPlans prints every planned invocation, grouped by platform and
// compiler.
func printPlans(r *pipeline.Report) {
	if r.Partial {
		printWarning("Not installed: %v", r.FailedDeps)
	}
	var group string
	for _, o := range r.Outcomes {
		if o.Plan == nil {
			continue
		}
		if g := o.Platform + " / " + o.Compiler; g != group {
			if group != "" {
				printNewline()
			}
			group = g
			printTitle("%s", g)
		}
		printInfo("%s", o.Plan.Target)
		printCommand(o.Plan.CommandLine())
	}
}

// fatal prints the last external invocation of a run before its error.
func fatal(r *pipeline.Report, err error) error {
	if r != nil {
		printInvocation(r.LastInvocation)
	}
	return err
}

// verdict turns a report with failures into an error for the exit status.
func verdict(r *pipeline.Report) error {
	if r.OK() {
		return nil
	}
	return errors.New(errors.ErrCodeBuildFailed, "%d of %d steps failed", r.Failed(), len(r.Outcomes))
}
