package cli

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/arduci/pkg/arduino"
	"github.com/matzehuels/arduci/pkg/build"
	"github.com/matzehuels/arduci/pkg/buildinfo"
	"github.com/matzehuels/arduci/pkg/cache"
	"github.com/matzehuels/arduci/pkg/config"
	"github.com/matzehuels/arduci/pkg/errors"
	"github.com/matzehuels/arduci/pkg/host"
	"github.com/matzehuels/arduci/pkg/library"
	"github.com/matzehuels/arduci/pkg/observability"
	"github.com/matzehuels/arduci/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for display.
	appName = "arduci"

	envRuntimeDir   = "ARDUCI_RUNTIME_DIR"
	envLibrariesDir = "ARDUCI_LIBRARIES_DIR"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger  *log.Logger
	verbose bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "arduci builds and tests Arduino libraries on the host",
		Long: `arduci compiles an Arduino library together with a mock hardware runtime,
runs its unit tests on the host for every configured platform and compiler,
and compiles its examples for real boards through arduino-cli.

Configuration comes from built-in defaults, an .arduino-ci.yml file at the
library root, and optionally one per example directory.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.verbose {
				c.SetLogLevel(LogDebug)
				registerLogHooks(c.Logger)
			}
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(c.unittestCommand())
	root.AddCommand(c.compileCommand())
	root.AddCommand(c.planCommand())
	root.AddCommand(c.depsCommand())
	root.AddCommand(c.platformsCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.filesCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Shared Flags
// =============================================================================

// runFlags are the flags shared by every command that touches a library.
type runFlags struct {
	buildDir       string
	runtimeDir     string
	librariesDir   string
	arduinoCLI     string
	bundleCommand  string
	testfileSelect []string
	testfileReject []string
	strict         bool
	dryRun         bool
	noProbeCache   bool
}

// register binds the flags to cmd. Environment variables provide defaults
// for the two directories CI images usually pin.
func (f *runFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.buildDir, "build-dir", "", "directory for build artifacts (default: the library directory)")
	fl.StringVar(&f.runtimeDir, "runtime-dir", os.Getenv(envRuntimeDir), "mock Arduino runtime with arduino/ and unittest/ (env "+envRuntimeDir+")")
	fl.StringVar(&f.librariesDir, "libraries-dir", os.Getenv(envLibrariesDir), "arduino-cli libraries directory (env "+envLibrariesDir+"; default: from arduino-cli config dump)")
	fl.StringVar(&f.arduinoCLI, "arduino-cli", arduino.DefaultBinary, "arduino-cli executable")
	fl.BoolVar(&f.dryRun, "dry-run", false, "plan only: no installs, no compiler, no tests")
	fl.BoolVar(&f.noProbeCache, "no-probe-cache", false, "probe the compiler for AddressSanitizer before every build")
	f.registerBundle(cmd)
	f.registerConfig(cmd)
}

// registerConfig binds the flags that shape the merged configuration.
func (f *runFlags) registerConfig(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringSliceVar(&f.testfileSelect, "testfile-select", nil, "only run test files matching these globs")
	fl.StringSliceVar(&f.testfileReject, "testfile-reject", nil, "skip test files matching these globs")
	fl.BoolVar(&f.strict, "strict", false, "treat configuration warnings as errors")
}

// registerBundle binds the vendor bundle probe.
func (f *runFlags) registerBundle(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.bundleCommand, "bundle-command", strings.Join(host.DefaultPackageRootsCommand, " "),
		"command listing vendored package roots, one per line (empty disables)")
}

// packageManager returns the vendor bundle probe, or nil when disabled.
func (f *runFlags) packageManager() library.PackageManager {
	command := strings.Fields(f.bundleCommand)
	if len(command) == 0 {
		return nil
	}
	return host.PackageRoots{Command: command}
}

func (f *runFlags) probeCache() cache.Cache {
	if f.noProbeCache {
		return cache.NewNullCache()
	}
	return cache.NewMemoryCache()
}

// libraryDir returns the library argument, defaulting to the current
// directory.
func libraryDir(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return "."
}

// =============================================================================
// Configuration
// =============================================================================

// loadConfig merges the defaults with the library's override file and the
// test file flags. Warnings are printed; with --strict they are fatal.
func (c *CLI) loadConfig(dir string, f *runFlags) (*config.Config, []config.Warning, error) {
	cfg, warnings, err := config.Default().WithOverrideFile(dir)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range warnings {
		printWarning("%s", w)
	}
	if f.strict {
		if err := config.WarningsError(warnings); err != nil {
			return nil, warnings, err
		}
	}
	return cfg.WithTestFileFilters(f.testfileSelect, f.testfileReject), warnings, nil
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner wires arduino-cli, the host compiler and the vendor probe into
// a pipeline runner.
func (c *CLI) newRunner(ctx context.Context, f *runFlags) (*pipeline.Runner, error) {
	spinner := newSpinnerWithContext(ctx, "Locating arduino-cli libraries...")
	if f.librariesDir == "" && interactive() {
		spinner.Start()
	}
	cli, err := arduino.New(ctx, f.arduinoCLI, arduino.Options{
		Logger:       c.Logger,
		LibrariesDir: f.librariesDir,
	})
	spinner.Stop()
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("arduino-cli", "binary", cli.Binary(), "libraries", cli.LibrariesDir())

	return pipeline.NewRunner(pipeline.Runner{
		Installer:      cli,
		Boards:         cli,
		Compiler:       build.HostCompiler{},
		PackageManager: f.packageManager(),
		Cache:          f.probeCache(),
		Logger:         c.Logger,
	}), nil
}

// options converts flags into pipeline options for dir.
func (f *runFlags) options(dir string, cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		LibraryDir: dir,
		RuntimeDir: f.runtimeDir,
		BuildDir:   f.buildDir,
		Config:     cfg,
		DryRun:     f.dryRun,
		Strict:     f.strict,
	}
}

func (f *runFlags) requireRuntime() error {
	if f.runtimeDir == "" {
		return errors.New(errors.ErrCodeInvalidPath,
			"no mock runtime: pass --runtime-dir or set %s", envRuntimeDir)
	}
	return nil
}

// =============================================================================
// Hooks
// =============================================================================

func registerLogHooks(logger *log.Logger) {
	h := &logHooks{logger: logger}
	observability.SetBuildHooks(h)
	observability.SetInstallHooks(h)
	observability.SetCacheHooks(h)
}
