// Package arduino drives the arduino-cli executable.
//
// [CLI] installs libraries and board cores, compiles example sketches for
// real boards, and locates the sketchbook libraries directory. It satisfies
// deps.Installer, so dependency resolution installs through it.
package arduino

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/arduci/pkg/cache"
	"github.com/matzehuels/arduci/pkg/errors"
	"github.com/matzehuels/arduci/pkg/host"
	"github.com/matzehuels/arduci/pkg/library"
)

// DefaultBinary is the arduino-cli executable looked up on PATH.
const DefaultBinary = "arduino-cli"

// Options configures a CLI.
type Options struct {
	Exec         host.Executor // defaults to host.Exec
	Logger       *log.Logger
	LibrariesDir string // skip `config dump` when set
}

// CLI wraps one arduino-cli binary.
type CLI struct {
	binary       string
	exec         host.Executor
	logger       *log.Logger
	librariesDir string
}

// New returns a CLI for binary. Unless opts.LibrariesDir is set, the
// libraries directory is read from `arduino-cli config dump`.
func New(ctx context.Context, binary string, opts Options) (*CLI, error) {
	if binary == "" {
		binary = DefaultBinary
	}
	c := &CLI{binary: binary, exec: opts.Exec, logger: opts.Logger, librariesDir: opts.LibrariesDir}
	if c.exec == nil {
		c.exec = host.Exec{}
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	if c.librariesDir == "" {
		dir, err := c.readLibrariesDir(ctx)
		if err != nil {
			return nil, err
		}
		c.librariesDir = dir
	}
	return c, nil
}

// Binary returns the arduino-cli executable in use.
func (c *CLI) Binary() string { return c.binary }

// LibrariesDir is where arduino-cli installs libraries.
func (c *CLI) LibrariesDir() string { return c.librariesDir }

func (c *CLI) run(ctx context.Context, args ...string) host.Result {
	c.logger.Debug("arduino-cli", "args", args)
	return c.exec.Run(ctx, c.binary, args, host.Options{})
}

// dump is the subset of `arduino-cli config dump` we read. Newer releases
// nest everything under a top-level "config" key.
type dump struct {
	Directories struct {
		Data string `yaml:"data"`
		User string `yaml:"user"`
	} `yaml:"directories"`
	Config *dump `yaml:"config"`
}

func (c *CLI) readLibrariesDir(ctx context.Context) (string, error) {
	res := c.run(ctx, "config", "dump")
	if !res.Success {
		return "", errors.Wrap(errors.ErrCodeToolFailed, res.Err, "%s: %s", res.CommandLine(), strings.TrimSpace(res.Stderr))
	}
	return parseLibrariesDir([]byte(res.Stdout))
}

func parseLibrariesDir(data []byte) (string, error) {
	var d dump
	if err := yaml.Unmarshal(data, &d); err != nil {
		return "", errors.Wrap(errors.ErrCodeToolFailed, err, "parse arduino-cli config dump")
	}
	if d.Directories.User == "" && d.Config != nil {
		d = *d.Config
	}
	if d.Directories.User == "" {
		return "", errors.New(errors.ErrCodeToolFailed, "arduino-cli config dump has no directories.user")
	}
	return filepath.Join(d.Directories.User, "libraries"), nil
}

// =============================================================================
// Libraries (deps.Installer)
// =============================================================================

// Library returns the install location of name.
func (c *CLI) Library(name string) *library.Library {
	return library.New(name, c.librariesDir)
}

// IsInstalled reports whether name is present in the libraries directory.
func (c *CLI) IsInstalled(name string) bool {
	return c.Library(name).Installed()
}

// PropertiesOf reads the installed library's properties.
func (c *CLI) PropertiesOf(name string) (*library.Properties, error) {
	return c.Library(name).Properties()
}

// Install runs `arduino-cli lib install`. Transient network failures are
// retried with backoff; the final attempt's result is returned.
func (c *CLI) Install(ctx context.Context, name string) host.Result {
	if err := errors.ValidateLibraryName(name); err != nil {
		return host.Result{Command: []string{c.binary, "lib", "install", name}, ExitCode: -1, Err: err}
	}
	var res host.Result
	_ = cache.RetryWithBackoff(ctx, func() error {
		res = c.run(ctx, "lib", "install", name)
		if res.Success {
			return nil
		}
		if transient(res) {
			c.logger.Debug("retrying library install", "name", name)
			return cache.Retryable(res.Err)
		}
		return res.Err
	})
	return res
}

func transient(res host.Result) bool {
	out := strings.ToLower(res.Stdout + res.Stderr)
	for _, marker := range []string{"timeout", "timed out", "connection reset", "connection refused", "temporary failure", "no such host"} {
		if strings.Contains(out, marker) {
			return true
		}
	}
	return false
}

// LinkLocal makes the library under test visible to arduino-cli by
// symlinking it into the libraries directory. An existing link to the same
// place is kept; a stale link is replaced; a real directory is left alone.
func (c *CLI) LinkLocal(lib *library.Library) error {
	dest := c.Library(lib.Name).Path
	if err := os.MkdirAll(c.librariesDir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInstallFailed, err, "create %s", c.librariesDir)
	}

	info, err := os.Lstat(dest)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return errors.Wrap(errors.ErrCodeInstallFailed, err, "inspect %s", dest)
	case info.Mode()&os.ModeSymlink != 0:
		if target, _ := os.Readlink(dest); target == lib.Path {
			return nil
		}
		if err := os.Remove(dest); err != nil {
			return errors.Wrap(errors.ErrCodeInstallFailed, err, "remove stale link %s", dest)
		}
	default:
		c.logger.Warn("library already installed as a directory; not linking", "path", dest)
		return nil
	}

	if err := os.Symlink(lib.Path, dest); err != nil {
		return errors.Wrap(errors.ErrCodeInstallFailed, err, "link %s to %s", dest, lib.Path)
	}
	return nil
}

// =============================================================================
// Cores and sketches
// =============================================================================

// InstallCore installs a board package, updating the index first when the
// package comes from an additional board-manager URL.
func (c *CLI) InstallCore(ctx context.Context, pkg, url string) host.Result {
	var extra []string
	if url != "" {
		extra = []string{"--additional-urls", url}
		if res := c.run(ctx, append([]string{"core", "update-index"}, extra...)...); !res.Success {
			return res
		}
	}
	var res host.Result
	_ = cache.RetryWithBackoff(ctx, func() error {
		res = c.run(ctx, append([]string{"core", "install", pkg}, extra...)...)
		if res.Success {
			return nil
		}
		if transient(res) {
			return cache.Retryable(res.Err)
		}
		return res.Err
	})
	return res
}

// CompileSketch compiles the sketch in dir for the board fqbn.
func (c *CLI) CompileSketch(ctx context.Context, fqbn, dir string) host.Result {
	return c.run(ctx, "compile", "--fqbn", fqbn, "--warnings", "all", dir)
}
