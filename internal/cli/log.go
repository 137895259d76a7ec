// Package cli implements the arduci command-line interface.
//
// This package provides commands for running a library's host unit tests,
// compiling its examples for real boards, and inspecting what a run would
// do: the compiler invocations, the dependency graph, the selected
// platforms, the merged configuration and the classified source files. The
// CLI is built using cobra and logs through charmbracelet/log.
//
// # Commands
//
// The main commands are:
//   - unittest: Build the mock runtime and run every test file
//   - compile: Compile examples with arduino-cli
//   - plan: Print the compiler invocations a unittest run would make
//   - deps: Show the dependency graph as a tree, DOT or SVG
//   - platforms, config, files: Inspect configuration and sources
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging, which also
// registers observability hooks that log every compile, test run, install
// and probe cache lookup.
//
// # Example
//
//	import "github.com/matzehuels/arduci/internal/cli"
//
//	func main() {
//	    c := cli.New(os.Stderr, cli.LogInfo)
//	    if err := c.RootCommand().Execute(); err != nil {
//	        os.Exit(1)
//	    }
//	}
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a new logger with timestamp formatting.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
type progress struct {
	logger *log.Logger
	start  time.Time
}

// newProgress creates a progress tracker that captures the current time as start.
func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
// Example output: "Ran 12 tests (4.812s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

// logHooks forwards observability events to the debug log.
type logHooks struct {
	logger *log.Logger
}

func (h *logHooks) OnCompileStart(_ context.Context, target, compiler string) {
	h.logger.Debug("compile start", "target", target, "compiler", compiler)
}

func (h *logHooks) OnCompileComplete(_ context.Context, target, compiler string, d time.Duration, err error) {
	h.logger.Debug("compile done", "target", target, "compiler", compiler, "took", d.Round(time.Millisecond), "error", err)
}

func (h *logHooks) OnTestStart(_ context.Context, executable string) {
	h.logger.Debug("test start", "executable", executable)
}

func (h *logHooks) OnTestComplete(_ context.Context, executable string, d time.Duration, err error) {
	h.logger.Debug("test done", "executable", executable, "took", d.Round(time.Millisecond), "error", err)
}

func (h *logHooks) OnInstallStart(_ context.Context, lib string) {
	h.logger.Debug("install start", "library", lib)
}

func (h *logHooks) OnInstallComplete(_ context.Context, lib string, d time.Duration, err error) {
	h.logger.Debug("install done", "library", lib, "took", d.Round(time.Millisecond), "error", err)
}

func (h *logHooks) OnCacheHit(_ context.Context, key string) {
	h.logger.Debug("probe cache hit", "key", key)
}

func (h *logHooks) OnCacheMiss(_ context.Context, key string) {
	h.logger.Debug("probe cache miss", "key", key)
}

func (h *logHooks) OnCacheSet(_ context.Context, key string, size int) {
	h.logger.Debug("probe cache set", "key", key, "size", size)
}
