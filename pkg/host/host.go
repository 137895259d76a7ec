// Package host runs external programs (compilers, arduino-cli, bundler) and
// captures their results.
//
// Every invocation returns a [Result] value that carries the literal command
// line and both output streams. Callers thread these values to wherever
// diagnostics are printed; nothing in this package remembers "the last
// command".
package host

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Options configures a single invocation.
type Options struct {
	Dir   string    // working directory (current directory if empty)
	Env   []string  // extra KEY=VALUE pairs appended to the inherited environment
	Stdin io.Reader // optional standard input
}

// Result is the outcome of one external invocation.
type Result struct {
	Command  []string      // program followed by its arguments, verbatim
	Success  bool          // process started and exited with status 0
	ExitCode int           // -1 when the process could not be started
	Stdout   string        // captured standard output
	Stderr   string        // captured standard error
	Duration time.Duration // wall time of the invocation
	Err      error         // start failure or non-zero exit
}

// CommandLine renders the command as a shell-pasteable string.
func (r Result) CommandLine() string {
	parts := make([]string, len(r.Command))
	for i, arg := range r.Command {
		parts[i] = quote(arg)
	}
	return strings.Join(parts, " ")
}

// Output returns stdout and stderr joined, trimmed of surrounding blank lines.
func (r Result) Output() string {
	return strings.TrimSpace(strings.TrimSpace(r.Stdout) + "\n" + strings.TrimSpace(r.Stderr))
}

func quote(arg string) string {
	if arg == "" {
		return `""`
	}
	if strings.ContainsAny(arg, " \t\n\"'\\$`*?[]{}()<>|&;#~") {
		return strconv.Quote(arg)
	}
	return arg
}

// Executor runs external programs. [Exec] is the real implementation;
// tests substitute fakes.
type Executor interface {
	Run(ctx context.Context, name string, args []string, opts Options) Result
}

// Exec runs programs with os/exec.
type Exec struct{}

// Run starts name with args, waits for it, and captures its output.
// It never returns a zero Result: a program that cannot be found yields
// Success == false, ExitCode == -1 and a populated Err.
func (Exec) Run(ctx context.Context, name string, args []string, opts Options) Result {
	res := Result{Command: append([]string{name}, args...), ExitCode: -1}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}
	cmd.Stdin = opts.Stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Err = err

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Success = true
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	}
	return res
}

// Run is shorthand for Exec{}.Run.
func Run(ctx context.Context, name string, args []string, opts Options) Result {
	return Exec{}.Run(ctx, name, args, opts)
}
