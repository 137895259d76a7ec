package host

import (
	"context"
	"fmt"
	"strings"
)

// DefaultPackageRootsCommand lists the install locations of the gems bundled
// with the current project, one per line.
var DefaultPackageRootsCommand = []string{"bundle", "list", "--paths"}

// PackageRoots asks an external package manager where its packages live.
// It satisfies library.PackageManager.
type PackageRoots struct {
	Exec    Executor
	Command []string // defaults to DefaultPackageRootsCommand
}

// InstalledPackageRoots runs the configured command and returns each
// non-empty output line as a path, along with the invocation. A failing
// command is reported as an error; callers treat that as "no bundle
// present".
func (p PackageRoots) InstalledPackageRoots(ctx context.Context) ([]string, Result, error) {
	command := p.Command
	if len(command) == 0 {
		command = DefaultPackageRootsCommand
	}
	ex := p.Exec
	if ex == nil {
		ex = Exec{}
	}

	res := ex.Run(ctx, command[0], command[1:], Options{})
	if !res.Success {
		return nil, res, fmt.Errorf("%s: %w", res.CommandLine(), res.Err)
	}

	var roots []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			roots = append(roots, line)
		}
	}
	return roots, res, nil
}
