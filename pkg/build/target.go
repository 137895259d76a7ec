// Package build assembles and runs the compiler invocations of a host test
// run.
//
// A run builds two kinds of [Target] for every (platform, compiler) pair:
// one shared runtime (the mock Arduino core, its test harness, the library
// under test and all of its dependencies, linked as a shared object) and
// then one executable per test file, linked against that runtime.
//
// [Planner.Plan] is pure: it produces the argument vector in a fixed order
// that is part of the contract, because compilers are sensitive to it.
//
//  1. -std=c++0x
//  2. shared runtime only: -shared -fPIC -Wl,-undefined,dynamic_lookup
//  3. -o <artifact> -L<build dir>
//  4. -DARDUINO=100
//  5. when the compiler supports AddressSanitizer: debug and sanitize flags
//  6. -f<feature>, -W<warning>, -D<define>, raw flags from the platform
//  7. -I for the mock core, the test harness, the library, its dependencies
//  8. shared runtime: every source; test executable: the test file and
//     -larduino
//
// [Planner.Build] deletes any previous artifact, invokes the compiler and
// records whether the shared runtime is ready. A test executable can only be
// planned after the runtime was built in the same (platform, compiler)
// cycle; [Planner.Reset] starts a new cycle.
package build

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Kind distinguishes the two artifacts of a run.
type Kind int

const (
	// SharedRuntime is the mock core plus library, linked once per pair.
	SharedRuntime Kind = iota
	// TestExecutable is one test file linked against the shared runtime.
	TestExecutable
)

func (k Kind) String() string {
	if k == TestExecutable {
		return "test executable"
	}
	return "shared runtime"
}

// Target is one thing to build.
type Target struct {
	Kind     Kind
	TestFile string // TestExecutable only
}

// RuntimeTarget is the shared runtime target.
func RuntimeTarget() Target { return Target{Kind: SharedRuntime} }

// TestTarget is the executable built from testFile.
func TestTarget(testFile string) Target { return Target{Kind: TestExecutable, TestFile: testFile} }

func (t Target) String() string {
	if t.Kind == TestExecutable {
		return filepath.Base(t.TestFile)
	}
	return t.Kind.String()
}

// RuntimeLibrary is the name passed to -l when linking test executables.
const RuntimeLibrary = "arduino"

// ArtifactName returns the file name of the target's artifact on goos.
func ArtifactName(t Target, goos string) string {
	windows := goos == "windows"
	if t.Kind == SharedRuntime {
		if windows {
			return "lib" + RuntimeLibrary + ".dll"
		}
		return "lib" + RuntimeLibrary + ".so"
	}
	base := strings.TrimSuffix(filepath.Base(t.TestFile), filepath.Ext(t.TestFile))
	if windows {
		return "unittest_" + base + ".exe"
	}
	return "unittest_" + base + ".bin"
}

func hostOS() string { return runtime.GOOS }
