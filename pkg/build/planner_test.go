package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/arduci/pkg/cache"
	"github.com/matzehuels/arduci/pkg/config"
	arderrors "github.com/matzehuels/arduci/pkg/errors"
	"github.com/matzehuels/arduci/pkg/host"
	"github.com/matzehuels/arduci/pkg/library"
)

// fakeCompiler records invocations. Builds write the -o artifact unless
// fail is set; the sanitizer probe answers asan.
type fakeCompiler struct {
	asan   bool
	fail   bool
	probes int
	calls  [][]string
	// seen records, per call, whether the output existed when invoked
	seen []bool
}

func (f *fakeCompiler) Invoke(_ context.Context, binary string, args []string) host.Result {
	res := host.Result{Command: append([]string{binary}, args...)}
	if slices.Contains(args, os.DevNull) {
		f.probes++
		res.Success = f.asan
		return res
	}
	f.calls = append(f.calls, args)

	out := args[slices.Index(args, "-o")+1]
	f.seen = append(f.seen, exists(out))
	if f.fail {
		res.ExitCode = 1
		res.Stderr = "error: expected ';'"
		res.Err = errors.New("exit status 1")
		return res
	}
	if err := os.WriteFile(out, []byte("artifact"), 0o755); err != nil {
		panic(err)
	}
	res.Success = true
	return res
}

func writeFiles(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}
}

func newRuntime(t *testing.T) library.Runtime {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, "arduino/Arduino.h", "arduino/Godmode.cpp", "unittest/ArduinoUnitTests.h", "unittest/ArduinoUnitTests.cpp")
	return library.Runtime{Dir: dir}
}

func newPlanner(t *testing.T, c Compiler) *Planner {
	t.Helper()
	return NewPlanner(c, Options{BuildDir: t.TempDir(), GOOS: "linux"})
}

func TestArtifactName(t *testing.T) {
	assert.Equal(t, "libarduino.so", ArtifactName(RuntimeTarget(), "linux"))
	assert.Equal(t, "libarduino.dll", ArtifactName(RuntimeTarget(), "windows"))
	assert.Equal(t, "unittest_basic.bin", ArtifactName(TestTarget("/x/test/basic.cpp"), "darwin"))
	assert.Equal(t, "unittest_basic.exe", ArtifactName(TestTarget("/x/test/basic.cpp"), "windows"))
}

func TestPlanSharedRuntimeOrdering(t *testing.T) {
	comp := &fakeCompiler{asan: true}
	p := newPlanner(t, comp)
	rt := newRuntime(t)
	gcc := &config.GCC{
		Features: []string{"no-exceptions"},
		Warnings: []string{"all"},
		Defines:  []string{"__AVR__"},
		Flags:    []string{"-funsigned-char"},
	}
	in := Inputs{
		Runtime:           rt,
		LibraryHeaderDirs: []string{"/lib/src"},
		LibrarySources:    []string{"/lib/src/lib.cpp"},
		DepHeaderDirs:     []string{"/deps/D"},
		DepSources:        []string{"/deps/D/D.cpp"},
	}

	plan, err := p.Plan(context.Background(), RuntimeTarget(), "g++", gcc, in)
	require.NoError(t, err)

	out := filepath.Join(p.BuildDir(), "libarduino.so")
	want := []string{
		"-std=c++0x",
		"-shared", "-fPIC", "-Wl,-undefined,dynamic_lookup",
		"-o", out, "-L" + p.BuildDir(),
		"-DARDUINO=100",
		"-g", "-O1", "-fno-omit-frame-pointer", "-fno-optimize-sibling-calls", "-fsanitize=address",
		"-fno-exceptions", "-Wall", "-D__AVR__", "-funsigned-char",
		"-I" + rt.ArduinoDir(), "-I" + rt.UnittestDir(), "-I/lib/src", "-I/deps/D",
		filepath.Join(rt.ArduinoDir(), "Godmode.cpp"),
		filepath.Join(rt.UnittestDir(), "ArduinoUnitTests.cpp"),
		"/lib/src/lib.cpp",
		"/deps/D/D.cpp",
	}
	assert.Equal(t, want, plan.Args)
	assert.Equal(t, out, plan.Output)
}

func TestPlanWithoutSanitizerOrFlags(t *testing.T) {
	p := newPlanner(t, &fakeCompiler{asan: false})
	plan, err := p.Plan(context.Background(), RuntimeTarget(), "clang++", nil, Inputs{})
	require.NoError(t, err)

	assert.NotContains(t, plan.Args, "-fsanitize=address")
	assert.Equal(t, "-DARDUINO=100", plan.Args[7])
	assert.Empty(t, plan.SourceSection())
}

func TestPlanTestRequiresRuntime(t *testing.T) {
	p := newPlanner(t, &fakeCompiler{})
	_, err := p.Plan(context.Background(), TestTarget("/lib/test/a.cpp"), "g++", nil, Inputs{})
	require.Error(t, err)
	assert.True(t, arderrors.Is(err, arderrors.ErrCodeRuntimeMissing))
}

// A Modern library with one Legacy dependency: once the runtime exists the
// test plan compiles only the test file, and includes both the library's
// and the dependency's header directories.
func TestEndToEndModernLibraryWithLegacyDependency(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFiles(t, root,
		"Mine/library.properties", "Mine/src/Mine.h", "Mine/src/Mine.cpp", "Mine/test/basic.cpp",
		"libs/D/D.h", "libs/D/D.cpp",
	)
	lib := &library.Library{Name: "Mine", Path: filepath.Join(root, "Mine")}
	dep := &library.Library{Name: "D", Path: filepath.Join(root, "libs", "D")}
	require.Equal(t, library.Modern, lib.Layout())
	require.Equal(t, library.Legacy, dep.Layout())

	libFiles, err := library.Classify(lib, nil)
	require.NoError(t, err)
	depFiles, err := library.Classify(dep, nil)
	require.NoError(t, err)
	require.NotContains(t, libFiles.Sources, filepath.Join(lib.Path, "test", "basic.cpp"))

	in := Inputs{
		Runtime:           newRuntime(t),
		LibraryHeaderDirs: libFiles.HeaderDirs(),
		LibrarySources:    libFiles.Sources,
		DepHeaderDirs:     depFiles.HeaderDirs(),
		DepSources:        depFiles.Sources,
	}

	comp := &fakeCompiler{}
	p := newPlanner(t, comp)

	rtPlan, err := p.Plan(ctx, RuntimeTarget(), "g++", nil, in)
	require.NoError(t, err)
	require.True(t, p.Build(ctx, rtPlan).Success)
	require.True(t, p.RuntimeReady())

	testFile := filepath.Join(lib.Path, "test", "basic.cpp")
	plan, err := p.Plan(ctx, TestTarget(testFile), "g++", nil, in)
	require.NoError(t, err)

	assert.Equal(t, []string{testFile, "-larduino"}, plan.SourceSection())
	assert.Contains(t, plan.IncludeDirs(), filepath.Join(lib.Path, "src"))
	assert.Contains(t, plan.IncludeDirs(), dep.Path)
	assert.NotContains(t, plan.Args, "-shared")

	oc := p.Build(ctx, plan)
	assert.True(t, oc.Success)
	assert.FileExists(t, filepath.Join(p.BuildDir(), "unittest_basic.bin"))
}

func TestBuildDeletesPreviousArtifact(t *testing.T) {
	ctx := context.Background()
	comp := &fakeCompiler{}
	p := newPlanner(t, comp)

	stale := p.Artifact(RuntimeTarget())
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0o644))

	plan, err := p.Plan(ctx, RuntimeTarget(), "g++", nil, Inputs{})
	require.NoError(t, err)
	oc := p.Build(ctx, plan)

	require.True(t, oc.Success)
	require.Len(t, comp.seen, 1)
	assert.False(t, comp.seen[0], "artifact must be gone before the compiler runs")

	data, err := os.ReadFile(stale)
	require.NoError(t, err)
	assert.Equal(t, "artifact", string(data))
}

func TestBuildFailureLeavesRuntimeMissing(t *testing.T) {
	ctx := context.Background()
	comp := &fakeCompiler{fail: true}
	p := newPlanner(t, comp)

	plan, err := p.Plan(ctx, RuntimeTarget(), "g++", nil, Inputs{})
	require.NoError(t, err)
	oc := p.Build(ctx, plan)

	assert.False(t, oc.Success)
	assert.False(t, p.RuntimeReady())
	assert.Contains(t, oc.Result.Stderr, "expected ';'")
	assert.NoFileExists(t, plan.Output)
}

func TestResetForgetsRuntime(t *testing.T) {
	ctx := context.Background()
	p := newPlanner(t, &fakeCompiler{})

	plan, err := p.Plan(ctx, RuntimeTarget(), "g++", nil, Inputs{})
	require.NoError(t, err)
	require.True(t, p.Build(ctx, plan).Success)

	p.Reset()
	_, err = p.Plan(ctx, TestTarget("a.cpp"), "g++", nil, Inputs{})
	assert.True(t, arderrors.Is(err, arderrors.ErrCodeRuntimeMissing))
}

func TestDryRunNeverInvokes(t *testing.T) {
	ctx := context.Background()
	comp := &fakeCompiler{}
	p := NewPlanner(comp, Options{BuildDir: t.TempDir(), DryRun: true, GOOS: "linux"})

	stale := p.Artifact(RuntimeTarget())
	require.NoError(t, os.WriteFile(stale, []byte("keep"), 0o644))

	plan, err := p.Plan(ctx, RuntimeTarget(), "g++", nil, Inputs{})
	require.NoError(t, err)
	oc := p.Build(ctx, plan)

	assert.True(t, oc.Success)
	assert.True(t, oc.DryRun)
	assert.True(t, p.RuntimeReady())
	assert.Empty(t, comp.calls)
	assert.FileExists(t, stale)
}

func TestSanitizerCheckCachedPerBinary(t *testing.T) {
	ctx := context.Background()
	comp := &fakeCompiler{asan: true}
	p := newPlanner(t, comp)

	assert.True(t, p.SanitizerAvailable(ctx, "g++"))
	assert.True(t, p.SanitizerAvailable(ctx, "g++"))
	assert.Equal(t, 1, comp.probes)

	p.SanitizerAvailable(ctx, "clang++")
	assert.Equal(t, 2, comp.probes)

	uncached := NewPlanner(comp, Options{BuildDir: t.TempDir(), Cache: cache.NewNullCache()})
	uncached.SanitizerAvailable(ctx, "g++")
	uncached.SanitizerAvailable(ctx, "g++")
	assert.Equal(t, 4, comp.probes)
}

func TestSanitizerCheckReportsInvocation(t *testing.T) {
	ctx := context.Background()
	var seen []host.Result
	p := NewPlanner(&fakeCompiler{}, Options{
		BuildDir: t.TempDir(),
		OnInvoke: func(res host.Result) { seen = append(seen, res) },
	})

	assert.False(t, p.SanitizerAvailable(ctx, "clang++"))
	p.SanitizerAvailable(ctx, "clang++")

	require.Len(t, seen, 1, "cached answers invoke nothing")
	assert.Equal(t, "clang++", seen[0].Command[0])
	assert.Contains(t, seen[0].Command, "-fsanitize=address")
}
