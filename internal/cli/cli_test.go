package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/arduci/pkg/deps"
	"github.com/matzehuels/arduci/pkg/errors"
	"github.com/matzehuels/arduci/pkg/host"
	"github.com/matzehuels/arduci/pkg/pipeline"
)

// captureOutput redirects the package's human-readable output for one test.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = old })
	return &buf
}

func writeLibrary(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return dir
}

// execute runs the root command with args and returns cobra's own output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := New(&bytes.Buffer{}, LogInfo).RootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	return out.String(), err
}

func TestRootCommandSubcommands(t *testing.T) {
	root := New(&bytes.Buffer{}, LogInfo).RootCommand()
	want := []string{"unittest", "compile", "plan", "deps", "platforms", "config", "files", "version", "completion"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestRunFlagsEnvironmentDefaults(t *testing.T) {
	t.Setenv(envRuntimeDir, "/opt/arduino_ci/cpp")
	t.Setenv(envLibrariesDir, "/home/ci/Arduino/libraries")

	var f runFlags
	f.register(&cobra.Command{})
	assert.Equal(t, "/opt/arduino_ci/cpp", f.runtimeDir)
	assert.Equal(t, "/home/ci/Arduino/libraries", f.librariesDir)
	assert.Equal(t, "arduino-cli", f.arduinoCLI)
}

func TestRunFlagsPackageManager(t *testing.T) {
	f := runFlags{bundleCommand: "  "}
	assert.Nil(t, f.packageManager(), "blank bundle command disables the vendor lookup")

	f.bundleCommand = "bundle list --paths"
	pm, ok := f.packageManager().(host.PackageRoots)
	require.True(t, ok, "packageManager() = %T", f.packageManager())
	assert.Equal(t, []string{"bundle", "list", "--paths"}, pm.Command)
}

func TestLoadConfigStrict(t *testing.T) {
	captureOutput(t)
	dir := writeLibrary(t, map[string]string{
		".arduino-ci.yml": "bogus: 1\nunittest:\n  platforms: [uno]\n",
	})
	c := New(&bytes.Buffer{}, LogInfo)

	cfg, warnings, err := c.loadConfig(dir, &runFlags{})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "bogus", warnings[0].Field)
	assert.Equal(t, []string{"uno"}, cfg.UnittestPlatforms())

	_, _, err = c.loadConfig(dir, &runFlags{strict: true})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig), "error = %v", err)
}

func TestLoadConfigTestFileFlags(t *testing.T) {
	captureOutput(t)
	dir := writeLibrary(t, nil)
	c := New(&bytes.Buffer{}, LogInfo)

	cfg, _, err := c.loadConfig(dir, &runFlags{testfileReject: []string{"slow_*"}})
	require.NoError(t, err)
	got := cfg.AllowedTestFiles([]string{"/l/test/basic.cpp", "/l/test/slow_io.cpp"})
	assert.Equal(t, []string{"/l/test/basic.cpp"}, got)
}

func TestConfigCommand(t *testing.T) {
	out := captureOutput(t)
	dir := writeLibrary(t, map[string]string{
		".arduino-ci.yml": "unittest:\n  compilers: [clang++]\n",
	})

	_, err := execute(t, "config", dir)
	require.NoError(t, err)
	for _, want := range []string{"platforms:", "clang++", "arduino:avr:uno"} {
		assert.Contains(t, out.String(), want)
	}
}

func TestFilesCommand(t *testing.T) {
	out := captureOutput(t)
	dir := writeLibrary(t, map[string]string{
		"library.properties":       "name=Mine\n",
		"src/Mine.h":               "",
		"src/Mine.cpp":             "",
		"test/basic.cpp":           "",
		"examples/Blink/Blink.ino": "",
	})

	_, err := execute(t, "files", dir, "--bundle-command", "")
	require.NoError(t, err)
	for _, want := range []string{"Mine", "modern", "src/Mine.cpp", "src/Mine.h", "test/basic.cpp", "examples/Blink"} {
		assert.Contains(t, out.String(), want)
	}
}

func TestPlatformsCommand(t *testing.T) {
	out := captureOutput(t)
	dir := writeLibrary(t, map[string]string{
		"library.properties": "name=Mine\narchitectures=avr\n",
	})

	_, err := execute(t, "platforms", dir)
	require.NoError(t, err)
	for _, want := range []string{"uno", "mega2560", "arduino:sam:arduino_due_x"} {
		assert.Contains(t, out.String(), want)
	}
}

func TestPlatformsCommandUnknownPlatform(t *testing.T) {
	captureOutput(t)
	dir := writeLibrary(t, map[string]string{
		".arduino-ci.yml": "unittest:\n  platforms: [nosuchboard]\n",
	})
	_, err := execute(t, "platforms", dir)
	assert.True(t, errors.Is(err, errors.ErrCodeUnknownPlatform), "error = %v", err)
}

func TestUnittestRequiresRuntime(t *testing.T) {
	captureOutput(t)
	t.Setenv(envRuntimeDir, "")
	_, err := execute(t, "unittest", writeLibrary(t, nil))
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidPath), "error = %v", err)
}

func TestDepsCommandRejectsFormat(t *testing.T) {
	captureOutput(t)
	_, err := execute(t, "deps", writeLibrary(t, nil), "--format", "png")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig), "error = %v", err)
}

func TestCompletionScripts(t *testing.T) {
	out := captureOutput(t)
	_, err := execute(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "arduci")

	_, err = execute(t, "completion", "fish")
	assert.Error(t, err, "only bash and zsh are generated")
}

func TestCompleteDepsFormat(t *testing.T) {
	got, err := execute(t, cobra.ShellCompRequestCmd, "deps", "--format", "")
	require.NoError(t, err)
	for _, want := range []string{formatTree, formatDOT, formatSVG, formatJSON} {
		assert.Contains(t, got, want+"\t")
	}
}

func TestCompleteLibraryDir(t *testing.T) {
	got, err := execute(t, cobra.ShellCompRequestCmd, "unittest", "")
	require.NoError(t, err)
	assert.Contains(t, got, ":"+strconv.Itoa(int(cobra.ShellCompDirectiveFilterDirs)))

	got, err = execute(t, cobra.ShellCompRequestCmd, "unittest", "lib", "")
	require.NoError(t, err)
	assert.Contains(t, got, ":"+strconv.Itoa(int(cobra.ShellCompDirectiveNoFileComp)))
}

func TestDepTree(t *testing.T) {
	g := &deps.Graph{
		Root:  "Mine",
		Nodes: []string{"Mine", "A", "B"},
		Edges: []deps.Edge{
			{From: "Mine", To: "A"},
			{From: "A", To: "B"},
			{From: "B", To: "A"},
		},
		Failed: []string{"B"},
	}
	s := depTree(g).String()
	for _, want := range []string{"Mine", "A", "B", "(not installed)", "(cycle)"} {
		assert.Contains(t, s, want)
	}
}

func TestPrintReportAndVerdict(t *testing.T) {
	out := captureOutput(t)
	r := &pipeline.Report{
		Library: "Mine",
		Outcomes: []pipeline.Outcome{
			{Step: pipeline.StepRuntime, Platform: "uno", Compiler: "g++", Name: "libarduino.so", Status: pipeline.Passed},
			{Step: pipeline.StepTest, Platform: "uno", Compiler: "g++", Name: "basic.cpp", Status: pipeline.Failed,
				Message: "exit status 1",
				Result:  host.Result{Command: []string{"./unittest_basic.bin"}, ExitCode: 1, Stdout: "not ok 1 - assertEqual"}},
		},
		Partial:    true,
		FailedDeps: []string{"Servo"},
	}

	printReport(r)
	for _, want := range []string{"basic.cpp", "assertEqual", "Servo", "1 passed", "1 failed"} {
		assert.Contains(t, out.String(), want)
	}

	err := verdict(r)
	assert.True(t, errors.Is(err, errors.ErrCodeBuildFailed), "verdict() = %v", err)
	r.Outcomes = r.Outcomes[:1]
	assert.NoError(t, verdict(r))
}

func TestFatalPrintsLastInvocation(t *testing.T) {
	out := captureOutput(t)
	r := &pipeline.Report{LastInvocation: &host.Result{
		Command:  []string{"arduino-cli", "lib", "install", "Nope"},
		ExitCode: 1,
		Stderr:   "Library 'Nope' not found",
	}}
	want := errors.New(errors.ErrCodeUnknownPlatform, "boom")

	assert.Same(t, want, fatal(r, want))
	assert.Contains(t, out.String(), "arduino-cli lib install Nope")
	assert.Contains(t, out.String(), "not found")
}

func TestLibraryDir(t *testing.T) {
	assert.Equal(t, ".", libraryDir(nil))
	assert.Equal(t, "lib", libraryDir([]string{"lib"}))
}
