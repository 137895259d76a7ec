package arduino

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/arduci/pkg/cache"
	"github.com/matzehuels/arduci/pkg/host"
	"github.com/matzehuels/arduci/pkg/library"
)

// scriptedExec answers each invocation from a queue of results and
// records the argument vectors it saw.
type scriptedExec struct {
	results []host.Result
	calls   [][]string
}

func (s *scriptedExec) Run(_ context.Context, name string, args []string, _ host.Options) host.Result {
	s.calls = append(s.calls, append([]string{name}, args...))
	if len(s.results) == 0 {
		return host.Result{Success: true}
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r
}

func ok(stdout string) host.Result { return host.Result{Success: true, Stdout: stdout} }

func fail(stderr string) host.Result {
	return host.Result{ExitCode: 1, Stderr: stderr, Err: errors.New("exit status 1")}
}

func TestParseLibrariesDir(t *testing.T) {
	dir, err := parseLibrariesDir([]byte("directories:\n  data: /home/u/.arduino15\n  user: /home/u/Arduino\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/u/Arduino", "libraries"), dir)

	dir, err = parseLibrariesDir([]byte("config:\n  directories:\n    user: /opt/sketchbook\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/opt/sketchbook", "libraries"), dir)

	_, err = parseLibrariesDir([]byte("board_manager: {}\n"))
	assert.Error(t, err)
}

func TestNewReadsConfigDump(t *testing.T) {
	ex := &scriptedExec{results: []host.Result{ok("directories:\n  user: /sk\n")}}
	c, err := New(context.Background(), "", Options{Exec: ex})
	require.NoError(t, err)

	assert.Equal(t, DefaultBinary, c.Binary())
	assert.Equal(t, filepath.Join("/sk", "libraries"), c.LibrariesDir())
	assert.Equal(t, []string{"arduino-cli", "config", "dump"}, ex.calls[0])

	_, err = New(context.Background(), "", Options{Exec: &scriptedExec{results: []host.Result{fail("boom")}}})
	assert.Error(t, err)
}

func TestInstallRetriesTransientFailures(t *testing.T) {
	old := cache.BaseDelay
	cache.BaseDelay = time.Millisecond
	defer func() { cache.BaseDelay = old }()

	ex := &scriptedExec{results: []host.Result{fail("Get https://downloads: dial tcp: i/o timeout"), ok("installed")}}
	c, err := New(context.Background(), "arduino-cli", Options{Exec: ex, LibrariesDir: t.TempDir()})
	require.NoError(t, err)

	res := c.Install(context.Background(), "Adafruit GFX Library")
	assert.True(t, res.Success)
	assert.Len(t, ex.calls, 2)
	assert.Equal(t, []string{"arduino-cli", "lib", "install", "Adafruit GFX Library"}, ex.calls[1])
}

func TestInstallPermanentFailure(t *testing.T) {
	ex := &scriptedExec{results: []host.Result{fail("Error installing: library not found")}}
	c, err := New(context.Background(), "arduino-cli", Options{Exec: ex, LibrariesDir: t.TempDir()})
	require.NoError(t, err)

	res := c.Install(context.Background(), "Nope")
	assert.False(t, res.Success)
	assert.Len(t, ex.calls, 1)
	assert.Contains(t, res.Stderr, "library not found")

	res = c.Install(context.Background(), "../escape")
	assert.False(t, res.Success)
	assert.Len(t, ex.calls, 1, "invalid names never reach arduino-cli")
}

func TestInstalledAndProperties(t *testing.T) {
	libs := t.TempDir()
	c, err := New(context.Background(), "", Options{Exec: &scriptedExec{}, LibrariesDir: libs})
	require.NoError(t, err)

	assert.False(t, c.IsInstalled("My Lib"))
	dir := filepath.Join(libs, "My_Lib")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, library.PropertiesFile), []byte("name=My Lib\ndepends=Wire\n"), 0o644))

	assert.True(t, c.IsInstalled("My Lib"))
	props, err := c.PropertiesOf("My Lib")
	require.NoError(t, err)
	assert.Equal(t, []string{"Wire"}, props.Depends)
}

func TestLinkLocal(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	libs := filepath.Join(t.TempDir(), "libraries")
	c, err := New(context.Background(), "", Options{Exec: &scriptedExec{}, LibrariesDir: libs})
	require.NoError(t, err)

	lib := &library.Library{Name: "My Lib", Path: t.TempDir()}
	require.NoError(t, c.LinkLocal(lib))
	target, err := os.Readlink(filepath.Join(libs, "My_Lib"))
	require.NoError(t, err)
	assert.Equal(t, lib.Path, target)

	// idempotent, and a stale link is replaced
	require.NoError(t, c.LinkLocal(lib))
	moved := &library.Library{Name: "My Lib", Path: t.TempDir()}
	require.NoError(t, c.LinkLocal(moved))
	target, _ = os.Readlink(filepath.Join(libs, "My_Lib"))
	assert.Equal(t, moved.Path, target)
}

func TestInstallCoreWithURL(t *testing.T) {
	ex := &scriptedExec{}
	c, err := New(context.Background(), "", Options{Exec: ex, LibrariesDir: t.TempDir()})
	require.NoError(t, err)

	res := c.InstallCore(context.Background(), "esp32:esp32", "https://example.com/index.json")
	assert.True(t, res.Success)
	require.Len(t, ex.calls, 2)
	assert.Equal(t, "core update-index --additional-urls https://example.com/index.json", strings.Join(ex.calls[0][1:], " "))
	assert.Equal(t, "core install esp32:esp32 --additional-urls https://example.com/index.json", strings.Join(ex.calls[1][1:], " "))

	c.CompileSketch(context.Background(), "arduino:avr:uno", "/lib/examples/Blink")
	assert.Equal(t, []string{"arduino-cli", "compile", "--fqbn", "arduino:avr:uno", "--warnings", "all", "/lib/examples/Blink"}, ex.calls[2])
}
