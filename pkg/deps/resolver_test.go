package deps

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/arduci/pkg/host"
	"github.com/matzehuels/arduci/pkg/library"
)

// fakeInstaller serves libraries from an in-memory catalog. Installing a
// catalog entry writes a Legacy library with one header and one source.
type fakeInstaller struct {
	dir      string
	catalog  map[string][]string // name -> depends
	broken   map[string]bool     // install fails
	installs []string
}

func newFakeInstaller(t *testing.T, catalog map[string][]string) *fakeInstaller {
	return &fakeInstaller{dir: t.TempDir(), catalog: catalog, broken: map[string]bool{}}
}

func (f *fakeInstaller) Library(name string) *library.Library { return library.New(name, f.dir) }

func (f *fakeInstaller) IsInstalled(name string) bool { return f.Library(name).Installed() }

func (f *fakeInstaller) Install(_ context.Context, name string) host.Result {
	f.installs = append(f.installs, name)
	res := host.Result{Command: []string{"arduino-cli", "lib", "install", name}}
	deps, ok := f.catalog[name]
	if !ok || f.broken[name] {
		res.ExitCode = 1
		res.Stderr = "library not found: " + name
		res.Err = errors.New("exit status 1")
		return res
	}
	lib := f.Library(name)
	base := library.DirName(name)
	files := map[string]string{
		base + ".h":           "",
		base + ".cpp":         "",
		library.PropertiesFile: "name=" + name + "\ndepends=" + strings.Join(deps, ", ") + "\n",
	}
	for file, body := range files {
		if err := os.MkdirAll(lib.Path, 0o755); err != nil {
			panic(err)
		}
		if err := os.WriteFile(filepath.Join(lib.Path, file), []byte(body), 0o644); err != nil {
			panic(err)
		}
	}
	res.Success = true
	res.ExitCode = 0
	return res
}

func (f *fakeInstaller) PropertiesOf(name string) (*library.Properties, error) {
	return f.Library(name).Properties()
}

func TestResolveTransitive(t *testing.T) {
	inst := newFakeInstaller(t, map[string][]string{
		"A": {"B", "C"},
		"B": {"D"},
		"C": nil,
		"D": nil,
	})
	r := NewResolver(inst, nil, Options{})

	res := r.Resolve(context.Background(), []string{"A"})
	assert.Equal(t, []string{"A", "B", "D", "C"}, res.Names)
	assert.False(t, res.Partial())
	assert.Len(t, res.Invocations, 4)
	assert.Equal(t, []string{"B", "C"}, r.Dependencies("A"))
}

func TestResolveIsIdempotent(t *testing.T) {
	inst := newFakeInstaller(t, map[string][]string{"A": {"B"}, "B": nil})
	r := NewResolver(inst, nil, Options{})

	first := r.Resolve(context.Background(), []string{"A"})
	installs := len(inst.installs)
	second := r.Resolve(context.Background(), []string{"A"})

	assert.Equal(t, first.Names, second.Names)
	assert.Equal(t, first.Failed, second.Failed)
	assert.Equal(t, installs, len(inst.installs), "no duplicate installs")
	assert.Empty(t, second.Invocations)

	// files are memoized too
	assert.Equal(t, r.Files("A"), r.Files("A"))
}

func TestResolveCycles(t *testing.T) {
	inst := newFakeInstaller(t, map[string][]string{
		"A":    {"B"},
		"B":    {"A"},
		"Self": {"Self"},
	})
	r := NewResolver(inst, nil, Options{})

	res := r.Resolve(context.Background(), []string{"A", "Self"})
	assert.Equal(t, []string{"A", "B", "Self"}, res.Names)
	assert.Empty(t, r.Dependencies("Self"))
}

func TestResolveInstallFailureIsPartial(t *testing.T) {
	inst := newFakeInstaller(t, map[string][]string{"A": {"Missing", "C"}, "C": nil})
	r := NewResolver(inst, nil, Options{})

	res := r.Resolve(context.Background(), []string{"A"})
	assert.Equal(t, []string{"A", "Missing", "C"}, res.Names, "failed names stay in the closure")
	assert.Equal(t, []string{"Missing"}, res.Failed)
	assert.True(t, res.Partial())

	var failed Invocation
	for _, inv := range res.Invocations {
		if !inv.Result.Success {
			failed = inv
		}
	}
	assert.Equal(t, "Missing", failed.Name)
	assert.Contains(t, failed.Result.Stderr, "library not found")

	again := r.Resolve(context.Background(), []string{"A"})
	assert.Equal(t, []string{"Missing"}, again.Failed)
	assert.Empty(t, again.Invocations)
}

func TestResolveCancelledIsNotMemoized(t *testing.T) {
	inst := newFakeInstaller(t, map[string][]string{"A": nil})
	r := NewResolver(inst, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.Resolve(ctx, []string{"A"})
	assert.Equal(t, []string{"A"}, res.Failed)
	assert.Empty(t, inst.installs)

	res = r.Resolve(context.Background(), []string{"A"})
	assert.False(t, res.Partial())
	assert.Equal(t, []string{"A"}, inst.installs)
}

func TestCollectExcludesRoot(t *testing.T) {
	inst := newFakeInstaller(t, map[string][]string{
		"D":   {"Mine"},
		"Aux": nil,
	})

	root := filepath.Join(t.TempDir(), "Mine")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "Mine.h"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, library.PropertiesFile), []byte("name=Mine\ndepends=D (>=1.0)\n"), 0o644))
	lib, err := library.Local(root)
	require.NoError(t, err)

	r := NewResolver(inst, nil, Options{})
	col := r.Collect(context.Background(), lib, []string{"Aux"})

	assert.Equal(t, []string{"Aux", "D"}, col.Names)
	assert.NotContains(t, inst.installs, "Mine", "the library under test is never installed")
	assert.Equal(t, []string{inst.Library("Aux").Path, inst.Library("D").Path}, col.HeaderDirs)
	assert.Equal(t, []string{
		filepath.Join(inst.Library("Aux").Path, "Aux.cpp"),
		filepath.Join(inst.Library("D").Path, "D.cpp"),
	}, col.Sources)
	for _, d := range col.HeaderDirs {
		assert.False(t, strings.HasPrefix(d, root))
	}
}

func TestGraph(t *testing.T) {
	inst := newFakeInstaller(t, map[string][]string{"A": {"B"}, "B": nil})

	root := filepath.Join(t.TempDir(), "Root")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, library.PropertiesFile), []byte("name=Root\ndepends=A, Gone\n"), 0o644))
	lib, err := library.Local(root)
	require.NoError(t, err)

	g := NewResolver(inst, nil, Options{}).Graph(context.Background(), lib, nil)
	assert.Equal(t, []string{"Root", "A", "B", "Gone"}, g.Nodes)
	assert.Equal(t, []string{"A", "Gone"}, g.Children("Root"))
	assert.Equal(t, []string{"Gone"}, g.Failed)

	dot := g.DOT()
	assert.Contains(t, dot, `"Root" -> "A";`)
	assert.Contains(t, dot, `"A" -> "B";`)
	assert.Contains(t, dot, `"Gone" [style="rounded,dashed"`)
}

func TestGraphWriteJSON(t *testing.T) {
	g := &Graph{
		Root:   "Root",
		Nodes:  []string{"Root", "A"},
		Edges:  []Edge{{From: "Root", To: "A"}},
		Failed: []string{"A"},
	}
	var buf bytes.Buffer
	require.NoError(t, g.WriteJSON(&buf))
	assert.JSONEq(t, `{
		"root": "Root",
		"nodes": [{"id": "Root"}, {"id": "A", "failed": true}],
		"edges": [{"from": "Root", "to": "A"}]
	}`, buf.String())
}
