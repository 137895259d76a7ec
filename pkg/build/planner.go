package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/arduci/pkg/cache"
	"github.com/matzehuels/arduci/pkg/config"
	"github.com/matzehuels/arduci/pkg/errors"
	"github.com/matzehuels/arduci/pkg/host"
	"github.com/matzehuels/arduci/pkg/library"
	"github.com/matzehuels/arduci/pkg/observability"
)

// Fixed flags of every host build.
const (
	StdFlag      = "-std=c++0x"
	ArduinoMacro = "-DARDUINO=100"
)

var (
	sharedFlags    = []string{"-shared", "-fPIC", "-Wl,-undefined,dynamic_lookup"}
	sanitizerFlags = []string{"-g", "-O1", "-fno-omit-frame-pointer", "-fno-optimize-sibling-calls", "-fsanitize=address"}
)

const probeSource = "int main(){}\n"

// Inputs are the resolved files a plan is built from.
type Inputs struct {
	Runtime           library.Runtime
	LibraryHeaderDirs []string // the library under test
	LibrarySources    []string
	DepHeaderDirs     []string // transitive dependencies only
	DepSources        []string
}

// Plan is one compiler invocation, ready to run.
type Plan struct {
	Target Target
	Binary string
	Args   []string
	Output string

	sources int // index of the first source argument
}

// CommandLine renders the plan as a shell-pasteable string.
func (p *Plan) CommandLine() string {
	return host.Result{Command: append([]string{p.Binary}, p.Args...)}.CommandLine()
}

// Outcome is the result of building one plan.
type Outcome struct {
	Plan    *Plan
	Result  host.Result // zero when the compiler was not invoked
	Success bool
	DryRun  bool
}

// Options configures a Planner.
type Options struct {
	BuildDir string      // where artifacts go; also the -L search path
	DryRun   bool        // plan only; Build touches neither disk nor compiler
	Cache    cache.Cache // sanitizer probe results; defaults to a MemoryCache
	Logger   *log.Logger
	GOOS     string // artifact naming; defaults to runtime.GOOS

	// OnInvoke receives compiler invocations made outside Build, such as
	// the AddressSanitizer check. Optional.
	OnInvoke func(host.Result)
}

// Planner plans and builds targets for one run.
// It is not safe for concurrent use; builds are sequential by design.
type Planner struct {
	compiler Compiler
	opts     Options
	logger   *log.Logger

	runtimeReady bool
}

// NewPlanner creates a planner that invokes compiler.
func NewPlanner(compiler Compiler, opts Options) *Planner {
	if opts.Cache == nil {
		opts.Cache = cache.NewMemoryCache()
	}
	if opts.GOOS == "" {
		opts.GOOS = hostOS()
	}
	if opts.BuildDir == "" {
		opts.BuildDir = "."
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Planner{compiler: compiler, opts: opts, logger: logger}
}

// BuildDir returns the artifact directory.
func (p *Planner) BuildDir() string { return p.opts.BuildDir }

// DryRun reports whether builds are planned only.
func (p *Planner) DryRun() bool { return p.opts.DryRun }

// Reset forgets the shared runtime. Call it before each (platform, compiler)
// pair.
func (p *Planner) Reset() { p.runtimeReady = false }

// RuntimeReady reports whether the shared runtime was built in this cycle.
func (p *Planner) RuntimeReady() bool { return p.runtimeReady }

// Artifact returns the output path of target.
func (p *Planner) Artifact(t Target) string {
	return filepath.Join(p.opts.BuildDir, ArtifactName(t, p.opts.GOOS))
}

// Plan assembles the compiler invocation for target. Planning a test
// executable before the shared runtime was built fails with RUNTIME_MISSING.
func (p *Planner) Plan(ctx context.Context, target Target, binary string, gcc *config.GCC, in Inputs) (*Plan, error) {
	if target.Kind == TestExecutable && !p.runtimeReady {
		return nil, errors.New(errors.ErrCodeRuntimeMissing,
			"cannot build %s: shared runtime not built for %s", target, binary)
	}

	out := p.Artifact(target)
	args := []string{StdFlag}
	if target.Kind == SharedRuntime {
		args = append(args, sharedFlags...)
	}
	args = append(args, "-o", out, "-L"+p.opts.BuildDir)
	args = append(args, ArduinoMacro)
	if p.SanitizerAvailable(ctx, binary) {
		args = append(args, sanitizerFlags...)
	}
	args = append(args, gccFlags(gcc)...)

	for _, dir := range includeDirs(in) {
		args = append(args, "-I"+dir)
	}

	sources := len(args)
	if target.Kind == TestExecutable {
		args = append(args, target.TestFile, "-l"+RuntimeLibrary)
	} else {
		rt, err := in.Runtime.Files()
		if err != nil {
			return nil, err
		}
		args = append(args, rt.Sources...)
		args = append(args, in.LibrarySources...)
		args = append(args, in.DepSources...)
	}

	return &Plan{Target: target, Binary: binary, Args: args, Output: out, sources: sources}, nil
}

func gccFlags(gcc *config.GCC) []string {
	if gcc == nil {
		return nil
	}
	var out []string
	for _, f := range gcc.Features {
		out = append(out, "-f"+f)
	}
	for _, w := range gcc.Warnings {
		out = append(out, "-W"+w)
	}
	for _, d := range gcc.Defines {
		out = append(out, "-D"+d)
	}
	return append(out, gcc.Flags...)
}

func includeDirs(in Inputs) []string {
	var dirs []string
	seen := make(map[string]bool)
	add := func(ds ...string) {
		for _, d := range ds {
			if d != "" && !seen[d] {
				seen[d] = true
				dirs = append(dirs, d)
			}
		}
	}
	if in.Runtime.Dir != "" {
		add(in.Runtime.ArduinoDir(), in.Runtime.UnittestDir())
	}
	add(in.LibraryHeaderDirs...)
	add(in.DepHeaderDirs...)
	return dirs
}

// Build deletes any previous artifact at the plan's output path and then
// invokes the compiler. A successful shared runtime build marks the runtime
// ready. In dry-run mode nothing is deleted or invoked and every build
// succeeds.
func (p *Planner) Build(ctx context.Context, plan *Plan) *Outcome {
	oc := &Outcome{Plan: plan}
	if p.opts.DryRun {
		oc.DryRun = true
		oc.Success = true
		if plan.Target.Kind == SharedRuntime {
			p.runtimeReady = true
		}
		return oc
	}

	if err := os.Remove(plan.Output); err != nil && !os.IsNotExist(err) {
		oc.Result = host.Result{
			Command:  append([]string{plan.Binary}, plan.Args...),
			ExitCode: -1,
			Err:      errors.Wrap(errors.ErrCodeBuildFailed, err, "remove previous artifact %s", plan.Output),
		}
		return oc
	}

	name := filepath.Base(plan.Output)
	observability.Build().OnCompileStart(ctx, name, plan.Binary)
	start := time.Now()
	oc.Result = p.compiler.Invoke(ctx, plan.Binary, plan.Args)
	observability.Build().OnCompileComplete(ctx, name, plan.Binary, time.Since(start), oc.Result.Err)

	oc.Success = oc.Result.Success && exists(plan.Output)
	if oc.Result.Success && !oc.Success {
		p.logger.Warn("compiler reported success but produced no artifact", "artifact", plan.Output)
	}
	if plan.Target.Kind == SharedRuntime {
		p.runtimeReady = oc.Success
	}
	return oc
}

// SanitizerAvailable reports whether binary can build with
// -fsanitize=address. The probe runs once per binary per cache lifetime.
func (p *Planner) SanitizerAvailable(ctx context.Context, binary string) bool {
	key := cache.Key("asan", binary)
	if data, ok, err := p.opts.Cache.Get(ctx, key); err == nil && ok {
		observability.Cache().OnCacheHit(ctx, "asan")
		return string(data) == "1"
	}
	observability.Cache().OnCacheMiss(ctx, "asan")

	available := p.probeSanitizer(ctx, binary)
	val := []byte("0")
	if available {
		val = []byte("1")
	}
	if err := p.opts.Cache.Set(ctx, key, val, 0); err == nil {
		observability.Cache().OnCacheSet(ctx, "asan", len(val))
	}
	p.logger.Debug("address sanitizer probe", "compiler", binary, "available", available)
	return available
}

func (p *Planner) probeSanitizer(ctx context.Context, binary string) bool {
	f, err := os.CreateTemp("", "arduci-asan-*.cpp")
	if err != nil {
		p.logger.Debug("cannot write sanitizer probe", "error", err)
		return false
	}
	defer os.Remove(f.Name())
	_, err = f.WriteString(probeSource)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return false
	}

	res := p.compiler.Invoke(ctx, binary, []string{"-o", os.DevNull, "-fsanitize=address", f.Name()})
	if p.opts.OnInvoke != nil {
		p.opts.OnInvoke(res)
	}
	return res.Success
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SourceSection returns the trailing source arguments of a plan: for a test
// executable the test file and link flag, for the shared runtime every
// source file.
func (p *Plan) SourceSection() []string {
	return p.Args[p.sources:]
}

// IncludeDirs returns the -I directories of the plan, in order.
func (p *Plan) IncludeDirs() []string {
	var dirs []string
	for _, a := range p.Args {
		if d, ok := strings.CutPrefix(a, "-I"); ok {
			dirs = append(dirs, d)
		}
	}
	return dirs
}
