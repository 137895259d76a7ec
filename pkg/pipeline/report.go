package pipeline

import (
	"github.com/google/uuid"

	"github.com/matzehuels/arduci/pkg/build"
	"github.com/matzehuels/arduci/pkg/config"
	"github.com/matzehuels/arduci/pkg/host"
)

// Status is the result of one step.
type Status int

const (
	Passed Status = iota
	Failed
	Skipped
)

func (s Status) String() string {
	switch s {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	default:
		return "skipped"
	}
}

// Step names the kind of work an Outcome describes.
type Step string

const (
	StepInstall Step = "install" // dependency library
	StepCore    Step = "core"    // board package
	StepRuntime Step = "runtime" // shared runtime build
	StepBuild   Step = "build"   // test executable build
	StepTest    Step = "test"    // test executable run
	StepCompile Step = "compile" // example sketch
)

// Outcome is one recorded step of a run.
type Outcome struct {
	Step     Step
	Platform string
	Compiler string
	Name     string // library, test file, example or package
	Status   Status
	Message  string
	Plan     *build.Plan // build steps only
	Result   host.Result // zero when nothing was invoked
}

// Report collects everything a run did.
type Report struct {
	RunID     string
	Library   string
	Platforms []string
	Outcomes  []Outcome
	Warnings  []config.Warning

	// Partial is set when a dependency failed to install; builds were
	// still attempted.
	Partial    bool
	FailedDeps []string

	// LastInvocation is the most recent external command, for diagnostics
	// printed before a fatal error.
	LastInvocation *host.Result
}

func newReport(library string) *Report {
	return &Report{RunID: uuid.NewString(), Library: library}
}

func (r *Report) record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.note(o.Result)
}

// note remembers res as the last invocation if anything was invoked.
func (r *Report) note(res host.Result) {
	if len(res.Command) > 0 {
		res := res
		r.LastInvocation = &res
	}
}

func (r *Report) count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Passed counts passed steps.
func (r *Report) Passed() int { return r.count(Passed) }

// Failed counts failed steps.
func (r *Report) Failed() int { return r.count(Failed) }

// Skipped counts skipped steps.
func (r *Report) Skipped() int { return r.count(Skipped) }

// OK reports whether no step failed.
func (r *Report) OK() bool { return r.Failed() == 0 }

// Filter returns the outcomes of one step kind.
func (r *Report) Filter(step Step) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Step == step {
			out = append(out, o)
		}
	}
	return out
}
