// Package pkg provides the libraries behind arduci, a host-side test runner
// for Arduino libraries.
//
// # Overview
//
// arduci builds an Arduino library against a mock hardware runtime and runs
// its unit tests as ordinary host executables, once per configured platform
// and compiler. It also compiles the library's examples for real boards
// through arduino-cli. The pkg directory is organized into three areas:
//
//  1. Domain - [config], [library], [platform], [deps], [build]
//  2. Orchestration - [pipeline]
//  3. Infrastructure - [arduino], [host], [cache], [errors], [observability],
//     [buildinfo]
//
// # Architecture
//
// A unittest run flows through the packages like this:
//
//	defaults + .arduino-ci.yml
//	         ↓
//	    [config] package (merge, validate, warn)
//	         ↓
//	    [platform] package (select by architectures=)
//	         ↓
//	    [deps] package (install + collect the dependency closure)
//	         ↓
//	    [library] package (classify sources, honor exclusions)
//	         ↓
//	    [build] package (plan compiler invocations, build, probe ASan)
//	         ↓
//	    [pipeline] package (run tests, record a Report)
//
// # Quick Start
//
// Run the unit tests of the library in the current directory:
//
//	cfg, warnings, _ := config.Default().WithOverrideFile(".")
//	cli, _ := arduino.New(ctx, arduino.DefaultBinary, arduino.Options{})
//
//	runner := pipeline.NewRunner(pipeline.Runner{
//	    Installer: cli,
//	    Boards:    cli,
//	    Compiler:  build.HostCompiler{},
//	})
//	report, err := runner.Unittest(ctx, pipeline.Options{
//	    LibraryDir: ".",
//	    RuntimeDir: "/opt/arduino_ci/cpp",
//	    Config:     cfg,
//	})
//
// A returned error means the run could not proceed at all (bad
// configuration, unknown platform, missing runtime). Build and test failures
// are outcomes in the [pipeline.Report], never errors.
//
// # Main Packages
//
// [config] - Built-in defaults embedded as YAML, per-project and per-example
// overrides, validation with warnings for dropped values, and test file
// filters.
//
// [library] - Library discovery, Legacy and Modern layouts,
// library.properties parsing, exclusion roots and source classification.
//
// [deps] - Transitive dependency resolution from depends= lines, with
// installs through an [deps.Installer]. Cycles terminate; failed installs
// make a result partial. Graphs export as DOT, SVG or JSON.
//
// [build] - Compiler invocation plans for the shared runtime and each test
// executable, platform defines and flags, and the AddressSanitizer probe.
//
// [pipeline] - The unittest and compile workflows and their [pipeline.Report].
//
// [arduino] - The arduino-cli adapter: library and core installs, sketch
// compilation, and linking the library under test.
//
// [host] - External command execution with captured output.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...                  # All tests
//	go test ./pkg/pipeline/...         # Specific package
//
// [config]: https://pkg.go.dev/github.com/matzehuels/arduci/pkg/config
// [library]: https://pkg.go.dev/github.com/matzehuels/arduci/pkg/library
// [platform]: https://pkg.go.dev/github.com/matzehuels/arduci/pkg/platform
// [deps]: https://pkg.go.dev/github.com/matzehuels/arduci/pkg/deps
// [build]: https://pkg.go.dev/github.com/matzehuels/arduci/pkg/build
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/arduci/pkg/pipeline
// [arduino]: https://pkg.go.dev/github.com/matzehuels/arduci/pkg/arduino
// [host]: https://pkg.go.dev/github.com/matzehuels/arduci/pkg/host
// [cache]: https://pkg.go.dev/github.com/matzehuels/arduci/pkg/cache
// [errors]: https://pkg.go.dev/github.com/matzehuels/arduci/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/arduci/pkg/observability
// [buildinfo]: https://pkg.go.dev/github.com/matzehuels/arduci/pkg/buildinfo
package pkg
