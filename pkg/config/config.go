// Package config loads, validates and merges arduci's layered configuration.
//
// Three tiers are stacked in order: the embedded tool defaults
// ([Default]), the project override found at the library root, and an
// optional per-example override. Each tier is validated against a fixed
// schema before it is layered on a deep copy of the tier below it: unknown
// keys and wrongly shaped values are dropped with a [Warning], never fatal.
//
// # Merge Rules
//
//   - packages/platforms: an entry in a later tier replaces the same-named
//     entry wholesale (no per-field merge); a null entry removes it
//   - compile/unittest: every key present in a later tier replaces the
//     earlier value; nested maps such as testfiles are replaced whole
//
// # Usage
//
//	cfg := config.Default()
//	cfg, warnings, err := cfg.WithOverrideFile(libraryDir)
//	for _, w := range warnings {
//	    logger.Warn(w.String())
//	}
//	platforms := cfg.UnittestPlatforms()
package config

import (
	"maps"
	"slices"
	"strings"
)

// DefaultCompiler is used when no tier names any unit-test compiler.
const DefaultCompiler = "g++"

// Package describes a board package (core) and where to download it.
type Package struct {
	URL string `yaml:"url,omitempty" validate:"omitempty,url"`
}

// GCC is the compiler-flag bundle a platform contributes to host builds.
type GCC struct {
	Features []string `yaml:"features,omitempty"`
	Defines  []string `yaml:"defines,omitempty"`
	Warnings []string `yaml:"warnings,omitempty"`
	Flags    []string `yaml:"flags,omitempty"`
}

// Platform maps a friendly platform name to a board and its mock flags.
type Platform struct {
	Board   string `yaml:"board,omitempty" validate:"omitempty,boardid"`
	Package string `yaml:"package,omitempty"`
	GCC     *GCC   `yaml:"gcc,omitempty"`
}

// Compile configures example compilation. A nil slice means "not set".
type Compile struct {
	Platforms []string `yaml:"platforms,omitempty"`
	Libraries []string `yaml:"libraries,omitempty"`
}

// TestFiles holds glob lists matched against test file base names.
type TestFiles struct {
	Select []string `yaml:"select,omitempty"`
	Reject []string `yaml:"reject,omitempty"`
}

// Unittest configures host-side unit testing. A nil slice means "not set".
type Unittest struct {
	Platforms   []string   `yaml:"platforms,omitempty"`
	Libraries   []string   `yaml:"libraries,omitempty"`
	Compilers   []string   `yaml:"compilers,omitempty"`
	ExcludeDirs []string   `yaml:"exclude_dirs,omitempty"`
	TestFiles   *TestFiles `yaml:"testfiles,omitempty"`
}

// Config is one validated tier, or the result of merging several.
//
// In a freshly parsed override tier a nil map value marks an entry to be
// removed by [Merge]; merged configurations never contain nil entries.
type Config struct {
	Packages  map[string]*Package  `yaml:"packages,omitempty"`
	Platforms map[string]*Platform `yaml:"platforms,omitempty"`
	Compile   Compile              `yaml:"compile,omitempty"`
	Unittest  Unittest             `yaml:"unittest,omitempty"`

	// IsDefault is true only for the unmodified tool defaults.
	IsDefault bool `yaml:"-"`
	// Sources lists the files that contributed to this configuration.
	Sources []string `yaml:"-"`
}

func newConfig() *Config {
	return &Config{
		Packages:  make(map[string]*Package),
		Platforms: make(map[string]*Platform),
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := newConfig()
	for name, p := range c.Packages {
		out.Packages[name] = p.clone()
	}
	for name, p := range c.Platforms {
		out.Platforms[name] = p.clone()
	}
	out.Compile = Compile{
		Platforms: slices.Clone(c.Compile.Platforms),
		Libraries: slices.Clone(c.Compile.Libraries),
	}
	out.Unittest = Unittest{
		Platforms:   slices.Clone(c.Unittest.Platforms),
		Libraries:   slices.Clone(c.Unittest.Libraries),
		Compilers:   slices.Clone(c.Unittest.Compilers),
		ExcludeDirs: slices.Clone(c.Unittest.ExcludeDirs),
		TestFiles:   c.Unittest.TestFiles.clone(),
	}
	out.IsDefault = c.IsDefault
	out.Sources = slices.Clone(c.Sources)
	return out
}

func (p *Package) clone() *Package {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func (p *Platform) clone() *Platform {
	if p == nil {
		return nil
	}
	cp := *p
	cp.GCC = p.GCC.clone()
	return &cp
}

func (g *GCC) clone() *GCC {
	if g == nil {
		return nil
	}
	return &GCC{
		Features: slices.Clone(g.Features),
		Defines:  slices.Clone(g.Defines),
		Warnings: slices.Clone(g.Warnings),
		Flags:    slices.Clone(g.Flags),
	}
}

func (t *TestFiles) clone() *TestFiles {
	if t == nil {
		return nil
	}
	return &TestFiles{Select: slices.Clone(t.Select), Reject: slices.Clone(t.Reject)}
}

// Merge layers override on top of a deep copy of base and returns the result.
// Neither input is modified.
func Merge(base, override *Config) *Config {
	out := base.Clone()

	for name, p := range override.Packages {
		if p == nil {
			delete(out.Packages, name)
			continue
		}
		out.Packages[name] = p.clone()
	}
	for name, p := range override.Platforms {
		if p == nil {
			delete(out.Platforms, name)
			continue
		}
		out.Platforms[name] = p.clone()
	}

	replace(&out.Compile.Platforms, override.Compile.Platforms)
	replace(&out.Compile.Libraries, override.Compile.Libraries)

	replace(&out.Unittest.Platforms, override.Unittest.Platforms)
	replace(&out.Unittest.Libraries, override.Unittest.Libraries)
	replace(&out.Unittest.Compilers, override.Unittest.Compilers)
	replace(&out.Unittest.ExcludeDirs, override.Unittest.ExcludeDirs)
	if override.Unittest.TestFiles != nil {
		out.Unittest.TestFiles = override.Unittest.TestFiles.clone()
	}

	out.IsDefault = false
	out.Sources = append(out.Sources, override.Sources...)
	return out
}

func replace(dst *[]string, src []string) {
	if src != nil {
		*dst = slices.Clone(src)
	}
}

// =============================================================================
// Accessors
// =============================================================================

// PlatformNames returns every defined platform, sorted.
func (c *Config) PlatformNames() []string {
	var names []string
	for name, p := range c.Platforms {
		if p != nil {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Platform returns the named platform definition.
func (c *Config) Platform(name string) (*Platform, bool) {
	p, ok := c.Platforms[name]
	return p, ok && p != nil
}

// HasPlatform reports whether name is defined in any merged tier.
func (c *Config) HasPlatform(name string) bool {
	_, ok := c.Platform(name)
	return ok
}

// Architecture returns the architecture segment of the platform's board id,
// e.g. "avr" for "arduino:avr:uno". Undefined platforms and malformed board
// ids yield "".
func (c *Config) Architecture(name string) string {
	p, ok := c.Platform(name)
	if !ok {
		return ""
	}
	return p.Architecture()
}

// Architecture returns the second colon-delimited segment of the board id.
func (p *Platform) Architecture() string {
	parts := strings.Split(p.Board, ":")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// GCCConfig returns the platform's flag bundle, or nil when it has none.
func (c *Config) GCCConfig(name string) *GCC {
	if p, ok := c.Platform(name); ok {
		return p.GCC
	}
	return nil
}

// PackageURL returns the additional board-manager URL for a package id.
func (c *Config) PackageURL(pkg string) string {
	if p, ok := c.Packages[pkg]; ok && p != nil {
		return p.URL
	}
	return ""
}

// UnittestPlatforms returns the platforms requested for unit testing.
func (c *Config) UnittestPlatforms() []string { return slices.Clone(c.Unittest.Platforms) }

// CompilePlatforms returns the platforms requested for example compilation.
func (c *Config) CompilePlatforms() []string { return slices.Clone(c.Compile.Platforms) }

// UnittestLibraries returns the auxiliary libraries needed by unit tests.
func (c *Config) UnittestLibraries() []string { return slices.Clone(c.Unittest.Libraries) }

// CompileLibraries returns the auxiliary libraries needed by examples.
func (c *Config) CompileLibraries() []string { return slices.Clone(c.Compile.Libraries) }

// ExcludeDirs returns library-relative directories excluded from sources.
func (c *Config) ExcludeDirs() []string { return slices.Clone(c.Unittest.ExcludeDirs) }

// Compilers returns the compiler binaries to unit test with, in order.
func (c *Config) Compilers() []string {
	if len(c.Unittest.Compilers) == 0 {
		return []string{DefaultCompiler}
	}
	return slices.Clone(c.Unittest.Compilers)
}

// AllowedTestFiles filters paths through the unittest testfiles globs.
func (c *Config) AllowedTestFiles(paths []string) []string {
	tf := c.Unittest.TestFiles
	if tf == nil {
		return slices.Clone(paths)
	}
	return SelectTestFiles(paths, tf.Select, tf.Reject)
}

// WithTestFileFilters returns a copy of c whose testfiles globs are
// replaced by the given lists. Nil lists keep the configured value.
func (c *Config) WithTestFileFilters(sel, rej []string) *Config {
	if sel == nil && rej == nil {
		return c
	}
	out := c.Clone()
	tf := out.Unittest.TestFiles
	if tf == nil {
		tf = &TestFiles{}
	}
	replace(&tf.Select, sel)
	replace(&tf.Reject, rej)
	out.Unittest.TestFiles = tf
	return out
}

// PackageIDs returns the distinct package ids used by the given platforms,
// in first-use order.
func (c *Config) PackageIDs(platforms []string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, name := range platforms {
		p, ok := c.Platform(name)
		if !ok || p.Package == "" || seen[p.Package] {
			continue
		}
		seen[p.Package] = true
		ids = append(ids, p.Package)
	}
	return ids
}

// PackageNames returns every defined package id, sorted.
func (c *Config) PackageNames() []string {
	return slices.Sorted(maps.Keys(c.Packages))
}
