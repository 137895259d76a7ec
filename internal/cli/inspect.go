package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/lipgloss/tree"
	"github.com/spf13/cobra"

	"github.com/matzehuels/arduci/pkg/buildinfo"
	"github.com/matzehuels/arduci/pkg/config"
	"github.com/matzehuels/arduci/pkg/deps"
	"github.com/matzehuels/arduci/pkg/errors"
	"github.com/matzehuels/arduci/pkg/library"
	"github.com/matzehuels/arduci/pkg/platform"
)

const (
	formatTree = "tree"
	formatDOT  = "dot"
	formatSVG  = "svg"
	formatJSON = "json"
)

// depsCommand creates the deps command.
func (c *CLI) depsCommand() *cobra.Command {
	var (
		f      runFlags
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "deps [library-dir]",
		Short: "Show the library's dependency graph",
		Long: `Show the library's dependency graph.

Dependencies come from the depends= line of each library.properties plus
the unittest libraries of the configuration. Missing libraries are installed
with arduino-cli, unless --dry-run is given; libraries that could not be
installed are marked.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeLibraryDir,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains([]string{formatTree, formatDOT, formatSVG, formatJSON}, format) {
				return errors.New(errors.ErrCodeInvalidConfig, "unknown format %q (want tree, dot, svg or json)", format)
			}
			dir := libraryDir(args)
			cfg, _, err := c.loadConfig(dir, &f)
			if err != nil {
				return err
			}
			runner, err := c.newRunner(cmd.Context(), &f)
			if err != nil {
				return err
			}
			ws, err := runner.Prepare(cmd.Context(), f.options(dir, cfg), c.Logger)
			if err != nil {
				return err
			}
			g := ws.Resolver.Graph(cmd.Context(), ws.Library, cfg.UnittestLibraries())

			switch format {
			case formatDOT:
				return writeOutput(output, []byte(g.DOT()))
			case formatJSON:
				var buf bytes.Buffer
				if err := g.WriteJSON(&buf); err != nil {
					return err
				}
				return writeOutput(output, buf.Bytes())
			case formatSVG:
				svg, err := deps.RenderSVG(cmd.Context(), g.DOT())
				if err != nil {
					return err
				}
				return writeOutput(output, svg)
			}
			fmt.Fprintln(stdout, depTree(g).String())
			if len(g.Failed) > 0 {
				printWarning("Not installed: %v", g.Failed)
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", formatTree, "output format: tree, dot, svg, json")
	_ = cmd.RegisterFlagCompletionFunc("format", completeFormats)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

// depTree renders g as a tree rooted at the library. A dependency already
// on the current path is shown once, marked as a cycle.
func depTree(g *deps.Graph) *tree.Tree {
	t := tree.Root(StyleHighlight.Render(g.Root)).Enumerator(tree.RoundedEnumerator)
	addChildren(t, g, g.Root, map[string]bool{g.Root: true})
	return t
}

func addChildren(t *tree.Tree, g *deps.Graph, name string, path map[string]bool) {
	for _, child := range g.Children(name) {
		label := child
		if slices.Contains(g.Failed, child) {
			label += " " + StyleError.Render("(not installed)")
		}
		if path[child] {
			t.Child(label + " " + StyleDim.Render("(cycle)"))
			continue
		}
		sub := tree.Root(label)
		path[child] = true
		addChildren(sub, g, child, path)
		delete(path, child)
		t.Child(sub)
	}
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", path)
	}
	printSuccess("Wrote")
	printFile(path)
	return nil
}

// platformsCommand creates the platforms command.
func (c *CLI) platformsCommand() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "platforms [library-dir]",
		Short: "List configured platforms and which ones the library uses",
		Long: `List every configured platform with its board and package, and mark the
ones selected for unit tests and for example compilation. Selection honors
the architectures declared in library.properties.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeLibraryDir,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := libraryDir(args)
			cfg, _, err := c.loadConfig(dir, &f)
			if err != nil {
				return err
			}
			lib, err := library.Local(dir)
			if err != nil {
				return err
			}
			props, err := lib.Properties()
			if err != nil {
				return err
			}
			unit, err := platform.Select(cfg, cfg.UnittestPlatforms(), props)
			if err != nil {
				return err
			}
			comp, err := platform.Select(cfg, cfg.CompilePlatforms(), props)
			if err != nil {
				return err
			}
			printPlatforms(cfg, unit, comp)
			return nil
		},
	}
	f.registerConfig(cmd)
	return cmd
}

func printPlatforms(cfg *config.Config, unit, comp []string) {
	mark := func(list []string, name string) string {
		if slices.Contains(list, name) {
			return StyleSuccess.Render(iconSuccess)
		}
		return ""
	}
	t := newTable("Platform", "Board", "Package", "Arch", "Unittest", "Compile")
	for _, name := range cfg.PlatformNames() {
		p, _ := cfg.Platform(name)
		t.Row(name, p.Board, p.Package, p.Architecture(), mark(unit, name), mark(comp, name))
	}
	fmt.Fprintln(stdout, t.Render())
}

// configCommand creates the config command.
func (c *CLI) configCommand() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "config [library-dir]",
		Short: "Print the merged configuration",
		Long: `Print the configuration a run would use: the built-in defaults merged
with the library's .arduino-ci.yml. Dropped values are listed as warnings.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeLibraryDir,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.loadConfig(libraryDir(args), &f)
			if err != nil {
				return err
			}
			data, err := cfg.Dump()
			if err != nil {
				return err
			}
			for _, src := range cfg.Sources {
				fmt.Fprintln(stdout, StyleDim.Render("# "+src))
			}
			_, err = stdout.Write(data)
			return err
		},
	}
	f.registerConfig(cmd)
	return cmd
}

// filesCommand creates the files command.
func (c *CLI) filesCommand() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "files [library-dir]",
		Short: "List the library's classified source files",
		Long: `List the headers and sources the shared runtime is built from, the test
files that would run, and the examples that would be compiled. Excluded
directories and vendored bundles are shown first.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeLibraryDir,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := libraryDir(args)
			cfg, _, err := c.loadConfig(dir, &f)
			if err != nil {
				return err
			}
			lib, err := library.Local(dir)
			if err != nil {
				return err
			}
			wd, err := os.Getwd()
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidPath, err, "determine working directory")
			}
			vendor, _ := library.VendorRoots(cmd.Context(), f.packageManager(), wd, c.Logger)
			ex := library.NewExclusions(lib.Path, cfg.ExcludeDirs(), vendor)

			files, err := library.Classify(lib, ex)
			if err != nil {
				return err
			}
			tests, err := library.TestFiles(lib)
			if err != nil {
				return err
			}
			examples, err := library.Examples(lib)
			if err != nil {
				return err
			}

			printKeyValue("Library", lib.Name)
			printKeyValue("Layout", lib.Layout().String())
			printKeyValue("Path", lib.Path)
			printSection(lib, "Excluded", ex.Roots())
			printSection(lib, "Headers", files.Headers)
			printSection(lib, "Sources", files.Sources)
			printSection(lib, "Tests", cfg.AllowedTestFiles(tests))
			printSection(lib, "Examples", examples)
			return nil
		},
	}
	f.registerConfig(cmd)
	f.registerBundle(cmd)
	return cmd
}

func printSection(lib *library.Library, title string, paths []string) {
	if len(paths) == 0 {
		return
	}
	printNewline()
	printTitle("%s (%d)", title, len(paths))
	for _, p := range paths {
		if rel, err := filepath.Rel(lib.Path, p); err == nil && filepath.IsLocal(rel) {
			p = rel
		}
		printFile(filepath.ToSlash(p))
	}
}

// versionCommand creates the version command.
func (c *CLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(stdout, appName)
			fmt.Fprintln(stdout, buildinfo.String())
			return nil
		},
	}
}
