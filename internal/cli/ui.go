package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"

	"github.com/matzehuels/arduci/pkg/host"
	"github.com/matzehuels/arduci/pkg/pipeline"
)

// stdout receives all human-readable output. Tests swap it.
var stdout io.Writer = os.Stdout

// interactive reports whether stderr is a terminal, where the spinner may
// draw.
func interactive() bool {
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorBlue   = lipgloss.Color("75")  // Light blue - commands
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Public Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleHighlight for emphasized values.
	StyleHighlight = lipgloss.NewStyle().Foreground(colorCyan)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleSuccess for success messages.
	StyleSuccess = lipgloss.NewStyle().Foreground(colorGreen)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)

	// StyleError for failures.
	StyleError = lipgloss.NewStyle().Foreground(colorRed)
)

// =============================================================================
// Internal Styles
// =============================================================================

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleCommand = lipgloss.NewStyle().Foreground(colorBlue)
	styleHeader  = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	styleCell    = lipgloss.NewStyle().Padding(0, 1)
)

// =============================================================================
// Icons
// =============================================================================

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
	iconSkip    = "–"
)

// =============================================================================
// Status Output
// =============================================================================

// printSuccess prints a success message.
func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stdout, styleIconSuccess.Render(iconSuccess)+" "+msg)
}

// printError prints an error message.
func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stdout, styleIconError.Render(iconError)+" "+msg)
}

// printWarning prints a warning message.
func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stdout, styleIconWarning.Render(iconWarning)+" "+StyleWarning.Render(msg))
}

// printInfo prints an info/status message.
func printInfo(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stdout, styleIconInfo.Render(iconInfo)+" "+msg)
}

// printDetail prints a detail line (indented).
func printDetail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stdout, "  "+StyleDim.Render(msg))
}

// printTitle prints a section heading.
func printTitle(format string, args ...any) {
	fmt.Fprintln(stdout, StyleTitle.Render(fmt.Sprintf(format, args...)))
}

// =============================================================================
// File Output
// =============================================================================

// printFile prints a file output line.
func printFile(path string) {
	fmt.Fprintln(stdout, "  "+StyleDim.Render(iconArrow)+" "+StyleValue.Render(path))
}

// =============================================================================
// Key-Value Output
// =============================================================================

// printKeyValue prints a labeled value.
func printKeyValue(key, value string) {
	keyStyle := lipgloss.NewStyle().Foreground(colorGray).Width(12)
	fmt.Fprintln(stdout, keyStyle.Render(key)+" "+StyleValue.Render(value))
}

// =============================================================================
// Commands
// =============================================================================

// printCommand prints a command line, indented.
func printCommand(cmd string) {
	fmt.Fprintln(stdout, "  "+styleCommand.Render(cmd))
}

// printInvocation prints a recorded external command and its output.
func printInvocation(res *host.Result) {
	if res == nil || len(res.Command) == 0 {
		return
	}
	printInfo("Last command (exit %d):", res.ExitCode)
	printCommand(res.CommandLine())
	for _, line := range outputLines(res.Output(), 40) {
		printDetail("%s", line)
	}
}

// outputLines returns at most the last limit lines of out.
func outputLines(out string, limit int) []string {
	if out == "" {
		return nil
	}
	lines := strings.Split(out, "\n")
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines
}

// =============================================================================
// Reports
// =============================================================================

func statusCell(s pipeline.Status) string {
	switch s {
	case pipeline.Passed:
		return StyleSuccess.Render(iconSuccess + " " + s.String())
	case pipeline.Failed:
		return StyleError.Render(iconError + " " + s.String())
	default:
		return StyleDim.Render(iconSkip + " " + s.String())
	}
}

// newTable returns a table in the CLI's house style.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader.Padding(0, 1)
			}
			return styleCell
		})
}

// printReport prints every outcome of a run as a table, the output of
// failed steps, and a one-line summary.
func printReport(r *pipeline.Report) {
	if len(r.Outcomes) > 0 {
		t := newTable("Step", "Platform", "Compiler", "Name", "Status", "Note")
		for _, o := range r.Outcomes {
			t.Row(string(o.Step), o.Platform, o.Compiler, o.Name, statusCell(o.Status), o.Message)
		}
		fmt.Fprintln(stdout, t.Render())
	}

	for _, o := range r.Outcomes {
		if o.Status != pipeline.Failed || len(o.Result.Command) == 0 {
			continue
		}
		printError("%s %s", o.Step, strings.TrimSpace(strings.Join([]string{o.Platform, o.Compiler, o.Name}, " ")))
		printCommand(o.Result.CommandLine())
		for _, line := range outputLines(o.Result.Output(), 20) {
			printDetail("%s", line)
		}
	}

	if r.Partial {
		printWarning("Continued without dependencies that failed to install: %s", strings.Join(r.FailedDeps, ", "))
	}
	for _, w := range r.Warnings {
		printWarning("%s", w)
	}

	summary := fmt.Sprintf("%d passed · %d failed · %d skipped", r.Passed(), r.Failed(), r.Skipped())
	if r.OK() {
		printSuccess("%s %s", StyleHighlight.Render(r.Library), StyleDim.Render(summary))
	} else {
		printError("%s %s", StyleHighlight.Render(r.Library), StyleDim.Render(summary))
	}
}

// printNewline prints an empty line.
func printNewline() {
	fmt.Fprintln(stdout)
}
