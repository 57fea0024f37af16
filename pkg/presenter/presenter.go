// Package presenter provides consistent CLI output for user-facing messages:
// steps, success, warnings and errors, download progress and the
// installation and analysis summaries printed by the analyze command.
package presenter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/zmlgit/java-architect-skills/pkg/analysis"
	"github.com/zmlgit/java-architect-skills/pkg/binaries"
)

// Presenter defines the interface for consistent CLI output
type Presenter interface {
	Error(err error, context string)
	Success(message string)
	Warning(message string)
	Info(message string)
	Step(message string)
	Section(title string)
	Progress(progress binaries.Progress)
	Installation(inst binaries.Installation)
	Summary(summary analysis.Summary)
	Separator()
	SetQuiet(quiet bool)
	IsQuiet() bool
}

// TerminalPresenter implements Presenter for terminal output
type TerminalPresenter struct {
	output      io.Writer
	errorOutput io.Writer
	colorMode   ColorMode
	quiet       bool
	interactive bool
}

// ColorMode represents different color output modes
type ColorMode int

const (
	// ColorAuto automatically detects whether to use colored output based on terminal capabilities
	ColorAuto ColorMode = iota
	// ColorAlways forces colored output regardless of terminal capabilities
	ColorAlways
	// ColorNever disables colored output regardless of terminal capabilities
	ColorNever
)

const progressBarWidth = 30

// New creates a new TerminalPresenter with default settings
func New() *TerminalPresenter {
	p := NewWithOptions(os.Stdout, os.Stderr, detectColorMode())
	p.interactive = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	return p
}

// NewWithOptions creates a TerminalPresenter with custom settings
func NewWithOptions(output, errorOutput io.Writer, colorMode ColorMode) *TerminalPresenter {
	presenter := &TerminalPresenter{
		output:      output,
		errorOutput: errorOutput,
		colorMode:   colorMode,
	}

	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	case ColorAuto:
		// Let color package auto-detect
	}

	return presenter
}

// SetInteractive switches progress rendering between an in-place bar and
// a single completion line.
func (p *TerminalPresenter) SetInteractive(interactive bool) {
	p.interactive = interactive
}

// detectColorMode determines the appropriate color mode based on environment
func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}

	switch os.Getenv("JAVA_ARCHITECT_COLOR") {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

// Error displays an error message to stderr
func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}

	errorColor := color.New(color.FgRed, color.Bold)
	if context != "" {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %s: %v\n", context, err)
	} else {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %v\n", err)
	}
}

// Success displays a success message
func (p *TerminalPresenter) Success(message string) {
	if p.quiet {
		return
	}

	successColor := color.New(color.FgGreen, color.Bold)
	successColor.Fprintf(p.output, "✓ %s\n", message)
}

// Warning displays a warning message
func (p *TerminalPresenter) Warning(message string) {
	if p.quiet {
		return
	}

	warningColor := color.New(color.FgYellow, color.Bold)
	warningColor.Fprintf(p.output, "⚠ %s\n", message)
}

// Info displays an informational message
func (p *TerminalPresenter) Info(message string) {
	if p.quiet {
		return
	}

	fmt.Fprintf(p.output, "%s\n", message)
}

// Step announces a provisioning or analysis stage.
func (p *TerminalPresenter) Step(message string) {
	if p.quiet {
		return
	}

	stepColor := color.New(color.FgBlue, color.Bold)
	stepColor.Fprintf(p.output, "==> %s\n", message)
}

// Section displays a section header with consistent formatting
func (p *TerminalPresenter) Section(title string) {
	if p.quiet {
		return
	}

	headerColor := color.New(color.Bold)
	separator := strings.Repeat("-", len(title))

	headerColor.Fprintf(p.output, "%s\n", title)
	headerColor.Fprintf(p.output, "%s\n", separator)
}

// Progress renders download progress on stderr. Interactive terminals get a
// bar redrawn in place; otherwise only the completed download is reported.
func (p *TerminalPresenter) Progress(progress binaries.Progress) {
	if p.quiet {
		return
	}

	done := progress.Total > 0 && progress.Written >= progress.Total
	if !p.interactive {
		if done {
			fmt.Fprintf(p.errorOutput, "Downloaded %s from %s\n", humanize.Bytes(uint64(progress.Written)), progress.Mirror)
		}
		return
	}

	fmt.Fprintf(p.errorOutput, "\r%s", FormatProgress(progress))
	if done {
		fmt.Fprintln(p.errorOutput)
	}
}

// FormatProgress renders a progress line such as
// "[#########---------------------]  30% 12 MB / 40 MB". An unknown total
// renders only the byte count.
func FormatProgress(progress binaries.Progress) string {
	written := humanize.Bytes(uint64(max(progress.Written, 0)))
	if progress.Total <= 0 {
		return fmt.Sprintf("%s downloaded", written)
	}

	done := min(max(progress.Written, 0), progress.Total)
	filled := int(done * progressBarWidth / progress.Total)
	bar := strings.Repeat("#", filled) + strings.Repeat("-", progressBarWidth-filled)

	return fmt.Sprintf("[%s] %3d%% %s / %s", bar, done*100/progress.Total, written, humanize.Bytes(uint64(progress.Total)))
}

// Installation prints where the analyzer is installed, framed by separators.
func (p *TerminalPresenter) Installation(inst binaries.Installation) {
	if p.quiet {
		return
	}

	p.Separator()
	p.Section("Installation")
	fmt.Fprintf(p.output, "Tool:     %s %s\n", inst.Name, inst.Version)
	fmt.Fprintf(p.output, "Location: %s\n", inst.InstallDir)
	fmt.Fprintf(p.output, "Binary:   %s\n", inst.BinaryPath)
	if inst.Reported != "" {
		fmt.Fprintf(p.output, "Reports:  %s\n", inst.Reported)
	}
	p.Separator()
}

// Summary prints violation counts, most severe priority first.
func (p *TerminalPresenter) Summary(summary analysis.Summary) {
	if p.quiet {
		return
	}

	p.Section("Analysis Summary")
	if summary.Total == 0 {
		p.Success("No violations found")
		return
	}

	warningColor := color.New(color.FgYellow, color.Bold)
	warningColor.Fprintf(p.output, "%s in %s\n",
		plural(summary.Total, "violation"), plural(summary.Files, "file"))
	for _, priority := range summary.Priorities() {
		fmt.Fprintf(p.output, "  priority %d: %s\n", priority, humanize.Comma(int64(summary.ByPriority[priority])))
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%s %ss", humanize.Comma(int64(n)), noun)
}

// Separator displays a visual separator
func (p *TerminalPresenter) Separator() {
	if p.quiet {
		return
	}

	separatorColor := color.New(color.Faint)
	separatorColor.Fprintf(p.output, "%s\n", strings.Repeat("-", 60))
}

// SetQuiet enables or disables quiet mode
func (p *TerminalPresenter) SetQuiet(quiet bool) {
	p.quiet = quiet
}

// IsQuiet returns whether quiet mode is enabled
func (p *TerminalPresenter) IsQuiet() bool {
	return p.quiet
}

// Global presenter instance for convenience
var defaultPresenter = New()

// Default returns the process-wide presenter.
func Default() *TerminalPresenter {
	return defaultPresenter
}

// Error displays an error message using the default presenter instance.
func Error(err error, context string) {
	defaultPresenter.Error(err, context)
}
