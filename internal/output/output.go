package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// UI provides colored output and respects verbose/dry-run modes.
// It is safe to use from the progress and notification goroutines.
type UI struct {
	Verbose bool
	DryRun  bool
	Out     io.Writer
	ErrOut  io.Writer

	mu sync.Mutex
}

// New creates a UI with default stdout/stderr writers.
func New() *UI {
	return &UI{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	warningPrefix = color.New(color.FgHiYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	verbosePrefix = color.New(color.FgHiBlue).Sprint("  →")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
	faint         = color.New(color.Faint).SprintFunc()
)

// Cyan returns a cyan-colored string.
func Cyan(s string) string { return cyan(s) }

// Green returns a green-colored string.
func Green(s string) string { return green(s) }

// Yellow returns a yellow-colored string.
func Yellow(s string) string { return yellow(s) }

// Red returns a red-colored string.
func Red(s string) string { return red(s) }

// Faint returns a dimmed string.
func Faint(s string) string { return faint(s) }

// StatusColor returns the string colored by session status.
func StatusColor(status string) string {
	switch strings.ToLower(status) {
	case "running":
		return green(status)
	case "paused", "saved":
		return yellow(status)
	case "completed":
		return cyan(status)
	case "error":
		return red(status)
	default:
		return status
	}
}

// ModuleColor returns the string colored by module status.
func ModuleColor(status string) string {
	switch strings.ToLower(status) {
	case "processing":
		return yellow(status)
	case "completed":
		return green(status)
	case "error":
		return red(status)
	case "pending":
		return faint(status)
	default:
		return status
	}
}

// ReadinessColor returns the percentage colored against the readiness threshold.
func ReadinessColor(pct float64, threshold float64) string {
	s := fmt.Sprintf("%.0f%%", pct)
	switch {
	case pct >= threshold:
		return green(s)
	case pct >= threshold/2:
		return yellow(s)
	default:
		return red(s)
	}
}

// ProgressBar renders pct (0-100) as a fixed-width bar.
func ProgressBar(pct float64, width int) string {
	if width <= 0 {
		return ""
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / 100 * float64(width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func (u *UI) print(w io.Writer, prefix, format string, a ...any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fmt.Fprintf(w, "%s %s\n", prefix, fmt.Sprintf(format, a...))
}

func (u *UI) Info(format string, a ...any) {
	u.print(u.Out, infoPrefix, format, a...)
}

func (u *UI) Success(format string, a ...any) {
	u.print(u.Out, successPrefix, format, a...)
}

func (u *UI) Warning(format string, a ...any) {
	u.print(u.ErrOut, warningPrefix, format, a...)
}

func (u *UI) Error(format string, a ...any) {
	u.print(u.ErrOut, errorPrefix, format, a...)
}

func (u *UI) VerboseLog(format string, a ...any) {
	if u.Verbose {
		u.print(u.Out, verbosePrefix, format, a...)
	}
}

func (u *UI) DryRunMsg(format string, a ...any) {
	if u.DryRun {
		u.Warning("[DRY-RUN] "+format, a...)
	}
}

// Println writes a plain line to Out.
func (u *UI) Println(a ...any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fmt.Fprintln(u.Out, a...)
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}
