package progress

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/joescharf/arq/internal/models"
	"github.com/joescharf/arq/internal/output"
)

const barWidth = 30

// TerminalView prints progress through the terminal UI. A line is printed
// only when the bar, step or ETA changes, and a module is printed only when
// its status changes.
type TerminalView struct {
	UI *output.UI

	mu       sync.Mutex
	lastLine string
	modules  map[string]models.ModuleStatus
}

// NewTerminalView creates a TerminalView.
func NewTerminalView(ui *output.UI) *TerminalView {
	return &TerminalView{UI: ui, modules: make(map[string]models.ModuleStatus)}
}

// Line formats the progress line for a snapshot.
func Line(snap *models.ProgressSnapshot) string {
	pct := snap.ClampedPercentage()
	var b strings.Builder
	fmt.Fprintf(&b, "%s %5.1f%%", output.ProgressBar(pct, barWidth), pct)
	if snap.CurrentStep != "" {
		b.WriteString("  " + snap.CurrentStep)
	}
	if snap.EstimatedTime != "" {
		b.WriteString(output.Faint(" (ETA " + snap.EstimatedTime + ")"))
	}
	return b.String()
}

func (v *TerminalView) Update(id string, snap *models.ProgressSnapshot, grid []models.ModuleState) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if line := Line(snap); line != v.lastLine {
		v.UI.Println(line)
		v.lastLine = line
	}
	for _, m := range grid {
		prev, seen := v.modules[m.Key]
		v.modules[m.Key] = m.Status
		if !seen && m.Status == models.ModuleStatusPending {
			continue
		}
		if prev != m.Status {
			v.UI.Println(fmt.Sprintf("    %-24s %s", m.Key, output.ModuleColor(string(m.Status))))
		}
	}
}

func (v *TerminalView) Hide() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastLine = ""
	v.modules = make(map[string]models.ModuleStatus)
}

// RenderGrid prints the full module grid as a table.
func RenderGrid(ui *output.UI, snap *models.ProgressSnapshot) {
	ui.Println(Line(snap))
	table := ui.Table([]string{"Module", "Status"})
	for _, m := range snap.ModuleGrid() {
		_ = table.Append([]string{m.Key, output.ModuleColor(string(m.Status))})
	}
	_ = table.Render()
}

// LogView reports progress through slog. Used when stdout is reserved.
type LogView struct{}

func (LogView) Update(id string, snap *models.ProgressSnapshot, _ []models.ModuleState) {
	slog.Info("analysis progress",
		"session", id,
		"percentage", snap.ClampedPercentage(),
		"step", snap.CurrentStep,
		"eta", snap.EstimatedTime,
	)
}

func (LogView) Hide() {}
