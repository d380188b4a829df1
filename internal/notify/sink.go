package notify

import (
	"context"
	"log/slog"

	"github.com/joescharf/arq/internal/output"
)

// UISink prints notifications through the terminal UI. Dismissals are silent
// since printed lines cannot be withdrawn.
type UISink struct {
	UI *output.UI
}

func (s UISink) Show(n Notification) {
	switch n.Severity {
	case SeveritySuccess:
		s.UI.Success("%s", n.Message)
	case SeverityWarning:
		s.UI.Warning("%s", n.Message)
	case SeverityError:
		s.UI.Error("%s", n.Message)
	default:
		s.UI.Info("%s", n.Message)
	}
}

func (s UISink) Dismiss(Notification) {}

// LogSink routes notifications to a structured logger. Used when stdout is
// reserved for a protocol, as with the MCP stdio server.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s LogSink) Show(n Notification) {
	level := slog.LevelInfo
	switch n.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError:
		level = slog.LevelError
	}
	s.logger().Log(context.Background(), level, n.Message, "id", n.ID, "severity", string(n.Severity))
}

func (s LogSink) Dismiss(n Notification) {
	s.logger().Debug("notification dismissed", "id", n.ID)
}
