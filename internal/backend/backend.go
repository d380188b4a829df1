// Package backend is a typed client for the analysis backend's HTTP API.
package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/joescharf/arq/internal/models"
)

// Action is a session lifecycle action posted to /api/sessions/{id}/{action}.
type Action string

const (
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionSave     Action = "save"
	ActionContinue Action = "continue"
)

// Results holds whichever report form the backend returned for a session.
// Exactly one field is normally set.
type Results struct {
	HTMLReport     string
	ReportURL      string
	AnalysisResult map[string]any
}

// Kind names the populated report form: "html", "url", "analysis" or "".
func (r *Results) Kind() string {
	switch {
	case r.HTMLReport != "":
		return "html"
	case r.ReportURL != "":
		return "url"
	case r.AnalysisResult != nil:
		return "analysis"
	default:
		return ""
	}
}

// AppStatus is the backend health report.
type AppStatus struct {
	Healthy bool
	Status  string
	Version string
}

// APITestResult is one provider's live key check.
type APITestResult struct {
	Working bool
	Error   string
}

// APIError is a non-success response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return e.Message
}

// Client is the backend contract consumed by arq.
type Client interface {
	Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
	StartAnalysis(ctx context.Context, fields map[string]any) (string, error)
	GetAPIConfig(ctx context.Context) (map[string]bool, error)
	SaveAPIConfig(ctx context.Context, name, key string) (string, error)
	TestAPIs(ctx context.Context) (map[string]APITestResult, error)
	ListSessions(ctx context.Context) ([]*models.Session, error)
	SessionAction(ctx context.Context, id string, action Action) error
	SessionStatus(ctx context.Context, id string) (*models.Session, error)
	SessionResults(ctx context.Context, id string) (*Results, error)
	DeleteSession(ctx context.Context, id string) error
	ClearSessions(ctx context.Context) error
	Progress(ctx context.Context, id string) (*models.ProgressSnapshot, error)
	AppStatus(ctx context.Context) (*AppStatus, error)
}
