package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/arq/internal/apiconfig"
	"github.com/joescharf/arq/internal/form"
	"github.com/joescharf/arq/internal/health"
	"github.com/joescharf/arq/internal/models"
	"github.com/joescharf/arq/internal/progress"
	"github.com/joescharf/arq/internal/sessions"
)

// Server exposes session lifecycle operations as MCP tools.
type Server struct {
	ctrl     *sessions.Controller
	panel    *apiconfig.Panel
	progress progress.Fetcher
	scorer   *health.Scorer
	version  string
}

// NewServer creates the MCP server wrapper with all required dependencies.
func NewServer(ctrl *sessions.Controller, panel *apiconfig.Panel, f progress.Fetcher, version string) *Server {
	return &Server{
		ctrl:     ctrl,
		panel:    panel,
		progress: f,
		scorer:   health.NewScorer(),
		version:  version,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("arq", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listSessionsTool())
	srv.AddTool(s.sessionDetailTool())
	srv.AddTool(s.startAnalysisTool())
	srv.AddTool(s.pauseSessionTool())
	srv.AddTool(s.resumeSessionTool())
	srv.AddTool(s.saveSessionTool())
	srv.AddTool(s.continueSessionTool())
	srv.AddTool(s.progressTool())
	srv.AddTool(s.apiReadinessTool())
	srv.AddTool(s.testAPIsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

type sessionOut struct {
	ID          string     `json:"session_id"`
	Status      string     `json:"status"`
	Segment     string     `json:"segmento"`
	Product     string     `json:"produto"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	SavedStages int        `json:"saved_stages"`
	Actions     []string   `json:"actions"`
}

func toSessionOut(sess *models.Session) sessionOut {
	out := sessionOut{
		ID:          sess.ID,
		Status:      string(sess.Status),
		Segment:     sess.Segment,
		Product:     sess.Product,
		CompletedAt: sess.CompletedAt,
		Error:       sess.Error,
		SavedStages: sess.SavedStages,
	}
	if !sess.StartedAt.IsZero() {
		t := sess.StartedAt
		out.StartedAt = &t
	}
	for _, a := range sessions.Actions(sess.Status) {
		out.Actions = append(out.Actions, string(a))
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// arq_list_sessions
func (s *Server) listSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("arq_list_sessions",
		mcp.WithDescription("Refresh and list all analysis sessions. Returns a JSON array with session_id, status, segmento, produto, started_at, saved_stages and the actions available for each."),
	)
	return tool, s.handleListSessions
}

func (s *Server) handleListSessions(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.ctrl.Refresh(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}

	list := s.ctrl.Store().List()
	out := make([]sessionOut, len(list))
	for i, sess := range list {
		out[i] = toSessionOut(sess)
	}
	return jsonResult(out)
}

// arq_session_detail
func (s *Server) sessionDetailTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("arq_session_detail",
		mcp.WithDescription("Show the cached record of one session. Does not contact the backend; call arq_list_sessions first for fresh data."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	)
	return tool, s.handleSessionDetail
}

func (s *Server) handleSessionDetail(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	sess, ok := s.ctrl.Store().Get(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("session not cached: %s", id)), nil
	}
	return jsonResult(toSessionOut(sess))
}

// arq_start_analysis
func (s *Server) startAnalysisTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("arq_start_analysis",
		mcp.WithDescription("Start a new analysis from the given form fields and begin tracking its progress."),
		mcp.WithString(form.FieldSegment, mcp.Required(), mcp.Description("Market segment (at least 3 characters)")),
		mcp.WithString(form.FieldProduct, mcp.Description("Product or service")),
		mcp.WithString(form.FieldAudience, mcp.Description("Target audience")),
		mcp.WithString(form.FieldGoals, mcp.Description("Objectives")),
		mcp.WithString(form.FieldContext, mcp.Description("Additional context")),
		mcp.WithString(form.FieldPrice, mcp.Description("Price")),
		mcp.WithString(form.FieldCompetitors, mcp.Description("Known competitors")),
	)
	return tool, s.handleStartAnalysis
}

func (s *Server) handleStartAnalysis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := form.New()
	for _, name := range form.Fields {
		if v := request.GetString(name, ""); v != "" {
			_ = f.Set(name, v)
		}
	}

	id, err := s.ctrl.Start(ctx, f.Payload())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start analysis: %v", err)), nil
	}
	return jsonResult(map[string]string{"session_id": id})
}

// arq_pause_session
func (s *Server) pauseSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("arq_pause_session",
		mcp.WithDescription("Pause the current session and stop tracking its progress."),
	)
	return tool, s.currentSessionHandler("pause", s.ctrl.Pause)
}

// arq_resume_session
func (s *Server) resumeSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("arq_resume_session",
		mcp.WithDescription("Resume the current session and track its progress again."),
	)
	return tool, s.currentSessionHandler("resume", s.ctrl.Resume)
}

// arq_save_session
func (s *Server) saveSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("arq_save_session",
		mcp.WithDescription("Save the current session's progress on the backend."),
	)
	return tool, s.currentSessionHandler("save", s.ctrl.Save)
}

func (s *Server) currentSessionHandler(verb string, op func(context.Context) error) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := s.ctrl.Current()
		if err := op(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to %s session: %v", verb, err)), nil
		}
		return jsonResult(map[string]string{"session_id": id, "action": verb})
	}
}

// arq_continue_session
func (s *Server) continueSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("arq_continue_session",
		mcp.WithDescription("Continue a paused, saved or failed session, making it the current session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	)
	return tool, s.handleContinueSession
}

func (s *Server) handleContinueSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	if err := s.ctrl.Continue(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to continue session: %v", err)), nil
	}
	return jsonResult(map[string]string{"session_id": id, "action": "continue"})
}

// arq_progress
func (s *Server) progressTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("arq_progress",
		mcp.WithDescription("Fetch a progress snapshot with per-module status. Defaults to the current session."),
		mcp.WithString("session_id", mcp.Description("Session ID (default: current session)")),
	)
	return tool, s.handleProgress
}

func (s *Server) handleProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("session_id", "")
	if id == "" {
		id = s.ctrl.Current()
	}
	if id == "" {
		return mcp.NewToolResultError("no session_id given and no current session"), nil
	}

	snap, err := s.progress.Progress(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch progress: %v", err)), nil
	}

	modules := make(map[string]string, len(models.ModuleKeys))
	for _, m := range snap.ModuleGrid() {
		modules[m.Key] = string(m.Status)
	}
	return jsonResult(map[string]any{
		"session_id":     id,
		"percentage":     snap.ClampedPercentage(),
		"current_step":   snap.CurrentStep,
		"total_steps":    snap.TotalSteps,
		"estimated_time": snap.EstimatedTime,
		"completed":      snap.Completed,
		"error":          snap.Error,
		"modules":        modules,
	})
}

// arq_api_readiness
func (s *Server) apiReadinessTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("arq_api_readiness",
		mcp.WithDescription("Report which third-party providers are configured and whether enough critical providers are present to run an analysis."),
	)
	return tool, s.handleAPIReadiness
}

func (s *Server) handleAPIReadiness(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.panel.Load(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load api config: %v", err)), nil
	}

	statuses := s.panel.Statuses()
	r := s.scorer.Score(statuses)

	type providerOut struct {
		Name       string `json:"name"`
		EnvVar     string `json:"env_var"`
		Critical   bool   `json:"critical"`
		Configured bool   `json:"configured"`
	}
	providers := make([]providerOut, len(statuses))
	for i, st := range statuses {
		providers[i] = providerOut{Name: st.Name, EnvVar: st.EnvVar, Critical: st.Critical, Configured: st.Configured}
	}

	return jsonResult(map[string]any{
		"ready":               r.Ready,
		"critical_percentage": r.CriticalPercentage,
		"health_percentage":   r.HealthPercentage,
		"critical_missing":    r.CriticalMissing,
		"threshold":           health.ReadinessThreshold,
		"providers":           providers,
	})
}

// arq_test_apis
func (s *Server) testAPIsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("arq_test_apis",
		mcp.WithDescription("Have the backend make a live call with every configured provider key and report which keys work."),
	)
	return tool, s.handleTestAPIs
}

func (s *Server) handleTestAPIs(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	results, err := s.panel.TestAll(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to test apis: %v", err)), nil
	}

	type resultOut struct {
		Name    string `json:"name"`
		Working bool   `json:"working"`
		Error   string `json:"error,omitempty"`
	}
	out := make([]resultOut, len(results))
	working := 0
	for i, r := range results {
		out[i] = resultOut{Name: r.Name, Working: r.Working, Error: r.Error}
		if r.Working {
			working++
		}
	}
	return jsonResult(map[string]any{
		"tested":  len(results),
		"working": working,
		"results": out,
	})
}
