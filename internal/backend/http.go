package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/joescharf/arq/internal/models"
)

// HTTPClient implements Client over HTTP.
// Requests carry no timeout of their own; callers bound them with ctx.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient returns a client for the backend rooted at baseURL.
// A nil hc uses a plain http.Client.
func NewHTTPClient(baseURL string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}
}

// envelope carries the status fields every backend response shares.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	slog.Debug("backend request", "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &env); err != nil {
			if resp.StatusCode >= 400 {
				return &APIError{StatusCode: resp.StatusCode}
			}
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}

	if resp.StatusCode >= 400 || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

func sessionPath(id string, rest ...string) string {
	p := "/api/sessions/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// Upload sends one file as multipart form data and returns the backend file ID.
func (c *HTTPClient) Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("copy %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	var out struct {
		FileID string `json:"file_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/upload", &buf, mw.FormDataContentType(), &out); err != nil {
		return "", err
	}
	return out.FileID, nil
}

// StartAnalysis submits the analysis form and returns the new session ID.
func (c *HTTPClient) StartAnalysis(ctx context.Context, fields map[string]any) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/execute_complete_analysis", fields, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", &APIError{StatusCode: http.StatusOK, Message: "backend did not return a session id"}
	}
	return out.SessionID, nil
}

func (c *HTTPClient) GetAPIConfig(ctx context.Context) (map[string]bool, error) {
	var out struct {
		Config map[string]bool `json:"config"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/get_api_config", nil, &out); err != nil {
		return nil, err
	}
	if out.Config == nil {
		out.Config = map[string]bool{}
	}
	return out.Config, nil
}

// SaveAPIConfig submits one provider key and returns the backend's message.
func (c *HTTPClient) SaveAPIConfig(ctx context.Context, name, key string) (string, error) {
	in := map[string]string{"api_name": name, "api_key": key}
	var out envelope
	if err := c.doJSON(ctx, http.MethodPost, "/api/save_api_config", in, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// TestAPIs asks the backend to exercise every configured provider key.
func (c *HTTPClient) TestAPIs(ctx context.Context) (map[string]APITestResult, error) {
	var out struct {
		TestResults struct {
			DetailedResults map[string]struct {
				Working bool   `json:"working"`
				Error   string `json:"error"`
			} `json:"detailed_results"`
		} `json:"test_results"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/test_all_apis", nil, &out); err != nil {
		return nil, err
	}
	results := make(map[string]APITestResult, len(out.TestResults.DetailedResults))
	for name, r := range out.TestResults.DetailedResults {
		results[name] = APITestResult{Working: r.Working, Error: r.Error}
	}
	return results, nil
}

func (c *HTTPClient) ListSessions(ctx context.Context) ([]*models.Session, error) {
	var out struct {
		Sessions []wireSession `json:"sessions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/sessions", nil, &out); err != nil {
		return nil, err
	}
	sessions := make([]*models.Session, 0, len(out.Sessions))
	for _, w := range out.Sessions {
		sessions = append(sessions, w.toModel())
	}
	return sessions, nil
}

func (c *HTTPClient) SessionAction(ctx context.Context, id string, action Action) error {
	return c.doJSON(ctx, http.MethodPost, sessionPath(id, string(action)), nil, nil)
}

func (c *HTTPClient) SessionStatus(ctx context.Context, id string) (*models.Session, error) {
	var out struct {
		Session wireSession `json:"session"`
	}
	if err := c.doJSON(ctx, http.MethodGet, sessionPath(id, "status"), nil, &out); err != nil {
		return nil, err
	}
	s := out.Session.toModel()
	if s.ID == "" {
		s.ID = id
	}
	return s, nil
}

func (c *HTTPClient) SessionResults(ctx context.Context, id string) (*Results, error) {
	var out struct {
		HTMLReport     string         `json:"html_report"`
		ReportURL      string         `json:"report_url"`
		AnalysisResult map[string]any `json:"analysis_result"`
	}
	if err := c.doJSON(ctx, http.MethodGet, sessionPath(id, "results"), nil, &out); err != nil {
		return nil, err
	}
	return &Results{
		HTMLReport:     out.HTMLReport,
		ReportURL:      out.ReportURL,
		AnalysisResult: out.AnalysisResult,
	}, nil
}

func (c *HTTPClient) DeleteSession(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, sessionPath(id), nil, nil)
}

func (c *HTTPClient) ClearSessions(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/sessions/clear", nil, nil)
}

func (c *HTTPClient) Progress(ctx context.Context, id string) (*models.ProgressSnapshot, error) {
	var snap models.ProgressSnapshot
	if err := c.doJSON(ctx, http.MethodGet, "/api/progress/"+url.PathEscape(id), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// AppStatus reports backend health. The endpoint answers either with
// success=true or with status="healthy", so it bypasses the envelope check.
func (c *HTTPClient) AppStatus(ctx context.Context) (*AppStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/app_status", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET /api/app_status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
		Version string `json:"version"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &APIError{StatusCode: resp.StatusCode}
		}
		return nil, fmt.Errorf("decode app status: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: out.Error}
	}
	return &AppStatus{
		Healthy: out.Success || out.Status == "healthy",
		Status:  out.Status,
		Version: out.Version,
	}, nil
}

// wireSession is the backend's session shape. Timestamps arrive as naive
// ISO strings, so they are parsed leniently.
type wireSession struct {
	SessionID   string `json:"session_id"`
	ID          string `json:"id"`
	Status      string `json:"status"`
	Segmento    string `json:"segmento"`
	Produto     string `json:"produto"`
	StartedAt   string `json:"started_at"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at"`
	Error       string `json:"error"`
	SavedStages int    `json:"saved_stages"`
}

func (w wireSession) toModel() *models.Session {
	s := &models.Session{
		ID:          w.SessionID,
		Status:      models.SessionStatus(w.Status),
		Segment:     w.Segmento,
		Product:     w.Produto,
		Error:       w.Error,
		SavedStages: w.SavedStages,
	}
	if s.ID == "" {
		s.ID = w.ID
	}
	started := w.StartedAt
	if started == "" {
		started = w.CreatedAt
	}
	if t, ok := parseTime(started); ok {
		s.StartedAt = t
	}
	if t, ok := parseTime(w.CompletedAt); ok {
		s.CompletedAt = &t
	}
	return s
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
