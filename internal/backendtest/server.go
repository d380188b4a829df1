// Package backendtest provides an in-process fake of the analysis backend for tests.
package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/joescharf/arq/internal/models"
)

// Upload records one file received by the fake.
type Upload struct {
	FileID      string
	Filename    string
	ContentType string
	Size        int
}

// failure is an injected error response for a route.
type failure struct {
	status int
	msg    string
}

// Server is a fake backend implementing the HTTP contract arq consumes.
type Server struct {
	mu sync.Mutex

	sessions map[string]*models.Session
	progress map[string][]models.ProgressSnapshot
	results  map[string]map[string]any
	config   map[string]bool
	uploads  []Upload
	started  []map[string]any
	requests []string
	failures map[string]failure
	nextID   int

	srv *httptest.Server
}

// New starts a fake backend that is shut down when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		sessions: make(map[string]*models.Session),
		progress: make(map[string][]models.ProgressSnapshot),
		results:  make(map[string]map[string]any),
		config:   make(map[string]bool),
		failures: make(map[string]failure),
	}
	s.srv = httptest.NewServer(s.Router())
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the base URL of the fake.
func (s *Server) URL() string { return s.srv.URL }

// Router returns the fake's HTTP handler.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/upload", s.upload)
	mux.HandleFunc("POST /api/execute_complete_analysis", s.startAnalysis)
	mux.HandleFunc("GET /api/get_api_config", s.getAPIConfig)
	mux.HandleFunc("POST /api/save_api_config", s.saveAPIConfig)
	mux.HandleFunc("POST /api/test_all_apis", s.testAllAPIs)
	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("POST /api/sessions/clear", s.clearSessions)
	mux.HandleFunc("GET /api/sessions/{id}/status", s.sessionStatus)
	mux.HandleFunc("GET /api/sessions/{id}/results", s.sessionResults)
	mux.HandleFunc("POST /api/sessions/{id}/{action}", s.sessionAction)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.deleteSession)
	mux.HandleFunc("GET /api/progress/{id}", s.getProgress)
	mux.HandleFunc("GET /api/app_status", s.appStatus)

	return s.record(mux)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.requests = append(s.requests, key)
		f, failing := s.failures[key]
		s.mu.Unlock()

		if failing {
			writeError(w, f.status, f.msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func writeOK(w http.ResponseWriter, fields map[string]any) {
	out := map[string]any{"success": true}
	for k, v := range fields {
		out[k] = v
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Test helpers ---

// Fail makes every request matching "METHOD /path" fail with status and msg.
func (s *Server) Fail(route string, status int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, msg: msg}
}

// Requests returns every request seen so far as "METHOD /path".
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Count returns how many times route ("METHOD /path") was requested.
func (s *Server) Count(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r == route {
			n++
		}
	}
	return n
}

// AddSession seeds a session record.
func (s *Server) AddSession(session *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.ID] = &cp
}

// Session returns a copy of a stored session, or nil.
func (s *Server) Session(id string) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		cp := *sess
		return &cp
	}
	return nil
}

// SetProgress queues snapshots returned by successive polls of id.
// The last snapshot repeats once the queue is drained.
func (s *Server) SetProgress(id string, snaps ...models.ProgressSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[id] = snaps
}

// SetResults sets the results payload for a session.
func (s *Server) SetResults(id string, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = payload
}

// SetConfigured marks a provider as configured on the fake.
func (s *Server) SetConfigured(name string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[name] = ok
}

// Uploads returns the files received so far.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Started returns the JSON payloads of every analysis start.
func (s *Server) Started() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.started...)
}

// --- Handlers ---

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.nextID++
	up := Upload{
		FileID:      fmt.Sprintf("file_%d", s.nextID),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        len(data),
	}
	s.uploads = append(s.uploads, up)
	s.mu.Unlock()

	writeOK(w, map[string]any{"file_id": up.FileID})
}

func (s *Server) startAnalysis(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil || len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "request data is required")
		return
	}

	segment, _ := fields["segmento"].(string)
	product, _ := fields["produto"].(string)
	if segment == "" && product == "" {
		writeError(w, http.StatusBadRequest, "segmento or produto is required")
		return
	}

	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("session_%d", s.nextID)
	s.sessions[id] = &models.Session{
		ID:        id,
		Status:    models.SessionStatusRunning,
		Segment:   segment,
		Product:   product,
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}
	s.started = append(s.started, fields)
	s.mu.Unlock()

	writeOK(w, map[string]any{"session_id": id})
}

func (s *Server) getAPIConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cfg := make(map[string]bool, len(s.config))
	for k, v := range s.config {
		cfg[k] = v
	}
	s.mu.Unlock()
	writeOK(w, map[string]any{"config": cfg})
}

func (s *Server) saveAPIConfig(w http.ResponseWriter, r *http.Request) {
	var in struct {
		APIName string `json:"api_name"`
		APIKey  string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if in.APIName == "" || in.APIKey == "" {
		writeError(w, http.StatusBadRequest, "api_name and api_key are required")
		return
	}

	s.mu.Lock()
	s.config[in.APIName] = true
	s.mu.Unlock()

	writeOK(w, map[string]any{"message": fmt.Sprintf("API %s configured", in.APIName)})
}

// testAllAPIs reports a provider as working when it has a key on the fake.
func (s *Server) testAllAPIs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	detailed := make(map[string]any, len(s.config))
	for name, ok := range s.config {
		entry := map[string]any{"working": ok}
		if !ok {
			entry["error"] = "API key not configured"
		}
		detailed[name] = entry
	}
	s.mu.Unlock()

	writeOK(w, map[string]any{
		"test_results": map[string]any{"detailed_results": detailed},
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, toWire(s.sessions[id]))
	}
	s.mu.Unlock()

	writeOK(w, map[string]any{"sessions": out})
}

func (s *Server) sessionStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	sess, ok := s.sessions[id]
	var wire map[string]any
	if ok {
		wire = toWire(sess)
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeOK(w, map[string]any{"session": wire})
}

func (s *Server) sessionResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	payload, ok := s.results[id]
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "results not available")
		return
	}
	writeOK(w, payload)
}

func (s *Server) sessionAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	action := r.PathValue("action")

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	switch action {
	case "pause":
		sess.Status = models.SessionStatusPaused
	case "resume", "continue":
		sess.Status = models.SessionStatusRunning
	case "save":
		sess.Status = models.SessionStatusSaved
		sess.SavedStages++
	default:
		writeError(w, http.StatusBadRequest, "unknown action: "+action)
		return
	}
	writeOK(w, nil)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeOK(w, nil)
}

func (s *Server) clearSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.sessions = make(map[string]*models.Session)
	s.mu.Unlock()
	writeOK(w, nil)
}

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	queue := s.progress[id]
	var snap models.ProgressSnapshot
	found := len(queue) > 0
	if found {
		snap = queue[0]
		if len(queue) > 1 {
			s.progress[id] = queue[1:]
		}
	}
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "no progress for session")
		return
	}

	fields := map[string]any{
		"percentage":     snap.Percentage,
		"current_step":   snap.CurrentStep,
		"total_steps":    snap.TotalSteps,
		"estimated_time": snap.EstimatedTime,
		"completed":      snap.Completed,
		"modules_status": snap.ModulesStatus,
	}
	if snap.Error != "" {
		fields["error"] = snap.Error
	}
	writeOK(w, fields)
}

func (s *Server) appStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "version": "test"})
}

// toWire renders a session the way the backend does: naive ISO timestamps.
func toWire(s *models.Session) map[string]any {
	const layout = "2006-01-02T15:04:05.999999"
	out := map[string]any{
		"session_id":   s.ID,
		"status":       string(s.Status),
		"segmento":     s.Segment,
		"produto":      s.Product,
		"saved_stages": s.SavedStages,
	}
	if !s.StartedAt.IsZero() {
		out["started_at"] = s.StartedAt.UTC().Format(layout)
	}
	if s.CompletedAt != nil {
		out["completed_at"] = s.CompletedAt.UTC().Format(layout)
	}
	if s.Error != "" {
		out["error"] = s.Error
	}
	return out
}
