package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/arq/internal/backendtest"
	"github.com/joescharf/arq/internal/form"
	"github.com/joescharf/arq/internal/models"
	"github.com/joescharf/arq/internal/notify"
	"github.com/joescharf/arq/internal/store"
)

// testBackend isolates config and points the app at a fake backend.
func testBackend(t *testing.T) *backendtest.Server {
	t.Helper()
	testEnv(t)
	srv := backendtest.New(t)
	viper.Set("backend.url", srv.URL())
	return srv
}

func stdout() string {
	return ui.Out.(*bytes.Buffer).String()
}

func answer(t *testing.T, input string) {
	t.Helper()
	orig := promptIn
	promptIn = strings.NewReader(input)
	t.Cleanup(func() { promptIn = orig })
}

func seedSession(srv *backendtest.Server, id string, status models.SessionStatus, started time.Time) {
	srv.AddSession(&models.Session{ID: id, Status: status, Segment: "Fitness", Product: "Coaching", StartedAt: started})
}

func TestStartRun_FollowsToCompletion(t *testing.T) {
	srv := testBackend(t)
	srv.SetProgress("session_1", models.ProgressSnapshot{Percentage: 100, CurrentStep: "done", Completed: true})

	a, err := getApp(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.form.Set(form.FieldSegment, "Fitness"))

	require.NoError(t, startRun(startCmd))

	started := srv.Started()
	require.Len(t, started, 1)
	assert.Equal(t, "Fitness", started[0]["segmento"])
	assert.Empty(t, a.ctrl.Current(), "finished session is no longer current")
	assert.Contains(t, stdout(), "Analysis completed")

	_, running := watchPIDFile().IsRunning()
	assert.False(t, running, "PID file released")
}

func TestStartRun_NoWatch(t *testing.T) {
	srv := testBackend(t)
	watchSkip = true

	a, err := getApp(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.form.Set(form.FieldSegment, "Fitness"))

	require.NoError(t, startRun(startCmd))
	assert.Equal(t, "session_1", a.ctrl.Current())
	assert.Zero(t, srv.Count("GET /api/progress/session_1"))
}

func TestStartRun_ShortSegment(t *testing.T) {
	srv := testBackend(t)

	a, err := getApp(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.form.Set(form.FieldSegment, "ab"))

	err = startRun(startCmd)
	require.Error(t, err)
	assert.True(t, notify.IsReported(err))
	assert.Empty(t, srv.Requests())
}

func TestStartRun_DryRun(t *testing.T) {
	srv := testBackend(t)
	dryRun = true
	ui.DryRun = true
	t.Cleanup(func() { dryRun = false })

	require.NoError(t, startRun(startCmd))
	assert.Empty(t, srv.Requests())
}

func TestSessionList(t *testing.T) {
	srv := testBackend(t)
	now := time.Now().UTC().Truncate(time.Second)
	seedSession(srv, "s_old", models.SessionStatusPaused, now.Add(-2*time.Hour))
	seedSession(srv, "s_new", models.SessionStatusCompleted, now.Add(-time.Minute))
	srv.AddSession(&models.Session{
		ID:          "s_saved",
		Status:      models.SessionStatusSaved,
		Segment:     "Bakery",
		Product:     "Sourdough Club",
		StartedAt:   now.Add(-3 * time.Hour),
		SavedStages: 7,
	})

	require.NoError(t, sessionListRun(sessionListCmd))

	out := stdout()
	assert.Contains(t, out, "Sourdough Club")
	assert.Contains(t, out, "Coaching")

	var savedRow string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "s_saved") {
			savedRow = line
		}
	}
	assert.Contains(t, strings.Fields(savedRow), "7", "saved-stage count shown on the card")
	assert.Contains(t, out, "s_old")
	assert.Contains(t, out, "s_new")
	assert.Contains(t, out, "continue")
	assert.Contains(t, out, "results")
	assert.Less(t, strings.Index(out, "s_new"), strings.Index(out, "s_old"), "newest first")
}

func TestSessionList_EmptyBackend(t *testing.T) {
	testBackend(t)

	require.NoError(t, sessionListRun(sessionListCmd))
	assert.Contains(t, stdout(), "No sessions")
}

func TestSessionShow_NotCached(t *testing.T) {
	testBackend(t)

	err := sessionShowRun(sessionShowCmd, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in cache")
}

func TestSessionStatus_UpdatesCache(t *testing.T) {
	srv := testBackend(t)
	seedSession(srv, "s1", models.SessionStatusRunning, time.Now().UTC())

	require.NoError(t, sessionStatusRun(sessionStatusCmd, []string{"s1"}))
	assert.Contains(t, stdout(), "s1")

	require.NoError(t, sessionShowRun(sessionShowCmd, "s1"))
}

func TestSessionDelete_Declined(t *testing.T) {
	srv := testBackend(t)
	seedSession(srv, "s1", models.SessionStatusPaused, time.Now().UTC())
	answer(t, "n\n")

	require.NoError(t, sessionDeleteCmd.RunE(sessionDeleteCmd, []string{"s1"}))
	assert.Contains(t, stdout(), "Cancelled")
	assert.NotNil(t, srv.Session("s1"))
	assert.Zero(t, srv.Count("DELETE /api/sessions/s1"))
}

func TestSessionDelete_Confirmed(t *testing.T) {
	srv := testBackend(t)
	seedSession(srv, "s1", models.SessionStatusPaused, time.Now().UTC())
	answer(t, "yes\n")

	require.NoError(t, sessionDeleteCmd.RunE(sessionDeleteCmd, []string{"s1"}))
	assert.Nil(t, srv.Session("s1"))
}

func TestSessionClear_AssumeYes(t *testing.T) {
	srv := testBackend(t)
	seedSession(srv, "s1", models.SessionStatusPaused, time.Now().UTC())
	seedSession(srv, "s2", models.SessionStatusSaved, time.Now().UTC())
	assumeYes = true

	require.NoError(t, sessionClearCmd.RunE(sessionClearCmd, nil))
	assert.Equal(t, 1, srv.Count("POST /api/sessions/clear"))
	assert.Nil(t, srv.Session("s1"))
}

func TestSessionPause_NoCurrent(t *testing.T) {
	srv := testBackend(t)

	err := sessionPauseCmd.RunE(sessionPauseCmd, nil)
	require.Error(t, err)
	assert.True(t, notify.IsReported(err))
	assert.Empty(t, srv.Requests())
}

func TestSessionResults_HTMLToFile(t *testing.T) {
	srv := testBackend(t)
	srv.SetResults("s1", map[string]any{"html_report": "<h1>Report</h1>"})

	path := filepath.Join(t.TempDir(), "report.html")
	sessionResultsOut = path
	t.Cleanup(func() { sessionResultsOut = "" })

	require.NoError(t, sessionResultsRun(sessionResultsCmd, "s1"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Report</h1>", string(data))
}

func TestSessionResults_AnalysisAsYAML(t *testing.T) {
	srv := testBackend(t)
	srv.SetResults("s1", map[string]any{"analysis_result": map[string]any{"score": 7}})

	require.NoError(t, sessionResultsRun(sessionResultsCmd, "s1"))
	assert.Contains(t, stdout(), "score: 7")
}

func TestFormSet_PersistsAcrossApps(t *testing.T) {
	testBackend(t)

	require.NoError(t, formSetCmd.RunE(formSetCmd, []string{form.FieldSegment, "Fitness"}))

	raw, err := dataStore.GetValue(context.Background(), store.KeyForm)
	require.NoError(t, err)
	assert.Contains(t, raw, "Fitness")

	closeApp()
	a, err := getApp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Fitness", a.form.Get(form.FieldSegment))
}

func TestFormSet_UnknownField(t *testing.T) {
	testBackend(t)

	err := formSetCmd.RunE(formSetCmd, []string{"nope", "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown form field")
}

func TestFormEdit(t *testing.T) {
	testBackend(t)
	a, err := getApp(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.form.Set(form.FieldProduct, "Coaching"))
	require.NoError(t, a.form.Set(form.FieldAudience, "Everyone"))

	// segmento set, produto kept, publico cleared, then input ends.
	answer(t, "Fitness\n\n-\n")
	require.NoError(t, formEditRun(formEditCmd))

	assert.Equal(t, "Fitness", a.form.Get(form.FieldSegment))
	assert.Equal(t, "Coaching", a.form.Get(form.FieldProduct))
	assert.Empty(t, a.form.Get(form.FieldAudience))

	raw, err := dataStore.GetValue(context.Background(), store.KeyForm)
	require.NoError(t, err)
	assert.Contains(t, raw, "Fitness")
}

func TestUpload_PartialFailure(t *testing.T) {
	srv := testBackend(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "brief.txt")
	bad := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(good, []byte("market notes"), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("not really a png"), 0o644))

	err := uploadRun(uploadCmd, []string{good, bad})
	require.Error(t, err)
	assert.True(t, notify.IsReported(err))

	uploads := srv.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "brief.txt", uploads[0].Filename)
	assert.Contains(t, stdout(), "brief.txt")
}

func TestApisSetAndReadiness(t *testing.T) {
	srv := testBackend(t)
	srv.SetConfigured("gemini", true)
	srv.SetConfigured("openai", true)
	srv.SetConfigured("exa", true)

	require.NoError(t, apisSetCmd.RunE(apisSetCmd, []string{"jina", "secret"}))
	assert.Equal(t, 1, srv.Count("POST /api/save_api_config"))

	require.NoError(t, apisReadinessCmd.RunE(apisReadinessCmd, nil))
	assert.Contains(t, stdout(), "ready")
	assert.Contains(t, stdout(), "4/4")
}

func TestApisSet_PromptsForKey(t *testing.T) {
	srv := testBackend(t)
	answer(t, "secret\n")

	require.NoError(t, apisSetCmd.RunE(apisSetCmd, []string{"gemini"}))
	assert.Equal(t, 1, srv.Count("POST /api/save_api_config"))
	assert.Contains(t, ui.ErrOut.(*bytes.Buffer).String(), "Google Gemini API key")
}

func TestApisSet_UnknownProvider(t *testing.T) {
	srv := testBackend(t)

	err := apisSetCmd.RunE(apisSetCmd, []string{"bing", "k"})
	require.Error(t, err)
	assert.True(t, notify.IsReported(err))
	assert.Zero(t, srv.Count("POST /api/save_api_config"))
}

func TestApisTest_AllWorking(t *testing.T) {
	srv := testBackend(t)
	srv.SetConfigured("gemini", true)
	srv.SetConfigured("exa", true)

	require.NoError(t, apisTestRun(apisTestCmd))
	assert.Equal(t, 1, srv.Count("POST /api/test_all_apis"))
	assert.Contains(t, stdout(), "Google Gemini")
	assert.Contains(t, stdout(), "Exa Neural Search")
}

func TestApisTest_FailingKeyClearsConfigured(t *testing.T) {
	srv := testBackend(t)
	srv.SetConfigured("gemini", true)
	srv.SetConfigured("groq", false)

	err := apisTestRun(apisTestCmd)
	require.Error(t, err)
	assert.True(t, notify.IsReported(err))
	assert.Contains(t, err.Error(), "1 of 2")

	a, err := getApp(context.Background())
	require.NoError(t, err)
	for _, s := range a.panel.Statuses() {
		switch s.Name {
		case "gemini":
			assert.True(t, s.Configured)
		case "groq":
			assert.False(t, s.Configured)
		}
	}
}

func TestStatus_NotReady(t *testing.T) {
	testBackend(t)

	err := statusRun(statusCmd)
	require.Error(t, err)
	assert.Contains(t, stdout(), "not ready")
}

func TestWatchOnce(t *testing.T) {
	srv := testBackend(t)
	srv.SetProgress("s1", models.ProgressSnapshot{
		Percentage:    40,
		CurrentStep:   "Mapping competitors",
		ModulesStatus: map[string]models.ModuleStatus{"avatars": models.ModuleStatusCompleted},
	})
	watchOnce = true
	t.Cleanup(func() { watchOnce = false })

	require.NoError(t, watchRun(watchCmd, []string{"s1"}))
	out := stdout()
	assert.Contains(t, out, "Mapping competitors")
	assert.Contains(t, out, "avatars")
	assert.Contains(t, out, "implementacao_timeline")
}

func TestWatch_NoSession(t *testing.T) {
	testBackend(t)

	err := watchRun(watchCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no current session")
}

func TestWatchStop_NotRunning(t *testing.T) {
	testBackend(t)

	err := watchStopRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}
