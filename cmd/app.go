package cmd

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/spf13/viper"

	"github.com/joescharf/arq/internal/apiconfig"
	"github.com/joescharf/arq/internal/backend"
	"github.com/joescharf/arq/internal/form"
	"github.com/joescharf/arq/internal/intake"
	"github.com/joescharf/arq/internal/notify"
	"github.com/joescharf/arq/internal/progress"
	"github.com/joescharf/arq/internal/sessions"
	"github.com/joescharf/arq/internal/store"
)

// app is the composition root: every service is constructed here once and
// shared by the commands.
type app struct {
	store     store.Store
	client    *backend.HTTPClient
	notifier  *notify.Notifier
	sessions  *sessions.Store
	ctrl      *sessions.Controller
	monitor   *progress.Monitor
	watcher   *watcher
	form      *form.Form
	persister *form.Persister
	panel     *apiconfig.Panel
	intake    *intake.Intake
}

var theApp *app

// appOptions selects the rendering used by an app.
type appOptions struct {
	// quiet routes notifications and progress to slog instead of stdout.
	quiet bool
}

// getApp returns the shared app, building it on first call.
func getApp(ctx context.Context) (*app, error) {
	if theApp != nil {
		return theApp, nil
	}
	return buildApp(ctx, appOptions{})
}

func buildApp(ctx context.Context, opts appOptions) (*app, error) {
	s, err := getStore(ctx)
	if err != nil {
		return nil, err
	}

	a := &app{store: s}
	a.client = backend.NewHTTPClient(viper.GetString("backend.url"), &http.Client{})

	var sink notify.Sink = notify.UISink{UI: ui}
	var view progress.View = progress.NewTerminalView(ui)
	if opts.quiet {
		sink = notify.LogSink{Logger: slog.Default()}
		view = progress.LogView{}
	}
	a.notifier = notify.New(sink, viper.GetDuration("notify.duration"))

	a.sessions = sessions.NewStore(a.client, s)
	if err := a.sessions.Load(ctx); err != nil {
		slog.Warn("failed to load cached sessions", "error", err)
	}

	a.ctrl = sessions.NewController(a.client, a.sessions, s, a.notifier, newConfirmer())
	a.monitor = progress.New(a.client, a.notifier, view, a.ctrl, a.sessions)
	a.watcher = newWatcher(a.monitor, watchPIDFile())
	a.ctrl.SetMonitor(a.watcher)
	a.ctrl.Restore(ctx)

	a.form = form.New()
	a.persister = form.NewPersister(s, a.form)
	a.persister.Restore(ctx)

	a.panel = apiconfig.NewPanel(a.client, a.notifier)
	a.intake = intake.New(a.client, a.notifier, viper.GetInt("upload.concurrency"))

	theApp = a
	return a, nil
}

// closeApp stops background work and closes the store.
func closeApp() {
	if theApp != nil {
		theApp.persister.Stop()
		theApp.monitor.Stop()
		theApp.notifier.Close()
		theApp = nil
	}
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
}
