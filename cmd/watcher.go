package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/arq/internal/daemon"
	"github.com/joescharf/arq/internal/progress"
)

type watchMode int

const (
	// watchForeground polls in this process until the session ends.
	watchForeground watchMode = iota
	// watchDetached hands polling to a background `arq watch` process.
	watchDetached
	// watchNone leaves polling to a later `arq watch`.
	watchNone
)

// watcher is the sessions.Monitor used by the CLI. The PID file keeps at most
// one polling process alive per client.
type watcher struct {
	// mu keeps the PID claim and the poll it guards in step.
	mu      sync.Mutex
	monitor *progress.Monitor
	pid     *daemon.PIDFile
	mode    watchMode
	spawn   func(id string) error
}

func newWatcher(m *progress.Monitor, pid *daemon.PIDFile) *watcher {
	return &watcher{monitor: m, pid: pid, mode: watchForeground, spawn: spawnWatcher}
}

func (w *watcher) Start(ctx context.Context, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.mode {
	case watchNone:
		return
	case watchDetached:
		if err := w.spawn(id); err != nil {
			slog.Warn("failed to start background watcher", "session", id, "error", err)
			return
		}
		ui.Info("Watching %s in the background (log: %s)", id, watchLogPath())
		return
	}

	prev, err := w.pid.Claim()
	if err != nil {
		slog.Warn("failed to claim watcher PID file", "error", err)
	} else if prev != 0 {
		slog.Debug("stopped previous watcher", "pid", prev)
	}
	w.monitor.Start(ctx, id)
}

// Stop ends polling here and in any other watcher process.
func (w *watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.monitor.Stop()
	if pid, err := w.pid.Terminate(); err != nil {
		slog.Warn("failed to stop watcher", "error", err)
	} else if pid != 0 {
		slog.Debug("stopped watcher", "pid", pid)
	}
	if err := w.pid.Release(); err != nil {
		slog.Warn("failed to release watcher PID file", "error", err)
	}
}

// follow blocks while a foreground poll is running, then gives up the PID file.
func (w *watcher) follow(ctx context.Context) error {
	if w.mode != watchForeground {
		return nil
	}
	err := w.monitor.Wait(ctx)
	w.monitor.Stop()
	if rerr := w.pid.Release(); rerr != nil {
		slog.Warn("failed to release watcher PID file", "error", rerr)
	}
	if errors.Is(err, context.Canceled) {
		ui.Info("Stopped watching")
		return nil
	}
	return err
}

func watchPIDFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "arq-watch.pid"))
}

func watchLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "arq-watch.log")
}

// spawnWatcher starts `arq watch <id>` as a detached process.
func spawnWatcher(id string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	args := []string{"watch", id, "--backend", viper.GetString("backend.url")}
	if cfg := viper.ConfigFileUsed(); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if dryRun {
		ui.DryRunMsg("Would run %s %v", exe, args)
		return nil
	}

	logPath := watchLogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open watcher log: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	return child.Process.Release()
}

var (
	watchDetach bool
	watchSkip   bool
)

// addWatchFlags registers the polling flags shared by commands that start
// or resume a session.
func addWatchFlags(c *cobra.Command) {
	c.Flags().BoolVarP(&watchDetach, "detach", "d", false, "Watch progress in a background process")
	c.Flags().BoolVar(&watchSkip, "no-watch", false, "Do not watch progress")
}

func selectedWatchMode() watchMode {
	switch {
	case watchSkip:
		return watchNone
	case watchDetach:
		return watchDetached
	default:
		return watchForeground
	}
}

// watchContext returns a context cancelled by Ctrl-C or SIGTERM, so a
// foreground watch stops cleanly when a newer watcher takes over.
func watchContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(commandContext(cmd), shutdownSignals()...)
}
