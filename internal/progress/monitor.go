// Package progress polls the backend for the current session's progress.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joescharf/arq/internal/models"
)

// PollInterval is the fixed cadence between progress polls.
const PollInterval = 3 * time.Second

// Fetcher retrieves a progress snapshot for a session.
type Fetcher interface {
	Progress(ctx context.Context, id string) (*models.ProgressSnapshot, error)
}

// Notifier surfaces completion and failure to the user.
type Notifier interface {
	Success(msg string) string
	Error(msg string) string
}

// View renders the progress indicator and module grid.
type View interface {
	Update(id string, snap *models.ProgressSnapshot, grid []models.ModuleState)
	Hide()
}

// CurrentSession clears the persisted current session ID once it finishes.
type CurrentSession interface {
	ClearCurrent(ctx context.Context, id string) error
}

// Refresher reloads the session list.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Monitor polls progress for one session at a time. Starting a new poll
// stops the previous one first, so at most one polling loop is alive.
type Monitor struct {
	Interval time.Duration

	fetcher   Fetcher
	notifier  Notifier
	view      View
	current   CurrentSession
	refresher Refresher

	mu   sync.Mutex
	run  *run
	last *run
	live atomic.Int32
}

type run struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Monitor polling every PollInterval.
func New(f Fetcher, n Notifier, v View, c CurrentSession, r Refresher) *Monitor {
	return &Monitor{
		Interval:  PollInterval,
		fetcher:   f,
		notifier:  n,
		view:      v,
		current:   c,
		refresher: r,
	}
}

// Start begins polling id, stopping any poll already running.
// The first poll happens immediately. The new run replaces the old one under
// a single lock, so concurrent Starts leave exactly one run reachable by Stop.
func (m *Monitor) Start(ctx context.Context, id string) {
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{id: id, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	prev := m.run
	m.run = r
	m.last = r
	m.live.Add(1)
	m.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
		slog.Debug("progress monitor stopped", "session", prev.id)
	}

	go m.loop(runCtx, r)
	slog.Debug("progress monitor started", "session", id)
}

// Stop halts the active poll, if any, and waits for its loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	r := m.run
	m.run = nil
	m.mu.Unlock()

	if r == nil {
		return
	}
	r.cancel()
	<-r.done
	slog.Debug("progress monitor stopped", "session", r.id)
}

// Active returns the session being polled.
func (m *Monitor) Active() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == nil {
		return "", false
	}
	return m.run.id, true
}

// Wait blocks until the most recently started poll exits or ctx is done.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.Lock()
	r := m.last
	m.mu.Unlock()

	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) loop(ctx context.Context, r *run) {
	defer close(r.done)
	defer m.live.Add(-1)
	defer r.cancel()

	// Replaced before the loop got to run.
	if ctx.Err() != nil {
		return
	}
	if m.poll(ctx, r) {
		return
	}

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.poll(ctx, r) {
				return
			}
		}
	}
}

// poll fetches one snapshot and reports whether polling should end.
func (m *Monitor) poll(ctx context.Context, r *run) bool {
	snap, err := m.fetcher.Progress(ctx, r.id)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		// A transient failure must not abort an analysis in progress.
		slog.Warn("progress poll failed", "session", r.id, "error", err)
		return false
	}
	if ctx.Err() != nil {
		return true
	}

	m.view.Update(r.id, snap, snap.ModuleGrid())

	switch {
	case snap.Completed:
		m.detach(r)
		m.notifier.Success("Analysis completed")
		m.view.Hide()
		if err := m.current.ClearCurrent(ctx, r.id); err != nil {
			slog.Warn("failed to clear current session", "session", r.id, "error", err)
		}
		if err := m.refresher.Refresh(ctx); err != nil {
			slog.Warn("session refresh after completion failed", "error", err)
		}
		return true
	case snap.Error != "":
		m.detach(r)
		m.view.Hide()
		m.notifier.Error(fmt.Sprintf("Analysis failed: %s", snap.Error))
		return true
	}
	return false
}

// detach forgets r if it is still the active run.
func (m *Monitor) detach(r *run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == r {
		m.run = nil
	}
}
