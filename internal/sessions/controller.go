package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/joescharf/arq/internal/backend"
	"github.com/joescharf/arq/internal/models"
	"github.com/joescharf/arq/internal/notify"
	"github.com/joescharf/arq/internal/store"
)

// MinSegmentLength is the shortest accepted segment after trimming.
const MinSegmentLength = 3

var (
	// ErrNoCurrentSession is returned by operations that need a current session.
	ErrNoCurrentSession = errors.New("no current session")
	// ErrCancelled is returned when the user declines a destructive operation.
	ErrCancelled = errors.New("cancelled")
)

// ValidationError rejects input before any backend call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Backend is the subset of backend.Client the controller drives.
type Backend interface {
	StartAnalysis(ctx context.Context, fields map[string]any) (string, error)
	SessionAction(ctx context.Context, id string, action backend.Action) error
	SessionStatus(ctx context.Context, id string) (*models.Session, error)
	SessionResults(ctx context.Context, id string) (*backend.Results, error)
	DeleteSession(ctx context.Context, id string) error
	ClearSessions(ctx context.Context) error
}

// Monitor is the progress poller started and stopped by lifecycle operations.
type Monitor interface {
	Start(ctx context.Context, id string)
	Stop()
}

// Notifier surfaces outcomes to the user.
type Notifier interface {
	Info(msg string) string
	Success(msg string) string
	Warning(msg string) string
	Error(msg string) string
}

// Storage persists the current session ID.
type Storage interface {
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key, value string) error
	DeleteValue(ctx context.Context, key string) error
}

// Confirmer asks the user to approve a destructive operation.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Controller runs session lifecycle operations against the backend. Local
// state changes only after the backend reports success.
type Controller struct {
	backend  Backend
	store    *Store
	storage  Storage
	notifier Notifier
	confirm  Confirmer
	monitor  Monitor

	// lifecycle orders current-ID changes with monitor starts and stops,
	// so the polled session always matches the current one.
	lifecycle sync.Mutex

	mu      sync.Mutex
	current string
	paused  bool
}

// NewController creates a Controller. A nil Confirmer declines every prompt.
func NewController(b Backend, s *Store, storage Storage, n Notifier, c Confirmer) *Controller {
	return &Controller{
		backend:  b,
		store:    s,
		storage:  storage,
		notifier: n,
		confirm:  c,
	}
}

// SetMonitor attaches the progress monitor. The monitor itself depends on
// the controller, so it is wired after construction.
func (c *Controller) SetMonitor(m Monitor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.monitor = m
}

// Store returns the session store the controller updates.
func (c *Controller) Store() *Store { return c.store }

// Restore loads the persisted current session ID.
func (c *Controller) Restore(ctx context.Context) string {
	id, err := c.storage.GetValue(ctx, store.KeyCurrentSession)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("failed to read current session", "error", err)
		}
		return ""
	}
	c.mu.Lock()
	c.current = id
	c.mu.Unlock()
	return id
}

// Current returns the current session ID, or "".
func (c *Controller) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Paused reports whether the current session was paused from this client.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// ClearCurrent forgets the current session if it is still id.
func (c *Controller) ClearCurrent(ctx context.Context, id string) error {
	// Held across the storage round trip so a concurrent makeCurrent cannot
	// interleave between the read and the delete.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == id {
		c.current = ""
		c.paused = false
	}

	persisted, err := c.storage.GetValue(ctx, store.KeyCurrentSession)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read current session: %w", err)
	}
	if persisted != id {
		return nil
	}
	if err := c.storage.DeleteValue(ctx, store.KeyCurrentSession); err != nil {
		return fmt.Errorf("clear current session: %w", err)
	}
	return nil
}

// Start validates the form payload, starts an analysis and begins polling it.
func (c *Controller) Start(ctx context.Context, payload map[string]any) (string, error) {
	segment, _ := payload["segmento"].(string)
	segment = strings.TrimSpace(segment)
	if utf8.RuneCountInString(segment) < MinSegmentLength {
		verr := &ValidationError{
			Field:  "segmento",
			Reason: fmt.Sprintf("must be at least %d characters", MinSegmentLength),
		}
		c.notifier.Warning(fmt.Sprintf("Segment is required (at least %d characters)", MinSegmentLength))
		return "", notify.Reported(verr)
	}

	id, err := c.backend.StartAnalysis(ctx, payload)
	if err != nil {
		return "", c.fail("Start analysis", err)
	}

	c.activate(ctx, id)
	c.notifier.Success(fmt.Sprintf("Analysis started (session %s)", id))
	return id, nil
}

// Pause pauses the current session and stops polling.
func (c *Controller) Pause(ctx context.Context) error {
	id, err := c.requireCurrent("pause")
	if err != nil {
		return err
	}
	if err := c.backend.SessionAction(ctx, id, backend.ActionPause); err != nil {
		return c.fail("Pause", err)
	}

	c.lifecycle.Lock()
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
	c.stopMonitor()
	c.lifecycle.Unlock()
	c.notifier.Info(fmt.Sprintf("Session %s paused", id))
	return nil
}

// Resume resumes the current session and restarts polling.
func (c *Controller) Resume(ctx context.Context) error {
	id, err := c.requireCurrent("resume")
	if err != nil {
		return err
	}
	if err := c.backend.SessionAction(ctx, id, backend.ActionResume); err != nil {
		return c.fail("Resume", err)
	}

	c.lifecycle.Lock()
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	c.startMonitor(ctx, id)
	c.lifecycle.Unlock()
	c.notifier.Success(fmt.Sprintf("Session %s resumed", id))
	return nil
}

// Save asks the backend to save the current session's progress, then
// refreshes the session list.
func (c *Controller) Save(ctx context.Context) error {
	id, err := c.requireCurrent("save")
	if err != nil {
		return err
	}
	if err := c.backend.SessionAction(ctx, id, backend.ActionSave); err != nil {
		return c.fail("Save", err)
	}
	c.notifier.Success(fmt.Sprintf("Session %s saved", id))
	if err := c.store.Refresh(ctx); err != nil {
		c.notifier.Warning(fmt.Sprintf("Session list not refreshed: %s", Message(err)))
		slog.Warn("session refresh after save failed", "session", id, "error", err)
	}
	return nil
}

// Continue makes id current and resumes polling it.
func (c *Controller) Continue(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		c.notifier.Warning("A session ID is required")
		return notify.Reported(&ValidationError{Field: "session_id", Reason: "is required"})
	}
	if err := c.backend.SessionAction(ctx, id, backend.ActionContinue); err != nil {
		return c.fail("Continue", err)
	}

	c.activate(ctx, id)
	c.notifier.Success(fmt.Sprintf("Continuing session %s", id))
	return nil
}

// Delete removes one session after confirmation.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if !c.confirmed(fmt.Sprintf("Delete session %s? This cannot be undone.", id)) {
		return ErrCancelled
	}
	if err := c.backend.DeleteSession(ctx, id); err != nil {
		return c.fail("Delete", err)
	}

	c.store.Remove(ctx, id)
	c.lifecycle.Lock()
	if c.Current() == id {
		c.stopMonitor()
		if err := c.ClearCurrent(ctx, id); err != nil {
			slog.Warn("failed to clear current session", "session", id, "error", err)
		}
	}
	c.lifecycle.Unlock()
	c.notifier.Success(fmt.Sprintf("Session %s deleted", id))
	return nil
}

// ClearAll removes every session after confirmation.
func (c *Controller) ClearAll(ctx context.Context) error {
	if !c.confirmed("Delete ALL sessions? This cannot be undone.") {
		return ErrCancelled
	}
	if err := c.backend.ClearSessions(ctx); err != nil {
		return c.fail("Clear sessions", err)
	}

	c.store.Clear(ctx)
	c.lifecycle.Lock()
	if id := c.Current(); id != "" {
		c.stopMonitor()
		if err := c.ClearCurrent(ctx, id); err != nil {
			slog.Warn("failed to clear current session", "session", id, "error", err)
		}
	}
	c.lifecycle.Unlock()
	c.notifier.Success("All sessions cleared")
	return nil
}

// Status fetches one session's status and replaces its cached record.
func (c *Controller) Status(ctx context.Context, id string) (*models.Session, error) {
	sess, err := c.backend.SessionStatus(ctx, id)
	if err != nil {
		return nil, c.fail("Session status", err)
	}
	c.store.Put(ctx, sess)
	return sess, nil
}

// Results fetches the report for a finished session.
func (c *Controller) Results(ctx context.Context, id string) (*backend.Results, error) {
	res, err := c.backend.SessionResults(ctx, id)
	if err != nil {
		return nil, c.fail("Results", err)
	}
	return res, nil
}

// Refresh reloads the session list from the backend.
func (c *Controller) Refresh(ctx context.Context) error {
	if err := c.store.Refresh(ctx); err != nil {
		return c.fail("Load sessions", err)
	}
	return nil
}

// activate makes id current, then starts polling it.
func (c *Controller) activate(ctx context.Context, id string) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.makeCurrent(ctx, id)
	c.startMonitor(ctx, id)
}

func (c *Controller) makeCurrent(ctx context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.storage.SetValue(ctx, store.KeyCurrentSession, id); err != nil {
		slog.Warn("failed to persist current session", "session", id, "error", err)
	}
	c.current = id
	c.paused = false
}

func (c *Controller) requireCurrent(action string) (string, error) {
	id := c.Current()
	if id == "" {
		c.notifier.Warning(fmt.Sprintf("No active session to %s", action))
		return "", notify.Reported(ErrNoCurrentSession)
	}
	return id, nil
}

func (c *Controller) confirmed(prompt string) bool {
	return c.confirm != nil && c.confirm.Confirm(prompt)
}

func (c *Controller) startMonitor(ctx context.Context, id string) {
	c.mu.Lock()
	m := c.monitor
	c.mu.Unlock()
	if m != nil {
		m.Start(ctx, id)
	}
}

func (c *Controller) stopMonitor() {
	c.mu.Lock()
	m := c.monitor
	c.mu.Unlock()
	if m != nil {
		m.Stop()
	}
}

// fail reports err as an error notification and marks it reported.
func (c *Controller) fail(op string, err error) error {
	c.notifier.Error(fmt.Sprintf("%s failed: %s", op, Message(err)))
	return notify.Reported(fmt.Errorf("%s: %w", strings.ToLower(op), err))
}

// Message returns the backend-provided message for err when there is one.
func Message(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return err.Error()
}
