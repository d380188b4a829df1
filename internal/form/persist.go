package form

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joescharf/arq/internal/store"
)

const (
	// AutoSaveInterval is the periodic save cadence.
	AutoSaveInterval = 30 * time.Second
	// DebounceDelay is the quiet time after the last change before saving.
	DebounceDelay = time.Second
)

// Storage is the subset of store.Store used for form persistence.
type Storage interface {
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key, value string) error
	DeleteValue(ctx context.Context, key string) error
}

// Persister auto-saves a Form to local storage.
type Persister struct {
	Interval time.Duration
	Debounce time.Duration

	storage Storage
	form    *Form

	mu       sync.Mutex
	ctx      context.Context
	pending  *time.Timer
	stop     chan struct{}
	running  bool
	attached bool
}

// NewPersister binds a form to storage with the default cadences.
func NewPersister(s Storage, f *Form) *Persister {
	return &Persister{
		Interval: AutoSaveInterval,
		Debounce: DebounceDelay,
		storage:  s,
		form:     f,
	}
}

// Save writes the whole form under store.KeyForm, overwriting the previous snapshot.
func (p *Persister) Save(ctx context.Context) error {
	data, err := json.Marshal(p.form.Snapshot())
	if err != nil {
		return fmt.Errorf("encode form: %w", err)
	}
	if err := p.storage.SetValue(ctx, store.KeyForm, string(data)); err != nil {
		return fmt.Errorf("save form: %w", err)
	}
	slog.Debug("form saved")
	return nil
}

// Restore rehydrates the form from storage and returns the number of fields set.
// A missing or unreadable snapshot leaves the form untouched.
func (p *Persister) Restore(ctx context.Context) int {
	raw, err := p.storage.GetValue(ctx, store.KeyForm)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("failed to load saved form", "error", err)
		}
		return 0
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		slog.Warn("ignoring unreadable saved form", "error", err)
		return 0
	}
	return p.form.Apply(snap)
}

// Discard removes the stored snapshot.
func (p *Persister) Discard(ctx context.Context) error {
	return p.storage.DeleteValue(ctx, store.KeyForm)
}

// Start begins periodic saving and debounced saving on form changes.
// It runs until Stop is called or ctx is done.
func (p *Persister) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.ctx = ctx
	p.stop = make(chan struct{})
	stop := p.stop
	attach := !p.attached
	p.attached = true
	p.mu.Unlock()

	if attach {
		p.form.OnChange(p.Changed)
	}

	go func() {
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := p.Save(ctx); err != nil {
					slog.Warn("form auto-save failed", "error", err)
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Changed schedules a save once no further change arrives within Debounce.
func (p *Persister) Changed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	if p.pending != nil {
		p.pending.Stop()
	}
	ctx := p.ctx
	p.pending = time.AfterFunc(p.Debounce, func() {
		if err := p.Save(ctx); err != nil {
			slog.Warn("form auto-save failed", "error", err)
		}
	})
}

// Flush cancels any pending debounced save and saves immediately.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
	p.mu.Unlock()
	return p.Save(ctx)
}

// Stop halts periodic and pending saves without saving.
func (p *Persister) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.stop)
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
}
