// Package form holds the analysis input form and persists it to local storage.
package form

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Field names of the analysis form, in display order.
const (
	FieldSegment     = "segmento"
	FieldProduct     = "produto"
	FieldAudience    = "publico"
	FieldGoals       = "objetivos"
	FieldContext     = "contexto_adicional"
	FieldPrice       = "preco"
	FieldCompetitors = "concorrentes"
)

// Fields lists every named form field.
var Fields = []string{
	FieldSegment,
	FieldProduct,
	FieldAudience,
	FieldGoals,
	FieldContext,
	FieldPrice,
	FieldCompetitors,
}

// IsField reports whether name is a known form field.
func IsField(name string) bool {
	return slices.Contains(Fields, name)
}

// Snapshot maps field names to values.
type Snapshot map[string]string

// Form is the mutable analysis input. Every Set fires the change listeners.
type Form struct {
	mu        sync.Mutex
	values    map[string]string
	listeners []func()
}

// New returns an empty form.
func New() *Form {
	return &Form{values: make(map[string]string)}
}

// OnChange registers fn to run after each field change.
func (f *Form) OnChange(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

// Set changes one field.
func (f *Form) Set(name, value string) error {
	if !IsField(name) {
		return fmt.Errorf("unknown form field %q (known: %s)", name, strings.Join(Fields, ", "))
	}
	f.mu.Lock()
	f.values[name] = value
	listeners := append([]func(){}, f.listeners...)
	f.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return nil
}

// Get returns the value of a field.
func (f *Form) Get(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[name]
}

// Snapshot returns every named field, including empty ones.
func (f *Form) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := make(Snapshot, len(Fields))
	for _, name := range Fields {
		snap[name] = f.values[name]
	}
	return snap
}

// Apply rehydrates every field whose name appears in snap and returns how
// many were set. Unknown keys are ignored and no change event fires.
func (f *Form) Apply(snap Snapshot) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for name, value := range snap {
		if !IsField(name) {
			continue
		}
		f.values[name] = value
		n++
	}
	return n
}

// Clear empties every field and fires the change listeners once.
func (f *Form) Clear() {
	f.mu.Lock()
	f.values = make(map[string]string)
	listeners := append([]func(){}, f.listeners...)
	f.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Payload returns the trimmed field values submitted to start an analysis.
func (f *Form) Payload() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]any, len(Fields))
	for _, name := range Fields {
		out[name] = strings.TrimSpace(f.values[name])
	}
	return out
}
