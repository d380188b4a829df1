package form

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/arq/internal/store"
)

// memStorage implements Storage with an in-memory map.
type memStorage struct {
	mu     sync.Mutex
	values map[string]string
	sets   int
}

func newMemStorage() *memStorage {
	return &memStorage{values: make(map[string]string)}
}

func (m *memStorage) GetValue(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", fmt.Errorf("key %s: %w", key, store.ErrNotFound)
	}
	return v, nil
}

func (m *memStorage) SetValue(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.sets++
	return nil
}

func (m *memStorage) DeleteValue(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memStorage) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

func TestForm_SetGet(t *testing.T) {
	f := New()
	require.NoError(t, f.Set(FieldSegment, "fitness"))
	assert.Equal(t, "fitness", f.Get(FieldSegment))

	err := f.Set("bogus", "x")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown form field")
}

func TestForm_SnapshotHasAllFields(t *testing.T) {
	f := New()
	require.NoError(t, f.Set(FieldProduct, "course"))

	snap := f.Snapshot()
	assert.Len(t, snap, len(Fields))
	assert.Equal(t, "course", snap[FieldProduct])
	assert.Equal(t, "", snap[FieldSegment])
}

func TestForm_ApplyIgnoresUnknown(t *testing.T) {
	f := New()
	changes := 0
	f.OnChange(func() { changes++ })

	n := f.Apply(Snapshot{FieldSegment: "pets", "old_field": "x"})
	assert.Equal(t, 1, n)
	assert.Equal(t, "pets", f.Get(FieldSegment))
	assert.Zero(t, changes, "apply does not fire change events")
}

func TestForm_PayloadTrims(t *testing.T) {
	f := New()
	require.NoError(t, f.Set(FieldSegment, "  saas  "))
	payload := f.Payload()
	assert.Equal(t, "saas", payload[FieldSegment])
	assert.Contains(t, payload, FieldCompetitors)
}

func TestPersister_SaveRestore(t *testing.T) {
	ctx := context.Background()
	mem := newMemStorage()

	f := New()
	require.NoError(t, f.Set(FieldSegment, "fitness"))
	require.NoError(t, f.Set(FieldGoals, "grow"))
	require.NoError(t, NewPersister(mem, f).Save(ctx))

	restored := New()
	n := NewPersister(mem, restored).Restore(ctx)
	assert.Equal(t, len(Fields), n)
	assert.Equal(t, "fitness", restored.Get(FieldSegment))
	assert.Equal(t, "grow", restored.Get(FieldGoals))
}

func TestPersister_RestoreFailOpen(t *testing.T) {
	ctx := context.Background()

	// Nothing stored
	f := New()
	assert.Zero(t, NewPersister(newMemStorage(), f).Restore(ctx))

	// Corrupt snapshot
	mem := newMemStorage()
	mem.values[store.KeyForm] = "{not json"
	assert.Zero(t, NewPersister(mem, f).Restore(ctx))
	assert.Empty(t, f.Get(FieldSegment))
}

func TestPersister_DebouncedSaveAndReload(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "arq.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { s.Close() })

	f := New()
	p := NewPersister(s, f)
	p.Start(ctx)
	t.Cleanup(p.Stop)

	require.NoError(t, f.Set(FieldSegment, "marketing digital"))

	_, err = s.GetValue(ctx, store.KeyForm)
	assert.ErrorIs(t, err, store.ErrNotFound, "nothing saved before the debounce elapses")

	require.Eventually(t, func() bool {
		_, err := s.GetValue(ctx, store.KeyForm)
		return err == nil
	}, 3*time.Second, 50*time.Millisecond)

	// Reload into a fresh form, as at startup
	reloaded := New()
	NewPersister(s, reloaded).Restore(ctx)
	assert.Equal(t, "marketing digital", reloaded.Get(FieldSegment))
}

func TestPersister_DebounceCoalesces(t *testing.T) {
	ctx := context.Background()
	mem := newMemStorage()
	f := New()
	p := NewPersister(mem, f)
	p.Debounce = 50 * time.Millisecond
	p.Interval = time.Hour
	p.Start(ctx)
	t.Cleanup(p.Stop)

	for _, v := range []string{"a", "ab", "abc"} {
		require.NoError(t, f.Set(FieldProduct, v))
	}

	require.Eventually(t, func() bool { return mem.saveCount() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, mem.saveCount(), "rapid changes produce one save")

	restored := New()
	NewPersister(mem, restored).Restore(ctx)
	assert.Equal(t, "abc", restored.Get(FieldProduct))
}

func TestPersister_IntervalSave(t *testing.T) {
	ctx := context.Background()
	mem := newMemStorage()
	p := NewPersister(mem, New())
	p.Interval = 20 * time.Millisecond
	p.Start(ctx)
	t.Cleanup(p.Stop)

	require.Eventually(t, func() bool { return mem.saveCount() >= 2 }, time.Second, 10*time.Millisecond)
}

func TestPersister_StopCancelsPending(t *testing.T) {
	ctx := context.Background()
	mem := newMemStorage()
	f := New()
	p := NewPersister(mem, f)
	p.Debounce = 30 * time.Millisecond
	p.Interval = time.Hour
	p.Start(ctx)

	require.NoError(t, f.Set(FieldSegment, "x"))
	p.Stop()
	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, mem.saveCount())

	require.NoError(t, p.Flush(ctx))
	assert.Equal(t, 1, mem.saveCount())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brief.yaml")
	require.NoError(t, os.WriteFile(path, []byte("segmento: odontologia\nproduto: clareamento\npreco: 497\nextra: ignored\n"), 0644))

	f := New()
	changes := 0
	f.OnChange(func() { changes++ })

	n, err := LoadFile(f, path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, changes)
	assert.Equal(t, "odontologia", f.Get(FieldSegment))
	assert.Equal(t, "497", f.Get(FieldPrice))

	jsonPath := filepath.Join(dir, "brief.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"publico": "adults"}`), 0644))
	n, err = LoadFile(f, jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "adults", f.Get(FieldAudience))

	_, err = LoadFile(f, filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
