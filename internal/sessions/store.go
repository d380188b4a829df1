// Package sessions holds the client's view of backend analysis sessions and
// the lifecycle operations that act on them.
package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/joescharf/arq/internal/models"
)

// Lister fetches every session known to the backend.
type Lister interface {
	ListSessions(ctx context.Context) ([]*models.Session, error)
}

// Cache is the subset of store.Store that mirrors sessions locally.
type Cache interface {
	ReplaceSessions(ctx context.Context, sessions []*models.Session) error
	PutSession(ctx context.Context, session *models.Session) error
	ListSessions(ctx context.Context) ([]*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// Store is the in-memory map of last-known session records. Each refresh
// replaces the whole map; records are never merged field by field.
type Store struct {
	backend Lister
	cache   Cache

	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewStore creates a Store. cache may be nil.
func NewStore(backend Lister, cache Cache) *Store {
	return &Store{
		backend:  backend,
		cache:    cache,
		sessions: make(map[string]*models.Session),
	}
}

// Refresh fetches all sessions and replaces the local map.
func (s *Store) Refresh(ctx context.Context) error {
	list, err := s.backend.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	next := make(map[string]*models.Session, len(list))
	for _, sess := range list {
		next[sess.ID] = sess
	}

	s.mu.Lock()
	s.sessions = next
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.ReplaceSessions(ctx, list); err != nil {
			slog.Warn("failed to cache sessions", "error", err)
		}
	}
	return nil
}

// Load fills the map from the local cache without contacting the backend.
func (s *Store) Load(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	list, err := s.cache.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("load cached sessions: %w", err)
	}

	next := make(map[string]*models.Session, len(list))
	for _, sess := range list {
		next[sess.ID] = sess
	}

	s.mu.Lock()
	s.sessions = next
	s.mu.Unlock()
	return nil
}

// Get returns the cached record for id. No backend call is made, so the
// record may be stale until the next Refresh.
func (s *Store) Get(id string) (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// List returns the cached sessions, newest first.
func (s *Store) List() []*models.Session {
	s.mu.RLock()
	out := make([]*models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of cached sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Put replaces one record with a freshly fetched copy.
func (s *Store) Put(ctx context.Context, sess *models.Session) {
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.PutSession(ctx, sess); err != nil {
			slog.Warn("failed to cache session", "session", sess.ID, "error", err)
		}
	}
}

// Remove drops one record.
func (s *Store) Remove(ctx context.Context, id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.DeleteSession(ctx, id); err != nil {
			slog.Warn("failed to uncache session", "session", id, "error", err)
		}
	}
}

// Clear drops every record.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.sessions = make(map[string]*models.Session)
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.ReplaceSessions(ctx, nil); err != nil {
			slog.Warn("failed to clear session cache", "error", err)
		}
	}
}
