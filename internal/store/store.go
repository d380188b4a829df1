package store

import (
	"context"
	"errors"

	"github.com/joescharf/arq/internal/models"
)

// Keys used in the client's local key/value storage.
const (
	KeyCurrentSession = "arq.current_session"
	KeyForm           = "arq.form"
)

// ErrNotFound is returned when a key or cached session does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the client-side persistence interface for arq.
type Store interface {
	// Local storage
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key, value string) error
	DeleteValue(ctx context.Context, key string) error

	// Session cache
	ReplaceSessions(ctx context.Context, sessions []*models.Session) error
	PutSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]*models.Session, error)
	DeleteSession(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
