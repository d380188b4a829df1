package models

import "time"

// SessionStatus represents the backend-reported state of an analysis session.
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusError     SessionStatus = "error"
	SessionStatusSaved     SessionStatus = "saved"
)

// Session is the client's cached copy of one backend analysis run.
// It is replaced wholesale on every fetch.
type Session struct {
	ID          string        `json:"session_id"`
	Status      SessionStatus `json:"status"`
	Segment     string        `json:"segmento"`
	Product     string        `json:"produto"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Error       string        `json:"error,omitempty"`
	SavedStages int           `json:"saved_stages,omitempty"`
}

// Resumable reports whether the session can be continued from the client.
func (s *Session) Resumable() bool {
	switch s.Status {
	case SessionStatusPaused, SessionStatusError, SessionStatusSaved:
		return true
	}
	return false
}
