package sessions

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/joescharf/arq/internal/models"
)

// Action is an operation offered on a session card.
type Action string

const (
	ActionContinue Action = "continue"
	ActionResults  Action = "results"
	ActionDelete   Action = "delete"
)

// Actions returns the operations available for a session in status.
// Delete is always offered.
func Actions(status models.SessionStatus) []Action {
	switch status {
	case models.SessionStatusPaused, models.SessionStatusError, models.SessionStatusSaved:
		return []Action{ActionContinue, ActionDelete}
	case models.SessionStatusCompleted:
		return []Action{ActionResults, ActionDelete}
	default:
		return []Action{ActionDelete}
	}
}

// Card is a session as shown in the session list.
type Card struct {
	Session *models.Session
	Actions []Action
}

// Cards pairs each session with its available actions.
func Cards(list []*models.Session) []Card {
	cards := make([]Card, len(list))
	for i, s := range list {
		cards[i] = Card{Session: s, Actions: Actions(s.Status)}
	}
	return cards
}

// Field is one labelled row of a session detail view.
type Field struct {
	Label string
	Value string
}

// Detail returns the read-only field list for a cached session.
func Detail(s *models.Session) []Field {
	fields := []Field{
		{Label: "ID", Value: s.ID},
		{Label: "Status", Value: string(s.Status)},
		{Label: "Segment", Value: s.Segment},
		{Label: "Product", Value: s.Product},
		{Label: "Started", Value: formatTime(s.StartedAt)},
	}
	if s.CompletedAt != nil {
		fields = append(fields, Field{Label: "Completed", Value: formatTime(*s.CompletedAt)})
	}
	if s.SavedStages > 0 {
		fields = append(fields, Field{Label: "Saved stages", Value: strconv.Itoa(s.SavedStages)})
	}
	if s.Error != "" {
		fields = append(fields, Field{Label: "Error", Value: s.Error})
	}
	return fields
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04") + " (" + humanize.Time(t) + ")"
}
