// Package notify queues transient user-facing messages with auto-dismiss timers.
package notify

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Severity classifies a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// DefaultDuration is how long a notification stays visible when no duration is given.
const DefaultDuration = 5 * time.Second

// Notification is one transient message.
type Notification struct {
	ID       string
	Message  string
	Severity Severity
	Duration time.Duration
	Created  time.Time
}

// Sink renders notifications as they appear and disappear.
type Sink interface {
	Show(n Notification)
	Dismiss(n Notification)
}

// Notifier is the notification service. Active notifications are dismissed
// when their duration elapses or on an explicit Dismiss call.
type Notifier struct {
	mu       sync.Mutex
	sink     Sink
	duration time.Duration
	active   map[string]*entry
	order    []string
}

type entry struct {
	n     Notification
	timer *time.Timer
}

// New creates a Notifier rendering to sink. A zero duration uses DefaultDuration.
func New(sink Sink, duration time.Duration) *Notifier {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Notifier{
		sink:     sink,
		duration: duration,
		active:   make(map[string]*entry),
	}
}

// Notify shows a message with the default duration and returns its ID.
func (n *Notifier) Notify(sev Severity, msg string) string {
	return n.NotifyFor(sev, msg, n.duration)
}

// NotifyFor shows a message that auto-dismisses after d.
func (n *Notifier) NotifyFor(sev Severity, msg string, d time.Duration) string {
	if d <= 0 {
		d = n.duration
	}
	note := Notification{
		ID:       ulid.MustNew(ulid.Now(), rand.Reader).String(),
		Message:  msg,
		Severity: sev,
		Duration: d,
		Created:  time.Now(),
	}

	n.mu.Lock()
	e := &entry{n: note}
	n.active[note.ID] = e
	n.order = append(n.order, note.ID)
	e.timer = time.AfterFunc(d, func() { n.Dismiss(note.ID) })
	n.mu.Unlock()

	if n.sink != nil {
		n.sink.Show(note)
	}
	return note.ID
}

func (n *Notifier) Info(msg string) string    { return n.Notify(SeverityInfo, msg) }
func (n *Notifier) Success(msg string) string { return n.Notify(SeveritySuccess, msg) }
func (n *Notifier) Warning(msg string) string { return n.Notify(SeverityWarning, msg) }
func (n *Notifier) Error(msg string) string   { return n.Notify(SeverityError, msg) }

// Dismiss removes a notification. It reports whether the ID was active.
func (n *Notifier) Dismiss(id string) bool {
	n.mu.Lock()
	e, ok := n.active[id]
	if ok {
		e.timer.Stop()
		delete(n.active, id)
		for i, v := range n.order {
			if v == id {
				n.order = append(n.order[:i], n.order[i+1:]...)
				break
			}
		}
	}
	n.mu.Unlock()

	if ok && n.sink != nil {
		n.sink.Dismiss(e.n)
	}
	return ok
}

// Active returns the visible notifications, oldest first.
func (n *Notifier) Active() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, 0, len(n.order))
	for _, id := range n.order {
		out = append(out, n.active[id].n)
	}
	return out
}

// Close dismisses every active notification.
func (n *Notifier) Close() {
	for _, note := range n.Active() {
		n.Dismiss(note.ID)
	}
}
