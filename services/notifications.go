package services

import (
	"time"

	"strapmon/models"
)

// DefaultNotificationCapacity is the number of notifications kept
const DefaultNotificationCapacity = 30

// NotificationSink receives every notification accepted by the engine.
// Notify is called on the dashboard loop and must not block.
type NotificationSink interface {
	Notify(n models.Notification)
}

// NotificationEngine keeps a bounded, most-recent-first list of alerts.
// Ids come from a counter that is never reset, so an id is never reused
// even across Clear.
type NotificationEngine struct {
	items    []models.Notification
	counter  int64
	capacity int
	reveal   bool
	sinks    []NotificationSink
	now      func() time.Time
}

// NewNotificationEngine creates an engine holding at most capacity entries.
// A non-positive capacity falls back to DefaultNotificationCapacity.
func NewNotificationEngine(capacity int) *NotificationEngine {
	if capacity <= 0 {
		capacity = DefaultNotificationCapacity
	}
	return &NotificationEngine{
		items:    make([]models.Notification, 0, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// AddSink registers a sink for accepted notifications
func (e *NotificationEngine) AddSink(sink NotificationSink) {
	e.sinks = append(e.sinks, sink)
}

// Add assigns the next id, fills defaults, prepends the notification and
// drops the oldest entries beyond capacity. The stored record is returned.
func (e *NotificationEngine) Add(n models.Notification) models.Notification {
	e.counter++
	n.ID = e.counter

	if n.Type == "" {
		n.Type = models.SeverityInfo
	}
	if n.Title == "" {
		n.Title = n.Type.DefaultTitle()
	}
	if n.Detail == "" {
		n.Detail = n.DefaultDetail()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = e.now()
	}
	if n.Type == models.SeverityDanger {
		n.Reveal = true
	}
	if n.Reveal {
		e.reveal = true
	}

	e.items = append(e.items, models.Notification{})
	copy(e.items[1:], e.items)
	e.items[0] = n
	if len(e.items) > e.capacity {
		e.items = e.items[:e.capacity]
	}

	for _, sink := range e.sinks {
		sink.Notify(n)
	}
	return n
}

// Dismiss removes the notification with the given id, if present
func (e *NotificationEngine) Dismiss(id int64) bool {
	for i := range e.items {
		if e.items[i].ID == id {
			e.items = append(e.items[:i], e.items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the queue. The id counter keeps counting.
func (e *NotificationEngine) Clear() {
	e.items = e.items[:0]
}

// List returns a copy of the queue, most recent first
func (e *NotificationEngine) List() []models.Notification {
	out := make([]models.Notification, len(e.items))
	copy(out, e.items)
	return out
}

// Len returns the queue length
func (e *NotificationEngine) Len() int {
	return len(e.items)
}

// LastID returns the most recently assigned id, zero before the first Add
func (e *NotificationEngine) LastID() int64 {
	return e.counter
}

// TakeReveal reports whether a notification asked to open the alert panel
// since the last call, and resets the signal
func (e *NotificationEngine) TakeReveal() bool {
	reveal := e.reveal
	e.reveal = false
	return reveal
}
