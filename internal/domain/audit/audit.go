// Package audit defines the audit event model and the bounded in-memory
// trail that keeps a recent window of engine activity. Durable audit
// storage and event streaming live in the infrastructure layer behind the
// Sink interface.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/minegov/royalty-engine/pkg/types/common"
)

// Action identifies what happened to a royalty record.
type Action string

const (
	ActionRecordCreated   Action = "record.created"
	ActionRecordUpdated   Action = "record.updated"
	ActionStatusChanged   Action = "record.status_changed"
	ActionPartialPayment  Action = "record.partial_payment"
	ActionRecordImported  Action = "record.imported"
	ActionRecordExported  Action = "record.exported"
	ActionOverdueDetected Action = "record.overdue_detected"
)

// Event is one append-only audit entry.
type Event struct {
	ID        common.ID              `json:"id"`
	Action    Action                 `json:"action"`
	RecordID  common.ID              `json:"record_id"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// NewEvent constructs an Event stamped with the current UTC time.
func NewEvent(action Action, recordID common.ID, actor string, details map[string]interface{}) Event {
	return Event{
		ID:        common.NewID(),
		Action:    action,
		RecordID:  recordID,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Details:   details,
	}
}

// Sink receives audit events. Implementations must be safe for concurrent
// use; a failed append must not abort the business operation that emitted
// the event.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Trail is a bounded in-memory audit window. Once the configured maximum is
// exceeded the oldest entries are evicted. It implements Sink and serves the
// dashboard's recent-activity view; long-term retention is the Kafka sink's
// job.
type Trail struct {
	mu     sync.RWMutex
	max    int
	events []Event
}

// NewTrail creates a Trail that retains at most max events. A non-positive
// max falls back to 1.
func NewTrail(max int) *Trail {
	if max < 1 {
		max = 1
	}
	return &Trail{max: max, events: make([]Event, 0, max)}
}

// Append adds an event, evicting the oldest entries beyond capacity.
func (t *Trail) Append(_ context.Context, event Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.events = append(t.events, event)
	if overflow := len(t.events) - t.max; overflow > 0 {
		t.events = append(t.events[:0], t.events[overflow:]...)
	}
	return nil
}

// Recent returns up to n most recent events, newest first. n <= 0 returns
// the whole window.
func (t *Trail) Recent(n int) []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 || n > len(t.events) {
		n = len(t.events)
	}
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		out[i] = t.events[len(t.events)-1-i]
	}
	return out
}

// Len returns the number of retained events.
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.events)
}

// FanOut forwards each event to every sink in order. The first error is
// returned after all sinks have been attempted.
type FanOut []Sink

func (f FanOut) Append(ctx context.Context, event Event) error {
	var firstErr error
	for _, s := range f {
		if err := s.Append(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
