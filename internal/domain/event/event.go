package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event emitted by the approval engine. Events are
// fire-and-forget: consumers (notifiers, audit sinks) must never influence
// the outcome of the operation that produced them.
type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	DocumentID int64                  `json:"document_id"`
	SnapshotID int64                  `json:"snapshot_id,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// New creates a new domain event with an auto-generated ID and timestamp.
func New(eventType Type, documentID int64, payload map[string]interface{}) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		DocumentID: documentID,
		Payload:    payload,
		Timestamp:  time.Now(),
	}
}

// NewForStep creates a step-scoped domain event.
func NewForStep(eventType Type, documentID, snapshotID int64, payload map[string]interface{}) *Event {
	evt := New(eventType, documentID, payload)
	evt.SnapshotID = snapshotID
	return evt
}
