package molecule

import (
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// EventType names a change to the system of record.
type EventType string

const (
	EventUpserted EventType = "molecule.upserted"
	EventDeleted  EventType = "molecule.deleted"
)

// Event announces that a molecule was created, changed or removed.
// Deleted events only carry the record ID.
type Event struct {
	ID         string    `json:"event_id"`
	Type       EventType `json:"type"`
	Record     Record    `json:"molecule"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewUpsertedEvent(r Record) Event {
	return Event{ID: uuid.New().String(), Type: EventUpserted, Record: r, OccurredAt: time.Now().UTC()}
}

func NewDeletedEvent(id string) Event {
	return Event{ID: uuid.New().String(), Type: EventDeleted, Record: Record{ID: id}, OccurredAt: time.Now().UTC()}
}

// Validate checks the event carries what its type needs.
func (e Event) Validate() error {
	switch e.Type {
	case EventUpserted:
		return e.Record.Validate()
	case EventDeleted:
		if e.Record.ID == "" {
			return errors.InvalidParam("deleted event without molecule id")
		}
		return nil
	default:
		return errors.InvalidParam("unknown molecule event type").WithDetailf("type=%q", e.Type)
	}
}

//Personal.AI order the ending
