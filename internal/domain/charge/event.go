package charge

import "time"

type EventType string

const (
	EventCreated EventType = "charge.created"
	EventPaid    EventType = "charge.paid"
)

// Event announces a change in a charge's lifecycle.
type Event struct {
	Type        EventType
	TxID        string
	Status      Status
	AmountCents int64
	EndToEndID  string
	ClientID    string
	OccurredAt  time.Time
}

// NewEvent describes rec as an event of type t.
func NewEvent(t EventType, rec *Record) Event {
	occurred := rec.UpdatedAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return Event{
		Type:        t,
		TxID:        rec.TxID,
		Status:      rec.Status,
		AmountCents: rec.AmountCents,
		EndToEndID:  rec.EndToEndID,
		OccurredAt:  occurred,
	}
}
