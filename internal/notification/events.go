package notification

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event on the notification stream.
type EventType string

const (
	EventNotificationCreated EventType = "notification.created"
	EventReminderSent        EventType = "reminder.sent"
	EventBookingConfirmed    EventType = "booking.confirmed"
	EventBookingCancelled    EventType = "booking.cancelled"
)

// Event is the envelope published to the event stream. Consumers must
// tolerate unknown event types.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func NewEvent(typ EventType, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}
