package notification

import (
	"errors"
	"time"
)

// Type is the closed set of notification types. It is validated both here
// and by a CHECK constraint at the storage boundary; unknown values are
// rejected rather than stored as free-form strings.
type Type string

const (
	TypeBookingConfirmed   Type = "booking_confirmed"
	TypeBookingCancelled   Type = "booking_cancelled"
	TypeDinnerReminder     Type = "dinner_reminder"
	TypeDinnerUpdated      Type = "dinner_updated"
	TypeDinnerCancelled    Type = "dinner_cancelled"
	TypeLastMinuteSpot     Type = "last_minute_spot"
	TypeConnectionRequest  Type = "connection_request"
	TypeConnectionAccepted Type = "connection_accepted"
)

// Valid reports whether t is a known notification type.
func (t Type) Valid() bool {
	switch t {
	case TypeBookingConfirmed, TypeBookingCancelled, TypeDinnerReminder,
		TypeDinnerUpdated, TypeDinnerCancelled, TypeLastMinuteSpot,
		TypeConnectionRequest, TypeConnectionAccepted:
		return true
	}
	return false
}

// ReminderKind distinguishes the two scheduled reminder flavours.
type ReminderKind string

const (
	KindDayBefore ReminderKind = "day_before_reminder"
	KindDayOf     ReminderKind = "day_of_reminder"
)

func (k ReminderKind) Valid() bool {
	return k == KindDayBefore || k == KindDayOf
}

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidType = errors.New("invalid notification type")
)

// Notification is a user-visible record that something happened or is
// about to happen. The dinner, booking and connection references are
// advisory; the schema cascades them away with their parent rows.
type Notification struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	DinnerID     *string    `json:"dinner_id,omitempty"`
	BookingID    *string    `json:"booking_id,omitempty"`
	ConnectionID *string    `json:"connection_id,omitempty"`
	Type         Type       `json:"type"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	IsRead       bool       `json:"is_read"`
	CreatedAt    time.Time  `json:"created_at"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
}

// ScheduledNotification is a promise to create a Notification at a future
// time, tied to one booking. Its lifecycle is pending -> sent (terminal)
// or pending -> deleted via booking cancellation; IsSent never resets and
// ScheduledTime never changes after insert.
type ScheduledNotification struct {
	ID            string       `json:"id"`
	BookingID     string       `json:"booking_id"`
	Kind          ReminderKind `json:"notification_type"`
	ScheduledTime time.Time    `json:"scheduled_time"`
	IsSent        bool         `json:"is_sent"`
	SentAt        *time.Time   `json:"sent_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Recipient is the delivery-relevant view of a user. DeviceToken is empty
// when the user has no registered device.
type Recipient struct {
	ID           string
	Email        string
	DisplayName  string
	DeviceToken  string
	PushEnabled  bool
	EmailEnabled bool
}

// BookingContext is a booking joined with its dinner, enough to render
// booking and reminder notifications.
type BookingContext struct {
	BookingID      string
	UserID         string
	DinnerID       string
	DinnerTitle    string
	DinnerLocation string
	DinnerDate     time.Time
}

// DinnerInfo is the dinner fields needed for fan-out templates.
type DinnerInfo struct {
	ID       string
	Title    string
	Location string
	Date     time.Time
}

// BookingRef identifies one live booking on a dinner.
type BookingRef struct {
	BookingID string
	UserID    string
}

const (
	dayBeforeHour = 18
	dayOfLead     = 2 * time.Hour
)

// ReminderTimes computes the two candidate fire times for a dinner date:
// 18:00 on the previous calendar day, and two hours before the start. The
// calendar arithmetic stays in the stored timestamp's location; no extra
// timezone conversion is applied.
func ReminderTimes(dinnerDate time.Time) (dayBefore, dayOf time.Time) {
	y, m, d := dinnerDate.Date()
	dayBefore = time.Date(y, m, d-1, dayBeforeHour, 0, 0, 0, dinnerDate.Location())
	dayOf = dinnerDate.Add(-dayOfLead)
	return dayBefore, dayOf
}
