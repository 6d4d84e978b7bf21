package dinner

import (
	"errors"
	"time"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDinnerFull      = errors.New("dinner is fully booked")
	ErrDinnerInactive  = errors.New("dinner is not active")
	ErrAlreadyBooked   = errors.New("user already has a booking for this dinner")
	ErrBookingFinished = errors.New("booking is already cancelled")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrAlreadyRated    = errors.New("booking has already been rated")
	ErrNotRatable      = errors.New("only confirmed bookings for past dinners can be rated")
)

// Dinner is one hosted table event.
type Dinner struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  *string   `json:"description,omitempty"`
	Date         time.Time `json:"date"`
	Location     string    `json:"location"`
	MaxAttendees int       `json:"max_attendees"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Booking is one user's seat at a dinner. Rating is nil until the user
// rates the dinner afterwards.
type Booking struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	DinnerID  string    `json:"dinner_id"`
	Status    string    `json:"status"`
	Notes     *string   `json:"notes,omitempty"`
	Rating    *int      `json:"rating,omitempty"`
	BookedAt  time.Time `json:"booked_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RatableBooking is a booking eligible for a rating, carrying enough
// dinner detail to render the prompt.
type RatableBooking struct {
	BookingID      string    `json:"booking_id"`
	DinnerID       string    `json:"dinner_id"`
	DinnerTitle    string    `json:"dinner_title"`
	DinnerDate     time.Time `json:"dinner_date"`
	DinnerLocation string    `json:"dinner_location"`
}
