package dinner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tablemate/tablemate/internal/notification"
)

// Notifier is the slice of the notification service the booking flow
// drives. Every call is made after the owning state change committed.
type Notifier interface {
	NotifyBookingConfirmed(ctx context.Context, bookingID string) error
	NotifyBookingCancelled(ctx context.Context, bookingID string) error
	NotifyDinnerUpdated(ctx context.Context, dinnerID, updateMessage string) error
	NotifyDinnerCancelled(ctx context.Context, dinnerID string) error
	NotifyDinnerUsers(ctx context.Context, dinnerID string, typ notification.Type, title, message, excludeUserID string) ([]*notification.Notification, error)
	ScheduleBookingReminders(ctx context.Context, bookingID string) error
	DeleteScheduledForBooking(ctx context.Context, bookingID string) error
}

// Service owns the dinner and booking lifecycle and keeps the
// notification pipeline in step with it.
type Service struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store Store, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

type CreateDinnerParams struct {
	Title        string    `json:"title"`
	Description  *string   `json:"description"`
	Date         time.Time `json:"date"`
	Location     string    `json:"location"`
	MaxAttendees int       `json:"max_attendees"`
}

func (s *Service) CreateDinner(ctx context.Context, p CreateDinnerParams) (*Dinner, error) {
	if p.Title == "" || p.Location == "" {
		return nil, errors.New("title and location are required")
	}
	if p.MaxAttendees <= 0 {
		p.MaxAttendees = 6
	}
	if !p.Date.After(s.now()) {
		return nil, errors.New("dinner date must be in the future")
	}

	d := &Dinner{
		ID:           uuid.NewString(),
		Title:        p.Title,
		Description:  p.Description,
		Date:         p.Date,
		Location:     p.Location,
		MaxAttendees: p.MaxAttendees,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}
	d.UpdatedAt = d.CreatedAt

	if err := s.store.CreateDinner(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) DinnerByID(ctx context.Context, id string) (*Dinner, error) {
	return s.store.DinnerByID(ctx, id)
}

func (s *Service) ListUpcoming(ctx context.Context, limit, offset int) ([]*Dinner, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListUpcoming(ctx, s.now().UTC(), limit, offset)
}

// UpdateDinner applies the change and fans an update notification out to
// everyone booked on the dinner.
func (s *Service) UpdateDinner(ctx context.Context, id string, p CreateDinnerParams) (*Dinner, error) {
	d, err := s.store.DinnerByID(ctx, id)
	if err != nil {
		return nil, err
	}

	d.Title = p.Title
	d.Description = p.Description
	d.Date = p.Date
	d.Location = p.Location
	d.MaxAttendees = p.MaxAttendees
	d.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateDinner(ctx, d); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Details for '%s' have changed. Check the app for the latest time and location.", d.Title)
	if err := s.notifier.NotifyDinnerUpdated(ctx, d.ID, msg); err != nil {
		s.logger.Warn("failed to notify dinner update", "dinner_id", d.ID, "error", err)
	}
	return d, nil
}

// CancelDinner deactivates the dinner, clears every attendee's pending
// reminders, and tells them the dinner is off.
func (s *Service) CancelDinner(ctx context.Context, id string) error {
	if err := s.store.DeactivateDinner(ctx, id, s.now().UTC()); err != nil {
		return err
	}

	bookings, err := s.store.ActiveBookings(ctx, id)
	if err != nil {
		return err
	}
	for _, b := range bookings {
		if err := s.notifier.DeleteScheduledForBooking(ctx, b.ID); err != nil {
			s.logger.Warn("failed to clear reminders for booking",
				"booking_id", b.ID, "error", err)
		}
	}

	if err := s.notifier.NotifyDinnerCancelled(ctx, id); err != nil {
		s.logger.Warn("failed to notify dinner cancellation", "dinner_id", id, "error", err)
	}
	return nil
}

// Book creates a confirmed booking, then sends the confirmation and
// registers the reminder pair. Notification failures do not undo the
// booking.
func (s *Service) Book(ctx context.Context, dinnerID, userID string, notes *string) (*Booking, error) {
	d, err := s.store.DinnerByID(ctx, dinnerID)
	if err != nil {
		return nil, err
	}
	if !d.IsActive {
		return nil, ErrDinnerInactive
	}

	taken, err := s.store.HasActiveBooking(ctx, dinnerID, userID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrAlreadyBooked
	}

	count, err := s.store.ActiveBookingCount(ctx, dinnerID)
	if err != nil {
		return nil, err
	}
	if count >= d.MaxAttendees {
		return nil, ErrDinnerFull
	}

	b := &Booking{
		ID:       uuid.NewString(),
		UserID:   userID,
		DinnerID: dinnerID,
		Status:   StatusConfirmed,
		Notes:    notes,
		BookedAt: s.now().UTC(),
	}
	b.UpdatedAt = b.BookedAt

	if err := s.store.CreateBooking(ctx, b); err != nil {
		return nil, err
	}

	if err := s.notifier.NotifyBookingConfirmed(ctx, b.ID); err != nil {
		s.logger.Warn("failed to send booking confirmation", "booking_id", b.ID, "error", err)
	}
	if err := s.notifier.ScheduleBookingReminders(ctx, b.ID); err != nil {
		s.logger.Warn("failed to schedule reminders", "booking_id", b.ID, "error", err)
	}

	return b, nil
}

// CancelBooking clears the booking's pending reminders before anything
// else, so a reminder can never fire for a booking mid-cancellation.
// When the cancellation frees a seat close to the dinner, the remaining
// attendees hear about the open spot.
func (s *Service) CancelBooking(ctx context.Context, bookingID, userID string) error {
	b, err := s.store.BookingByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.UserID != userID {
		return ErrNotFound
	}
	if b.Status == StatusCancelled {
		return ErrBookingFinished
	}

	if err := s.notifier.DeleteScheduledForBooking(ctx, bookingID); err != nil {
		return err
	}
	if err := s.store.SetBookingStatus(ctx, bookingID, StatusCancelled, s.now().UTC()); err != nil {
		return err
	}

	if err := s.notifier.NotifyBookingCancelled(ctx, bookingID); err != nil {
		s.logger.Warn("failed to send cancellation notice", "booking_id", bookingID, "error", err)
	}

	s.announceFreedSpot(ctx, b.DinnerID, userID)
	return nil
}

// announceFreedSpot fans a last-minute-spot notification out when a seat
// opens within 24 hours of the dinner.
func (s *Service) announceFreedSpot(ctx context.Context, dinnerID, cancelledBy string) {
	d, err := s.store.DinnerByID(ctx, dinnerID)
	if err != nil || !d.IsActive {
		return
	}
	until := d.Date.Sub(s.now())
	if until <= 0 || until > 24*time.Hour {
		return
	}

	_, err = s.notifier.NotifyDinnerUsers(ctx, dinnerID, notification.TypeLastMinuteSpot,
		"A Spot Just Opened Up!",
		fmt.Sprintf("A seat at '%s' is now free. Know someone who'd love to join?", d.Title),
		cancelledBy)
	if err != nil {
		s.logger.Warn("failed to announce freed spot", "dinner_id", dinnerID, "error", err)
	}
}

func (s *Service) BookingsForUser(ctx context.Context, userID string) ([]*Booking, error) {
	return s.store.BookingsForUser(ctx, userID)
}

// RateBooking records a 1-5 star rating on the caller's own confirmed
// booking once the dinner has happened. A booking is rated at most once.
func (s *Service) RateBooking(ctx context.Context, bookingID, userID string, rating int) (*Booking, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	b, err := s.store.BookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, ErrNotFound
	}
	if b.Status != StatusConfirmed {
		return nil, ErrNotRatable
	}
	if b.Rating != nil {
		return nil, ErrAlreadyRated
	}

	d, err := s.store.DinnerByID(ctx, b.DinnerID)
	if err != nil {
		return nil, err
	}
	if d.Date.After(s.now()) {
		return nil, ErrNotRatable
	}

	now := s.now().UTC()
	if err := s.store.SetRating(ctx, bookingID, rating, now); err != nil {
		return nil, err
	}
	b.Rating = &rating
	b.UpdatedAt = now
	return b, nil
}

// RatableBookings lists the caller's bookings still waiting on a rating.
func (s *Service) RatableBookings(ctx context.Context, userID string) ([]*RatableBooking, error) {
	return s.store.RatableBookings(ctx, userID, s.now().UTC())
}
