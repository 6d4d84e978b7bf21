package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PushGateway is the best-effort push delivery channel. Send never fails
// the caller; it reports success as a bool and swallows everything else.
type PushGateway interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) bool
}

// TaskQueue publishes delivery tasks for the email worker.
type TaskQueue interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}

// EventPublisher emits domain events to the event stream.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Service implements the notification pipeline: immediate notifications
// from domain events, reminder scheduling, and the due-reminder scan the
// background scheduler drives.
type Service struct {
	store  Store
	push   PushGateway
	queue  TaskQueue      // optional
	events EventPublisher // optional
	cache  *redis.Client  // optional unread-count cache
	logger *slog.Logger
	now    func() time.Time
}

// Option configures optional service collaborators.
type Option func(*Service)

func WithTaskQueue(q TaskQueue) Option          { return func(s *Service) { s.queue = q } }
func WithEventPublisher(p EventPublisher) Option { return func(s *Service) { s.events = p } }
func WithUnreadCache(c *redis.Client) Option    { return func(s *Service) { s.cache = c } }
func WithClock(now func() time.Time) Option     { return func(s *Service) { s.now = now } }

func NewService(store Store, push PushGateway, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		push:   push,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateParams describes one notification to record. SkipPush suppresses
// the push fan-out; the zero value keeps push enabled, matching the
// default at every call site.
type CreateParams struct {
	UserID       string
	Type         Type
	Title        string
	Message      string
	DinnerID     *string
	BookingID    *string
	ConnectionID *string
	SkipPush     bool
}

// Create persists a notification and then fans it out to the secondary
// channels. The stored row is the source of truth; push and email are
// lossy and their failures never surface to the caller.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Notification, error) {
	if !p.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, p.Type)
	}

	n := &Notification{
		ID:           uuid.NewString(),
		UserID:       p.UserID,
		DinnerID:     p.DinnerID,
		BookingID:    p.BookingID,
		ConnectionID: p.ConnectionID,
		Type:         p.Type,
		Title:        p.Title,
		Message:      p.Message,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	s.invalidateUnread(ctx, n.UserID)
	s.deliver(ctx, n, p.SkipPush)
	s.publishEvent(ctx, EventNotificationCreated, n.UserID, n)

	return n, nil
}

// deliver runs the best-effort fan-out for an already-persisted
// notification: push to the user's device and an email task for the
// worker, each gated by the user's preferences.
func (s *Service) deliver(ctx context.Context, n *Notification, skipPush bool) {
	if skipPush && s.queue == nil {
		return
	}

	rec, err := s.store.Recipient(ctx, n.UserID)
	if err != nil {
		s.logger.Warn("recipient lookup failed, skipping delivery",
			"notification_id", n.ID, "user_id", n.UserID, "error", err)
		return
	}

	if !skipPush && rec.PushEnabled && rec.DeviceToken != "" {
		if ok := s.push.Send(ctx, rec.DeviceToken, n.Title, n.Message, pushData(n)); !ok {
			s.logger.Warn("push delivery failed", "notification_id", n.ID, "user_id", n.UserID)
		}
	}

	if s.queue != nil && rec.EmailEnabled && rec.Email != "" {
		task := EmailTask{
			ID:         n.ID,
			To:         rec.Email,
			Subject:    n.Title,
			TemplateID: string(n.Type),
			Data: map[string]string{
				"UserName": rec.DisplayName,
				"Title":    n.Title,
				"Message":  n.Message,
			},
		}
		body, err := json.Marshal(task)
		if err == nil {
			err = s.queue.Publish(ctx, EmailQueue, body)
		}
		if err != nil {
			s.logger.Warn("failed to enqueue email task", "notification_id", n.ID, "error", err)
		}
	}
}

// pushData builds the deep-linking payload for the client. Absent
// references are omitted; present ones travel as strings.
func pushData(n *Notification) map[string]string {
	data := map[string]string{
		"notification_type": string(n.Type),
		"notification_id":   n.ID,
	}
	if n.ConnectionID != nil {
		data["connection_id"] = *n.ConnectionID
	}
	if n.BookingID != nil {
		data["booking_id"] = *n.BookingID
	}
	if n.DinnerID != nil {
		data["dinner_id"] = *n.DinnerID
	}
	return data
}

// NotifyDinnerUsers notifies every user holding a confirmed or pending
// booking on the dinner, except excludeUserID when non-empty. Iteration
// order is whatever storage returns; duplicate bookings per user are an
// upstream anomaly and are not deduplicated here.
func (s *Service) NotifyDinnerUsers(ctx context.Context, dinnerID string, typ Type, title, message, excludeUserID string) ([]*Notification, error) {
	refs, err := s.store.ActiveBookings(ctx, dinnerID)
	if err != nil {
		return nil, err
	}

	var notifications []*Notification
	for _, ref := range refs {
		if excludeUserID != "" && ref.UserID == excludeUserID {
			continue
		}
		bookingID := ref.BookingID
		n, err := s.Create(ctx, CreateParams{
			UserID:    ref.UserID,
			Type:      typ,
			Title:     title,
			Message:   message,
			DinnerID:  &dinnerID,
			BookingID: &bookingID,
		})
		if err != nil {
			return notifications, err
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// NotifyBookingConfirmed records a confirmation notification for the
// booking's owner. A vanished booking is treated as already handled.
func (s *Service) NotifyBookingConfirmed(ctx context.Context, bookingID string) error {
	bc, err := s.store.BookingContext(ctx, bookingID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.Create(ctx, CreateParams{
		UserID:    bc.UserID,
		Type:      TypeBookingConfirmed,
		Title:     "Booking Confirmed!",
		Message:   fmt.Sprintf("Your booking for '%s' has been confirmed.", bc.DinnerTitle),
		DinnerID:  &bc.DinnerID,
		BookingID: &bc.BookingID,
	})
	return err
}

// NotifyBookingCancelled records a cancellation notification for the
// booking's owner. A vanished booking is treated as already handled.
func (s *Service) NotifyBookingCancelled(ctx context.Context, bookingID string) error {
	bc, err := s.store.BookingContext(ctx, bookingID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.Create(ctx, CreateParams{
		UserID:    bc.UserID,
		Type:      TypeBookingCancelled,
		Title:     "Booking Cancelled",
		Message:   fmt.Sprintf("Your booking for '%s' has been cancelled.", bc.DinnerTitle),
		DinnerID:  &bc.DinnerID,
		BookingID: &bc.BookingID,
	})
	return err
}

// NotifyDinnerUpdated fans an update message out to all participants.
func (s *Service) NotifyDinnerUpdated(ctx context.Context, dinnerID, updateMessage string) error {
	d, err := s.store.DinnerInfo(ctx, dinnerID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.NotifyDinnerUsers(ctx, dinnerID, TypeDinnerUpdated,
		fmt.Sprintf("Update: %s", d.Title), updateMessage, "")
	return err
}

// NotifyDinnerCancelled tells all participants the dinner is off.
func (s *Service) NotifyDinnerCancelled(ctx context.Context, dinnerID string) error {
	d, err := s.store.DinnerInfo(ctx, dinnerID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.NotifyDinnerUsers(ctx, dinnerID, TypeDinnerCancelled,
		"Dinner Cancelled",
		fmt.Sprintf("Unfortunately, '%s' has been cancelled. You will receive a full refund.", d.Title), "")
	return err
}

// ScheduleBookingReminders registers the day-before and day-of reminders
// for a booking. Candidates already in the past are silently skipped, so
// a late booking inside the reminder window gets fewer (or zero) rows.
// It must be called at most once per booking; it does not clear or check
// for pre-existing entries.
func (s *Service) ScheduleBookingReminders(ctx context.Context, bookingID string) error {
	bc, err := s.store.BookingContext(ctx, bookingID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	now := s.now().UTC()
	dayBefore, dayOf := ReminderTimes(bc.DinnerDate)

	if dayBefore.After(now) {
		if err := s.store.CreateScheduled(ctx, &ScheduledNotification{
			ID:            uuid.NewString(),
			BookingID:     bookingID,
			Kind:          KindDayBefore,
			ScheduledTime: dayBefore,
			CreatedAt:     now,
		}); err != nil {
			return err
		}
	}

	if dayOf.After(now) {
		if err := s.store.CreateScheduled(ctx, &ScheduledNotification{
			ID:            uuid.NewString(),
			BookingID:     bookingID,
			Kind:          KindDayOf,
			ScheduledTime: dayOf,
			CreatedAt:     now,
		}); err != nil {
			return err
		}
	}

	return nil
}

// ProcessScheduled promotes every due reminder into a real notification.
// Each item commits its notification insert and sent-flag flip in one
// transaction, so a crash mid-pass leaves completed items done and the
// rest still due; the next pass picks them up (at-least-once). Returns
// the number of items processed.
func (s *Service) ProcessScheduled(ctx context.Context, now time.Time) (int, error) {
	due, err := s.store.DueScheduled(ctx, now)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, item := range due {
		bc, err := s.store.BookingContext(ctx, item.BookingID)
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("skipping reminder for vanished booking",
				"scheduled_id", item.ID, "booking_id", item.BookingID)
			continue
		}
		if err != nil {
			return processed, err
		}

		title, message := reminderContent(item.Kind, bc)
		n := &Notification{
			ID:        uuid.NewString(),
			UserID:    bc.UserID,
			DinnerID:  &bc.DinnerID,
			BookingID: &bc.BookingID,
			Type:      TypeDinnerReminder,
			Title:     title,
			Message:   message,
			CreatedAt: now,
		}

		if err := s.store.CreateAndMarkSent(ctx, n, item.ID, now); err != nil {
			return processed, err
		}
		processed++
		RemindersProcessed.Inc()

		s.invalidateUnread(ctx, bc.UserID)
		s.deliver(ctx, n, false)
		s.publishEvent(ctx, EventReminderSent, bc.UserID, n)
	}

	return processed, nil
}

// reminderContent renders the kind-specific reminder copy.
func reminderContent(kind ReminderKind, bc *BookingContext) (title, message string) {
	if kind == KindDayBefore {
		title = fmt.Sprintf("Reminder: %s Tomorrow", bc.DinnerTitle)
		message = fmt.Sprintf("Don't forget! You have dinner at %s tomorrow at %s.",
			bc.DinnerLocation, bc.DinnerDate.Format("3:04 PM"))
		return title, message
	}
	title = fmt.Sprintf("Today: %s", bc.DinnerTitle)
	message = fmt.Sprintf("Your dinner is in 2 hours at %s. See you there!", bc.DinnerLocation)
	return title, message
}

// DeleteScheduledForBooking removes the booking's pending reminders so a
// cancelled booking never fires. Sent rows are left for the booking's
// cascade delete.
func (s *Service) DeleteScheduledForBooking(ctx context.Context, bookingID string) error {
	deleted, err := s.store.DeleteUnsentForBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.logger.Info("deleted pending reminders for booking",
			"booking_id", bookingID, "count", deleted)
	}
	return nil
}

// ListForUser returns a page of the user's notifications, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListForUser(ctx, userID, limit, offset)
}

// UnreadCount returns the user's unread notification count, served from
// the cache when one is configured.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	if s.cache != nil {
		if count, err := s.cache.Get(ctx, unreadKey(userID)).Int(); err == nil {
			return count, nil
		}
	}

	count, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, unreadKey(userID), count, time.Minute)
	}
	return count, nil
}

func (s *Service) MarkRead(ctx context.Context, id, userID string) (*Notification, error) {
	n, err := s.store.MarkRead(ctx, id, userID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.invalidateUnread(ctx, userID)
	return n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	count, err := s.store.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	s.invalidateUnread(ctx, userID)
	return count, nil
}

func (s *Service) Delete(ctx context.Context, id, userID string) error {
	if err := s.store.Delete(ctx, id, userID); err != nil {
		return err
	}
	s.invalidateUnread(ctx, userID)
	return nil
}

func unreadKey(userID string) string {
	return "notif:unread:" + userID
}

func (s *Service) invalidateUnread(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, unreadKey(userID)).Err(); err != nil {
		s.logger.Warn("failed to invalidate unread cache", "user_id", userID, "error", err)
	}
}

func (s *Service) publishEvent(ctx context.Context, typ EventType, key string, data any) {
	if s.events == nil {
		return
	}
	event, err := NewEvent(typ, data)
	if err == nil {
		var body []byte
		body, err = json.Marshal(event)
		if err == nil {
			err = s.events.Publish(ctx, key, body)
		}
	}
	if err != nil {
		s.logger.Warn("failed to publish event", "type", typ, "error", err)
	}
}
