package notification

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store is the persistence surface the notification service depends on.
// The SQL repository below implements it; tests use an in-memory fake.
type Store interface {
	CreateNotification(ctx context.Context, n *Notification) error
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]*Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) (*Notification, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
	Delete(ctx context.Context, id, userID string) error

	CreateScheduled(ctx context.Context, s *ScheduledNotification) error
	DueScheduled(ctx context.Context, now time.Time) ([]*ScheduledNotification, error)
	CreateAndMarkSent(ctx context.Context, n *Notification, scheduledID string, sentAt time.Time) error
	DeleteUnsentForBooking(ctx context.Context, bookingID string) (int64, error)

	Recipient(ctx context.Context, userID string) (*Recipient, error)
	BookingContext(ctx context.Context, bookingID string) (*BookingContext, error)
	DinnerInfo(ctx context.Context, dinnerID string) (*DinnerInfo, error)
	ActiveBookings(ctx context.Context, dinnerID string) ([]BookingRef, error)
}

// Repository handles database operations for notifications and scheduled
// reminders.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const notificationColumns = `id, user_id, dinner_id, booking_id, connection_id, type, title, message, is_read, created_at, read_at`

func scanNotification(row interface{ Scan(dest ...any) error }) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.DinnerID, &n.BookingID, &n.ConnectionID,
		&n.Type, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt, &n.ReadAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateNotification inserts a new notification row.
func (r *Repository) CreateNotification(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, dinner_id, booking_id, connection_id, type, title, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.UserID, n.DinnerID, n.BookingID, n.ConnectionID, n.Type, n.Title, n.Message, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListForUser returns the user's notifications, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (r *Repository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID,
	).Scan(&count)
	return count, err
}

// MarkRead flips is_read and read_at together; the two columns only ever
// transition as a pair.
func (r *Repository) MarkRead(ctx context.Context, id, userID string, at time.Time) (*Notification, error) {
	query := `
		UPDATE notifications SET is_read = TRUE, read_at = $1
		WHERE id = $2 AND user_id = $3 AND NOT is_read
		RETURNING ` + notificationColumns
	n, err := scanNotification(r.db.QueryRowContext(ctx, query, at, id, userID))
	if err == sql.ErrNoRows {
		// Either unknown, not owned, or already read; re-fetch to tell apart.
		n, err = scanNotification(r.db.QueryRowContext(ctx,
			`SELECT `+notificationColumns+` FROM notifications WHERE id = $1 AND user_id = $2`, id, userID))
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
	}
	return n, err
}

func (r *Repository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = $1 WHERE user_id = $2 AND NOT is_read`, at, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) Delete(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateScheduled inserts a pending reminder row. It does not check for a
// pre-existing row of the same kind; calling it twice for one booking is
// caller misuse and will produce duplicate fires.
func (r *Repository) CreateScheduled(ctx context.Context, s *ScheduledNotification) error {
	query := `
		INSERT INTO scheduled_notifications (id, booking_id, notification_type, scheduled_time, is_sent, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
	`
	_, err := r.db.ExecContext(ctx, query, s.ID, s.BookingID, s.Kind, s.ScheduledTime, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert scheduled notification: %w", err)
	}
	return nil
}

// DueScheduled returns every unsent reminder whose fire time has passed,
// in storage order; no cross-item ordering is guaranteed or needed.
func (r *Repository) DueScheduled(ctx context.Context, now time.Time) ([]*ScheduledNotification, error) {
	query := `
		SELECT id, booking_id, notification_type, scheduled_time, is_sent, sent_at, created_at
		FROM scheduled_notifications
		WHERE NOT is_sent AND scheduled_time <= $1
	`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*ScheduledNotification
	for rows.Next() {
		var s ScheduledNotification
		if err := rows.Scan(&s.ID, &s.BookingID, &s.Kind, &s.ScheduledTime, &s.IsSent, &s.SentAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		due = append(due, &s)
	}
	return due, rows.Err()
}

// CreateAndMarkSent writes the materialized reminder notification and
// flips its scheduled row to sent in a single transaction, so a crash can
// never leave one without the other.
func (r *Repository) CreateAndMarkSent(ctx context.Context, n *Notification, scheduledID string, sentAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, dinner_id, booking_id, connection_id, type, title, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9)`,
		n.ID, n.UserID, n.DinnerID, n.BookingID, n.ConnectionID, n.Type, n.Title, n.Message, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reminder notification: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE scheduled_notifications SET is_sent = TRUE, sent_at = $1
		WHERE id = $2 AND NOT is_sent`,
		sentAt, scheduledID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark scheduled notification sent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Another pass already claimed it; roll the insert back.
		return fmt.Errorf("scheduled notification %s already sent", scheduledID)
	}

	return tx.Commit()
}

// DeleteUnsentForBooking removes pending reminders for the booking only;
// sent rows stay until the booking's cascade delete sweeps them.
func (r *Repository) DeleteUnsentForBooking(ctx context.Context, bookingID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM scheduled_notifications WHERE booking_id = $1 AND NOT is_sent`, bookingID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Recipient loads the delivery-relevant user fields.
func (r *Repository) Recipient(ctx context.Context, userID string) (*Recipient, error) {
	var rec Recipient
	var token sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, device_token, push_enabled, email_enabled
		FROM users WHERE id = $1`, userID,
	).Scan(&rec.ID, &rec.Email, &rec.DisplayName, &token, &rec.PushEnabled, &rec.EmailEnabled)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.DeviceToken = token.String
	return &rec, nil
}

// BookingContext loads a booking joined with its dinner.
func (r *Repository) BookingContext(ctx context.Context, bookingID string) (*BookingContext, error) {
	var bc BookingContext
	err := r.db.QueryRowContext(ctx, `
		SELECT b.id, b.user_id, b.dinner_id, d.title, d.location, d.date
		FROM bookings b
		JOIN dinners d ON d.id = b.dinner_id
		WHERE b.id = $1`, bookingID,
	).Scan(&bc.BookingID, &bc.UserID, &bc.DinnerID, &bc.DinnerTitle, &bc.DinnerLocation, &bc.DinnerDate)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bc, nil
}

func (r *Repository) DinnerInfo(ctx context.Context, dinnerID string) (*DinnerInfo, error) {
	var d DinnerInfo
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, location, date FROM dinners WHERE id = $1`, dinnerID,
	).Scan(&d.ID, &d.Title, &d.Location, &d.Date)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ActiveBookings returns the confirmed and pending bookings on a dinner.
func (r *Repository) ActiveBookings(ctx context.Context, dinnerID string) ([]BookingRef, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id FROM bookings
		WHERE dinner_id = $1 AND status IN ('confirmed', 'pending')`, dinnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []BookingRef
	for rows.Next() {
		var ref BookingRef
		if err := rows.Scan(&ref.BookingID, &ref.UserID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
