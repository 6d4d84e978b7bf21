package dinner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Store is the persistence surface the dinner service depends on.
type Store interface {
	CreateDinner(ctx context.Context, d *Dinner) error
	DinnerByID(ctx context.Context, id string) (*Dinner, error)
	ListUpcoming(ctx context.Context, after time.Time, limit, offset int) ([]*Dinner, error)
	UpdateDinner(ctx context.Context, d *Dinner) error
	DeactivateDinner(ctx context.Context, id string, at time.Time) error

	CreateBooking(ctx context.Context, b *Booking) error
	BookingByID(ctx context.Context, id string) (*Booking, error)
	BookingsForUser(ctx context.Context, userID string) ([]*Booking, error)
	ActiveBookingCount(ctx context.Context, dinnerID string) (int, error)
	ActiveBookings(ctx context.Context, dinnerID string) ([]*Booking, error)
	HasActiveBooking(ctx context.Context, dinnerID, userID string) (bool, error)
	SetBookingStatus(ctx context.Context, id, status string, at time.Time) error
	SetRating(ctx context.Context, bookingID string, rating int, at time.Time) error
	RatableBookings(ctx context.Context, userID string, now time.Time) ([]*RatableBooking, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const dinnerColumns = `id, title, description, date, location, max_attendees, is_active, created_at, updated_at`

func scanDinner(row interface{ Scan(dest ...any) error }) (*Dinner, error) {
	var d Dinner
	err := row.Scan(&d.ID, &d.Title, &d.Description, &d.Date, &d.Location,
		&d.MaxAttendees, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repository) CreateDinner(ctx context.Context, d *Dinner) error {
	query := `
		INSERT INTO dinners (id, title, description, date, location, max_attendees, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.Title, d.Description, d.Date, d.Location, d.MaxAttendees, d.IsActive, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert dinner: %w", err)
	}
	return nil
}

func (r *Repository) DinnerByID(ctx context.Context, id string) (*Dinner, error) {
	d, err := scanDinner(r.db.QueryRowContext(ctx,
		`SELECT `+dinnerColumns+` FROM dinners WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

func (r *Repository) ListUpcoming(ctx context.Context, after time.Time, limit, offset int) ([]*Dinner, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+dinnerColumns+` FROM dinners
		WHERE is_active AND date > $1
		ORDER BY date ASC
		LIMIT $2 OFFSET $3`, after, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dinners []*Dinner
	for rows.Next() {
		d, err := scanDinner(rows)
		if err != nil {
			return nil, err
		}
		dinners = append(dinners, d)
	}
	return dinners, rows.Err()
}

func (r *Repository) UpdateDinner(ctx context.Context, d *Dinner) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dinners SET title = $1, description = $2, date = $3, location = $4,
			max_attendees = $5, updated_at = $6
		WHERE id = $7`,
		d.Title, d.Description, d.Date, d.Location, d.MaxAttendees, d.UpdatedAt, d.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *Repository) DeactivateDinner(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE dinners SET is_active = FALSE, updated_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

const bookingColumns = `id, user_id, dinner_id, status, notes, rating, booked_at, updated_at`

func scanBooking(row interface{ Scan(dest ...any) error }) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.UserID, &b.DinnerID, &b.Status, &b.Notes, &b.Rating, &b.BookedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBooking inserts the booking. The partial unique index on active
// seats backs the service's duplicate check under concurrency; a
// violation surfaces as ErrAlreadyBooked.
func (r *Repository) CreateBooking(ctx context.Context, b *Booking) error {
	query := `
		INSERT INTO bookings (id, user_id, dinner_id, status, notes, booked_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.UserID, b.DinnerID, b.Status, b.Notes, b.BookedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAlreadyBooked
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

func (r *Repository) BookingByID(ctx context.Context, id string) (*Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return b, err
}

func (r *Repository) BookingsForUser(ctx context.Context, userID string) ([]*Booking, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1
		ORDER BY booked_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (r *Repository) ActiveBookingCount(ctx context.Context, dinnerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE dinner_id = $1 AND status IN ('confirmed', 'pending')`, dinnerID,
	).Scan(&count)
	return count, err
}

// ActiveBookings returns the confirmed and pending bookings on a dinner.
func (r *Repository) ActiveBookings(ctx context.Context, dinnerID string) ([]*Booking, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE dinner_id = $1 AND status IN ('confirmed', 'pending')`, dinnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (r *Repository) HasActiveBooking(ctx context.Context, dinnerID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE dinner_id = $1 AND user_id = $2 AND status IN ('confirmed', 'pending')
		)`, dinnerID, userID,
	).Scan(&exists)
	return exists, err
}

func (r *Repository) SetBookingStatus(ctx context.Context, id, status string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3`, status, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetRating records the stars on an unrated booking. The rating IS NULL
// guard makes a concurrent double-rate lose cleanly.
func (r *Repository) SetRating(ctx context.Context, bookingID string, rating int, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET rating = $1, updated_at = $2
		WHERE id = $3 AND rating IS NULL`, rating, at, bookingID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlreadyRated
	}
	return nil
}

// RatableBookings lists the caller's confirmed, unrated bookings for
// dinners that ended within the last two days.
func (r *Repository) RatableBookings(ctx context.Context, userID string, now time.Time) ([]*RatableBooking, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT b.id, d.id, d.title, d.date, d.location
		FROM bookings b
		JOIN dinners d ON d.id = b.dinner_id
		WHERE b.user_id = $1 AND b.status = 'confirmed' AND b.rating IS NULL
		  AND d.date < $2 AND d.date >= $3
		ORDER BY d.date DESC`, userID, now, now.Add(-48*time.Hour))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RatableBooking
	for rows.Next() {
		var rb RatableBooking
		if err := rows.Scan(&rb.BookingID, &rb.DinnerID, &rb.DinnerTitle, &rb.DinnerDate, &rb.DinnerLocation); err != nil {
			return nil, err
		}
		out = append(out, &rb)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
